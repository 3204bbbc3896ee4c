package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/place-sync/internal/ingest"
	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeRepo struct {
	runs    []models.SyncRun
	tenders map[string]*models.Tender
	alerts  map[uuid.UUID]*models.Alert
}

func (f *fakeRepo) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return f.runs, nil
}

func (f *fakeRepo) GetTender(ctx context.Context, externalID string) (*models.Tender, error) {
	return f.tenders[externalID], nil
}

func (f *fakeRepo) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	return f.alerts[id], nil
}

type blockingSyncer struct {
	mu      sync.Mutex
	release chan struct{}
	calls   []ingest.SyncOptions
}

func (b *blockingSyncer) SyncFeed(ctx context.Context, feed ingest.FeedConfig, opts ingest.SyncOptions) (ingest.Stats, error) {
	b.mu.Lock()
	b.calls = append(b.calls, opts)
	b.mu.Unlock()
	<-b.release
	return ingest.Stats{Total: 2, New: 2}, nil
}

func newTestServer(t *testing.T, repo *fakeRepo, syncer Syncer) *Server {
	t.Helper()
	registry, err := ingest.LoadRegistry("")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return New(Options{
		Syncer:      syncer,
		Repo:        repo,
		Registry:    registry,
		DefaultFeed: "licitaciones",
		AdminSecret: secret,
		Logger:      logger,
	})
}

func do(s *Server, method, target, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if admin {
		req.Header.Set("X-Admin-Secret", secret)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeRepo{}, nil)
	rec := do(s, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestListRunsEmpty(t *testing.T) {
	s := newTestServer(t, &fakeRepo{}, nil)
	rec := do(s, http.MethodGet, "/api/v1/runs", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetTender(t *testing.T) {
	id := "https://contrataciondelsectorpublico.gob.es/licitacion/1"
	tender := models.NewTender(id)
	tender.Title = "Obras de urbanización"
	s := newTestServer(t, &fakeRepo{tenders: map[string]*models.Tender{id: tender}}, nil)

	rec := do(s, http.MethodGet, "/api/v1/tenders?external_id="+id, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body["external_id"])
	assert.Equal(t, "Obras de urbanización", body["title"])

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/tenders?external_id=missing", "", false).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/tenders", "", false).Code)
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t, &fakeRepo{}, nil)

	routes := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/v1/sync"},
		{http.MethodPost, "/api/v1/sync/menores"},
		{http.MethodGet, "/api/v1/admin/job/abc"},
		{http.MethodPost, "/api/v1/alerts/match"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.target, func(t *testing.T) {
			rec := do(s, r.method, r.target, "", false)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestSyncJobLifecycle(t *testing.T) {
	syncer := &blockingSyncer{release: make(chan struct{})}
	s := newTestServer(t, &fakeRepo{}, syncer)

	rec := do(s, http.MethodPost, "/api/v1/sync/menores?limit=5", "", true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	jobID := started["job_id"].(string)
	assert.Equal(t, "menores", started["feed"])

	conflict := do(s, http.MethodPost, "/api/v1/sync", "", true)
	assert.Equal(t, http.StatusConflict, conflict.Code)

	close(syncer.release)
	require.Eventually(t, func() bool {
		rec := do(s, http.MethodGet, "/api/v1/admin/job/"+jobID, "", true)
		return strings.Contains(rec.Body.String(), `"status":"completed"`)
	}, 2*time.Second, 10*time.Millisecond)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	require.Len(t, syncer.calls, 1)
	assert.Equal(t, 5, syncer.calls[0].Limit)
}

func TestSyncValidation(t *testing.T) {
	s := newTestServer(t, &fakeRepo{}, &blockingSyncer{release: make(chan struct{})})

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/api/v1/sync/unknown", "", true).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/v1/sync?limit=abc", "", true).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/admin/job/nope", "", true).Code)
}

func TestMatchAlert(t *testing.T) {
	alertID := uuid.New()
	id := "https://contrataciondelsectorpublico.gob.es/licitacion/2"
	stored := models.NewTender(id)
	stored.CPVCodes = []string{"72212000"}
	stored.ContractTypeCode = "2"

	repo := &fakeRepo{
		tenders: map[string]*models.Tender{id: stored},
		alerts: map[uuid.UUID]*models.Alert{
			alertID: {ID: alertID, CPVPrefixes: []string{"72"}},
		},
	}
	s := newTestServer(t, repo, nil)

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{
			name:   "stored alert and tender",
			body:   `{"alert_id":"` + alertID.String() + `","external_id":"` + id + `"}`,
			status: http.StatusOK,
			want:   `{"match":true}`,
		},
		{
			name:   "inline alert fails contract type",
			body:   `{"alert":{"contract_types":["3"]},"external_id":"` + id + `"}`,
			status: http.StatusOK,
			want:   `{"match":false,"failed_clause":"contract_type"}`,
		},
		{
			name:   "inline tender without amount fails bound",
			body:   `{"alert":{"min_amount":"1000"},"tender":{"title":"x"}}`,
			status: http.StatusOK,
			want:   `{"match":false,"failed_clause":"min_amount"}`,
		},
		{
			name:   "unknown alert",
			body:   `{"alert_id":"` + uuid.NewString() + `","external_id":"` + id + `"}`,
			status: http.StatusNotFound,
		},
		{
			name:   "missing tender reference",
			body:   `{"alert_id":"` + alertID.String() + `"}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/v1/alerts/match", tt.body, true)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}
}
