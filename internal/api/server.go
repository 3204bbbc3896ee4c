package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david/place-sync/internal/alerts"
	"github.com/david/place-sync/internal/config"
	"github.com/david/place-sync/internal/db"
	"github.com/david/place-sync/internal/ingest"
	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const syncJobTimeout = 30 * time.Minute

// Syncer runs one feed sync.
type Syncer interface {
	SyncFeed(ctx context.Context, feed ingest.FeedConfig, opts ingest.SyncOptions) (ingest.Stats, error)
}

// Repository is the read side of the database used by the API.
type Repository interface {
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	GetTender(ctx context.Context, externalID string) (*models.Tender, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error)
}

// Options wires a Server.
type Options struct {
	Syncer      Syncer
	Repo        Repository
	Registry    *ingest.Registry
	DefaultFeed string
	AdminSecret string
	CORSOrigins []string
	Logger      *logrus.Logger
}

type Server struct {
	Echo     *echo.Echo
	Syncer   Syncer
	Repo     Repository
	Registry *ingest.Registry
	Logger   *logrus.Logger

	defaultFeed string
	adminSecret string

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Feed      string             `json:"feed"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Stats     ingest.Stats       `json:"stats"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

// NewServer wires the API to PostgreSQL using cfg.
func NewServer(pool *pgxpool.Pool, cfg *config.Config, registry *ingest.Registry, logger *logrus.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store := db.NewStore(pool)

	pipeline := ingest.NewPipeline(pool, logger, loc)
	if cfg.Sync.BatchSize > 0 {
		pipeline.BatchSize = cfg.Sync.BatchSize
	}
	if cfg.Sync.Notify {
		pipeline.Hooks = append(pipeline.Hooks, alerts.NewDispatcher(store, alerts.LogNotifier{Logger: logger}, logger))
	}

	secret, err := resolveAdminSecret(cfg.Admin.Secret, logger)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Syncer:      pipeline,
		Repo:        store,
		Registry:    registry,
		DefaultFeed: cfg.Sync.Feed,
		AdminSecret: secret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}), nil
}

// New builds a server from explicit dependencies.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(opts.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
		}))
	}

	s := &Server{
		Echo:        e,
		Syncer:      opts.Syncer,
		Repo:        opts.Repo,
		Registry:    opts.Registry,
		Logger:      opts.Logger,
		defaultFeed: opts.DefaultFeed,
		adminSecret: opts.AdminSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/feeds", s.handleListFeeds)
	api.GET("/runs", s.handleListRuns)
	api.GET("/tenders", s.handleGetTender)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/sync", s.handleSync)
	admin.POST("/sync/:feed", s.handleSync)
	admin.GET("/admin/job/:id", s.handleJobStatus)
	admin.POST("/alerts/match", s.handleMatchAlert)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListFeeds(c echo.Context) error {
	if s.Registry == nil {
		return c.JSON(http.StatusOK, []ingest.FeedConfig{})
	}
	return c.JSON(http.StatusOK, s.Registry.Feeds)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	runs, err := s.Repo.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.Logger.WithError(err).Error("List runs failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// handleGetTender looks a tender up by its feed entry id, which is a URL and
// so travels as a query parameter.
func (s *Server) handleGetTender(c echo.Context) error {
	externalID := strings.TrimSpace(c.QueryParam("external_id"))
	if externalID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "external_id param required"})
	}
	tender, err := s.Repo.GetTender(c.Request().Context(), externalID)
	if err != nil {
		s.Logger.WithError(err).WithField("external_id", externalID).Error("Get tender failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load tender"})
	}
	if tender == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, tenderResponse{ExternalID: tender.ExternalID(), Tender: tender})
}

type tenderResponse struct {
	ExternalID string `json:"external_id"`
	*models.Tender
}

// handleSync starts a sync run in the background and returns 202 with the
// job id to poll. Only one run may be active at a time.
func (s *Server) handleSync(c echo.Context) error {
	feedID := c.Param("feed")
	if feedID == "" {
		feedID = s.defaultFeed
	}
	if s.Registry == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "feed registry not loaded"})
	}
	feed, err := s.Registry.Feed(feedID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	var opts ingest.SyncOptions
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if opts.Limit, err = strconv.Atoi(raw); err != nil || opts.Limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
	}
	if raw := strings.TrimSpace(c.QueryParam("pages")); raw != "" {
		if opts.MaxPages, err = strconv.Atoi(raw); err != nil || opts.MaxPages < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "pages must be a non-negative integer"})
		}
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A sync job is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), syncJobTimeout,
	)
	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Feed:      feed.ID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		stats, err := s.Syncer.SyncFeed(jobCtx, feed, opts)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Stats = stats
		if err != nil {
			var syncErr *ingest.SyncError
			if errors.As(err, &syncErr) {
				job.Stats = syncErr.Stats
			}
			job.Status = "failed"
			job.Error = err.Error()
			return
		}
		job.Status = "completed"
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Sync job started",
		"job_id":  jobID,
		"feed":    feed.ID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"feed":       job.Feed,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
		resp["stats"] = job.Stats
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

type matchRequest struct {
	AlertID    string             `json:"alert_id,omitempty"`
	Alert      *models.Alert      `json:"alert,omitempty"`
	ExternalID string             `json:"external_id,omitempty"`
	Tender     *models.TenderData `json:"tender,omitempty"`
}

type matchResponse struct {
	Match        bool   `json:"match"`
	FailedClause string `json:"failed_clause,omitempty"`
}

// handleMatchAlert evaluates one alert against one tender. Either side may be
// given inline or by reference to a stored record.
func (s *Server) handleMatchAlert(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	ctx := c.Request().Context()

	alert := req.Alert
	if alert == nil {
		id, err := uuid.Parse(req.AlertID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "alert or valid alert_id required"})
		}
		if alert, err = s.Repo.GetAlert(ctx, id); err != nil {
			s.Logger.WithError(err).Error("Get alert failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load alert"})
		}
		if alert == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "alert not found"})
		}
	}

	tender := req.Tender
	if tender == nil {
		if req.ExternalID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "tender or external_id required"})
		}
		stored, err := s.Repo.GetTender(ctx, req.ExternalID)
		if err != nil {
			s.Logger.WithError(err).Error("Get tender failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load tender"})
		}
		if stored == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "tender not found"})
		}
		tender = &stored.TenderData
	}

	clause := alerts.FailedClause(*alert, *tender)
	return c.JSON(http.StatusOK, matchResponse{Match: clause == "", FailedClause: clause})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops the HTTP server and cancels a running sync job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.adminSecret == "" {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == s.adminSecret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == s.adminSecret {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

// resolveAdminSecret returns the configured secret or a random one for the
// lifetime of the process.
func resolveAdminSecret(configured string, logger *logrus.Logger) (string, error) {
	if secret := strings.TrimSpace(configured); secret != "" {
		return secret, nil
	}

	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate admin secret fallback: %w", err)
	}
	logger.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
