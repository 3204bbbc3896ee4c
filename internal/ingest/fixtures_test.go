package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"
      xmlns:cbc="urn:dgpe:names:draft:codice:schema:xsd:CommonBasicComponents-2"
      xmlns:cac="urn:dgpe:names:draft:codice:schema:xsd:CommonAggregateComponents-2"
      xmlns:cbc-place-ext="urn:dgpe:names:draft:codice-place-ext:schema:xsd:CommonBasicComponents-2"
      xmlns:cac-place-ext="urn:dgpe:names:draft:codice-place-ext:schema:xsd:CommonAggregateComponents-2">
  <title>Licitaciones publicadas</title>
  <id>https://contrataciondelsectorpublico.gob.es/sindicacion/sindicacion_643/feed</id>
  <updated>2024-05-10T10:00:00+02:00</updated>
`

// fixture builds one feed entry. Zero values leave the element out.
type fixture struct {
	ID          string
	Title       string
	TitleType   string
	Folder      string
	Status      string
	Type        string
	AmountExcl  string
	AmountIncl  string
	CPV         []string
	TaxID       string
	TaxScheme   string
	Authority   string
	Province    string
	Region      string
	Procedure   string
	Deadline    string
	DeadlineAt  string
	IssueDate   string
	Description string
	Extra       string
}

func el(name, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("<%s>%s</%s>", name, value, name)
}

func (e fixture) XML() string {
	var b strings.Builder
	b.WriteString("<entry>")
	b.WriteString(el("id", e.ID))
	b.WriteString(`<link href="` + e.ID + `/detalle" rel="alternate"/>`)
	if e.TitleType != "" {
		b.WriteString(`<title type="` + e.TitleType + `">` + e.Title + "</title>")
	} else {
		b.WriteString(el("title", e.Title))
	}
	b.WriteString("<updated>2024-05-10T10:00:00+02:00</updated>")
	b.WriteString("<cac-place-ext:ContractFolderStatus>")
	b.WriteString(el("cbc:ContractFolderID", e.Folder))
	b.WriteString(el("cbc-place-ext:ContractFolderStatusCode", e.Status))

	if e.TaxID != "" || e.Authority != "" {
		scheme := e.TaxScheme
		if scheme == "" {
			scheme = "NIF"
		}
		b.WriteString("<cac-place-ext:LocatedContractingParty>")
		b.WriteString("<cbc:ContractingPartyTypeCode>1</cbc:ContractingPartyTypeCode>")
		b.WriteString("<cac:Party>")
		b.WriteString(`<cac:PartyIdentification><cbc:ID schemeName="DIR3">L01280796</cbc:ID></cac:PartyIdentification>`)
		if e.TaxID != "" {
			b.WriteString(`<cac:PartyIdentification><cbc:ID schemeName="` + scheme + `">` + e.TaxID + `</cbc:ID></cac:PartyIdentification>`)
		}
		b.WriteString("<cac:PartyName>" + el("cbc:Name", e.Authority) + "</cac:PartyName>")
		b.WriteString("<cac:PostalAddress>" + el("cbc:CityName", "Madrid") + el("cbc:CountrySubentity", e.Province) + "</cac:PostalAddress>")
		b.WriteString("</cac:Party>")
		b.WriteString("</cac-place-ext:LocatedContractingParty>")
	}

	b.WriteString("<cac:ProcurementProject>")
	b.WriteString(el("cbc:Name", e.Description))
	b.WriteString(el("cbc:TypeCode", e.Type))
	if e.AmountExcl != "" || e.AmountIncl != "" {
		b.WriteString("<cac:BudgetAmount>")
		b.WriteString(el("cbc:TotalAmount", e.AmountIncl))
		b.WriteString(el("cbc:TaxExclusiveAmount", e.AmountExcl))
		b.WriteString("</cac:BudgetAmount>")
	}
	for _, c := range e.CPV {
		b.WriteString("<cac:RequiredCommodityClassification>" + el("cbc:ItemClassificationCode", c) + "</cac:RequiredCommodityClassification>")
	}
	if e.Region != "" {
		b.WriteString("<cac:RealizedLocation>" + el("cbc:CountrySubentity", e.Region) + "</cac:RealizedLocation>")
	}
	b.WriteString("</cac:ProcurementProject>")

	if e.Procedure != "" || e.Deadline != "" {
		b.WriteString("<cac:TenderingProcess>")
		b.WriteString(el("cbc:ProcedureCode", e.Procedure))
		if e.Deadline != "" {
			b.WriteString("<cac:TenderSubmissionDeadlinePeriod>" + el("cbc:EndDate", e.Deadline) + el("cbc:EndTime", e.DeadlineAt) + "</cac:TenderSubmissionDeadlinePeriod>")
		}
		b.WriteString("</cac:TenderingProcess>")
	}
	if e.IssueDate != "" {
		b.WriteString("<cac-place-ext:ValidNoticeInfo>" + el("cbc:IssueDate", e.IssueDate) + "</cac-place-ext:ValidNoticeInfo>")
	}
	b.WriteString(e.Extra)
	b.WriteString("</cac-place-ext:ContractFolderStatus>")
	b.WriteString("</entry>")
	return b.String()
}

func feed(next string, entries ...fixture) string {
	var b strings.Builder
	b.WriteString(feedHeader)
	if next != "" {
		b.WriteString(`<link href="` + next + `" rel="next"/>`)
	}
	for _, e := range entries {
		b.WriteString(e.XML())
	}
	b.WriteString("</feed>")
	return b.String()
}

func parseEntries(t *testing.T, doc string) []*xmlquery.Node {
	t.Helper()
	root, err := xmlquery.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return xmlquery.QuerySelectorAll(root, xEntries)
}

func parseEntry(t *testing.T, e fixture) *xmlquery.Node {
	t.Helper()
	nodes := parseEntries(t, feed("", e))
	require.Len(t, nodes, 1)
	return nodes[0]
}

func tenderID(n int) string {
	return fmt.Sprintf("https://contrataciondelsectorpublico.gob.es/licitacion/%d", n)
}

// memStore is an in-memory Store that counts round trips.
type memStore struct {
	tenders     map[string]*models.Tender
	authorities map[string]*models.ContractingAuthority

	flushes        int
	findAuthority  int
	saveAuthority  int
	closed         bool
	broken         bool
	failSaveTender map[string]error
	failFlush      error
	// breakOnFlush marks the store unusable when a flush fails.
	breakOnFlush bool
}

func newMemStore() *memStore {
	return &memStore{
		tenders:     map[string]*models.Tender{},
		authorities: map[string]*models.ContractingAuthority{},
	}
}

func (m *memStore) FindTender(ctx context.Context, externalID string) (*models.Tender, error) {
	if t, ok := m.tenders[externalID]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) FindAuthority(ctx context.Context, taxID string) (*models.ContractingAuthority, error) {
	m.findAuthority++
	if a, ok := m.authorities[taxID]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) SaveAuthority(ctx context.Context, a *models.ContractingAuthority) error {
	if m.broken {
		return errors.New("connection lost")
	}
	m.saveAuthority++
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
		a.CreatedAt = time.Now()
	}
	c := *a
	m.authorities[a.TaxID] = &c
	return nil
}

func (m *memStore) SaveTender(ctx context.Context, t *models.Tender) error {
	if m.broken {
		return errors.New("connection lost")
	}
	if err := m.failSaveTender[t.ExternalID()]; err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
		t.CreatedAt = time.Now()
	}
	c := *t
	m.tenders[t.ExternalID()] = &c
	return nil
}

func (m *memStore) Flush(ctx context.Context) error {
	if m.failFlush != nil {
		if m.breakOnFlush {
			m.broken = true
		}
		return m.failFlush
	}
	if m.broken {
		return errors.New("connection lost")
	}
	m.flushes++
	return nil
}

func (m *memStore) Usable() bool { return !m.broken && !m.closed }

func (m *memStore) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

type MockFetcher struct {
	Data     map[string][]byte
	Err      map[string]error
	Requests []string
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	m.Requests = append(m.Requests, url)
	if err := m.Err[url]; err != nil {
		return nil, err
	}
	content, ok := m.Data[url]
	if !ok {
		return nil, fmt.Errorf("%w: mock 404: %s", ErrFetch, url)
	}
	return &FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(content)),
		Headers:    make(http.Header),
		FetchedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}
