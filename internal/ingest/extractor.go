package ingest

import (
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/models"
)

// Extractor maps one ATOM entry carrying a CODICE ContractFolderStatus into
// tender fields. It performs no I/O.
type Extractor struct {
	// Location applies to dates published without a zone offset.
	Location *time.Location
}

func NewExtractor(loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{Location: loc}
}

// EntryID returns the entry's atom:id, or "" when it has none.
func EntryID(entry *xmlquery.Node) string {
	return textAt(entry, xEntryID)
}

// RawFragment serializes the entry for audit storage.
func RawFragment(entry *xmlquery.Node) string {
	return entry.OutputXML(true)
}

// Extract reads every tender field from entry. Missing optional fields are left
// empty; values that are present but unparseable are reported as errors.
func (x *Extractor) Extract(entry *xmlquery.Node) (models.TenderData, error) {
	var d models.TenderData
	var err error

	d.Title = firstNonEmpty(entryTitle(entry), defaultTitle)
	if link := xmlquery.QuerySelector(entry, xLink); link != nil {
		d.URL = link.SelectAttr("href")
	}
	d.FolderCode = firstNonEmpty(textAt(entry, xFolderID), defaultFolderCode)

	status := textAt(entry, xStatusCode)
	d.StatusCode = firstNonEmpty(status, defaultStatusCode)
	d.StatusDescription = StatusDescription(status)

	contractType := textAt(entry, xTypeCode)
	d.ContractTypeCode = firstNonEmpty(contractType, defaultContractTypeCode)
	d.ContractTypeDescription = ContractTypeDescription(contractType)
	d.Subtype = textAt(entry, xSubTypeCode)

	if d.AmountExclTax, err = parseAmount(textAt(entry, xAmountExcl)); err != nil {
		return d, errorf("tax exclusive amount: %w", err)
	}
	if d.AmountInclTax, err = parseAmount(textAt(entry, xAmountIncl)); err != nil {
		return d, errorf("total amount: %w", err)
	}

	d.CPVCodes = textsAt(entry, xCPV)
	d.Region = textAt(entry, xRegion)
	d.RegionCode = textAt(entry, xRegionCode)

	d.ProcedureCode = textAt(entry, xProcedureCode)
	d.ProcedureDescription = ProcedureDescription(d.ProcedureCode)

	if v := textAt(entry, xIssueDate); v != "" {
		t, err := parseFeedDate(v, x.Location)
		if err != nil {
			return d, errorf("issue date: %w", err)
		}
		d.PublishedAt = &t
	}

	if v := textAt(entry, xDeadlineDate); v != "" {
		t, err := parseDeadline(v, textAt(entry, xDeadlineTime), x.Location)
		if err != nil {
			return d, errorf("submission deadline: %w", err)
		}
		d.DeadlineAt = &t
	}

	if d.DurationMonths, err = durationMonths(textAt(entry, xDuration), attrAt(entry, xDuration, "unitCode")); err != nil {
		return d, errorf("planned duration: %w", err)
	}

	d.Description = textAt(entry, xProjectName)
	d.AwardCriteria = extractCriteria(entry)
	d.Documents = extractDocuments(entry)

	if err := x.extractAward(entry, &d); err != nil {
		return d, err
	}
	return d, nil
}

// entryTitle reads atom:title. Only html and xhtml titles carry markup; text
// titles are kept verbatim, angle brackets included.
func entryTitle(entry *xmlquery.Node) string {
	title := textAt(entry, xTitle)
	switch attrAt(entry, xTitle, "type") {
	case "html", "xhtml":
		return htmlToText(title)
	}
	return title
}

func extractCriteria(entry *xmlquery.Node) []models.AwardCriterion {
	criteria := []models.AwardCriterion{}
	for _, n := range xmlquery.QuerySelectorAll(entry, xCriteria) {
		c := models.AwardCriterion{
			Type:        textAt(n, xCriterionType),
			Description: textAt(n, xCriterionDesc),
			Weight:      textAt(n, xCriterionWeight),
		}
		if c.Description == "" && c.Weight == "" {
			continue
		}
		criteria = append(criteria, c)
	}
	return criteria
}

func extractDocuments(entry *xmlquery.Node) []models.DocumentRef {
	docs := []models.DocumentRef{}
	for _, kind := range documentKinds {
		for _, n := range xmlquery.QuerySelectorAll(entry, kind.expr) {
			doc := models.DocumentRef{
				Type: kind.label,
				Name: textAt(n, xDocumentName),
				URL:  textAt(n, xDocumentURI),
				Hash: textAt(n, xDocumentHash),
			}
			if doc.URL == "" {
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

func (x *Extractor) extractAward(entry *xmlquery.Node, d *models.TenderData) error {
	var err error

	if v := textAt(entry, xAwardDate); v != "" {
		t, err := parseFeedDate(v, x.Location)
		if err != nil {
			return errorf("award date: %w", err)
		}
		d.AwardedAt = &t
	}
	if d.OfferCount, err = parseCount(textAt(entry, xOfferCount)); err != nil {
		return errorf("received tender quantity: %w", err)
	}
	d.AwardeeName = textAt(entry, xAwardeeName)
	d.AwardeeTaxID = textAt(entry, xAwardeeTaxID)
	if d.AwardAmount, err = parseAmount(textAt(entry, xAwardAmount)); err != nil {
		return errorf("payable amount: %w", err)
	}
	return nil
}
