package ingest

import (
	"fmt"

	"github.com/antchfx/xpath"
)

// Namespaces binds the prefixes used in every query to the ATOM and CODICE schemas.
var Namespaces = map[string]string{
	"atom":      "http://www.w3.org/2005/Atom",
	"cbc":       "urn:dgpe:names:draft:codice:schema:xsd:CommonBasicComponents-2",
	"cac":       "urn:dgpe:names:draft:codice:schema:xsd:CommonAggregateComponents-2",
	"cbc-place": "urn:dgpe:names:draft:codice-place-ext:schema:xsd:CommonBasicComponents-2",
	"cac-place": "urn:dgpe:names:draft:codice-place-ext:schema:xsd:CommonAggregateComponents-2",
}

func mustCompile(expr string) *xpath.Expr {
	e, err := xpath.CompileWithNS(expr, Namespaces)
	if err != nil {
		panic(fmt.Sprintf("ingest: bad xpath %q: %v", expr, err))
	}
	return e
}

const (
	project   = ".//cac:ProcurementProject"
	tendering = ".//cac:TenderingProcess"
	result    = ".//cac:TenderResult"
	party     = ".//cac-place:LocatedContractingParty/cac:Party"
)

var (
	xEntries  = mustCompile("//atom:entry")
	xNextLink = mustCompile(`/atom:feed/atom:link[@rel="next"]`)

	xEntryID = mustCompile("atom:id")
	xTitle   = mustCompile("atom:title")
	xLink    = mustCompile(`atom:link[@rel="alternate"]`)

	xFolderID   = mustCompile(".//cbc:ContractFolderID")
	xStatusCode = mustCompile(".//cbc-place:ContractFolderStatusCode")

	xTypeCode    = mustCompile(project + "/cbc:TypeCode")
	xSubTypeCode = mustCompile(project + "/cbc:SubTypeCode")
	xAmountExcl  = mustCompile(project + "/cac:BudgetAmount/cbc:TaxExclusiveAmount")
	xAmountIncl  = mustCompile(project + "/cac:BudgetAmount/cbc:TotalAmount")
	xCPV         = mustCompile(project + "/cac:RequiredCommodityClassification/cbc:ItemClassificationCode")
	xRegion      = mustCompile(project + "/cac:RealizedLocation/cbc:CountrySubentity")
	xRegionCode  = mustCompile(project + "/cac:RealizedLocation/cac:Address/cbc:CountrySubentityCode")
	xDuration    = mustCompile(project + "/cac:PlannedPeriod/cbc:DurationMeasure")
	xProjectName = mustCompile(project + "/cbc:Name")

	xProcedureCode = mustCompile(tendering + "/cbc:ProcedureCode")
	xDeadlineDate  = mustCompile(tendering + "/cac:TenderSubmissionDeadlinePeriod/cbc:EndDate")
	xDeadlineTime  = mustCompile(tendering + "/cac:TenderSubmissionDeadlinePeriod/cbc:EndTime")
	xIssueDate     = mustCompile(".//cac-place:ValidNoticeInfo/cbc:IssueDate")

	xCriteria            = mustCompile(".//cac:TenderingTerms/cac:AwardingTerms/cac:AwardingCriteria")
	xCriterionType       = mustCompile(".//cbc:AwardingCriteriaTypeCode")
	xCriterionDesc       = mustCompile(".//cbc:Description")
	xCriterionWeight     = mustCompile(".//cbc:WeightNumeric")
	xDocumentName        = mustCompile(".//cbc:ID")
	xDocumentURI         = mustCompile(".//cac:ExternalReference/cbc:URI")
	xDocumentHash        = mustCompile(".//cac:ExternalReference/cbc:DocumentHash")
	xAwardDate           = mustCompile(result + "/cbc:AwardDate")
	xOfferCount          = mustCompile(result + "/cbc:ReceivedTenderQuantity")
	xAwardeeName         = mustCompile(result + "/cac:WinningParty/cac:PartyName/cbc:Name")
	xAwardeeTaxID        = mustCompile(result + "/cac:WinningParty/cac:PartyIdentification/cbc:ID")
	xAwardAmount         = mustCompile(result + "/cac:AwardedTenderedProject/cac:LegalMonetaryTotal/cbc:PayableAmount")
	xAuthorityTaxIDNIF   = mustCompile(party + `/cac:PartyIdentification/cbc:ID[@schemeName="NIF" or @schemeName="CIF"]`)
	xAuthorityTaxIDAny   = mustCompile(party + "/cac:PartyIdentification/cbc:ID")
	xAuthorityName       = mustCompile(party + "/cac:PartyName/cbc:Name")
	xAuthorityDIR3       = mustCompile(party + `/cac:PartyIdentification/cbc:ID[@schemeName="DIR3"]`)
	xAuthorityPlatformID = mustCompile(party + `/cac:PartyIdentification/cbc:ID[@schemeName="ID_PLATAFORMA"]`)
	xAuthorityAdminType  = mustCompile(".//cac-place:LocatedContractingParty/cbc:ContractingPartyTypeCode")
	xAuthorityActivity   = mustCompile(".//cac-place:LocatedContractingParty/cbc:ActivityCode")
	xAuthorityStreet     = mustCompile(party + "/cac:PostalAddress/cbc:StreetName")
	xAuthorityPostalCode = mustCompile(party + "/cac:PostalAddress/cbc:PostalZone")
	xAuthorityCity       = mustCompile(party + "/cac:PostalAddress/cbc:CityName")
	xAuthorityProvince   = mustCompile(party + "/cac:PostalAddress/cbc:CountrySubentity")
	xAuthorityEmail      = mustCompile(party + "/cac:Contact/cbc:ElectronicMail")
	xAuthorityPhone      = mustCompile(party + "/cac:Contact/cbc:Telephone")
	xAuthorityProfileURL = mustCompile(party + "/cbc:WebsiteURI")
)

// documentKinds lists the document reference elements in extraction order.
var documentKinds = []struct {
	expr  *xpath.Expr
	label string
}{
	{mustCompile(".//cac:LegalDocumentReference"), "Pliego administrativo"},
	{mustCompile(".//cac:TechnicalDocumentReference"), "Pliego técnico"},
	{mustCompile(".//cac:AdditionalDocumentReference"), "Documento adicional"},
}
