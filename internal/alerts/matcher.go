// Package alerts decides which saved alerts a tender satisfies and hands the
// matches to a notifier.
package alerts

import (
	"strings"

	"github.com/david/place-sync/internal/models"
	"golang.org/x/text/cases"
)

// Clause names reported by FailedClause.
const (
	ClauseContractType = "contract_type"
	ClauseRegion       = "region"
	ClauseMinAmount    = "min_amount"
	ClauseMaxAmount    = "max_amount"
	ClauseCPV          = "cpv"
	ClauseKeywords     = "keywords"
)

// Matches reports whether tender satisfies every criterion of alert.
func Matches(alert models.Alert, tender models.TenderData) bool {
	return FailedClause(alert, tender) == ""
}

// FailedClause returns the first criterion tender does not satisfy, or "" on
// a match. Cheap clauses are checked first.
func FailedClause(alert models.Alert, tender models.TenderData) string {
	switch {
	case !matchMember(alert.ContractTypes, tender.ContractTypeCode):
		return ClauseContractType
	case !matchMember(alert.Regions, tender.Region):
		return ClauseRegion
	case !matchMinAmount(alert, tender):
		return ClauseMinAmount
	case !matchMaxAmount(alert, tender):
		return ClauseMaxAmount
	case !matchCPV(alert.CPVPrefixes, tender.CPVCodes):
		return ClauseCPV
	case !matchKeywords(alert.Keywords, tender.Title, tender.Description):
		return ClauseKeywords
	}
	return ""
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func matchMember(allowed []string, value string) bool {
	allowed = cleanList(allowed)
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// matchCPV treats alert codes as prefixes: "72" covers "72000000" and "72212000".
func matchCPV(prefixes, codes []string) bool {
	prefixes = cleanList(prefixes)
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		for _, c := range codes {
			if strings.HasPrefix(c, p) {
				return true
			}
		}
	}
	return false
}

// A tender without an amount fails any amount bound.
func matchMinAmount(alert models.Alert, tender models.TenderData) bool {
	if !alert.MinAmount.Valid {
		return true
	}
	if !tender.AmountExclTax.Valid {
		return false
	}
	return tender.AmountExclTax.Decimal.GreaterThanOrEqual(alert.MinAmount.Decimal)
}

func matchMaxAmount(alert models.Alert, tender models.TenderData) bool {
	if !alert.MaxAmount.Valid {
		return true
	}
	if !tender.AmountExclTax.Valid {
		return false
	}
	return tender.AmountExclTax.Decimal.LessThanOrEqual(alert.MaxAmount.Decimal)
}

// matchKeywords looks for any comma separated keyword inside the title or the
// description, ignoring case.
func matchKeywords(keywords, title, description string) bool {
	fold := cases.Fold()
	var terms []string
	for _, k := range strings.Split(keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, fold.String(k))
		}
	}
	if len(terms) == 0 {
		return true
	}

	title = fold.String(title)
	description = fold.String(description)
	for _, k := range terms {
		if strings.Contains(title, k) || strings.Contains(description, k) {
			return true
		}
	}
	return false
}
