package alerts

import (
	"testing"

	"github.com/david/place-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleTender() models.TenderData {
	return models.TenderData{
		Title:            "Servicio de mantenimiento de software de gestión",
		Description:      "Soporte y evolución del sistema de expedientes",
		ContractTypeCode: "2",
		Region:           "Madrid",
		CPVCodes:         []string{"72212000", "48000000"},
		AmountExclTax:    amount("85000.00"),
	}
}

func TestFailedClause(t *testing.T) {
	tests := []struct {
		name  string
		alert models.Alert
		want  string
	}{
		{
			name:  "empty alert matches everything",
			alert: models.Alert{},
			want:  "",
		},
		{
			name:  "cpv prefix",
			alert: models.Alert{CPVPrefixes: []string{"72"}},
			want:  "",
		},
		{
			name:  "cpv prefix not present",
			alert: models.Alert{CPVPrefixes: []string{"45", "50"}},
			want:  ClauseCPV,
		},
		{
			name:  "blank cpv entries are ignored",
			alert: models.Alert{CPVPrefixes: []string{" ", ""}},
			want:  "",
		},
		{
			name:  "contract type listed",
			alert: models.Alert{ContractTypes: []string{"1", "2"}},
			want:  "",
		},
		{
			name:  "contract type not listed",
			alert: models.Alert{ContractTypes: []string{"3"}},
			want:  ClauseContractType,
		},
		{
			name:  "region not listed",
			alert: models.Alert{Regions: []string{"Sevilla"}},
			want:  ClauseRegion,
		},
		{
			name:  "amount within bounds",
			alert: models.Alert{MinAmount: amount("50000"), MaxAmount: amount("100000")},
			want:  "",
		},
		{
			name:  "bounds are inclusive",
			alert: models.Alert{MinAmount: amount("85000"), MaxAmount: amount("85000.00")},
			want:  "",
		},
		{
			name:  "below minimum",
			alert: models.Alert{MinAmount: amount("90000")},
			want:  ClauseMinAmount,
		},
		{
			name:  "above maximum",
			alert: models.Alert{MaxAmount: amount("80000")},
			want:  ClauseMaxAmount,
		},
		{
			name:  "keyword in title ignoring case",
			alert: models.Alert{Keywords: "obras, SOFTWARE"},
			want:  "",
		},
		{
			name:  "keyword in description",
			alert: models.Alert{Keywords: "expedientes"},
			want:  "",
		},
		{
			name:  "no keyword present",
			alert: models.Alert{Keywords: "limpieza,jardinería"},
			want:  ClauseKeywords,
		},
		{
			name:  "only blank keywords",
			alert: models.Alert{Keywords: " , ,"},
			want:  "",
		},
		{
			name:  "contract type checked before cpv",
			alert: models.Alert{ContractTypes: []string{"1"}, CPVPrefixes: []string{"45"}},
			want:  ClauseContractType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FailedClause(tt.alert, sampleTender())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == "", Matches(tt.alert, sampleTender()))
		})
	}
}

// A tender that publishes no amount cannot prove it is inside a bound.
func TestMissingAmountFailsBounds(t *testing.T) {
	tender := sampleTender()
	tender.AmountExclTax = decimal.NullDecimal{}

	assert.Equal(t, ClauseMinAmount, FailedClause(models.Alert{MinAmount: amount("1")}, tender))
	assert.Equal(t, ClauseMaxAmount, FailedClause(models.Alert{MaxAmount: amount("1000000")}, tender))
	assert.True(t, Matches(models.Alert{CPVPrefixes: []string{"48"}}, tender))
}

func TestKeywordsFoldAccents(t *testing.T) {
	tender := sampleTender()
	tender.Title = "SERVICIO DE GESTIÓN"

	assert.True(t, Matches(models.Alert{Keywords: "gestión"}, tender))
	assert.False(t, Matches(models.Alert{Keywords: "gestion"}, tender))
}
