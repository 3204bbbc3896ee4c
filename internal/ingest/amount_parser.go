package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount reads a CODICE amount ("50000.00"). Empty input is a null amount.
func parseAmount(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// parseCount reads an integer quantity, truncating any fractional part. The
// value must fit the INTEGER columns it is stored in.
func parseCount(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	f = math.Trunc(f)
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("number %q out of range", raw)
	}
	n := int(f)
	return &n, nil
}

// durationMonths scales a PlannedPeriod duration to months. Only years ("ANN")
// are converted; other units are kept as published.
func durationMonths(raw, unit string) (*int, error) {
	n, err := parseCount(raw)
	if err != nil || n == nil {
		return n, err
	}
	if unit == "ANN" {
		if *n > math.MaxInt32/12 || *n < math.MinInt32/12 {
			return nil, fmt.Errorf("duration of %d years out of range", *n)
		}
		months := *n * 12
		return &months, nil
	}
	return n, nil
}
