package util

import (
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Float reads a number sent either as a JSON number or a numeric string.
func Float(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// NullDecimal is invalid when v is missing or not numeric.
func NullDecimal(v any) decimal.NullDecimal {
	f := Float(v)
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}

// NullString keeps non-empty strings only.
func NullString(v any) null.String {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}

// String returns the trimmed string value of v, or "" for anything else.
func String(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
