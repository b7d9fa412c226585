package kag

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPattern = regexp.MustCompile(`^\$?[\d,]+(\.\d+)?$`)
	datePattern     = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}$`)
)

// NormalizeValue rewrites extracted string values into consistent graph
// property types: currency-like strings become float64, date-like strings
// are trimmed and kept as strings. Everything else passes through
// unchanged, so normalizing twice equals normalizing once.
func NormalizeValue(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}

	trimmed := strings.TrimSpace(s)

	if currencyPattern.MatchString(trimmed) {
		numeric := strings.ReplaceAll(strings.TrimPrefix(trimmed, "$"), ",", "")
		if f, err := strconv.ParseFloat(numeric, 64); err == nil {
			return f
		}
	}

	if datePattern.MatchString(trimmed) {
		return trimmed
	}

	return value
}

// NormalizeProperties normalizes every value of a property map, dropping
// nils so the graph store never sees explicit null properties.
func NormalizeProperties(props map[string]interface{}) map[string]interface{} {
	normalized := make(map[string]interface{}, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		normalized[k] = NormalizeValue(v)
	}
	return normalized
}
