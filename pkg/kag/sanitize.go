package kag

import (
	"regexp"
	"strings"
)

var (
	unsafeIdentChars    = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	numericValuePattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// SanitizeIdentifier rewrites a model-supplied string into a safe graph
// schema identifier. The output contains only [A-Za-z0-9_], so it can be
// interpolated into a Cypher label position. The transform is idempotent.
func SanitizeIdentifier(s string) string {
	return unsafeIdentChars.ReplaceAllString(s, "_")
}

// SanitizeRelationshipType normalizes a relationship-type string the way
// relationship labels are written to the graph: upper-cased, spaces turned
// into underscores, then sanitized like any other identifier.
func SanitizeRelationshipType(s string) string {
	return SanitizeIdentifier(strings.ReplaceAll(strings.ToUpper(s), " ", "_"))
}

// escapeCypherString makes a value safe to embed inside a single-quoted
// Cypher string literal.
func escapeCypherString(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}

// comparisonValue renders a value for an unquoted comparison position.
// Only plain numeric literals may appear bare; anything else is quoted
// and escaped so the comparison degrades to string ordering instead of
// leaking raw text into the query.
func comparisonValue(s string) string {
	if numericValuePattern.MatchString(s) {
		return s
	}
	return "'" + escapeCypherString(s) + "'"
}
