package kag

import "testing"

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"line_items", "line_items"},
		{"Line Item", "Line_Item"},
		{"vendor-name", "vendor_name"},
		{"e0); DETACH DELETE d; //", "e0___DETACH_DELETE_d____"},
		{"café", "caf_"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIdentifierIdempotent(t *testing.T) {
	inputs := []string{"Line Item", "a;b'c", "already_safe_123", "$total$"}
	for _, in := range inputs {
		once := SanitizeIdentifier(in)
		twice := SanitizeIdentifier(once)
		if once != twice {
			t.Errorf("SanitizeIdentifier not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitizeRelationshipType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"contains item", "CONTAINS_ITEM"},
		{"issued-by", "ISSUED_BY"},
		{"BILLED_TO", "BILLED_TO"},
	}

	for _, tt := range tests {
		if got := SanitizeRelationshipType(tt.in); got != tt.want {
			t.Errorf("SanitizeRelationshipType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
