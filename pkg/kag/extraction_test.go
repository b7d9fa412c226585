package kag

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestExtractDegradesToDocumentType(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{err: errors.New("model down")}, "test-model", testLogger())

	got := extractor.Extract(context.Background(), "some text", DocumentSchema{DocumentType: "invoice"})
	if len(got) != 1 || got["document_type"] != "invoice" {
		t.Errorf("degraded extraction = %#v, want just the document type", got)
	}
}

func TestExtractDegradesOnEmptyResponse(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{noChoices: true}, "test-model", testLogger())

	got := extractor.Extract(context.Background(), "some text", DocumentSchema{DocumentType: "invoice"})
	if len(got) != 1 || got["document_type"] != "invoice" {
		t.Errorf("degraded extraction = %#v, want just the document type", got)
	}
}

func TestExtractOverridesModelDocumentType(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{content: `{
		"document_type": "receipt",
		"vendor": {"name": "Acme"}
	}`}, "test-model", testLogger())

	got := extractor.Extract(context.Background(), "some text", DocumentSchema{DocumentType: "invoice"})
	if got["document_type"] != "invoice" {
		t.Errorf("document_type = %#v, the schema's type must win", got["document_type"])
	}
	vendor, ok := got["vendor"].(map[string]interface{})
	if !ok || vendor["name"] != "Acme" {
		t.Errorf("vendor = %#v", got["vendor"])
	}
}

func TestExtractInvoiceGraph(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{content: `{
		"document_node": {
			"type": "Invoice",
			"properties": {"invoice_number": "INV-100", "total_amount": "$42.00"}
		},
		"entities": [
			{"label": "LineItem", "properties": {"description": "Widget"}}
		],
		"relationships": [
			{"from_node": 0, "to_node": 0, "type": "CONTAINS", "properties": {}}
		]
	}`}, "test-model", testLogger())

	structure, err := extractor.ExtractInvoiceGraph(context.Background(), "Invoice INV-100")
	if err != nil {
		t.Fatalf("ExtractInvoiceGraph: %v", err)
	}
	if structure.DocumentNode.Properties["invoice_number"] != "INV-100" {
		t.Errorf("invoice_number = %#v", structure.DocumentNode.Properties["invoice_number"])
	}
	if len(structure.Entities) != 1 || structure.Entities[0].Label != "LineItem" {
		t.Errorf("entities = %#v", structure.Entities)
	}
}

func TestExtractInvoiceGraphFailsOnModelError(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{err: errors.New("model down")}, "test-model", testLogger())

	if _, err := extractor.ExtractInvoiceGraph(context.Background(), "text"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestExtractInvoiceGraphFailsOnEmptyResponse(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{noChoices: true}, "test-model", testLogger())

	if _, err := extractor.ExtractInvoiceGraph(context.Background(), "text"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestExtractInvoiceGraphFailsWithoutDocumentNode(t *testing.T) {
	extractor := NewStructuredExtractor(&fakeChat{content: `{"entities": []}`}, "test-model", testLogger())

	if _, err := extractor.ExtractInvoiceGraph(context.Background(), "text"); err == nil {
		t.Fatal("expected an error for a response with no document_node")
	}
}
