package kag

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type recordedQuery struct {
	cypher string
	params map[string]interface{}
}

// fakeQuerier records every statement it receives and returns canned rows.
type fakeQuerier struct {
	queries []recordedQuery
	rows    []map[string]interface{}
	err     error
}

func (f *fakeQuerier) ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, recordedQuery{cypher: cypher, params: params})
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeQuerier) countContaining(substr string) int {
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q.cypher, substr) {
			n++
		}
	}
	return n
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func invoiceSchema() DocumentSchema {
	return DocumentSchema{
		DocumentType: "invoice",
		Entities: []EntitySchema{
			{
				Name: "line_items",
				Type: "LineItem",
				Relationships: []RelationshipSchema{
					{RelatedTo: "vendor", RelationshipType: "sold by"},
				},
			},
			{
				Name: "vendor",
				Type: "Vendor",
			},
		},
		PrimaryIdentifiers: []string{"invoice_number"},
	}
}

func TestMaterializeDynamicCrossProduct(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	schema := DocumentSchema{
		DocumentType: "invoice",
		Entities: []EntitySchema{
			{
				Name: "line_items",
				Type: "LineItem",
				Relationships: []RelationshipSchema{
					{RelatedTo: "taxes", RelationshipType: "taxed by"},
				},
			},
			{Name: "taxes", Type: "Tax"},
		},
	}
	extracted := map[string]interface{}{
		"document_type": "invoice",
		"line_items": []interface{}{
			map[string]interface{}{"description": "Widget"},
			map[string]interface{}{"description": "Gadget"},
			map[string]interface{}{"description": "Gizmo"},
		},
		"taxes": []interface{}{
			map[string]interface{}{"name": "VAT"},
			map[string]interface{}{"name": "Levy"},
		},
	}

	if err := m.MaterializeDynamic(context.Background(), "doc-1", schema, extracted); err != nil {
		t.Fatalf("MaterializeDynamic: %v", err)
	}

	// 3 line items x 2 taxes.
	if got := store.countContaining("TAXED_BY"); got != 6 {
		t.Errorf("cross product created %d edges, want 6", got)
	}
	// 1 document node + 5 entity nodes, each entity carrying a CONTAINS edge.
	if got := store.countContaining("CREATE (d)-[:CONTAINS]->(e)"); got != 5 {
		t.Errorf("created %d CONTAINS edges, want 5", got)
	}
}

func TestMaterializeDynamicScalarCardinalities(t *testing.T) {
	tests := []struct {
		name      string
		source    interface{}
		target    interface{}
		wantEdges int
	}{
		{
			name: "list to scalar",
			source: []interface{}{
				map[string]interface{}{"description": "Widget"},
				map[string]interface{}{"description": "Gadget"},
			},
			target:    map[string]interface{}{"name": "Acme"},
			wantEdges: 2,
		},
		{
			name:   "scalar to list",
			source: map[string]interface{}{"name": "Acme"},
			target: []interface{}{
				map[string]interface{}{"description": "Widget"},
				map[string]interface{}{"description": "Gadget"},
				map[string]interface{}{"description": "Gizmo"},
			},
			wantEdges: 3,
		},
		{
			name:      "scalar to scalar",
			source:    map[string]interface{}{"name": "Acme"},
			target:    map[string]interface{}{"city": "Berlin"},
			wantEdges: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeQuerier{}
			m := NewMaterializer(store, testLogger())

			schema := DocumentSchema{
				DocumentType: "invoice",
				Entities: []EntitySchema{
					{
						Name: "source",
						Type: "Source",
						Relationships: []RelationshipSchema{
							{RelatedTo: "target", RelationshipType: "linked to"},
						},
					},
					{Name: "target", Type: "Target"},
				},
			}
			extracted := map[string]interface{}{
				"document_type": "invoice",
				"source":        tt.source,
				"target":        tt.target,
			}

			if err := m.MaterializeDynamic(context.Background(), "doc-1", schema, extracted); err != nil {
				t.Fatalf("MaterializeDynamic: %v", err)
			}
			if got := store.countContaining("LINKED_TO"); got != tt.wantEdges {
				t.Errorf("created %d edges, want %d", got, tt.wantEdges)
			}
		})
	}
}

func TestMaterializeDynamicSkipsMissingEndpoint(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	// The vendor entity is declared by the schema but absent from the
	// extracted data, so the relationship must be skipped without error.
	extracted := map[string]interface{}{
		"document_type": "invoice",
		"line_items": []interface{}{
			map[string]interface{}{"description": "Widget"},
		},
	}

	if err := m.MaterializeDynamic(context.Background(), "doc-1", invoiceSchema(), extracted); err != nil {
		t.Fatalf("MaterializeDynamic: %v", err)
	}
	if got := store.countContaining("SOLD_BY"); got != 0 {
		t.Errorf("created %d edges for missing endpoint, want 0", got)
	}
}

func TestMaterializeDynamicNodeIDs(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	extracted := map[string]interface{}{
		"document_type": "invoice",
		"line_items": []interface{}{
			map[string]interface{}{"description": "Widget", "total": "$5.00"},
			map[string]interface{}{"description": "Gadget", "total": "$7.00"},
		},
		"vendor": map[string]interface{}{"name": "Acme"},
	}

	if err := m.MaterializeDynamic(context.Background(), "doc-1", invoiceSchema(), extracted); err != nil {
		t.Fatalf("MaterializeDynamic: %v", err)
	}

	var nodeIDs []string
	for _, q := range store.queries {
		props, ok := q.params["properties"].(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := props["node_id"].(string); ok {
			nodeIDs = append(nodeIDs, id)
		}
	}

	want := []string{"line_items_0", "line_items_1", "vendor"}
	if len(nodeIDs) != len(want) {
		t.Fatalf("got node ids %v, want %v", nodeIDs, want)
	}
	for i := range want {
		if nodeIDs[i] != want[i] {
			t.Errorf("node id %d = %q, want %q", i, nodeIDs[i], want[i])
		}
	}
}

func TestMaterializeDynamicNormalizesProperties(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	extracted := map[string]interface{}{
		"document_type": "invoice",
		"vendor": map[string]interface{}{
			"name":    "Acme",
			"balance": "$1,250.00",
			"fax":     nil,
		},
	}

	if err := m.MaterializeDynamic(context.Background(), "doc-1", invoiceSchema(), extracted); err != nil {
		t.Fatalf("MaterializeDynamic: %v", err)
	}

	for _, q := range store.queries {
		props, ok := q.params["properties"].(map[string]interface{})
		if !ok {
			continue
		}
		if props["balance"] != 1250.0 {
			t.Errorf("balance = %#v, want 1250.0", props["balance"])
		}
		if _, ok := props["fax"]; ok {
			t.Error("nil property reached the store")
		}
	}
}

func TestMaterializeDynamicSingleLineItem(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	extracted := map[string]interface{}{
		"document_type":  "invoice",
		"invoice_number": "INV-100",
		"line_items": []interface{}{
			map[string]interface{}{
				"description": "Widget",
				"quantity":    2,
				"unit_price":  "$5.00",
				"total":       "$10.00",
			},
		},
	}

	if err := m.MaterializeDynamic(context.Background(), "doc-1", invoiceSchema(), extracted); err != nil {
		t.Fatalf("MaterializeDynamic: %v", err)
	}

	if got := store.countContaining("CREATE (d:Document"); got != 1 {
		t.Errorf("created %d document nodes, want 1", got)
	}
	if got := store.countContaining("CREATE (d)-[:CONTAINS]->(e)"); got != 1 {
		t.Errorf("created %d entity nodes, want 1", got)
	}

	props := store.queries[1].params["properties"].(map[string]interface{})
	if props["unit_price"] != 5.0 {
		t.Errorf("unit_price = %#v, want 5.0", props["unit_price"])
	}
	if props["total"] != 10.0 {
		t.Errorf("total = %#v, want 10.0", props["total"])
	}
	if props["node_id"] != "line_items_0" {
		t.Errorf("node_id = %#v, want line_items_0", props["node_id"])
	}
}

func TestMaterializeInvoice(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	structure := &GraphStructure{
		Entities: []GraphEntity{
			{Label: "LineItem", Properties: map[string]interface{}{"description": "Widget"}},
			{Label: "Vendor", Properties: map[string]interface{}{"name": "Acme"}},
		},
		Relationships: []GraphRelationship{
			{FromNode: 0, ToNode: 1, Type: "sold by"},
		},
	}
	structure.DocumentNode.Type = "Invoice"
	structure.DocumentNode.Properties = map[string]interface{}{
		"invoice_number": "INV-100",
		"total_amount":   "$42.00",
	}

	if err := m.MaterializeInvoice(context.Background(), "doc-1", structure, "documents/doc-1.pdf"); err != nil {
		t.Fatalf("MaterializeInvoice: %v", err)
	}

	// Invoice node, two entity nodes, one relationship.
	if len(store.queries) != 4 {
		t.Fatalf("executed %d statements, want 4", len(store.queries))
	}

	invoiceProps := store.queries[0].params["properties"].(map[string]interface{})
	if invoiceProps["total_amount"] != 42.0 {
		t.Errorf("total_amount = %#v, want 42.0", invoiceProps["total_amount"])
	}
	if invoiceProps["s3_key"] != "documents/doc-1.pdf" {
		t.Errorf("s3_key = %#v, want documents/doc-1.pdf", invoiceProps["s3_key"])
	}

	rel := store.queries[3]
	if !strings.Contains(rel.cypher, "SOLD_BY") {
		t.Errorf("relationship cypher missing sanitized type: %s", rel.cypher)
	}
	if rel.params["from_id"] != "node_0" || rel.params["to_id"] != "node_1" {
		t.Errorf("relationship endpoints = %v -> %v, want node_0 -> node_1",
			rel.params["from_id"], rel.params["to_id"])
	}
}

func TestMaterializeInvoiceWithoutStorageKey(t *testing.T) {
	store := &fakeQuerier{}
	m := NewMaterializer(store, testLogger())

	structure := &GraphStructure{}
	structure.DocumentNode.Properties = map[string]interface{}{"invoice_number": "INV-100"}

	if err := m.MaterializeInvoice(context.Background(), "doc-1", structure, ""); err != nil {
		t.Fatalf("MaterializeInvoice: %v", err)
	}

	props := store.queries[0].params["properties"].(map[string]interface{})
	if _, ok := props["s3_key"]; ok {
		t.Error("s3_key set on invoice without an archive key")
	}
}
