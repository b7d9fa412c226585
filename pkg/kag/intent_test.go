package kag

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		query      string
		wantType   string
		wantFields []string
	}{
		{"what is the total amount?", IntentPrice, []string{FieldTotalAmount}},
		{"how much did we pay?", IntentPrice, []string{FieldTotalAmount}},
		{"what's the invoice number?", IntentInvoiceNumber, []string{}},
		{"when was it issued?", IntentDate, []string{FieldDate}},
		{"which products were bought?", IntentProductDetails, []string{FieldLineItems}},
		{"what's included?", IntentProductDetails, []string{FieldLineItems}},
		{"tell me about this document", IntentGeneral, []string{FieldTotalAmount, FieldDate, FieldLineItems}},
	}

	for _, tt := range tests {
		got := classifyByKeywords(tt.query)
		if got.Type != tt.wantType {
			t.Errorf("classifyByKeywords(%q).Type = %q, want %q", tt.query, got.Type, tt.wantType)
		}
		if !reflect.DeepEqual(got.Fields, tt.wantFields) {
			t.Errorf("classifyByKeywords(%q).Fields = %v, want %v", tt.query, got.Fields, tt.wantFields)
		}
	}
}

func TestClassifyByKeywordsPriority(t *testing.T) {
	// "total" and "date" both appear; price wins because it is checked first.
	got := classifyByKeywords("what is the total on the invoice dated last week?")
	if got.Type != IntentPrice {
		t.Errorf("Type = %q, want %q", got.Type, IntentPrice)
	}
}

func TestClassifyUsesModelAnswer(t *testing.T) {
	p := NewIntentProjector(&fakeChat{content: `{"type": "date", "fields": ["date"]}`}, "test-model", testLogger())

	got := p.Classify(context.Background(), "when was this issued?")
	if got.Type != IntentDate {
		t.Errorf("Type = %q, want %q", got.Type, IntentDate)
	}
	if !reflect.DeepEqual(got.Fields, []string{FieldDate}) {
		t.Errorf("Fields = %v, want [date]", got.Fields)
	}
}

func TestClassifyFallsBackOnModelError(t *testing.T) {
	p := NewIntentProjector(&fakeChat{err: errors.New("model down")}, "test-model", testLogger())

	got := p.Classify(context.Background(), "how much is the invoice?")
	if got.Type != IntentPrice {
		t.Errorf("Type = %q, want %q", got.Type, IntentPrice)
	}
}

func TestClassifyFallsBackOnEmptyResponse(t *testing.T) {
	p := NewIntentProjector(&fakeChat{noChoices: true}, "test-model", testLogger())

	got := p.Classify(context.Background(), "how much is the invoice?")
	if got.Type != IntentPrice {
		t.Errorf("Type = %q, want %q", got.Type, IntentPrice)
	}
}

func TestClassifyFallsBackOnUnknownCategory(t *testing.T) {
	p := NewIntentProjector(&fakeChat{content: `{"type": "weather", "fields": []}`}, "test-model", testLogger())

	got := p.Classify(context.Background(), "when was it issued?")
	if got.Type != IntentDate {
		t.Errorf("Type = %q, want %q", got.Type, IntentDate)
	}
}

func TestProject(t *testing.T) {
	records := []InvoiceRecord{
		{
			InvoiceNumber: "INV-100",
			Date:          "12/05/2024",
			TotalAmount:   42.0,
			LineItems:     []map[string]interface{}{{"description": "Widget"}},
		},
	}

	got := Project(records, Intent{Type: IntentPrice, Fields: []string{FieldTotalAmount}})
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	r := got[0]
	if r.InvoiceNumber != "INV-100" {
		t.Errorf("InvoiceNumber = %q, invoice number must always be projected", r.InvoiceNumber)
	}
	if r.TotalAmount != 42.0 {
		t.Errorf("TotalAmount = %#v, want 42.0", r.TotalAmount)
	}
	if r.Date != "" {
		t.Errorf("Date = %q, want unprojected", r.Date)
	}
	if r.LineItems != nil {
		t.Errorf("LineItems = %v, want unprojected", r.LineItems)
	}
}

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	results := []SimplifiedResult{
		{InvoiceNumber: "INV-100", Date: "first"},
		{InvoiceNumber: "INV-200"},
		{InvoiceNumber: "INV-100", Date: "second"},
		{InvoiceNumber: "INV-300"},
		{InvoiceNumber: "INV-200"},
	}

	got := Deduplicate(results)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	wantOrder := []string{"INV-100", "INV-200", "INV-300"}
	for i, want := range wantOrder {
		if got[i].InvoiceNumber != want {
			t.Errorf("result %d = %q, want %q", i, got[i].InvoiceNumber, want)
		}
	}
	if got[0].Date != "first" {
		t.Errorf("kept occurrence Date = %q, want the first one", got[0].Date)
	}
}

func TestRenderTextEmpty(t *testing.T) {
	got := RenderText(IntentPrice, nil)
	want := "I couldn't find any information matching your query."
	if got != want {
		t.Errorf("RenderText = %q, want %q", got, want)
	}
}

func TestRenderTextSingular(t *testing.T) {
	results := []SimplifiedResult{
		{
			InvoiceNumber: "INV-100",
			Date:          "12/05/2024",
			TotalAmount:   42.5,
			LineItems: []map[string]interface{}{
				{"description": "Widget", "quantity": 2, "unit_price": 5, "total": 10},
			},
		},
	}

	tests := []struct {
		queryType string
		want      string
	}{
		{IntentPrice, "Invoice INV-100 has a total amount of 42.5."},
		{IntentInvoiceNumber, "The invoice number is INV-100."},
		{IntentDate, "Invoice INV-100 was issued on 12/05/2024."},
		{IntentProductDetails, "Invoice INV-100 contains the following items:\n- Widget (2 x 5), Total: 10"},
	}

	for _, tt := range tests {
		if got := RenderText(tt.queryType, results); got != tt.want {
			t.Errorf("RenderText(%s) = %q, want %q", tt.queryType, got, tt.want)
		}
	}
}

func TestRenderTextPlural(t *testing.T) {
	results := []SimplifiedResult{
		{InvoiceNumber: "INV-100", TotalAmount: 10.0, Date: "01/01/2024"},
		{InvoiceNumber: "INV-200", TotalAmount: 20.0, Date: "02/01/2024"},
	}

	got := RenderText(IntentInvoiceNumber, results)
	if got != "I found the following invoice numbers: INV-100, INV-200." {
		t.Errorf("invoice_number rendering = %q", got)
	}

	got = RenderText(IntentPrice, results)
	if !strings.HasPrefix(got, "Here are the invoice amounts:\n") {
		t.Errorf("price rendering = %q", got)
	}
	if !strings.Contains(got, "Invoice INV-200: 20") {
		t.Errorf("price rendering missing second invoice: %q", got)
	}

	got = RenderText(IntentProductDetails, results)
	if got != "I found 2 invoices. Please specify which invoice you're interested in." {
		t.Errorf("product rendering = %q", got)
	}
}

func TestRenderTextDeduplicatesBeforeRendering(t *testing.T) {
	results := []SimplifiedResult{
		{InvoiceNumber: "INV-100"},
		{InvoiceNumber: "INV-100"},
	}

	got := RenderText(IntentInvoiceNumber, results)
	if got != "The invoice number is INV-100." {
		t.Errorf("RenderText = %q, duplicates should collapse to the singular form", got)
	}
}

func TestRenderTextGeneral(t *testing.T) {
	results := []SimplifiedResult{
		{
			InvoiceNumber: "INV-100",
			Date:          "12/05/2024",
			TotalAmount:   42.0,
			LineItems:     []map[string]interface{}{{"description": "Widget"}},
		},
	}

	got := RenderText(IntentGeneral, results)
	want := "Invoice INV-100 was issued on 12/05/2024 with a total amount of 42. It contains 1 item(s)."
	if got != want {
		t.Errorf("RenderText = %q, want %q", got, want)
	}
}

func TestRenderLineItemsMissingProps(t *testing.T) {
	r := SimplifiedResult{
		InvoiceNumber: "INV-100",
		LineItems:     []map[string]interface{}{{"quantity": 2}},
	}

	got := renderLineItems(r)
	if !strings.Contains(got, "- Unknown item") {
		t.Errorf("missing description should render as Unknown item: %q", got)
	}
	if strings.Contains(got, "(") {
		t.Errorf("quantity without price should not render pricing: %q", got)
	}
}
