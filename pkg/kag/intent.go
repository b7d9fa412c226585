package kag

import (
	"context"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/noufalpm/invograph/pkg/kag/metrics"
)

// Intent categories. The taxonomy is closed: anything the classifier cannot
// place lands in IntentGeneral.
const (
	IntentPrice          = "price"
	IntentInvoiceNumber  = "invoice_number"
	IntentDate           = "date"
	IntentProductDetails = "product_details"
	IntentGeneral        = "general"
)

// Field names projectable into simplified results. The invoice number is
// always included and never listed here.
const (
	FieldTotalAmount = "total_amount"
	FieldDate        = "date"
	FieldLineItems   = "line_items"
)

// Keyword vocabularies for the rule-based fallback, checked in priority
// order: price, invoice number, date, product details.
var (
	priceTerms   = []string{"price", "total", "amount", "cost", "how much"}
	invoiceTerms = []string{"invoice number", "invoice id", "invoice #"}
	dateTerms    = []string{"date", "when", "time", "issued"}
	productTerms = []string{"product", "item", "line item", "details", "what's included"}
)

const intentPrompt = `Analyze the following query about invoice data and determine what information the user is requesting.

Query: "%s"

Respond with a JSON object containing:
1. "type": The type of query (price, invoice_number, date, product_details, general)
2. "fields": An array of fields that should be included in the response

Available fields are:
- total_amount (for price queries)
- date (for date queries)
- line_items (for product details queries)

Note: The invoice_number field is always included by default.

Example response for "What is the total amount?":
{"type": "price", "fields": ["total_amount"]}

Example response for "When was this invoice issued?":
{"type": "date", "fields": ["date"]}`

// IntentProjector classifies a query into the intent taxonomy and projects
// matched documents down to the fields that intent asks for.
type IntentProjector struct {
	client ChatCompleter
	model  string
	logger *logrus.Logger
}

// NewIntentProjector creates an intent projector backed by the given chat
// model.
func NewIntentProjector(client ChatCompleter, model string, logger *logrus.Logger) *IntentProjector {
	return &IntentProjector{client: client, model: model, logger: logger}
}

func defaultIntent() Intent {
	return Intent{Type: IntentGeneral, Fields: []string{FieldTotalAmount, FieldDate, FieldLineItems}}
}

// Classify determines the query intent. The model is tried first; any
// failure falls back to deterministic keyword matching, so classification
// never errors.
func (p *IntentProjector) Classify(ctx context.Context, query string) Intent {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a query intent analyzer that determines what information a user is requesting about invoices.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(intentPrompt, query),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      150,
	})
	switch {
	case err != nil:
		p.logger.WithError(err).Warn("Intent analysis call failed, using rule-based fallback")
	case len(resp.Choices) == 0:
		p.logger.Warn("Intent analysis returned no choices, using rule-based fallback")
	default:
		content := resp.Choices[0].Message.Content
		if intentType := gjson.Get(content, "type").String(); validIntent(intentType) {
			fields := make([]string, 0)
			for _, f := range gjson.Get(content, "fields").Array() {
				fields = append(fields, f.String())
			}
			metrics.IntentClassifications.WithLabelValues(intentType, "model").Inc()
			return Intent{Type: intentType, Fields: fields}
		}
		p.logger.Warn("Intent analysis returned an unknown category, using rule-based fallback")
	}

	intent := classifyByKeywords(query)
	metrics.IntentClassifications.WithLabelValues(intent.Type, "rules").Inc()
	return intent
}

func validIntent(t string) bool {
	switch t {
	case IntentPrice, IntentInvoiceNumber, IntentDate, IntentProductDetails, IntentGeneral:
		return true
	}
	return false
}

// classifyByKeywords is the deterministic fallback: substring checks
// against fixed vocabularies in a fixed priority order.
func classifyByKeywords(query string) Intent {
	lower := strings.ToLower(query)

	containsAny := func(terms []string) bool {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny(priceTerms):
		return Intent{Type: IntentPrice, Fields: []string{FieldTotalAmount}}
	case containsAny(invoiceTerms):
		return Intent{Type: IntentInvoiceNumber, Fields: []string{}}
	case containsAny(dateTerms):
		return Intent{Type: IntentDate, Fields: []string{FieldDate}}
	case containsAny(productTerms):
		return Intent{Type: IntentProductDetails, Fields: []string{FieldLineItems}}
	default:
		return defaultIntent()
	}
}

// Project reduces matched invoices to the fields the intent selected. The
// invoice number is always present.
func Project(results []InvoiceRecord, intent Intent) []SimplifiedResult {
	simplified := make([]SimplifiedResult, 0, len(results))
	for _, r := range results {
		item := SimplifiedResult{InvoiceNumber: r.InvoiceNumber}
		for _, field := range intent.Fields {
			switch field {
			case FieldTotalAmount:
				item.TotalAmount = r.TotalAmount
			case FieldDate:
				item.Date = r.Date
			case FieldLineItems:
				item.LineItems = r.LineItems
			}
		}
		simplified = append(simplified, item)
	}
	return simplified
}

// Deduplicate drops repeated invoice numbers, keeping the first occurrence
// and the original order.
func Deduplicate(results []SimplifiedResult) []SimplifiedResult {
	seen := mapset.NewThreadUnsafeSet[string]()
	unique := make([]SimplifiedResult, 0, len(results))

	for _, r := range results {
		if seen.Contains(r.InvoiceNumber) {
			continue
		}
		seen.Add(r.InvoiceNumber)
		unique = append(unique, r)
	}

	return unique
}

// RenderText produces the deterministic natural-language answer for a set
// of deduplicated results. Each category has distinct singular and plural
// phrasings.
func RenderText(queryType string, results []SimplifiedResult) string {
	unique := Deduplicate(results)

	if len(unique) == 0 {
		return "I couldn't find any information matching your query."
	}

	switch queryType {
	case IntentInvoiceNumber:
		if len(unique) == 1 {
			return fmt.Sprintf("The invoice number is %s.", unique[0].InvoiceNumber)
		}
		numbers := make([]string, 0, len(unique))
		for _, r := range unique {
			numbers = append(numbers, r.InvoiceNumber)
		}
		return fmt.Sprintf("I found the following invoice numbers: %s.", strings.Join(numbers, ", "))

	case IntentPrice:
		if len(unique) == 1 {
			return fmt.Sprintf("Invoice %s has a total amount of %s.", unique[0].InvoiceNumber, formatAmount(unique[0].TotalAmount))
		}
		lines := make([]string, 0, len(unique))
		for _, r := range unique {
			lines = append(lines, fmt.Sprintf("Invoice %s: %s", r.InvoiceNumber, formatAmount(r.TotalAmount)))
		}
		return "Here are the invoice amounts:\n" + strings.Join(lines, "\n")

	case IntentDate:
		if len(unique) == 1 {
			return fmt.Sprintf("Invoice %s was issued on %s.", unique[0].InvoiceNumber, formatDate(unique[0].Date))
		}
		lines := make([]string, 0, len(unique))
		for _, r := range unique {
			lines = append(lines, fmt.Sprintf("Invoice %s: %s", r.InvoiceNumber, formatDate(r.Date)))
		}
		return "Here are the invoice dates:\n" + strings.Join(lines, "\n")

	case IntentProductDetails:
		if len(unique) > 1 {
			return fmt.Sprintf("I found %d invoices. Please specify which invoice you're interested in.", len(unique))
		}
		return renderLineItems(unique[0])

	default:
		if len(unique) > 1 {
			return fmt.Sprintf("I found %d invoices. Please specify which invoice you're interested in or ask for specific information.", len(unique))
		}
		return renderGeneral(unique[0])
	}
}

func renderLineItems(r SimplifiedResult) string {
	if len(r.LineItems) == 0 {
		return fmt.Sprintf("Invoice %s doesn't have any line items.", r.InvoiceNumber)
	}

	lines := make([]string, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		desc := stringProp(item, "description", "Unknown item")
		qty := stringProp(item, "quantity", "")
		price := stringProp(item, "unit_price", "")
		total := stringProp(item, "total", "")

		line := "- " + desc
		if qty != "" && price != "" {
			line += fmt.Sprintf(" (%s x %s)", qty, price)
		}
		if total != "" {
			line += fmt.Sprintf(", Total: %s", total)
		}
		lines = append(lines, line)
	}

	return fmt.Sprintf("Invoice %s contains the following items:\n%s", r.InvoiceNumber, strings.Join(lines, "\n"))
}

func renderGeneral(r SimplifiedResult) string {
	response := "Invoice " + r.InvoiceNumber

	if r.Date != "" {
		response += fmt.Sprintf(" was issued on %s", r.Date)
	}
	if r.TotalAmount != nil {
		response += fmt.Sprintf(" with a total amount of %s", formatAmount(r.TotalAmount))
	}
	response += "."

	if len(r.LineItems) > 0 {
		response += fmt.Sprintf(" It contains %d item(s).", len(r.LineItems))
	}

	return response
}

func formatAmount(v interface{}) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%v", v)
}

func formatDate(d string) string {
	if d == "" {
		return "unknown date"
	}
	return d
}

func stringProp(item map[string]interface{}, key, fallback string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return fallback
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return fallback
	}
	return s
}
