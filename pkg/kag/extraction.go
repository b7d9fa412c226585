package kag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const structuredExtractionPrompt = `Given the following document text and schema, extract all relevant information according to the schema structure.

Document Type: %s

Primary Identifiers: %s

Entities to Extract:
%s

Document Text:
%s

Extract all information matching the schema above and provide a complete JSON output with all identified entities,
their attributes, and values. Use null for missing values. Convert all monetary values to numbers, dates to ISO format,
and ensure consistent formatting. For lists of items, extract all items found in the document.`

const invoiceGraphPrompt = `Analyze this document and create a knowledge graph structure.

Document Text: %s

Create a knowledge graph structure that captures all important entities and their relationships.
Focus on extracting invoice-specific information like invoice number, date, items, amounts, etc.

Return ONLY the JSON response in this exact format:
{
    "document_node": {
        "type": "Invoice",
        "properties": {
            "invoice_number": "extracted invoice number",
            "date": "extracted date",
            "total_amount": "extracted total"
        }
    },
    "entities": [
        {
            "label": "LineItem",
            "properties": {
                "description": "item description",
                "quantity": "item quantity",
                "unit_price": "price per unit",
                "total": "line total"
            }
        }
    ],
    "relationships": [
        {
            "from_node": 0,
            "to_node": 1,
            "type": "CONTAINS",
            "properties": {}
        }
    ]
}`

// StructuredExtractor fills a schema descriptor with concrete entity
// instances extracted from document text.
type StructuredExtractor struct {
	client ChatCompleter
	model  string
	logger *logrus.Logger
}

// NewStructuredExtractor creates a structured extractor backed by the given
// chat model.
func NewStructuredExtractor(client ChatCompleter, model string, logger *logrus.Logger) *StructuredExtractor {
	return &StructuredExtractor{client: client, model: model, logger: logger}
}

// Extract asks the model for one JSON object keyed by entity name, each
// value a single attribute object or a list of them. On failure the result
// degrades to a map holding only the document type, so materialization
// still produces a Document node.
func (e *StructuredExtractor) Extract(ctx context.Context, text string, schema DocumentSchema) map[string]interface{} {
	descriptions := make([]string, 0, len(schema.Entities))
	for _, entity := range schema.Entities {
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s with attributes %s",
			entity.Name, entity.Type, strings.Join(entity.Attributes, ", ")))
	}

	prompt := fmt.Sprintf(structuredExtractionPrompt,
		schema.DocumentType,
		strings.Join(schema.PrimaryIdentifiers, ", "),
		strings.Join(descriptions, "\n"),
		truncate(text, extractionTextLimit))

	fallback := map[string]interface{}{"document_type": schema.DocumentType}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a document extraction assistant that extracts structured information from documents. Return only valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		e.logger.WithError(err).Error("Structured extraction call failed")
		return fallback
	}
	if len(resp.Choices) == 0 {
		e.logger.Error("Structured extraction returned no choices")
		return fallback
	}

	var extracted map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &extracted); err != nil {
		e.logger.WithError(err).Error("Structured extraction returned malformed JSON")
		return fallback
	}

	// The document type always comes from the schema, not the model's
	// second answer.
	extracted["document_type"] = schema.DocumentType
	return extracted
}

// ExtractInvoiceGraph is the invoice fast path: a fixed prompt produces the
// full graph structure in one call. Unlike schema inference, a failure here
// is fatal to the ingestion because there is nothing to materialize.
func (e *StructuredExtractor) ExtractInvoiceGraph(ctx context.Context, text string) (*GraphStructure, error) {
	prompt := fmt.Sprintf(invoiceGraphPrompt, truncate(text, schemaInferenceTextLimit))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a document analysis assistant that creates knowledge graph structures from documents. Return only valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, errors.Wrap(err, "invoice graph extraction failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("invoice graph extraction returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if !gjson.Get(content, "document_node").Exists() {
		return nil, errors.New("invoice graph extraction returned no document_node")
	}

	var structure GraphStructure
	if err := json.Unmarshal([]byte(content), &structure); err != nil {
		return nil, errors.Wrap(err, "failed to decode invoice graph structure")
	}

	return &structure, nil
}
