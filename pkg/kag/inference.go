package kag

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Bounded text prefixes sent to the model, to respect context limits.
const (
	schemaInferenceTextLimit = 4000
	extractionTextLimit      = 6000
)

const schemaInferencePrompt = `Analyze the following document text and determine its type and structure.
Identify what kind of document this is (e.g., purchase order, sales order, invoice, contract, etc.)
and what primary entities and data points are contained within it.

For each entity or data point, identify:
1. The entity/data point name
2. The type of information it contains
3. Its relationships to other entities if applicable

Document Text:
%s

Provide your analysis in this JSON format:
{
    "document_type": "identified document type",
    "entities": [
        {
            "name": "entity name",
            "type": "entity type",
            "attributes": ["attribute1", "attribute2"],
            "relationships": [
                {"related_to": "other entity name", "relationship_type": "type of relationship"}
            ]
        }
    ],
    "primary_identifiers": ["key1", "key2"]
}`

// SchemaInferencer asks the language model to describe a document's entity
// types, attributes and relationships.
type SchemaInferencer struct {
	client ChatCompleter
	model  string
	logger *logrus.Logger
}

// NewSchemaInferencer creates a schema inferencer backed by the given chat
// model.
func NewSchemaInferencer(client ChatCompleter, model string, logger *logrus.Logger) *SchemaInferencer {
	return &SchemaInferencer{client: client, model: model, logger: logger}
}

// emptySchema is the safe default returned when inference fails. Inference
// failure degrades pipeline richness but must never abort an ingestion.
func emptySchema() DocumentSchema {
	return DocumentSchema{
		DocumentType:       "unknown",
		Entities:           []EntitySchema{},
		PrimaryIdentifiers: []string{},
	}
}

// InferSchema returns the inferred schema descriptor for the given text.
// Malformed model output and service errors both yield the empty default.
func (s *SchemaInferencer) InferSchema(ctx context.Context, text string) DocumentSchema {
	prompt := fmt.Sprintf(schemaInferencePrompt, truncate(text, schemaInferenceTextLimit))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a document analysis assistant that identifies document types and structures. Return only valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		s.logger.WithError(err).Error("Schema inference call failed")
		return emptySchema()
	}
	if len(resp.Choices) == 0 {
		s.logger.Error("Schema inference returned no choices")
		return emptySchema()
	}

	content := resp.Choices[0].Message.Content
	if !gjson.Valid(content) {
		s.logger.WithField("content", truncate(content, 200)).Error("Schema inference returned malformed JSON")
		return emptySchema()
	}

	var schema DocumentSchema
	if err := json.Unmarshal([]byte(content), &schema); err != nil {
		s.logger.WithError(err).Error("Failed to decode inferred schema")
		return emptySchema()
	}

	if schema.DocumentType == "" {
		schema.DocumentType = "unknown"
	}
	if schema.Entities == nil {
		schema.Entities = []EntitySchema{}
	}
	if schema.PrimaryIdentifiers == nil {
		schema.PrimaryIdentifiers = []string{}
	}

	return schema
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so a multi-byte character is never split.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
