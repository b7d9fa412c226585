package kag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/graphstore"
	"github.com/noufalpm/invograph/pkg/kag/metrics"
)

// Attribute condition enum produced by the query decomposition.
const (
	ConditionEquals      = "equals"
	ConditionContains    = "contains"
	ConditionGreaterThan = "greater_than"
	ConditionLessThan    = "less_than"
)

const searchDecompositionPrompt = `Given this search query: "%s"

Identify:
1. The main entity types being searched for
2. Any specific attributes or conditions mentioned
3. Any relationships that should be traversed

Provide a response in JSON format:
{
    "entity_types": ["type1", "type2"],
    "attributes": [{"entity": "entity_name", "attribute": "attribute_name", "condition": "condition", "value": "value"}],
    "relationships": [{"from": "entity_type1", "to": "entity_type2", "type": "relationship_type"}]
}`

// SearchTranslator converts a natural-language query into a structured
// search specification and compiles that into Cypher.
type SearchTranslator struct {
	client ChatCompleter
	model  string
	store  graphstore.Querier
	logger *logrus.Logger
}

// NewSearchTranslator creates a search translator over the given store.
func NewSearchTranslator(client ChatCompleter, model string, store graphstore.Querier, logger *logrus.Logger) *SearchTranslator {
	return &SearchTranslator{client: client, model: model, store: store, logger: logger}
}

// Translate decomposes a query into a search specification. On model
// failure the spec degrades to empty, which compiles to a match over all
// documents.
func (t *SearchTranslator) Translate(ctx context.Context, query string) SearchSpec {
	empty := SearchSpec{
		EntityTypes:   []string{},
		Attributes:    []AttributeFilter{},
		Relationships: []RelationshipFilter{},
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a search query analyzer that converts natural language queries into structured search parameters. Return only valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(searchDecompositionPrompt, query),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		t.logger.WithError(err).Error("Search query decomposition failed")
		return empty
	}
	if len(resp.Choices) == 0 {
		t.logger.Error("Search query decomposition returned no choices")
		return empty
	}

	var spec SearchSpec
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &spec); err != nil {
		t.logger.WithError(err).Error("Search decomposition returned malformed JSON")
		return empty
	}

	return spec
}

// CompileCypher deterministically builds the graph query for a search
// specification. Entity-type variables are named e0, e1, ... in the order
// the specification declares them; this ordering fixes the projection
// columns and must stay stable.
func CompileCypher(spec SearchSpec, documentType string) string {
	parts := []string{"MATCH (d:Document)"}

	if documentType != "" {
		parts = append(parts, fmt.Sprintf("WHERE d.type = '%s'", escapeCypherString(documentType)))
	}

	for i, entityType := range spec.EntityTypes {
		parts = append(parts, fmt.Sprintf("MATCH (d)-[:CONTAINS]->(e%d:%s)", i, SanitizeIdentifier(entityType)))
	}

	conditions := make([]string, 0, len(spec.Attributes))
	for _, attr := range spec.Attributes {
		entity := SanitizeIdentifier(attr.Entity)
		attribute := SanitizeIdentifier(attr.Attribute)
		value := escapeCypherString(attr.Value)

		switch attr.Condition {
		case ConditionEquals:
			conditions = append(conditions, fmt.Sprintf("%s.%s = '%s'", entity, attribute, value))
		case ConditionContains:
			conditions = append(conditions, fmt.Sprintf("%s.%s CONTAINS '%s'", entity, attribute, value))
		case ConditionGreaterThan:
			conditions = append(conditions, fmt.Sprintf("%s.%s > %s", entity, attribute, comparisonValue(attr.Value)))
		case ConditionLessThan:
			conditions = append(conditions, fmt.Sprintf("%s.%s < %s", entity, attribute, comparisonValue(attr.Value)))
		}
	}
	if len(conditions) > 0 {
		parts = append(parts, "WHERE "+strings.Join(conditions, " AND "))
	}

	for _, rel := range spec.Relationships {
		parts = append(parts, fmt.Sprintf("MATCH (%s)-[:%s]->(%s)",
			SanitizeIdentifier(rel.From),
			SanitizeRelationshipType(rel.Type),
			SanitizeIdentifier(rel.To)))
	}

	returns := []string{"d.id as document_id", "d.type as document_type"}
	for i, entityType := range spec.EntityTypes {
		returns = append(returns, fmt.Sprintf("e%d as %s", i, SanitizeIdentifier(entityType)))
	}
	parts = append(parts, "RETURN "+strings.Join(returns, ", "))

	return strings.Join(parts, " ")
}

// Search runs the full translate-compile-execute path.
func (t *SearchTranslator) Search(ctx context.Context, query, documentType string) ([]map[string]interface{}, error) {
	metrics.QueriesTotal.WithLabelValues("semantic").Inc()

	spec := t.Translate(ctx, query)
	cypher := CompileCypher(spec, documentType)

	t.logger.WithFields(logrus.Fields{
		"query":  query,
		"cypher": cypher,
	}).Debug("Compiled semantic search")

	return t.store.ExecuteQuery(ctx, cypher, nil)
}
