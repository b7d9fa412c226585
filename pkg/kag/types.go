package kag

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the engine calls. It is
// satisfied by *openai.Client and by test doubles.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RelationshipSchema declares a relationship from the owning entity to
// another entity in the same document schema.
type RelationshipSchema struct {
	RelatedTo        string `json:"related_to"`
	RelationshipType string `json:"relationship_type"`
}

// EntitySchema describes one entity type inferred from document text.
type EntitySchema struct {
	Name          string               `json:"name"`
	Type          string               `json:"type"`
	Attributes    []string             `json:"attributes"`
	Relationships []RelationshipSchema `json:"relationships"`
}

// DocumentSchema is the transient, per-document schema descriptor. It lives
// only for the duration of one ingestion and is never persisted.
type DocumentSchema struct {
	DocumentType       string         `json:"document_type"`
	Entities           []EntitySchema `json:"entities"`
	PrimaryIdentifiers []string       `json:"primary_identifiers"`
}

// GraphEntity is one node of the invoice fast-path graph structure.
type GraphEntity struct {
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphRelationship links two fast-path entities by their positional index.
type GraphRelationship struct {
	FromNode   int                    `json:"from_node"`
	ToNode     int                    `json:"to_node"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphStructure is the invoice fast-path extraction result: one document
// node plus its entities and the relationships between them.
type GraphStructure struct {
	DocumentNode struct {
		Type       string                 `json:"type"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"document_node"`
	Entities      []GraphEntity       `json:"entities"`
	Relationships []GraphRelationship `json:"relationships"`
}

// AttributeFilter is one attribute condition of a search specification.
// Condition is one of equals, contains, greater_than, less_than.
type AttributeFilter struct {
	Entity    string `json:"entity"`
	Attribute string `json:"attribute"`
	Condition string `json:"condition"`
	Value     string `json:"value"`
}

// RelationshipFilter is one relationship traversal of a search specification.
type RelationshipFilter struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// SearchSpec is the transient structured form of a natural-language query.
type SearchSpec struct {
	EntityTypes   []string             `json:"entity_types"`
	Attributes    []AttributeFilter    `json:"attributes"`
	Relationships []RelationshipFilter `json:"relationships"`
}

// Intent is the classified purpose of a query plus the result fields it
// should project. The invoice number is always projected regardless of
// Fields.
type Intent struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
}

// InvoiceRecord is one matched document in the invoice listing used by the
// query and simplified-query paths.
type InvoiceRecord struct {
	DocumentID    string                   `json:"document_id"`
	InvoiceNumber string                   `json:"invoice_number"`
	Date          string                   `json:"date"`
	TotalAmount   interface{}              `json:"total_amount"`
	LineItems     []map[string]interface{} `json:"line_items"`
}

// SimplifiedResult carries only the fields the query intent asked for.
type SimplifiedResult struct {
	InvoiceNumber string                   `json:"invoice_number"`
	Date          string                   `json:"date,omitempty"`
	TotalAmount   interface{}              `json:"total_amount,omitempty"`
	LineItems     []map[string]interface{} `json:"line_items,omitempty"`
}

// IngestResult is what a successful ingestion returns to the caller.
type IngestResult struct {
	DocumentID        string          `json:"document_id"`
	StorageKey        string          `json:"s3_key,omitempty"`
	EntityCount       int             `json:"entities_count"`
	RelationshipCount int             `json:"relationships_count"`
	Graph             *GraphStructure `json:"graph_summary,omitempty"`
}

// DocumentDetail is the full view of one stored document and its entities.
type DocumentDetail struct {
	DocumentID    string                   `json:"document_id"`
	InvoiceNumber string                   `json:"invoice_number"`
	Date          string                   `json:"date"`
	TotalAmount   interface{}              `json:"total_amount"`
	StorageKey    string                   `json:"s3_key,omitempty"`
	LineItems     []map[string]interface{} `json:"line_items"`
}
