package kag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/blobstore"
	"github.com/noufalpm/invograph/pkg/graphstore"
	"github.com/noufalpm/invograph/pkg/kag/metrics"
)

// ErrDocumentNotFound is returned by GetDocument for unknown ids. It is the
// one recoverable error of the read path, distinguishable from store
// failures.
var ErrDocumentNotFound = errors.New("document not found")

// ErrNoText is returned when text extraction produced nothing; the pipeline
// halts before any model or graph call.
var ErrNoText = errors.New("failed to extract text from document")

// Service wires the pipeline stages together: extraction, inference,
// structured extraction, materialization, search and intent projection.
// Every request is independent; the only shared state lives in the stores.
type Service struct {
	extractor    *TextExtractor
	inferencer   *SchemaInferencer
	structured   *StructuredExtractor
	materializer *Materializer
	search       *SearchTranslator
	intent       *IntentProjector
	store        graphstore.Querier
	blobs        *blobstore.S3Store
	logger       *logrus.Logger
}

// NewService assembles the knowledge-graph service. blobs may be nil, in
// which case source documents are not archived.
func NewService(
	extractor *TextExtractor,
	inferencer *SchemaInferencer,
	structured *StructuredExtractor,
	materializer *Materializer,
	search *SearchTranslator,
	intent *IntentProjector,
	store graphstore.Querier,
	blobs *blobstore.S3Store,
	logger *logrus.Logger,
) *Service {
	return &Service{
		extractor:    extractor,
		inferencer:   inferencer,
		structured:   structured,
		materializer: materializer,
		search:       search,
		intent:       intent,
		store:        store,
		blobs:        blobs,
		logger:       logger,
	}
}

// Ingest runs the invoice ingestion path over raw document content:
// archive, extract text, extract the invoice graph structure, materialize.
// A graph-write failure fails the whole ingestion with no rollback.
func (s *Service) Ingest(ctx context.Context, content []byte, inputType string) (*IngestResult, error) {
	start := time.Now()
	defer func() { metrics.IngestionDuration.Observe(time.Since(start).Seconds()) }()

	var storageKey string
	if inputType == InputTypePDF && s.blobs != nil {
		storageKey = fmt.Sprintf("documents/%s.pdf", uuid.New().String())
		if err := s.blobs.Put(ctx, storageKey, content); err != nil {
			// Archiving is best effort; the graph is the system of record.
			s.logger.WithError(err).Warn("Failed to archive source document")
			storageKey = ""
		}
	}

	text := s.extractor.Extract(content, inputType)
	if text == "" {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return nil, ErrNoText
	}

	structure, err := s.structured.ExtractInvoiceGraph(ctx, text)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return nil, err
	}

	documentID := uuid.New().String()
	if err := s.materializer.MaterializeInvoice(ctx, documentID, structure, storageKey); err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.DocumentsIngested.WithLabelValues("success").Inc()
	s.logger.WithFields(logrus.Fields{
		"document_id":   documentID,
		"entities":      len(structure.Entities),
		"relationships": len(structure.Relationships),
	}).Info("Document ingested")

	return &IngestResult{
		DocumentID:        documentID,
		StorageKey:        storageKey,
		EntityCount:       len(structure.Entities),
		RelationshipCount: len(structure.Relationships),
		Graph:             structure,
	}, nil
}

// IngestDynamic runs the schema-driven ingestion path: infer a schema from
// the text, extract instances for it, then materialize the dynamic graph.
// Inference and extraction degrade on model failure; materialization does
// not.
func (s *Service) IngestDynamic(ctx context.Context, content []byte, inputType string) (string, DocumentSchema, error) {
	text := s.extractor.Extract(content, inputType)
	if text == "" {
		return "", DocumentSchema{}, ErrNoText
	}

	schema := s.inferencer.InferSchema(ctx, text)
	extracted := s.structured.Extract(ctx, text, schema)

	documentID := uuid.New().String()
	if err := s.materializer.MaterializeDynamic(ctx, documentID, schema, extracted); err != nil {
		return "", DocumentSchema{}, err
	}

	return documentID, schema, nil
}

// SemanticSearch translates the query into Cypher and executes it.
func (s *Service) SemanticSearch(ctx context.Context, query, documentType string) ([]map[string]interface{}, error) {
	return s.search.Search(ctx, query, documentType)
}

// ListInvoices returns every stored invoice together with its collected
// line items. This is the result set the intent projector works from.
func (s *Service) ListInvoices(ctx context.Context) ([]InvoiceRecord, error) {
	records, err := s.store.ExecuteQuery(ctx, `MATCH (i:Invoice)-[:CONTAINS]->(item)
WHERE i.invoice_number IS NOT NULL
RETURN i.id as document_id,
       i.invoice_number as invoice_number,
       i.date as date,
       i.total_amount as total_amount,
       collect(properties(item)) as line_items`, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list invoices")
	}

	invoices := make([]InvoiceRecord, 0, len(records))
	for _, record := range records {
		invoices = append(invoices, invoiceFromRecord(record))
	}
	return invoices, nil
}

// SimplifiedQuery classifies the query intent and projects the invoice
// listing down to the relevant fields.
func (s *Service) SimplifiedQuery(ctx context.Context, query string) (Intent, []SimplifiedResult, error) {
	metrics.QueriesTotal.WithLabelValues("simplified").Inc()

	invoices, err := s.ListInvoices(ctx)
	if err != nil {
		return Intent{}, nil, err
	}

	intent := s.intent.Classify(ctx, query)
	return intent, Project(invoices, intent), nil
}

// SimplifiedQueryText renders the simplified query as a deterministic
// natural-language sentence.
func (s *Service) SimplifiedQueryText(ctx context.Context, query string) (string, error) {
	intent, results, err := s.SimplifiedQuery(ctx, query)
	if err != nil {
		return "", err
	}
	return RenderText(intent.Type, results), nil
}

// GetDocument returns one document with all its entities, or
// ErrDocumentNotFound.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*DocumentDetail, error) {
	records, err := s.store.ExecuteQuery(ctx, `MATCH (d:Invoice {id: $document_id})
OPTIONAL MATCH (d)-[:CONTAINS]->(item)
RETURN d.id as document_id,
       d.invoice_number as invoice_number,
       d.date as date,
       d.total_amount as total_amount,
       d.s3_key as s3_key,
       collect(properties(item)) as line_items`,
		map[string]interface{}{"document_id": documentID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch document")
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrDocumentNotFound, "document %s", documentID)
	}

	record := records[0]
	invoice := invoiceFromRecord(record)

	detail := &DocumentDetail{
		DocumentID:    invoice.DocumentID,
		InvoiceNumber: invoice.InvoiceNumber,
		Date:          invoice.Date,
		TotalAmount:   invoice.TotalAmount,
		LineItems:     invoice.LineItems,
	}
	if key, ok := record["s3_key"].(string); ok {
		detail.StorageKey = key
	}
	return detail, nil
}

func invoiceFromRecord(record map[string]interface{}) InvoiceRecord {
	invoice := InvoiceRecord{
		TotalAmount: record["total_amount"],
		LineItems:   make([]map[string]interface{}, 0),
	}
	if id, ok := record["document_id"].(string); ok {
		invoice.DocumentID = id
	}
	if number, ok := record["invoice_number"].(string); ok {
		invoice.InvoiceNumber = number
	}
	if date, ok := record["date"].(string); ok {
		invoice.Date = date
	}
	if items, ok := record["line_items"].([]interface{}); ok {
		for _, item := range items {
			if props, ok := item.(map[string]interface{}); ok && len(props) > 0 {
				invoice.LineItems = append(invoice.LineItems, props)
			}
		}
	}
	return invoice
}
