package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/noufalpm/invograph/pkg/kag"
	"github.com/noufalpm/invograph/util"
)

// RegisterKagTools exposes the knowledge-graph surface: ingestion, semantic
// search, simplified queries and document retrieval.
func RegisterKagTools(s *server.MCPServer, svc *kag.Service) {
	ingestTool := mcp.NewTool("kag_ingest_document",
		mcp.WithDescription("Ingest a document into the knowledge graph. Extracts invoice entities and relationships from the file and materializes them in Neo4j."),
		mcp.WithString("filePath", mcp.Required(), mcp.Description("Path to the source document (PDF, HTML or plain text)")),
	)

	ingestDynamicTool := mcp.NewTool("kag_ingest_dynamic",
		mcp.WithDescription("Ingest a document using a dynamically inferred schema instead of the fixed invoice schema."),
		mcp.WithString("filePath", mcp.Required(), mcp.Description("Path to the source document (PDF, HTML or plain text)")),
	)

	queryTool := mcp.NewTool("kag_query",
		mcp.WithDescription("Query the knowledge graph using natural language. The query is translated into a graph search over documents and their entities."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithString("documentType", mcp.Description("Optional document type filter")),
	)

	simplifiedTool := mcp.NewTool("kag_simplified_query",
		mcp.WithDescription("Query invoices and return only the fields relevant to the question (price, date, line items or invoice number). Set format to 'text' for a natural language answer."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query about stored invoices")),
		mcp.WithString("format", mcp.Description("Response format: structured (default) or text")),
	)

	getDocumentTool := mcp.NewTool("kag_get_document",
		mcp.WithDescription("Retrieve one document from the knowledge graph with all its entities."),
		mcp.WithString("documentId", mcp.Required(), mcp.Description("Document id returned by ingestion")),
	)

	listTool := mcp.NewTool("kag_list_invoices",
		mcp.WithDescription("List every stored invoice with its number, date, total amount and line items."),
	)

	s.AddTool(ingestTool, server.ToolHandlerFunc(util.ErrorGuard(ingestHandler(svc))))
	s.AddTool(ingestDynamicTool, server.ToolHandlerFunc(util.ErrorGuard(ingestDynamicHandler(svc))))
	s.AddTool(queryTool, server.ToolHandlerFunc(util.ErrorGuard(queryHandler(svc))))
	s.AddTool(simplifiedTool, server.ToolHandlerFunc(util.ErrorGuard(simplifiedQueryHandler(svc))))
	s.AddTool(getDocumentTool, server.ToolHandlerFunc(util.ErrorGuard(getDocumentHandler(svc))))
	s.AddTool(listTool, server.ToolHandlerFunc(util.ErrorGuard(listInvoicesHandler(svc))))
}

func inputTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return kag.InputTypePDF
	case ".html", ".htm":
		return kag.InputTypeHTML
	default:
		return kag.InputTypeText
	}
}

func ingestHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		path, ok := arguments["filePath"].(string)
		if !ok {
			return mcp.NewToolResultError("filePath must be a string"), nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}

		result, err := svc.Ingest(context.Background(), content, inputTypeForPath(path))
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func ingestDynamicHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		path, ok := arguments["filePath"].(string)
		if !ok {
			return mcp.NewToolResultError("filePath must be a string"), nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}

		documentID, schema, err := svc.IngestDynamic(context.Background(), content, inputTypeForPath(path))
		if err != nil {
			return nil, err
		}

		summary, err := json.MarshalIndent(map[string]interface{}{
			"document_id": documentID,
			"schema":      schema,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(summary)), nil
	}
}

func queryHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		query, ok := arguments["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query must be a string"), nil
		}
		documentType, _ := arguments["documentType"].(string)

		results, err := svc.SemanticSearch(context.Background(), query, documentType)
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(map[string]interface{}{
			"query":         query,
			"results":       results,
			"total_results": len(results),
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func simplifiedQueryHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		query, ok := arguments["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query must be a string"), nil
		}

		if format, _ := arguments["format"].(string); format == "text" {
			text, err := svc.SimplifiedQueryText(context.Background(), query)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		}

		intent, results, err := svc.SimplifiedQuery(context.Background(), query)
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(map[string]interface{}{
			"query":      query,
			"query_type": intent.Type,
			"results":    results,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func listInvoicesHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		invoices, err := svc.ListInvoices(context.Background())
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(map[string]interface{}{
			"invoices": invoices,
			"total":    len(invoices),
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func getDocumentHandler(svc *kag.Service) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		documentID, ok := arguments["documentId"].(string)
		if !ok {
			return mcp.NewToolResultError("documentId must be a string"), nil
		}

		detail, err := svc.GetDocument(context.Background(), documentID)
		if errors.Is(err, kag.ErrDocumentNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("document not found: %s", documentID)), nil
		}
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
