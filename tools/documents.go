package tools

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/noufalpm/invograph/pkg/kag"
	"github.com/noufalpm/invograph/pkg/vectorstore"
	"github.com/noufalpm/invograph/util"
)

// RegisterDocumentTools exposes the vector-index surface: chunk indexing,
// conversational querying and the destructive store reset.
func RegisterDocumentTools(s *server.MCPServer, extractor *kag.TextExtractor, store *vectorstore.Store, answerer *kag.Answerer) {
	uploadTool := mcp.NewTool("doc_upload",
		mcp.WithDescription("Index a document's text into the vector store for similarity search."),
		mcp.WithString("filePath", mcp.Required(), mcp.Description("Path to the source document (PDF, HTML or plain text)")),
	)

	queryTool := mcp.NewTool("doc_query",
		mcp.WithDescription("Query indexed documents and get a conversational answer with follow-up suggestions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithNumber("k", mcp.Description("Number of chunks to retrieve (default 5)")),
	)

	conciseTool := mcp.NewTool("doc_concise_query",
		mcp.WithDescription("Query indexed documents and return only the concise answer and follow-up questions, without the matched chunks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
	)

	clearTool := mcp.NewTool("doc_clear_store",
		mcp.WithDescription("Remove all documents from the vector store. This cannot be undone."),
	)

	s.AddTool(uploadTool, server.ToolHandlerFunc(util.ErrorGuard(uploadHandler(extractor, store))))
	s.AddTool(queryTool, server.ToolHandlerFunc(util.ErrorGuard(docQueryHandler(answerer))))
	s.AddTool(conciseTool, server.ToolHandlerFunc(util.ErrorGuard(conciseQueryHandler(answerer))))
	s.AddTool(clearTool, server.ToolHandlerFunc(util.ErrorGuard(clearStoreHandler(store))))
}

func uploadHandler(extractor *kag.TextExtractor, store *vectorstore.Store) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		path, ok := arguments["filePath"].(string)
		if !ok {
			return mcp.NewToolResultError("filePath must be a string"), nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}

		text := extractor.Extract(content, inputTypeForPath(path))
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("failed to extract text from document"), nil
		}

		if err := store.Add(context.Background(), path, text); err != nil {
			return nil, err
		}

		status := "indexed"
		if store.Degraded() {
			status = "indexed (in-memory fallback)"
		}
		return mcp.NewToolResultText(status + ": " + path), nil
	}
}

func docQueryHandler(answerer *kag.Answerer) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		query, ok := arguments["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query must be a string"), nil
		}

		k := 5
		if n, ok := arguments["k"].(float64); ok && n > 0 {
			k = int(n)
		}

		answer, err := answerer.QueryDocuments(context.Background(), query, k)
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func conciseQueryHandler(answerer *kag.Answerer) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		query, ok := arguments["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query must be a string"), nil
		}

		answer, err := answerer.QueryDocuments(context.Background(), query, 5)
		if err != nil {
			return nil, err
		}

		payload, err := json.MarshalIndent(map[string]interface{}{
			"query":              answer.Query,
			"concise_answer":     answer.Response,
			"followup_questions": answer.FollowupQuestions,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func clearStoreHandler(store *vectorstore.Store) util.ToolHandler {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		if err := store.Clear(context.Background()); err != nil {
			return nil, err
		}
		return mcp.NewToolResultText("vector store cleared"), nil
	}
}
