package util

import (
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// ToolHandler is the handler shape registered on the MCP server.
type ToolHandler func(arguments map[string]interface{}) (*mcp.CallToolResult, error)

// ErrorGuard wraps a tool handler so panics and errors surface as tool
// results instead of killing the server.
func ErrorGuard(handler ToolHandler) ToolHandler {
	return func(arguments map[string]interface{}) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Tool handler panicked")
				result = mcp.NewToolResultError(fmt.Sprintf("internal error: %v", r))
				err = nil
			}
		}()

		result, err = handler(arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%v", err)), nil
		}
		return result, nil
	}
}
