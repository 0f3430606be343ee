package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/seatwatch/internal/config"
	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/ops"
	"github.com/hpungsan/seatwatch/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	src store.Source
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(src store.Source, cfg *config.Config) *Handlers {
	return &Handlers{src: src, cfg: cfg}
}

// HandleCurrent handles the status_current tool call.
func (h *Handlers) HandleCurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Current(ctx, h.src)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistory handles the status_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, err := limitArg(req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.History(ctx, h.src, ops.HistoryInput{Limit: limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChange handles the status_change tool call.
func (h *Handlers) HandleChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Change(ctx, h.src, h.cfg.EventName)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// limitArg reads the optional "limit" argument. JSON numbers arrive as
// float64; fractional values are rejected rather than truncated.
func limitArg(req mcp.CallToolRequest) (int, error) {
	v, ok := req.GetArguments()["limit"]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.NewInvalidRequest(fmt.Sprintf("limit must be a whole number, got %v", n))
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, errors.NewInvalidRequest(fmt.Sprintf("limit must be a number, got %T", v))
	}
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if wErr, ok := err.(*errors.WatchError); ok {
		errorObj := map[string]any{
			"code":    wErr.Code,
			"message": wErr.Message,
			"status":  wErr.Status,
		}
		// Paths and causes stay out of internal errors.
		if wErr.Code != errors.ErrInternal && wErr.Details != nil {
			errorObj["details"] = wErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
