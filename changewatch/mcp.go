package changewatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers changewatch_start, changewatch_stop and
// changewatch_status on an MCP server.
func (m *Monitor) RegisterMCP(srv *mcp.Server) {
	m.registerStartTool(srv)
	m.registerStopTool(srv)
	m.registerStatusTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires a JSON-in / JSON-out handler. Handler errors become tool
// errors, not protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, fn func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := fn(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- start ---

func (m *Monitor) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changewatch_start",
		Description: "Start monitoring the target for content changes. Omitted fields keep their stored values.",
		InputSchema: inputSchema(map[string]any{
			"endpointUrl": map[string]any{"type": "string", "description": "Absolute webhook URL"},
			"scope": map[string]any{
				"type": "string", "enum": []string{"all", "text", "keywords", "symbols"},
				"description": "Which changes notify",
			},
			"targetSelector":      map[string]any{"type": "string", "description": "CSS selector of the monitored subtree"},
			"keywords":            map[string]any{"type": "string", "description": "Comma-separated trigger keywords"},
			"pollIntervalSeconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 300},
		}, nil),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		mc, err := m.Settings(ctx)
		if err != nil {
			return nil, err
		}
		var req startRequest
		if len(args) > 0 {
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		req.apply(&mc)
		if err := m.Start(ctx, mc); err != nil {
			return nil, err
		}
		return m.Status(), nil
	})
}

// --- stop ---

func (m *Monitor) registerStopTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changewatch_stop",
		Description: "Stop monitoring. Stopping a stopped monitor is not an error.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := m.Stop(ctx); err != nil {
			return nil, err
		}
		return m.Status(), nil
	})
}

// --- status ---

func (m *Monitor) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changewatch_status",
		Description: "Report whether monitoring is running, the active configuration and recent delivery events.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(context.Context, json.RawMessage) (any, error) {
		if m.sess == nil {
			return nil, errors.New("changewatch: not open")
		}
		return m.Status(), nil
	})
}
