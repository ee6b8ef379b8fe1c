package changewatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "changewatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, m *Monitor) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	m.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (*mcp.CallToolResult, Status) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var st Status
	if !result.IsError {
		tc, ok := result.Content[0].(*mcp.TextContent)
		if !ok {
			t.Fatalf("CallTool(%s): expected TextContent", name)
		}
		if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
			t.Fatalf("CallTool(%s): unmarshal: %v", name, err)
		}
	}
	return result, st
}

func TestMCP_StartStatusStop(t *testing.T) {
	f := newFixture(t, nil)
	f.target.set("hello")
	session := mcpSession(t, f.m)

	res, st := mcpCall(t, session, "changewatch_start", map[string]any{
		"endpointUrl": "https://hooks.example.com/in",
		"scope":       "symbols",
		"keywords":    "🚨, !",
	})
	if res.IsError {
		t.Fatalf("changewatch_start: tool error %+v", res.Content)
	}
	if !st.Running || len(st.Monitor.Keywords) != 2 {
		t.Errorf("start status: got %+v", st)
	}

	_, st = mcpCall(t, session, "changewatch_status", map[string]any{})
	if !st.Running {
		t.Error("status: not running")
	}

	_, st = mcpCall(t, session, "changewatch_stop", map[string]any{})
	if st.Running {
		t.Error("stop: still running")
	}
}

func TestMCP_StartInvalid(t *testing.T) {
	f := newFixture(t, nil)
	session := mcpSession(t, f.m)

	res, _ := mcpCall(t, session, "changewatch_start", map[string]any{"endpointUrl": "relative/path"})
	if !res.IsError {
		t.Fatal("expected a tool error for an invalid endpoint")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(tc.Text, "invalid monitor configuration") {
		t.Errorf("tool error content: got %+v", res.Content)
	}
	if f.m.Status().Running {
		t.Error("monitor should not be running")
	}
}

func TestMCP_StartUsesConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor.Scope = "keywords"
	cfg.Monitor.Keywords = []string{"restock"}
	f := newFixture(t, cfg)
	session := mcpSession(t, f.m)

	res, st := mcpCall(t, session, "changewatch_start", map[string]any{
		"endpointUrl": "https://hooks.example.com/in",
	})
	if res.IsError {
		t.Fatalf("changewatch_start: tool error %+v", res.Content)
	}
	if st.Monitor.Scope != "keywords" || len(st.Monitor.Keywords) != 1 || st.Monitor.Keywords[0] != "restock" {
		t.Errorf("started monitor: got %+v, want config file scope and keywords", st.Monitor)
	}
}
