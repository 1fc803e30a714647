package tagcheck

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "tagqa-test", Version: "0.1.0"}

func mcpSession(t *testing.T, f *fixture) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	f.svc.RegisterMCP(srv)

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

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Containers(t *testing.T) {
	session := mcpSession(t, newFixture(t))

	text, isErr := callTool(t, session, "tagqa_containers", map[string]any{"url": "https://shop.example/"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp struct {
		Containers []string `json:"containers"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Containers) != 2 || resp.Containers[0] != "G-ABC123" {
		t.Errorf("containers: got %v", resp.Containers)
	}
}

func TestMCP_MonitorAndLookup(t *testing.T) {
	f := newFixture(t)
	f.browser.captures = [][]string{{"G111"}, {"G999"}}
	session := mcpSession(t, f)

	text, isErr := callTool(t, session, "tagqa_monitor", map[string]any{
		"preview_url": "https://tagassistant.google.com/?url=x",
		"expected":    "G111",
		"loops":       2,
		"policy":      "keep",
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var rep struct {
		RunID        string `json:"run_id"`
		AnomalyCount int    `json:"anomaly_count"`
	}
	if err := json.Unmarshal([]byte(text), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.AnomalyCount != 1 {
		t.Errorf("anomalies: got %d, want 1", rep.AnomalyCount)
	}
	if f.browser.opened != 1 {
		t.Errorf("keep policy opened %d sessions, want 1", f.browser.opened)
	}

	text, isErr = callTool(t, session, "tagqa_monitor_run", map[string]any{"run_id": rep.RunID})
	if isErr {
		t.Fatalf("lookup error: %s", text)
	}
}

func TestMCP_ToolErrors(t *testing.T) {
	session := mcpSession(t, newFixture(t))

	args := map[string]any{"preview_url": "https://tagassistant.google.com/?url=x", "expected": "G1", "policy": "never"}
	if text, isErr := callTool(t, session, "tagqa_monitor", args); !isErr {
		t.Errorf("unknown policy must be a tool error, got %s", text)
	}
	if text, isErr := callTool(t, session, "tagqa_monitor_run", map[string]any{"run_id": "mon_none"}); !isErr {
		t.Errorf("unknown run must be a tool error, got %s", text)
	}
}
