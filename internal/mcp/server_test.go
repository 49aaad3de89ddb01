package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/pipeline"
)

func setupServer(t *testing.T) *server.MCPServer {
	t.Helper()
	p, err := pipeline.New(config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return NewServer(p, "test")
}

// callTool invokes an MCP tool through the JSON-RPC surface.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestNewServer(t *testing.T) {
	if srv := setupServer(t); srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestProcessInquiryTool(t *testing.T) {
	srv := setupServer(t)

	result := callTool(t, srv, "process_inquiry", map[string]interface{}{
		"text": "My name is Amit Gupta, honeymoon trip to Manali for 7 days, budget Rs 75,000",
	})
	if result.IsError {
		t.Fatalf("tool errored: %s", getTextContent(t, result))
	}

	text := getTextContent(t, result)
	if !strings.Contains(text, "Amit Gupta") || !strings.Contains(text, "Manali") {
		t.Errorf("result missing extracted fields: %s", text)
	}
	if !strings.Contains(text, "SUCCESS") {
		t.Errorf("result missing status: %s", text)
	}
}

func TestProcessInquiryToolRequiresText(t *testing.T) {
	srv := setupServer(t)
	result := callTool(t, srv, "process_inquiry", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected error without text argument")
	}
}

func TestPipelineHealthTool(t *testing.T) {
	srv := setupServer(t)

	result := callTool(t, srv, "pipeline_health", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("tool errored: %s", getTextContent(t, result))
	}
	text := getTextContent(t, result)
	if !strings.Contains(text, "worker_pool") {
		t.Errorf("health output missing components: %s", text)
	}
}
