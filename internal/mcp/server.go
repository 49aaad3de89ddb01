// Package mcp exposes the extraction pipeline over the Model Context
// Protocol: a process_inquiry tool for single texts, a process_batch
// tool for directories, and a pipeline_health tool. Stdio transport
// only; the process is meant to sit behind an MCP-speaking client.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tripdesk/tripdesk/internal/pipeline"
)

// NewServer builds the MCP server around an already-constructed
// pipeline.
func NewServer(p *pipeline.Pipeline, version string) *server.MCPServer {
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"tripdesk",
		version,
		server.WithToolCapabilities(false),
	)

	registerProcessInquiryTool(s, p)
	registerProcessBatchTool(s, p)
	registerHealthTool(s, p)
	return s
}

// ServeStdio runs the server on stdin/stdout until the client hangs up.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerProcessInquiryTool(s *server.MCPServer, p *pipeline.Pipeline) {
	tool := mcp.NewTool("process_inquiry",
		mcp.WithDescription("Extract structured trip fields (name, destination, dates, budget, travelers, contact) from one free-text travel inquiry. Handles English, Hindi, and Hinglish."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The inquiry text to process"),
		),
		mcp.WithString("source_id",
			mcp.Description("Identifier echoed into the result (default: 'inline')"),
		),
		mcp.WithBoolean("strict",
			mcp.Description("Also project the result onto the strict trip schema"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		sourceID := req.GetString("source_id", "inline")
		opts := pipeline.Options{Strict: req.GetBool("strict", false)}

		res := p.ProcessInquiry(ctx, sourceID, text, opts)
		return jsonResult(res)
	})
}

func registerProcessBatchTool(s *server.MCPServer, p *pipeline.Pipeline) {
	tool := mcp.NewTool("process_batch",
		mcp.WithDescription("Process every inquiry file (.txt/.text/.md) in a directory and return per-file results plus batch statistics."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory containing inquiry files"),
		),
		mcp.WithBoolean("strict",
			mcp.Description("Also project each result onto the strict trip schema"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, err := req.RequireString("dir")
		if err != nil {
			return mcp.NewToolResultError("dir is required"), nil
		}
		opts := pipeline.Options{Strict: req.GetBool("strict", false)}

		rep, err := p.ProcessBatch(ctx, dir, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch failed: %v", err)), nil
		}
		return jsonResult(rep)
	})
}

func registerHealthTool(s *server.MCPServer, p *pipeline.Pipeline) {
	tool := mcp.NewTool("pipeline_health",
		mcp.WithDescription("Probe each pipeline component and report readiness, including whether the NER model is loaded or running degraded."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(p.HealthCheck(ctx))
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
