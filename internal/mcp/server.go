// Package mcp exposes the Engram tool surface over the Model Context
// Protocol on stdio, for agent harnesses.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engram-memory/engram/internal/hydrate"
	"github.com/engram-memory/engram/internal/memory"
)

// Server wires the memory service into an MCP stdio server.
type Server struct {
	svc *memory.Service
	hyd *hydrate.Hydrator
}

// NewServer creates a Server.
func NewServer(svc *memory.Service, hyd *hydrate.Hydrator) *Server {
	return &Server{svc: svc, hyd: hyd}
}

// Serve blocks, serving the tool protocol over stdio until EOF.
func (s *Server) Serve() error {
	srv := server.NewMCPServer(
		"engram",
		s.svc.Capabilities().Version,
		server.WithToolCapabilities(true),
		// The tool list is filtered per request so capability flags can
		// toggle without a restart.
		server.WithToolFilter(s.filterTools),
	)

	srv.AddTool(rememberTool(), s.handleRemember)
	srv.AddTool(recallTool(), s.handleRecall)
	srv.AddTool(forgetTool(), s.handleForget)
	srv.AddTool(capabilitiesTool(), s.handleCapabilities)
	srv.AddTool(hydrateTool(), s.handleHydrate)

	return server.ServeStdio(srv)
}

// filterTools hides context_hydrate from listings while its flag is off.
func (s *Server) filterTools(_ context.Context, tools []mcp.Tool) []mcp.Tool {
	if s.svc.Capabilities().ContextHydration {
		return tools
	}
	out := tools[:0]
	for _, t := range tools {
		if t.Name != "context_hydrate" {
			out = append(out, t)
		}
	}
	return out
}

func rememberTool() mcp.Tool {
	return mcp.NewTool("remember",
		mcp.WithDescription("Persist a short textual memory. Supports idempotent retries and create-or-replace upserts via idempotency_key."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The memory text to store"),
		),
		mcp.WithString("category",
			mcp.Description("Optional hint: decision, pattern, fact, preference, or insight"),
		),
		mcp.WithString("scope_id", mcp.Description("Optional isolation scope")),
		mcp.WithString("chat_id", mcp.Description("Optional chat dimension")),
		mcp.WithString("thread_id", mcp.Description("Optional thread dimension")),
		mcp.WithString("task_id", mcp.Description("Optional task dimension")),
		mcp.WithObject("metadata", mcp.Description("Optional key/value metadata")),
		mcp.WithString("idempotency_key",
			mcp.Description("Stable caller-chosen identity for retry or update"),
		),
		mcp.WithBoolean("upsert",
			mcp.Description("Replace the memory stored under idempotency_key if it exists"),
		),
		mcp.WithString("session_id", mcp.Description("Optional session for metrics")),
	)
}

func recallTool() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Retrieve ranked memories for a natural-language query. Empty queries return recent memories."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query; may be empty")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithString("category", mcp.Description("Restrict to one category")),
		mcp.WithNumber("min_strength", mcp.Description("Minimum effective strength (default 0.1)")),
		mcp.WithString("scope_id", mcp.Description("Optional isolation scope")),
		mcp.WithString("chat_id", mcp.Description("Optional chat dimension")),
		mcp.WithString("thread_id", mcp.Description("Optional thread dimension")),
		mcp.WithString("task_id", mcp.Description("Optional task dimension")),
		mcp.WithString("session_id", mcp.Description("Optional session for metrics")),
	)
}

func forgetTool() mcp.Tool {
	return mcp.NewTool("forget",
		mcp.WithDescription("Delete a memory by id. With scopes enabled, scope_id guards scoped rows."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The memory id")),
		mcp.WithString("scope_id", mcp.Description("Scope guard for scoped memories")),
		mcp.WithString("session_id", mcp.Description("Optional session for metrics")),
	)
}

func capabilitiesTool() mcp.Tool {
	return mcp.NewTool("capabilities",
		mcp.WithDescription("Report the feature flags and tool names this server exposes."),
	)
}

func hydrateTool() mcp.Tool {
	return mcp.NewTool("context_hydrate",
		mcp.WithDescription("Recall memories under a token budget for direct prompt injection. Query is optional."),
		mcp.WithString("query", mcp.Description("Optional search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget (default 4000)")),
		mcp.WithString("category", mcp.Description("Restrict to one category")),
		mcp.WithNumber("min_strength", mcp.Description("Minimum effective strength (default 0.1)")),
		mcp.WithString("scope_id", mcp.Description("Optional isolation scope")),
		mcp.WithString("chat_id", mcp.Description("Optional chat dimension")),
		mcp.WithString("thread_id", mcp.Description("Optional thread dimension")),
		mcp.WithString("task_id", mcp.Description("Optional task dimension")),
		mcp.WithString("session_id", mcp.Description("Optional session for metrics")),
	)
}
