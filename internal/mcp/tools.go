package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engram-memory/engram/internal/hydrate"
	"github.com/engram-memory/engram/internal/memory"
)

func (s *Server) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}

	in := memory.RememberInput{
		Content:        content,
		Category:       req.GetString("category", ""),
		ScopeID:        req.GetString("scope_id", ""),
		ChatID:         req.GetString("chat_id", ""),
		ThreadID:       req.GetString("thread_id", ""),
		TaskID:         req.GetString("task_id", ""),
		IdempotencyKey: req.GetString("idempotency_key", ""),
		Upsert:         req.GetBool("upsert", false),
		SessionID:      req.GetString("session_id", ""),
		Metadata:       metadataArg(req),
	}

	result, err := s.svc.Remember(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	in := recallInput(req)
	in.Query = query

	result, err := s.svc.Recall(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleForget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	result, err := s.svc.Forget(ctx, memory.ForgetInput{
		ID:        id,
		ScopeID:   req.GetString("scope_id", ""),
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleCapabilities(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Capabilities())
}

func (s *Server) handleHydrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Gate checked per call: the tool may be invoked by a client that
	// listed tools before the flag flipped off.
	if !s.svc.Capabilities().ContextHydration {
		return mcp.NewToolResultError("context hydration is disabled"), nil
	}

	in := hydrate.Input{
		RecallInput: recallInput(req),
		MaxTokens:   req.GetInt("max_tokens", 0),
	}
	in.Query = req.GetString("query", "")

	result, err := s.hyd.Hydrate(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

// recallInput collects the parameters shared by recall and context_hydrate.
func recallInput(req mcp.CallToolRequest) memory.RecallInput {
	in := memory.RecallInput{
		Limit:     req.GetInt("limit", 0),
		Category:  req.GetString("category", ""),
		ScopeID:   req.GetString("scope_id", ""),
		ChatID:    req.GetString("chat_id", ""),
		ThreadID:  req.GetString("thread_id", ""),
		TaskID:    req.GetString("task_id", ""),
		SessionID: req.GetString("session_id", ""),
	}
	if raw, ok := req.GetArguments()["min_strength"]; ok {
		if f, ok := raw.(float64); ok {
			in.MinStrength = &f
		}
	}
	return in
}

// metadataArg extracts the metadata object, tolerating absent or non-string
// values.
func metadataArg(req mcp.CallToolRequest) map[string]string {
	raw, ok := req.GetArguments()["metadata"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError renders a structured error rather than failing the RPC.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, memory.ErrInvalidArgument),
		errors.Is(err, memory.ErrNotFound),
		errors.Is(err, memory.ErrFeatureDisabled):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError("storage error: " + err.Error())
	}
}
