// Copyright 2026 AgentRun Authors. All rights reserved.
package tool

import (
	"context"
	"fmt"
	"strings"

	domainmemory "github.com/archflow/agentrun/internal/domain/memory"
	domaintool "github.com/archflow/agentrun/internal/domain/tool"
	"go.uber.org/zap"
)

// SemanticRecallTool exposes domain/memory's vector-backed long-term
// memory as a tool: semantic search over facts embedded and stored
// across sessions, as distinct from save_memory's structured JSON facts
// file and from the agentcore Memory Manager's per-session bound.
type SemanticRecallTool struct {
	mgr    *domainmemory.MemoryManager
	logger *zap.Logger
}

// NewSemanticRecallTool wraps an existing domain/memory.MemoryManager
// (embedder + vector store already configured by the caller).
func NewSemanticRecallTool(mgr *domainmemory.MemoryManager, logger *zap.Logger) *SemanticRecallTool {
	return &SemanticRecallTool{mgr: mgr, logger: logger}
}

func (t *SemanticRecallTool) Name() string          { return "recall_memory" }
func (t *SemanticRecallTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *SemanticRecallTool) Description() string {
	return "Semantically search long-term memory for facts relevant to a query. " +
		"Use this to recall prior sessions' context the current conversation didn't carry forward."
}

func (t *SemanticRecallTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to recall",
			},
			"top_k": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of memories to return (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SemanticRecallTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return &Result{Output: "Error: 'query' parameter is required", Success: false}, nil
	}

	topK := 5
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	entries, err := t.mgr.Recall(ctx, query, topK, nil)
	if err != nil {
		t.logger.Warn("semantic recall failed", zap.Error(err))
		return &Result{Output: fmt.Sprintf("recall failed: %v", err), Success: false, Error: err.Error()}, nil
	}
	if len(entries) == 0 {
		return &Result{Output: "No relevant long-term memories found.", Success: true}, nil
	}

	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. (score %.2f) %s\n", i+1, e.Score, e.Content)
	}
	return &Result{Output: sb.String(), Success: true}, nil
}

// SemanticRememberTool is the write side of the same long-term store.
type SemanticRememberTool struct {
	mgr    *domainmemory.MemoryManager
	logger *zap.Logger
}

func NewSemanticRememberTool(mgr *domainmemory.MemoryManager, logger *zap.Logger) *SemanticRememberTool {
	return &SemanticRememberTool{mgr: mgr, logger: logger}
}

func (t *SemanticRememberTool) Name() string          { return "remember_long_term" }
func (t *SemanticRememberTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *SemanticRememberTool) Description() string {
	return "Embed and store a piece of text in long-term vector memory, retrievable later via recall_memory " +
		"across unrelated sessions. Prefer save_memory for short structured facts; use this for prose worth " +
		"semantic search."
}

func (t *SemanticRememberTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Text to remember",
			},
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session this memory is associated with",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SemanticRememberTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return &Result{Output: "Error: 'content' parameter is required", Success: false}, nil
	}

	metadata := map[string]interface{}{}
	if sid, ok := args["session_id"].(string); ok && sid != "" {
		metadata["session_id"] = sid
	}

	entry, err := t.mgr.Remember(ctx, content, metadata)
	if err != nil {
		t.logger.Warn("semantic remember failed", zap.Error(err))
		return &Result{Output: fmt.Sprintf("remember failed: %v", err), Success: false, Error: err.Error()}, nil
	}
	return &Result{Output: fmt.Sprintf("Stored as long-term memory %s", entry.ID), Success: true}, nil
}
