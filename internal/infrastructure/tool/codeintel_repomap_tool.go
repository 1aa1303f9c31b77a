package tool

import (
	"context"

	domaintool "github.com/archflow/agentrun/internal/domain/tool"
	"github.com/archflow/agentrun/internal/infrastructure/codeintel"
	"go.uber.org/zap"
)

// CodeIntelRepoMapTool wraps a pre-built codeintel.RepoMap (symbol index +
// PageRank-style reference ranking over one already-indexed root), as
// opposed to RepoMapTool's on-demand directory walk. Distinct name since
// both can be registered at once: this one answers "what matters most in
// the codebase I'm already indexing," the other "show me this subtree now."
type CodeIntelRepoMapTool struct {
	repoMap *codeintel.RepoMap
	logger  *zap.Logger
}

func NewCodeIntelRepoMapTool(repoMap *codeintel.RepoMap, logger *zap.Logger) *CodeIntelRepoMapTool {
	return &CodeIntelRepoMapTool{repoMap: repoMap, logger: logger}
}

func (t *CodeIntelRepoMapTool) Name() string          { return "repo_symbol_graph" }
func (t *CodeIntelRepoMapTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *CodeIntelRepoMapTool) Description() string {
	return "Return a ranked map of the most-referenced symbols in the indexed codebase, most important first " +
		"(PageRank over the call/reference graph). Use this for a high-level orientation instead of repo_map's " +
		"raw directory walk."
}

func (t *CodeIntelRepoMapTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"max_tokens": map[string]interface{}{
				"type":        "integer",
				"description": "Approximate token budget for the returned map (default 2000)",
			},
			"files": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Restrict the map to these files (optional; default: whole index)",
			},
		},
	}
}

func (t *CodeIntelRepoMapTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	maxTokens := 2000
	if v, ok := args["max_tokens"].(float64); ok && v > 0 {
		maxTokens = int(v)
	}

	var out string
	if raw, ok := args["files"].([]interface{}); ok && len(raw) > 0 {
		files := make([]string, 0, len(raw))
		for _, f := range raw {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
		out = t.repoMap.GenerateForFiles(files, maxTokens)
	} else {
		out = t.repoMap.Generate(maxTokens)
	}

	return &Result{Output: out, Success: true}, nil
}
