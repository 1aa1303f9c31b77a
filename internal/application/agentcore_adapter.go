package application

import (
	"context"
	"fmt"

	"github.com/archflow/agentrun/internal/domain/agentcore"
	"github.com/archflow/agentrun/internal/domain/entity"
	"github.com/archflow/agentrun/internal/domain/service"
	domaintool "github.com/archflow/agentrun/internal/domain/tool"
)

// ServiceLLMClientAdapter satisfies agentcore.LLMClient on top of the
// teacher's service.LLMClient (the provider-agnostic Generate/GenerateStream
// seam used by AgentLoop). Grounded on AgentLoop.callLLMWithRetry's request
// construction (internal/domain/service/agent_loop.go) and on
// IsContextOverflowError/DetectTokenLimit for recognizing a token-limit
// failure from the raw transport error text.
type ServiceLLMClientAdapter struct {
	llm         service.LLMClient
	model       string
	maxTokens   int
	temperature float64
}

// NewServiceLLMClientAdapter wraps an existing service.LLMClient so the
// agentcore Engine can drive it.
func NewServiceLLMClientAdapter(llm service.LLMClient, model string, maxTokens int, temperature float64) *ServiceLLMClientAdapter {
	return &ServiceLLMClientAdapter{llm: llm, model: model, maxTokens: maxTokens, temperature: temperature}
}

func (a *ServiceLLMClientAdapter) MaxTokens() int {
	if a.maxTokens <= 0 {
		return 128000
	}
	return a.maxTokens
}

// Ask converts agentcore's tagged Message variant to the teacher's
// role-string LLMMessage, issues one Generate call, and converts the
// response back — surfacing a *agentcore.TokenLimitError instead of the
// raw transport error when the text matches a token-limit signature.
func (a *ServiceLLMClientAdapter) Ask(ctx context.Context, messages []agentcore.Message, tools []agentcore.ToolDefinition, format *agentcore.ResponseFormat) (agentcore.Message, error) {
	req := &service.LLMRequest{
		Messages:    toLLMMessages(messages),
		Tools:       toDomainDefinitions(tools),
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	resp, err := a.llm.Generate(ctx, req)
	if err != nil {
		if tlErr := agentcore.DetectTokenLimit(err.Error()); tlErr != nil {
			return agentcore.Message{}, tlErr
		}
		if service.IsContextOverflowError(err) {
			return agentcore.Message{}, &agentcore.TokenLimitError{
				Info: agentcore.TokenInfo{Current: a.MaxTokens(), Max: a.MaxTokens()},
			}
		}
		return agentcore.Message{}, fmt.Errorf("llm generate: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		return agentcore.NewAssistantMessage(resp.Content, nil), nil
	}

	calls := make([]agentcore.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, agentcore.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return agentcore.NewAssistantMessage(resp.Content, calls), nil
}

// Summarize satisfies agentcore.Summarizer on top of the same
// service.LLMClient, issuing a single user-turn Generate call with no
// tools attached. Grounded on AgentLoop's compactMessages summarization
// step (internal/domain/service/agent_loop.go), which likewise asks the
// model to condense prior turns into prose via a plain Generate call.
func (a *ServiceLLMClientAdapter) Summarize(ctx context.Context, prompt string) (string, error) {
	req := &service.LLMRequest{
		Messages:    []service.LLMMessage{{Role: "user", Content: prompt}},
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}
	resp, err := a.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm summarize: %w", err)
	}
	return resp.Content, nil
}

func toLLMMessages(messages []agentcore.Message) []service.LLMMessage {
	out := make([]service.LLMMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentcore.RoleSystem:
			out = append(out, service.LLMMessage{Role: "system", Content: m.Content})
		case agentcore.RoleUser:
			out = append(out, service.LLMMessage{Role: "user", Content: m.Content})
		case agentcore.RoleTool:
			out = append(out, service.LLMMessage{Role: "tool", Content: m.Content, ToolCallID: m.CallID, Name: m.ToolName})
		case agentcore.RoleAssistant:
			lm := service.LLMMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				lm.ToolCalls = append(lm.ToolCalls, toolCallInfo(tc))
			}
			out = append(out, lm)
		}
	}
	return out
}

func toolCallInfo(tc agentcore.ToolCall) entity.ToolCallInfo {
	return entity.ToolCallInfo{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
}

func toDomainDefinitions(tools []agentcore.ToolDefinition) []domaintool.Definition {
	out := make([]domaintool.Definition, 0, len(tools))
	for _, t := range tools {
		out = append(out, domaintool.Definition{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}
