package agentcore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/archflow/agentrun/internal/domain/tool"
)

// fakeMemoryRepository is a trivial in-memory MemoryRepository, grounded
// on the narrow shape of the teacher's repository interfaces.
type fakeMemoryRepository struct {
	mu  sync.Mutex
	mem *Memory
}

func (r *fakeMemoryRepository) Get(ctx context.Context, agentID string, role AgentRole) (*Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mem, nil
}

func (r *fakeMemoryRepository) Save(ctx context.Context, agentID string, role AgentRole, memory *Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mem = memory
	return nil
}

// scriptedLLM replays a fixed sequence of (Message, error) responses, one
// per Ask call, matching the teacher's own hand-written fakes style.
type scriptedLLM struct {
	responses []llmResponse
	calls     int
	maxTokens int
}

type llmResponse struct {
	msg Message
	err error
}

func (l *scriptedLLM) Ask(ctx context.Context, messages []Message, tools []ToolDefinition, format *ResponseFormat) (Message, error) {
	if l.calls >= len(l.responses) {
		return Message{}, errors.New("scriptedLLM: no more responses scripted")
	}
	r := l.responses[l.calls]
	l.calls++
	return r.msg, r.err
}

func (l *scriptedLLM) MaxTokens() int {
	if l.maxTokens == 0 {
		return 8192
	}
	return l.maxTokens
}

// fakeTool returns a fixed result for every invocation, recording call count.
type fakeTool struct {
	name    string
	results []fakeToolResult
	calls   int
}

type fakeToolResult struct {
	output string
	err    error
}

func (t *fakeTool) Name() string                   { return t.name }
func (t *fakeTool) Description() string            { return "fake tool" }
func (t *fakeTool) Kind() tool.Kind                { return tool.KindRead }
func (t *fakeTool) Schema() map[string]interface{} { return map[string]interface{}{} }
func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (*tool.Result, error) {
	idx := t.calls
	if idx >= len(t.results) {
		idx = len(t.results) - 1
	}
	t.calls++
	r := t.results[idx]
	if r.err != nil {
		return &tool.Result{Success: false, Error: r.err.Error()}, r.err
	}
	return &tool.Result{Success: true, Output: r.output}, nil
}

func newTestEngine(t *testing.T, llm LLMClient, registry tool.Registry) (*Engine, *fakeMemoryRepository) {
	t.Helper()
	repo := &fakeMemoryRepository{}
	memMgr := NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil)
	compressor := NewCompressionService(nil, nil)
	config := DefaultEngineConfig()
	config.SystemPrompt = "P"
	config.Retry = RetryConfig{MaxRetries: 3, RetryInterval: 0}
	eng := NewEngine("agent1", RoleExecutor, llm, registry, nil, repo, memMgr, compressor, config, nil)
	return eng, repo
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for evt := range ch {
		out = append(out, evt)
	}
	return out
}

// Scenario 1: terminal immediately.
func TestExecute_TerminalImmediately(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("hello", nil)},
	}}
	registry := tool.NewInMemoryRegistry()
	eng, repo := newTestEngine(t, llm, registry)

	events := drain(eng.Execute(context.Background(), "hi"))

	if len(events) != 1 || events[0].Kind != EventMessage || events[0].Text != "hello" {
		t.Fatalf("expected a single Message(\"hello\") event, got %+v", events)
	}

	all := repo.mem.All()
	if len(all) != 3 || all[0].Role != RoleSystem || all[1].Content != "hi" || all[2].Content != "hello" {
		t.Fatalf("unexpected final memory: %+v", all)
	}
}

func TestExecuteStep_BracketsSuccessWithStartedAndCompleted(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("hello", nil)},
	}}
	registry := tool.NewInMemoryRegistry()
	eng, _ := newTestEngine(t, llm, registry)

	events := drain(eng.ExecuteStep(context.Background(), "hi"))

	if len(events) != 3 {
		t.Fatalf("expected 3 events (StepStarted, Message, StepCompleted), got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventStepStarted {
		t.Errorf("event 0 should be StepStarted, got %+v", events[0])
	}
	if events[1].Kind != EventMessage || events[1].Text != "hello" {
		t.Errorf("event 1 should be Message(\"hello\"), got %+v", events[1])
	}
	if events[2].Kind != EventStepCompleted {
		t.Errorf("event 2 should be StepCompleted, got %+v", events[2])
	}
}

func TestExecuteStep_BracketsFailureWithStepFailed(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "missing"}})},
	}}
	registry := tool.NewInMemoryRegistry()
	eng, _ := newTestEngine(t, llm, registry)

	events := drain(eng.ExecuteStep(context.Background(), "hi"))

	if events[0].Kind != EventStepStarted {
		t.Errorf("first event should be StepStarted, got %+v", events[0])
	}
	if last := events[len(events)-1]; last.Kind != EventStepFailed {
		t.Errorf("last event should be StepFailed, got %+v", last)
	}
	foundErr := false
	for _, evt := range events {
		if evt.Kind == EventError {
			foundErr = true
		}
	}
	if !foundErr {
		t.Fatalf("expected an Error event forwarded from Execute, got %+v", events)
	}
}

// Scenario 2: single tool hop.
func TestExecute_SingleToolHop(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "file_read", Arguments: map[string]interface{}{"path": "/x"}}})},
		{msg: NewAssistantMessage("done", nil)},
	}}
	registry := tool.NewInMemoryRegistry()
	registry.Register(&fakeTool{name: "file_read", results: []fakeToolResult{{output: "abc"}}})
	eng, _ := newTestEngine(t, llm, registry)

	events := drain(eng.Execute(context.Background(), "read /x"))

	if len(events) != 3 {
		t.Fatalf("expected 3 events (ToolCalling, ToolCalled, Message), got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventToolCalling || events[0].ToolCall.ID != "c1" {
		t.Errorf("event 0 should be ToolCalling(c1), got %+v", events[0])
	}
	if events[1].Kind != EventToolCalled || events[1].Result != "abc" {
		t.Errorf("event 1 should be ToolCalled(c1, \"abc\"), got %+v", events[1])
	}
	if events[2].Kind != EventMessage || events[2].Text != "done" {
		t.Errorf("event 2 should be Message(\"done\"), got %+v", events[2])
	}
}

// Scenario 3: retry then success.
func TestExecute_RetryThenSuccess(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "flaky"}})},
		{msg: NewAssistantMessage("ok-done", nil)},
	}}
	registry := tool.NewInMemoryRegistry()
	registry.Register(&fakeTool{name: "flaky", results: []fakeToolResult{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{output: "ok"},
	}})
	eng, _ := newTestEngine(t, llm, registry)
	eng.config.Retry = RetryConfig{MaxRetries: 3, RetryInterval: 0}

	events := drain(eng.Execute(context.Background(), "go"))

	var toolCalled *Event
	for i := range events {
		if events[i].Kind == EventToolCalled {
			toolCalled = &events[i]
		}
		if events[i].Kind == EventError {
			t.Fatalf("unexpected Error event: %+v", events[i])
		}
	}
	if toolCalled == nil || toolCalled.Result != "ok" {
		t.Fatalf("expected ToolCalled with result \"ok\", got %+v", toolCalled)
	}
}

// Scenario 4: retry exhaustion — the error text becomes the Tool message
// content and the loop continues rather than terminating.
func TestExecute_RetryExhaustion(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "alwaysfails"}})},
		{msg: NewAssistantMessage("handled", nil)},
	}}
	registry := tool.NewInMemoryRegistry()
	registry.Register(&fakeTool{name: "alwaysfails", results: []fakeToolResult{
		{err: errors.New("boom")}, {err: errors.New("boom")}, {err: errors.New("boom")},
	}})
	eng, _ := newTestEngine(t, llm, registry)
	eng.config.Retry = RetryConfig{MaxRetries: 2, RetryInterval: 0}

	events := drain(eng.Execute(context.Background(), "go"))

	var toolCalled *Event
	for i := range events {
		if events[i].Kind == EventToolCalled {
			toolCalled = &events[i]
		}
	}
	if toolCalled == nil || toolCalled.Result != "boom" {
		t.Fatalf("expected ToolCalled carrying the last error text \"boom\", got %+v", toolCalled)
	}
}

// Scenario: unknown tool name surfaces an Error event without crashing.
func TestExecute_UnknownTool(t *testing.T) {
	llm := &scriptedLLM{responses: []llmResponse{
		{msg: NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "nonexistent"}})},
	}}
	registry := tool.NewInMemoryRegistry()
	eng, _ := newTestEngine(t, llm, registry)

	events := drain(eng.Execute(context.Background(), "go"))

	found := false
	for _, evt := range events {
		if evt.Kind == EventError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an Error event for an unknown tool, got %+v", events)
	}
}

func TestExecute_MaxIterationsReached(t *testing.T) {
	responses := make([]llmResponse, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, llmResponse{msg: NewAssistantMessage("", []ToolCall{{ID: "c", Name: "loopy"}})})
	}
	llm := &scriptedLLM{responses: responses}
	registry := tool.NewInMemoryRegistry()
	registry.Register(&fakeTool{name: "loopy", results: []fakeToolResult{{output: "again"}}})
	eng, _ := newTestEngine(t, llm, registry)
	eng.config.MaxIterations = 2

	events := drain(eng.Execute(context.Background(), "go"))

	last := events[len(events)-1]
	if last.Kind != EventError || last.Text != "Maximum iteration count reached" {
		t.Fatalf("expected a terminal Error(\"Maximum iteration count reached\"), got %+v", last)
	}
}

func TestRollback_DropsLastMessage(t *testing.T) {
	repo := &fakeMemoryRepository{}
	mem := NewMemory("P")
	mem.Append(NewUserMessage("hi"))
	repo.mem = mem

	eng := NewEngine("agent1", RoleExecutor, &scriptedLLM{}, tool.NewInMemoryRegistry(), nil, repo, NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil), NewCompressionService(nil, nil), DefaultEngineConfig(), nil)

	if err := eng.Rollback(context.Background(), "ignored"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.mem.Len() != 1 {
		t.Fatalf("expected the last message dropped, got len=%d", repo.mem.Len())
	}
}

func TestRollback_AnswersPendingAskUser(t *testing.T) {
	repo := &fakeMemoryRepository{}
	mem := NewMemory("P")
	mem.Append(NewAssistantMessage("", []ToolCall{{ID: "c1", Name: "message_ask_user"}}))
	repo.mem = mem

	eng := NewEngine("agent1", RoleExecutor, &scriptedLLM{}, tool.NewInMemoryRegistry(), nil, repo, NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil), NewCompressionService(nil, nil), DefaultEngineConfig(), nil)

	if err := eng.Rollback(context.Background(), "the answer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last, ok := repo.mem.Last()
	if !ok || last.Role != RoleTool || last.Content != "the answer" || last.CallID != "c1" {
		t.Fatalf("expected a Tool message answering c1, got %+v", last)
	}
}

func TestCompactMemory(t *testing.T) {
	repo := &fakeMemoryRepository{}
	mem := NewMemory("P")
	mem.Append(NewToolMessage("c1", "browser_view", "<html/>"))
	repo.mem = mem

	eng := NewEngine("agent1", RoleExecutor, &scriptedLLM{}, tool.NewInMemoryRegistry(), nil, repo, NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil), NewCompressionService(nil, nil), DefaultEngineConfig(), nil)

	if err := eng.CompactMemory(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last, _ := repo.mem.Last()
	if last.Content != compactedSentinel {
		t.Fatalf("expected compacted sentinel, got %q", last.Content)
	}
}
