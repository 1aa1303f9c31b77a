package agentcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/archflow/agentrun/internal/domain/tool"
)

// EngineConfig is the configuration surface spec section 6 enumerates.
type EngineConfig struct {
	MaxIterations               int // default 30-100; safety cap on loop turns
	Retry                       RetryConfig
	MemoryManager               MemoryManagerConfig
	ToolOutputCompressThreshold int // default 3000 estimated tokens
	SystemPrompt                string
	ResponseFormat              *ResponseFormat
}

// DefaultEngineConfig mirrors the spec's stated defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxIterations:               50,
		Retry:                       DefaultRetryConfig(),
		MemoryManager:               DefaultMemoryManagerConfig(),
		ToolOutputCompressThreshold: 3000,
	}
}

// Engine is the agent iteration engine: one state machine per Execute
// call, dispatching tools with retry and, on a token-limit failure,
// running the recovery ladder that combines the Compression Service and
// the Memory Manager. Grounded on the teacher's AgentLoop.Run/runLoop
// (internal/domain/service/agent_loop.go), restructured around the
// spec's four public operations (Execute, AskWithMessages, Rollback,
// CompactMemory) and its exact recovery-ladder ordering.
type Engine struct {
	agentID    string
	role       AgentRole
	llm        LLMClient
	registry   tool.Registry
	argParser  ArgumentParser
	repo       MemoryRepository
	memMgr     *MemoryManager
	compressor *CompressionService
	config     EngineConfig
	logger     *zap.Logger
}

// NewEngine wires the engine's collaborators. All parameters are
// required except argParser (defaults to JSONArgumentParser) and logger
// (defaults to a no-op logger).
func NewEngine(
	agentID string,
	role AgentRole,
	llm LLMClient,
	registry tool.Registry,
	argParser ArgumentParser,
	repo MemoryRepository,
	memMgr *MemoryManager,
	compressor *CompressionService,
	config EngineConfig,
	logger *zap.Logger,
) *Engine {
	if argParser == nil {
		argParser = JSONArgumentParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		agentID:    agentID,
		role:       role,
		llm:        llm,
		registry:   registry,
		argParser:  argParser,
		repo:       repo,
		memMgr:     memMgr,
		compressor: compressor,
		config:     config,
		logger:     logger,
	}
}

// loadMemory fetches the session's memory from the repository, seeding a
// fresh one with the configured system prompt if none is persisted yet.
func (e *Engine) loadMemory(ctx context.Context) (*Memory, error) {
	mem, err := e.repo.Get(ctx, e.agentID, e.role)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	if mem == nil {
		mem = NewMemory(e.config.SystemPrompt)
	}
	return mem, nil
}

func (e *Engine) persist(ctx context.Context, mem *Memory) error {
	if err := e.repo.Save(ctx, e.agentID, e.role, mem); err != nil {
		return fmt.Errorf("persist memory: %w", err)
	}
	return nil
}

// Execute drives one turn: repeat tool dispatch until the model emits a
// terminal message or the iteration cap is hit. Events are emitted on an
// unbuffered channel closed when Execute returns, either on completion
// or on ctx cancellation — the consumer not draining it blocks the
// engine before its next tool call, which is the intended backpressure
// point.
func (e *Engine) Execute(ctx context.Context, request string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		e.runLoop(ctx, request, out)
	}()
	return out
}

func (e *Engine) runLoop(ctx context.Context, request string, out chan<- Event) {
	mem, err := e.loadMemory(ctx)
	if err != nil {
		e.emit(ctx, out, Event{Kind: EventError, Text: err.Error()})
		return
	}

	assistantMsg, err := e.ask(ctx, mem, []Message{NewUserMessage(request)})
	if err != nil {
		if ctx.Err() != nil {
			return // cancellation is not an error; return promptly
		}
		e.emit(ctx, out, Event{Kind: EventError, Text: err.Error()})
		return
	}

	for step := 1; step <= e.config.MaxIterations; step++ {
		if assistantMsg.IsTerminal() {
			e.emit(ctx, out, Event{Kind: EventMessage, Step: step, Text: assistantMsg.Content})
			return
		}

		tc := assistantMsg.ToolCalls[0]
		e.emit(ctx, out, Event{Kind: EventToolCalling, Step: step, ToolCall: &tc})

		resultText, dispatchErr := e.dispatchTool(ctx, tc, step)
		if dispatchErr != nil {
			var unknown *ErrUnknownTool
			if asUnknownTool(dispatchErr, &unknown) {
				e.emit(ctx, out, Event{Kind: EventError, Step: step, Text: unknown.Error()})
				return
			}
			if ctx.Err() != nil {
				return
			}
			e.emit(ctx, out, Event{Kind: EventError, Step: step, Text: dispatchErr.Error()})
			return
		}

		e.emit(ctx, out, Event{Kind: EventToolCalled, Step: step, ToolCall: &tc, Result: resultText})

		next, err := e.ask(ctx, mem, []Message{NewToolMessage(tc.ID, tc.Name, resultText)})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.emit(ctx, out, Event{Kind: EventError, Step: step, Text: err.Error()})
			return
		}
		assistantMsg = next
	}

	e.emit(ctx, out, Event{Kind: EventError, Text: "Maximum iteration count reached"})
}

// ExecuteStep wraps one Execute call with StepStarted/StepCompleted/
// StepFailed bracketing events, forwarding every event Execute itself
// produces in between. Grounded on the teacher's ExecutionAgent.execute_step
// (original agents/execution.py), which brackets a single agent run the
// same way when driving one step of a multi-step plan.
func (e *Engine) ExecuteStep(ctx context.Context, request string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		e.emit(ctx, out, Event{Kind: EventStepStarted})

		failed := false
		for evt := range e.Execute(ctx, request) {
			if evt.Kind == EventError {
				failed = true
			}
			e.emit(ctx, out, evt)
		}

		if failed {
			e.emit(ctx, out, Event{Kind: EventStepFailed})
		} else {
			e.emit(ctx, out, Event{Kind: EventStepCompleted})
		}
	}()
	return out
}

// emit sends an event, honoring cancellation instead of blocking forever
// on an undrained channel past context expiry.
func (e *Engine) emit(ctx context.Context, out chan<- Event, evt Event) {
	select {
	case out <- evt:
	case <-ctx.Done():
	}
}

func (e *Engine) dispatchTool(ctx context.Context, tc ToolCall, step int) (string, error) {
	args, err := e.argParser.Parse(tc.Arguments)
	if err != nil {
		args = map[string]interface{}{}
	}

	result, err := InvokeWithRetry(ctx, e.registry, tc, args, e.config.Retry, e.logger)
	if err != nil {
		return "", err
	}

	text := result.Output
	if EstimateTokens(text) > e.config.ToolOutputCompressThreshold && e.compressor != nil {
		compressed := e.compressor.CompressForImmediateUse(
			ctx, text, e.role, CompressionToolOutput, e.llm.MaxTokens(),
			fmt.Sprintf("step %d: %s", step, tc.Name),
		)
		text = compressed.CompressedText
	}
	return text, nil
}

func (e *Engine) toolDefinitions() []ToolDefinition {
	defs := e.registry.List()
	out := make([]ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// AskWithMessages is a single ask with the full recovery ladder, used by
// higher layers to prime an agent without running the tool-dispatch
// loop.
func (e *Engine) AskWithMessages(ctx context.Context, messages []Message, format *ResponseFormat) (Message, error) {
	mem, err := e.loadMemory(ctx)
	if err != nil {
		return Message{}, err
	}
	if format == nil {
		format = e.config.ResponseFormat
	}
	return e.askWithFormat(ctx, mem, messages, format)
}

// ask appends inputs to memory, persists, runs autoManage, then calls the
// LLM — entering the recovery ladder on a token-limit failure.
func (e *Engine) ask(ctx context.Context, mem *Memory, inputs []Message) (Message, error) {
	return e.askWithFormat(ctx, mem, inputs, e.config.ResponseFormat)
}

func (e *Engine) askWithFormat(ctx context.Context, mem *Memory, inputs []Message, format *ResponseFormat) (Message, error) {
	mem.AppendMany(inputs)
	if err := e.persist(ctx, mem); err != nil {
		return Message{}, err
	}

	if e.memMgr.AutoManage(ctx, mem, e.role, false) {
		if err := e.persist(ctx, mem); err != nil {
			return Message{}, err
		}
	}

	assistant, err := e.llm.Ask(ctx, mem.All(), e.toolDefinitions(), format)
	if err == nil {
		assistant = Normalize(assistant)
		mem.Append(assistant)
		if err := e.persist(ctx, mem); err != nil {
			return Message{}, err
		}
		return assistant, nil
	}

	var tlErr *TokenLimitError
	if asTokenLimit(err, &tlErr) {
		return e.handleTokenLimit(ctx, mem, format, tlErr)
	}
	return Message{}, err
}

// Rollback: if the last assistant message carries an unserved tool call
// to message_ask_user, append a Tool message with message as the answer;
// otherwise drop the last message. Persist.
func (e *Engine) Rollback(ctx context.Context, message string) error {
	mem, err := e.loadMemory(ctx)
	if err != nil {
		return err
	}

	last, ok := mem.Last()
	if ok && last.Role == RoleAssistant && len(last.ToolCalls) == 1 && last.ToolCalls[0].Name == "message_ask_user" {
		mem.Append(NewToolMessage(last.ToolCalls[0].ID, "message_ask_user", message))
	} else {
		mem.RollbackLast()
	}
	return e.persist(ctx, mem)
}

// CompactMemory invokes Memory.Compact() and persists the result.
func (e *Engine) CompactMemory(ctx context.Context) error {
	mem, err := e.loadMemory(ctx)
	if err != nil {
		return err
	}
	mem.Compact()
	return e.persist(ctx, mem)
}

func asUnknownTool(err error, target **ErrUnknownTool) bool {
	if u, ok := err.(*ErrUnknownTool); ok {
		*target = u
		return true
	}
	return false
}

func asTokenLimit(err error, target **TokenLimitError) bool {
	if t, ok := err.(*TokenLimitError); ok {
		*target = t
		return true
	}
	return false
}
