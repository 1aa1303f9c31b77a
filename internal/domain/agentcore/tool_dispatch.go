package agentcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/archflow/agentrun/internal/domain/tool"
)

// ArgumentParser parses a tool call's raw arguments field — which may
// already be a map, or a JSON string the caller received from the
// model — into a structured map the tool's Execute expects.
type ArgumentParser interface {
	Parse(raw interface{}) (map[string]interface{}, error)
}

// RetryConfig is the tool-retry budget from spec section 6: up to R attempts
// with a fixed inter-attempt delay Delta.
type RetryConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultRetryConfig allows 3 retries, the same count as the teacher's
// AgentLoopConfig default, with a fixed 1s delay between attempts
// (AgentLoopConfig's LLM retries instead back off from 2s, doubling).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, RetryInterval: time.Second}
}

// InvokeWithRetry looks up call.Name in the registry and invokes it
// through the retry wrapper described in spec section 4.3: up to R attempts
// with a fixed inter-attempt delay. An unknown tool name is not retried;
// it is returned as *ErrUnknownTool immediately so the dispatcher can
// emit an Error event without spending the retry budget. A failure after
// R attempts is reported as a non-nil *tool.Result carrying the last
// error text as Output, with Success=false and a nil error — the caller
// turns this into a Tool message and the loop continues, it does not
// terminate.
func InvokeWithRetry(
	ctx context.Context,
	registry tool.Registry,
	call ToolCall,
	args map[string]interface{},
	cfg RetryConfig,
	logger *zap.Logger,
) (*tool.Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	t, ok := registry.Get(call.Name)
	if !ok {
		return nil, &ErrUnknownTool{Name: call.Name}
	}

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	var lastResult *tool.Result

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := t.Execute(ctx, args)
		if err == nil && (result == nil || result.Success) {
			return result, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = resultError(result)
		}
		lastResult = result

		if attempt < attempts {
			logger.Debug("tool invocation failed, retrying",
				zap.String("tool", call.Name),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}

	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	} else if lastResult != nil {
		errText = lastResult.Error
	}

	return &tool.Result{
		Output:  errText,
		Success: false,
		Error:   errText,
	}, nil
}

func resultError(r *tool.Result) error {
	if r == nil || r.Error == "" {
		return nil
	}
	return simpleError(r.Error)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }
