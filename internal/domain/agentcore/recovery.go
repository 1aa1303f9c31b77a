package agentcore

import (
	"context"
	"fmt"
)

// handleTokenLimit runs the ordered recovery ladder spec section 4.7 names.
// Each rung persists the memory it produces before calling the LLM, so a
// crash mid-recovery leaves a valid state.
func (e *Engine) handleTokenLimit(ctx context.Context, mem *Memory, format *ResponseFormat, tlErr *TokenLimitError) (Message, error) {
	// Rung 1: forced memory cleanup.
	e.memMgr.AutoManage(ctx, mem, e.role, true)
	if err := e.persist(ctx, mem); err != nil {
		return Message{}, err
	}

	assistant, err := e.llm.Ask(ctx, mem.All(), e.toolDefinitions(), format)
	if err == nil {
		return e.finishAsk(ctx, mem, assistant)
	}
	var again *TokenLimitError
	if asTokenLimit(err, &again) {
		tlErr = again // repeated TokenLimitError updates (current, max) and continues
	} else {
		return Message{}, err
	}

	// Rung 2: longest-message compression.
	idx, _, found := FindLongestCompressibleMessage(mem, e.llm.MaxTokens())
	if !found {
		return Message{}, tlErr
	}

	chosen := mem.All()[idx]
	taskContext := e.taskContextFor(mem)

	// Rung 3 branch point: segmented vs single-pass, at 0.7*max.
	threshold := int(0.7 * float64(e.llm.MaxTokens()))
	if EstimateTokens(chosen.Content) > threshold {
		return e.segmentedRecovery(ctx, mem, idx, chosen, format, taskContext)
	}

	kind := compressionKindForRole(chosen.Role)
	compressed := e.compressor.CompressForImmediateUse(ctx, chosen.Content, e.role, kind, e.llm.MaxTokens(), taskContext)
	e.replaceMessageContent(mem, idx, compressed.CompressedText)
	if err := e.persist(ctx, mem); err != nil {
		return Message{}, err
	}

	assistant, err = e.llm.Ask(ctx, mem.All(), e.toolDefinitions(), format)
	if err != nil {
		// A retry failure other than a token limit propagates. A repeated
		// TokenLimitError goes to rung 5 (absolute fallback); rung 3 does not
		// chain into rung 4 unless the size branch above chose segmented
		// processing.
		var tl *TokenLimitError
		if asTokenLimit(err, &tl) {
			return e.absoluteFallback(ctx, mem, format, tl)
		}
		return Message{}, err
	}
	return e.finishAsk(ctx, mem, assistant)
}

// segmentedRecovery implements rung 4: iterate the segment stream,
// writing each formatted block into the chosen message slot and invoking
// the LLM once per segment, then rung 5 if segmented processing itself
// still can't fit.
func (e *Engine) segmentedRecovery(ctx context.Context, mem *Memory, idx int, chosen Message, format *ResponseFormat, taskContext string) (Message, error) {
	var lastResponse Message
	var processErr error

	err := e.compressor.ProcessLongContentInSegments(ctx, chosen.Content, e.llm.MaxTokens(), taskContext, func(seg SegmentEvent) error {
		if seg.Kind == FinalSummaryRecord {
			e.replaceMessageContent(mem, idx, fmt.Sprintf("[内容摘要]:\n%s", seg.FinalSummary))
			return e.persist(ctx, mem)
		}

		var block string
		if seg.HasHistory {
			block = fmt.Sprintf("[历史摘要]:\n%s\n\n[当前内容 - 第%d/%d段]:\n%s", seg.HistorySummary, seg.Index+1, seg.Total, seg.SegmentText)
		} else {
			block = fmt.Sprintf("[内容 - 第%d/%d段]:\n%s", seg.Index+1, seg.Total, seg.SegmentText)
		}
		e.replaceMessageContent(mem, idx, block)
		if err := e.persist(ctx, mem); err != nil {
			return err
		}

		assistant, err := e.llm.Ask(ctx, mem.All(), e.toolDefinitions(), format)
		if err != nil {
			var tl *TokenLimitError
			if asTokenLimit(err, &tl) {
				processErr = tl
				return nil // absolute fallback handled after the stream completes
			}
			processErr = err
			return err
		}

		lastResponse = Normalize(assistant)
		if seg.Index+1 < seg.Total {
			// intermediate acknowledgment keeps the trace coherent
			mem.Append(NewAssistantMessage(fmt.Sprintf("已处理第%d段内容。", seg.Index+1), nil))
		} else {
			mem.Append(lastResponse)
		}
		return e.persist(ctx, mem)
	})

	if err != nil && processErr == nil {
		processErr = err
	}
	if processErr != nil {
		var tl *TokenLimitError
		if asTokenLimit(processErr, &tl) {
			return e.absoluteFallback(ctx, mem, format, tl)
		}
		return Message{}, processErr
	}

	return lastResponse, nil
}

// absoluteFallback is rung 5: reduce the context to [system, lastUserMessage]
// and retry once more. On failure, propagate.
func (e *Engine) absoluteFallback(ctx context.Context, mem *Memory, format *ResponseFormat, tlErr *TokenLimitError) (Message, error) {
	var last Message
	for i := len(mem.All()) - 1; i >= 0; i-- {
		if mem.All()[i].Role == RoleUser {
			last = mem.All()[i]
			break
		}
	}

	reduced := []Message{}
	if sys, ok := mem.LatestSystemMessage(); ok {
		reduced = append(reduced, sys)
	}
	reduced = append(reduced, last)
	mem.Set(reduced)
	if err := e.persist(ctx, mem); err != nil {
		return Message{}, err
	}

	assistant, err := e.llm.Ask(ctx, mem.All(), e.toolDefinitions(), format)
	if err != nil {
		return Message{}, err
	}
	return e.finishAsk(ctx, mem, assistant)
}

func (e *Engine) finishAsk(ctx context.Context, mem *Memory, assistant Message) (Message, error) {
	assistant = Normalize(assistant)
	mem.Append(assistant)
	if err := e.persist(ctx, mem); err != nil {
		return Message{}, err
	}
	return assistant, nil
}

func (e *Engine) taskContextFor(mem *Memory) string {
	if idx, ok := FindTaskMessage(mem.All()); ok {
		return mem.All()[idx].Content
	}
	return ""
}

func (e *Engine) replaceMessageContent(mem *Memory, idx int, content string) {
	msgs := mem.All()
	if idx < 0 || idx >= len(msgs) {
		return
	}
	msgs[idx].Content = content
}

func compressionKindForRole(r Role) CompressionKind {
	switch r {
	case RoleUser:
		return CompressionUserInput
	case RoleTool:
		return CompressionToolOutput
	default:
		return CompressionMemoryCleanup
	}
}
