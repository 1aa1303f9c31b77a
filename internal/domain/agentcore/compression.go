package agentcore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Summarizer is the narrow LLM-backed capability the compression service
// needs: turn a prompt into prose. Grounded on the teacher's ModelClient
// (internal/domain/context/summarizer.go) — a deliberately thin seam so
// the compression service can be exercised with a stub in tests without
// pulling in a full LLMClient.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Segment is one overlapping slice of a long text, as produced by
// SegmentContent.
type Segment struct {
	Index             int
	Text              string
	EstimatedTokens   int
	BoundaryPreserved bool // true when the segment's leading overlapWords
	// words repeat the previous segment's tail; false for the first segment
	// and for one that follows a segment of overlapWords words or fewer.
}

// overlapWords is the default cross-segment overlap (B in spec section 4.5).
const overlapWords = 100

// SegmentContent splits text on whitespace into words and emits segments
// whose estimated token count stays below targetTokens, with adjacent
// segments overlapping by overlapWords words so cross-segment references
// survive (a segment of overlapWords words or fewer is followed without
// overlap). A single word above targetTokens still forms a segment on its
// own. Every word of text is covered; the concatenation of segments
// minus their overlaps reproduces the original word sequence.
func SegmentContent(text string, targetTokens int) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if targetTokens <= 0 {
		targetTokens = 1
	}

	var segments []Segment
	start := 0
	index := 0
	overlapped := false

	for start < len(words) {
		end := start
		tokens := 0
		for end < len(words) {
			wordTokens := EstimateTokens(words[end])
			if end > start && tokens+wordTokens > targetTokens {
				break
			}
			tokens += wordTokens
			end++
		}
		if end == start { // a single word already exceeds target; take it anyway
			end = start + 1
		}
		// Per-word floors undercount the joined text's estimate, so shrink
		// end to the longest prefix whose own estimate is below targetTokens
		// (keeping at least one word).
		lo, hi := start+1, end
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if EstimateTokens(strings.Join(words[start:mid], " ")) < targetTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		end = lo

		segText := strings.Join(words[start:end], " ")
		segments = append(segments, Segment{
			Index:             index,
			Text:              segText,
			EstimatedTokens:   EstimateTokens(segText),
			BoundaryPreserved: overlapped,
		})
		index++

		if end >= len(words) {
			break
		}
		// next segment starts overlapWords words back from end, so the
		// tail of this segment reappears as the head of the next.
		next := end - overlapWords
		overlapped = next > start
		if !overlapped {
			next = end
		}
		start = next
	}

	return segments
}

// CompressionService reduces the token count of a single piece of
// content while preserving task-relevant semantics. Grounded on the
// teacher's compactMessages/tryLLMSummarize
// (internal/domain/service/compaction.go) for the LLM-summarize-then-
// fall-back-to-truncation shape, generalized to the three dispatch
// branches spec section 4.5 names.
type CompressionService struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// NewCompressionService builds a compression service. summarizer may be
// nil, in which case every call falls back directly to truncation.
func NewCompressionService(summarizer Summarizer, logger *zap.Logger) *CompressionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompressionService{summarizer: summarizer, logger: logger}
}

// CompressForImmediateUse dispatches by (agentRole, contentKind) per spec
// section 4.5, and always falls back to textual truncation on LLM failure
// rather than raising.
func (c *CompressionService) CompressForImmediateUse(
	ctx context.Context,
	text string,
	role AgentRole,
	kind CompressionKind,
	maxTokens int,
	taskContext string,
) CompressionResult {
	origTokens := EstimateTokens(text)

	var compressed string
	switch {
	case role == RolePlanner && kind == CompressionUserInput:
		compressed = c.compressPlannerUserInput(ctx, text, maxTokens)
	case role == RoleExecutor && kind == CompressionToolOutput:
		compressed = c.compressExecutorToolOutput(ctx, text, maxTokens, taskContext)
	default:
		compressed = c.compressGeneric(ctx, text, taskContext)
	}

	return CompressionResult{
		OriginalText:   text,
		CompressedText: compressed,
		Kind:           kind,
		OrigTokens:     origTokens,
		CompTokens:     EstimateTokens(compressed),
	}
}

const plannerReservedTokens = 4000

func (c *CompressionService) compressPlannerUserInput(ctx context.Context, text string, maxTokens int) string {
	target := 0.6 * float64(maxTokens-plannerReservedTokens)
	if target < 500 {
		target = 500
	}
	targetTokens := int(target)

	if c.summarizer == nil {
		return truncateToWords(text, int(0.7*target))
	}

	prompt := fmt.Sprintf(
		"请将以下用户输入改写为不超过 %d tokens 的版本，保留其核心意图：\n\n%s",
		targetTokens, text,
	)
	result, err := c.summarizer.Summarize(ctx, prompt)
	if err != nil {
		c.logger.Warn("planner user-input compression failed, falling back to truncation", zap.Error(err))
		return truncateToWords(text, int(0.7*target))
	}

	resultTokens := EstimateTokens(result)
	if resultTokens > targetTokens {
		return truncateToWords(result, int(0.7*target))
	}
	if resultTokens < targetTokens/10 {
		// under-produced; fall back to front-truncation of the original
		return truncateToWords(text, int(0.7*target))
	}
	return result
}

func (c *CompressionService) compressExecutorToolOutput(ctx context.Context, text string, maxTokens int, taskContext string) string {
	target := maxTokens / 4

	if c.summarizer == nil {
		return fmt.Sprintf("[工具执行结果摘要 - 步骤: %s]: %s", taskContext, truncateToWords(text, target))
	}

	prompt := fmt.Sprintf(
		"请通过以下步骤的视角总结这段工具输出，不超过 %d tokens：\n\n步骤: %s\n\n输出:\n%s",
		target, taskContext, text,
	)
	summary, err := c.summarizer.Summarize(ctx, prompt)
	if err != nil {
		c.logger.Warn("tool-output compression failed, falling back to truncation", zap.Error(err))
		summary = truncateToWords(text, target)
	}
	return fmt.Sprintf("[工具执行结果摘要 - 步骤: %s]: %s", taskContext, summary)
}

func (c *CompressionService) compressGeneric(ctx context.Context, text string, taskContext string) string {
	if c.summarizer == nil {
		return fmt.Sprintf("[用户意图]: %s\n\n[内容摘要]: %s", taskContext, truncateToWords(text, 200))
	}

	intentPrompt := fmt.Sprintf("请用一句话提取以下内容中用户的意图：\n\n%s", text)
	intent, err := c.summarizer.Summarize(ctx, intentPrompt)
	if err != nil {
		intent = taskContext
	}

	summaryPrompt := fmt.Sprintf("请总结以下内容，保留关键信息：\n\n%s", text)
	summary, err := c.summarizer.Summarize(ctx, summaryPrompt)
	if err != nil {
		c.logger.Warn("generic compression failed, falling back to truncation", zap.Error(err))
		summary = truncateToWords(text, 200)
	}

	return fmt.Sprintf("[用户意图]: %s\n\n[内容摘要]: %s", intent, summary)
}

func truncateToWords(text string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = 1
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + " ..."
}

// SegmentRecordKind distinguishes the two record types
// processLongContentInSegments emits to its consumer.
type SegmentRecordKind int

const (
	SegmentRecord SegmentRecordKind = iota
	FinalSummaryRecord
)

// SegmentEvent is one record emitted by ProcessLongContentInSegments: a
// per-segment record the engine turns into an LLM call, or the trailing
// final-summary record.
type SegmentEvent struct {
	Kind           SegmentRecordKind
	Index          int
	Total          int
	SegmentText    string
	HistorySummary string
	HasHistory     bool
	FinalSummary   string // only set when Kind == FinalSummaryRecord
}

const defaultSummaryBudget = 500

// ProcessLongContentInSegments implements the segmented-processing
// strategy for content larger than ~70% of the model window even after
// single-pass compression: it reserves half the window for the rolling
// summary and system overhead, segments the remainder, and for each
// segment summarizes it conditioned on the task context and the
// accumulated summary so far, merging summaries once their concatenation
// would exceed summaryBudget tokens. emit is called once per segment in
// order, then once more with the final accumulated summary.
func (c *CompressionService) ProcessLongContentInSegments(
	ctx context.Context,
	text string,
	maxTokens int,
	taskContext string,
	emit func(SegmentEvent) error,
) error {
	reserved := maxTokens / 2
	segSize := maxTokens - reserved
	if segSize < 1 {
		segSize = 1
	}

	segments := SegmentContent(text, segSize)
	total := len(segments)

	accumulated := ""
	for _, seg := range segments {
		segSummary := c.summarizeSegment(ctx, seg.Text, taskContext, accumulated)

		hasHistory := accumulated != ""
		if hasHistory {
			combined := accumulated + "\n" + segSummary
			if EstimateTokens(combined) > defaultSummaryBudget {
				accumulated = c.mergeSummaries(ctx, accumulated, segSummary, taskContext)
			} else {
				accumulated = combined
			}
		} else {
			accumulated = segSummary
		}

		evt := SegmentEvent{
			Kind:           SegmentRecord,
			Index:          seg.Index,
			Total:          total,
			SegmentText:    seg.Text,
			HistorySummary: accumulated,
			HasHistory:     hasHistory,
		}
		if err := emit(evt); err != nil {
			return err
		}
	}

	return emit(SegmentEvent{Kind: FinalSummaryRecord, Total: total, FinalSummary: accumulated})
}

func (c *CompressionService) summarizeSegment(ctx context.Context, segText, taskContext, accumulated string) string {
	if c.summarizer == nil {
		return truncateToWords(segText, 200)
	}
	var prompt string
	if accumulated == "" {
		prompt = fmt.Sprintf("任务背景: %s\n\n请总结以下内容片段:\n%s", taskContext, segText)
	} else {
		prompt = fmt.Sprintf("任务背景: %s\n\n已有摘要:\n%s\n\n请将以下新片段的内容融入摘要:\n%s", taskContext, accumulated, segText)
	}
	summary, err := c.summarizer.Summarize(ctx, prompt)
	if err != nil {
		c.logger.Warn("segment summarization failed, falling back to truncation", zap.Error(err))
		return truncateToWords(segText, 200)
	}
	return summary
}

func (c *CompressionService) mergeSummaries(ctx context.Context, a, b, taskContext string) string {
	if c.summarizer == nil {
		return truncateToWords(a+" "+b, 200)
	}
	prompt := fmt.Sprintf("任务背景: %s\n\n请将以下两段摘要合并为一段，不超过 %d tokens：\n\n摘要一:\n%s\n\n摘要二:\n%s", taskContext, defaultSummaryBudget, a, b)
	merged, err := c.summarizer.Summarize(ctx, prompt)
	if err != nil {
		c.logger.Warn("summary merge failed, falling back to truncation", zap.Error(err))
		return truncateToWords(a+" "+b, 200)
	}
	return merged
}
