package agentcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func words(n int) string {
	sb := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("word")
	}
	return sb.String()
}

func TestSegmentContent_CoversEveryWord(t *testing.T) {
	text := words(500)
	segments := SegmentContent(text, 200)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments for long text, got %d", len(segments))
	}

	// Reconstruct the original sequence by stripping each segment's
	// leading B-word overlap (after the first segment) and concatenating.
	var rebuilt []string
	for i, seg := range segments {
		segWords := strings.Fields(seg.Text)
		if i > 0 && len(segWords) > overlapWords {
			segWords = segWords[overlapWords:]
		} else if i > 0 {
			segWords = nil
		}
		rebuilt = append(rebuilt, segWords...)
	}

	original := strings.Fields(text)
	if len(rebuilt) != len(original) {
		t.Fatalf("rebuilt word count %d != original %d", len(rebuilt), len(original))
	}
}

func TestSegmentContent_EmptyText(t *testing.T) {
	if segs := SegmentContent("", 100); segs != nil {
		t.Errorf("expected nil segments for empty text, got %v", segs)
	}
}

func TestSegmentContent_ShortTextSingleSegment(t *testing.T) {
	segs := SegmentContent("hello world", 1000)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment for short text, got %d", len(segs))
	}
	if segs[0].BoundaryPreserved {
		t.Errorf("first segment should not be marked BoundaryPreserved")
	}
}

type stubSummarizer struct {
	result string
	err    error
}

func (s stubSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	return s.result, s.err
}

func TestCompressForImmediateUse_FallsBackOnLLMFailure(t *testing.T) {
	svc := NewCompressionService(stubSummarizer{err: errors.New("boom")}, nil)
	result := svc.CompressForImmediateUse(context.Background(), words(300), RolePlanner, CompressionUserInput, 10000, "ctx")
	if result.CompressedText == "" {
		t.Fatalf("expected non-empty fallback text")
	}
	if strings.Contains(result.CompressedText, "boom") {
		t.Errorf("fallback text should not leak the LLM error")
	}
}

func TestCompressForImmediateUse_PlannerUserInput_Truncates(t *testing.T) {
	svc := NewCompressionService(nil, nil)
	maxTokens := 10000
	result := svc.CompressForImmediateUse(context.Background(), words(5000), RolePlanner, CompressionUserInput, maxTokens, "ctx")
	if result.CompTokens >= result.OrigTokens {
		t.Errorf("expected compression to reduce token count: orig=%d comp=%d", result.OrigTokens, result.CompTokens)
	}
}

func TestCompressForImmediateUse_ExecutorToolOutput_WrapsSummary(t *testing.T) {
	svc := NewCompressionService(stubSummarizer{result: "短摘要"}, nil)
	result := svc.CompressForImmediateUse(context.Background(), words(100), RoleExecutor, CompressionToolOutput, 8000, "step 1")
	if !strings.Contains(result.CompressedText, "工具执行结果摘要") {
		t.Errorf("expected tool-output wrapper, got %q", result.CompressedText)
	}
	if !strings.Contains(result.CompressedText, "step 1") {
		t.Errorf("expected step context preserved, got %q", result.CompressedText)
	}
}

func TestProcessLongContentInSegments_EmitsFinalSummary(t *testing.T) {
	svc := NewCompressionService(stubSummarizer{result: "摘要"}, nil)
	var kinds []SegmentRecordKind
	err := svc.ProcessLongContentInSegments(context.Background(), words(2000), 1000, "task", func(evt SegmentEvent) error {
		kinds = append(kinds, evt.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) < 2 {
		t.Fatalf("expected at least one segment record plus a final summary, got %d records", len(kinds))
	}
	if kinds[len(kinds)-1] != FinalSummaryRecord {
		t.Errorf("expected the last record to be FinalSummaryRecord, got %v", kinds[len(kinds)-1])
	}
}
