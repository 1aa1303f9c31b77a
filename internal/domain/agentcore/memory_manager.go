package agentcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MemoryManagerConfig carries the configuration surface spec section 6 names
// for the memory manager's soft bound.
type MemoryManagerConfig struct {
	CleanupThreshold int // default 20
	KeepRecent       int // default 8
}

// DefaultMemoryManagerConfig returns the spec's defaults.
func DefaultMemoryManagerConfig() MemoryManagerConfig {
	return MemoryManagerConfig{CleanupThreshold: 20, KeepRecent: 8}
}

// MemoryManager enforces a soft bound on message count by summarizing a
// contiguous middle range once the count reaches CleanupThreshold.
// Grounded on the teacher's compactMessages
// (internal/domain/service/compaction.go), restructured around the
// spec's exact preserved-set algorithm: [system?, task?, summary, last K].
type MemoryManager struct {
	config     MemoryManagerConfig
	summarizer Summarizer
	logger     *zap.Logger
}

// NewMemoryManager builds a memory manager. summarizer may be nil, in
// which case autoManage falls back to a terse structural summary.
func NewMemoryManager(config MemoryManagerConfig, summarizer Summarizer, logger *zap.Logger) *MemoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryManager{config: config, summarizer: summarizer, logger: logger}
}

// AutoManage compresses memory's middle range when its message count
// reaches the cleanup threshold (or unconditionally when force is true).
// Returns true if it mutated memory. Never removes the index-0 system
// message.
func (m *MemoryManager) AutoManage(ctx context.Context, memory *Memory, role AgentRole, force bool) bool {
	msgs := memory.All()
	if !force && len(msgs) < m.config.CleanupThreshold {
		return false
	}
	if len(msgs) == 0 {
		return false
	}

	systemIdx := -1
	if sysMsg, ok := memory.LatestSystemMessage(); ok {
		systemIdx = 0
		_ = sysMsg
	}

	taskIdx, hasTask := FindTaskMessage(msgs)

	keepRecent := m.config.KeepRecent
	recentStart := len(msgs) - keepRecent
	if recentStart < 0 {
		recentStart = 0
	}

	preserved := make(map[int]bool)
	if systemIdx >= 0 {
		preserved[systemIdx] = true
	}
	if hasTask {
		preserved[taskIdx] = true
	}
	for i := recentStart; i < len(msgs); i++ {
		preserved[i] = true
	}

	var middle []Message
	for i, msg := range msgs {
		if preserved[i] {
			continue
		}
		middle = append(middle, msg)
	}

	if len(middle) == 0 {
		// Nothing to compress in the middle; forced cleanup with no
		// middle range is a no-op beyond what's already preserved.
		return false
	}

	var taskMsg Message
	if hasTask {
		taskMsg = msgs[taskIdx]
	}
	summaryText := m.summarizeMiddle(ctx, middle, taskMsg, hasTask)
	// Tagged assistant, not system: FindLongestCompressibleMessage skips
	// RoleSystem, so a summary tagged system could never be picked up by
	// rung 2 of the recovery ladder once it became the longest message.
	summaryMsg := NewAssistantMessage(fmt.Sprintf("[历史摘要]:\n%s", summaryText), nil)

	result := make([]Message, 0, len(msgs))
	if systemIdx >= 0 {
		result = append(result, msgs[systemIdx])
	}
	if hasTask && taskIdx < recentStart {
		result = append(result, msgs[taskIdx])
	}
	result = append(result, summaryMsg)
	result = append(result, msgs[recentStart:]...)

	memory.Set(result)
	m.logger.Info("memory manager compressed middle range",
		zap.Int("before", len(msgs)),
		zap.Int("after", len(result)),
		zap.Bool("forced", force),
	)
	return true
}

func (m *MemoryManager) summarizeMiddle(ctx context.Context, middle []Message, taskMsg Message, hasTask bool) string {
	if m.summarizer == nil {
		return fmt.Sprintf("共 %d 条历史消息已压缩", len(middle))
	}

	var prompt string
	if hasTask {
		prompt = fmt.Sprintf(
			"任务: %s\n\n请总结以下执行历史，保留关键操作、决策和未解决问题：\n\n%s",
			taskMsg.Content, formatMessagesForPrompt(middle),
		)
	} else {
		prompt = fmt.Sprintf(
			"请总结以下对话历史，保留关键信息：\n\n%s",
			formatMessagesForPrompt(middle),
		)
	}

	summary, err := m.summarizer.Summarize(ctx, prompt)
	if err != nil {
		m.logger.Warn("middle-range summarization failed, using structural fallback", zap.Error(err))
		return fmt.Sprintf("共 %d 条历史消息已压缩（摘要生成失败）", len(middle))
	}
	return summary
}

func formatMessagesForPrompt(msgs []Message) string {
	out := ""
	for _, msg := range msgs {
		out += fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content)
	}
	return out
}

// FindLongestCompressibleMessage scans non-system messages and returns
// the longest one, iff its estimated tokens exceed 0.3*maxTokens. Used
// only by the token-limit recovery path.
func FindLongestCompressibleMessage(memory *Memory, maxTokens int) (int, Role, bool) {
	threshold := int(0.3 * float64(maxTokens))

	longestIdx := -1
	longestTokens := -1
	var longestRole Role

	for i, msg := range memory.All() {
		if msg.Role == RoleSystem {
			continue
		}
		tokens := EstimateTokens(msg.Content)
		if tokens > longestTokens {
			longestTokens = tokens
			longestIdx = i
			longestRole = msg.Role
		}
	}

	if longestIdx == -1 || longestTokens <= threshold {
		return -1, RoleSystem, false
	}
	return longestIdx, longestRole, true
}
