package agentcore

import "strings"

// Memory is the ordered sequence of Messages for one (agentId, role)
// pair: an optional leading System message plus the conversation that
// follows. All operations below are synchronous on the in-memory
// representation; callers persist asynchronously through a Memory
// Repository.
type Memory struct {
	messages []Message
}

// NewMemory builds an empty Memory, optionally seeded with a system
// prompt as index 0.
func NewMemory(systemPrompt string) *Memory {
	m := &Memory{}
	if systemPrompt != "" {
		m.messages = append(m.messages, NewSystemMessage(systemPrompt))
	}
	return m
}

// Append adds one message to the tail.
func (m *Memory) Append(msg Message) {
	m.messages = append(m.messages, msg)
}

// AppendMany adds several messages to the tail, in order.
func (m *Memory) AppendMany(msgs []Message) {
	m.messages = append(m.messages, msgs...)
}

// Last returns the tail message, or the zero Message and false if empty.
func (m *Memory) Last() (Message, bool) {
	if len(m.messages) == 0 {
		return Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// All returns the full message sequence. The returned slice must be
// treated as read-only by the caller; mutate through Memory's own
// operations instead.
func (m *Memory) All() []Message {
	return m.messages
}

// Len reports the message count.
func (m *Memory) Len() int {
	return len(m.messages)
}

// RollbackLast drops the tail message. A no-op on an empty Memory.
func (m *Memory) RollbackLast() {
	if len(m.messages) == 0 {
		return
	}
	m.messages = m.messages[:len(m.messages)-1]
}

// Clear drops every message.
func (m *Memory) Clear() {
	m.messages = nil
}

// LatestSystemMessage returns the index-0 System message, if present.
func (m *Memory) LatestSystemMessage() (Message, bool) {
	if len(m.messages) == 0 || m.messages[0].Role != RoleSystem {
		return Message{}, false
	}
	return m.messages[0], true
}

// volatileViewerTools names Tool messages whose content is a volatile
// viewer output (browser view/navigate/screenshot) — low-value, cheap to re-fetch,
// safe to discard from history without shifting indices.
var volatileViewerTools = map[string]bool{
	"browser_view":     true,
	"browser_navigate": true,
	"browser_screenshot": true,
}

const compactedSentinel = "[内容已移除 - 浏览器视图输出]"

// Compact replaces the content of every Tool message whose name
// indicates a volatile viewer output with a removal sentinel, leaving
// callId and name untouched so invariant 3 (every Tool message has a
// matching earlier tool call) still holds. Idempotent: a second call
// makes no further change, since the sentinel content is left alone on
// re-scan.
func (m *Memory) Compact() {
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.Role != RoleTool {
			continue
		}
		if !volatileViewerTools[msg.ToolName] {
			continue
		}
		if msg.Content == compactedSentinel {
			continue
		}
		msg.Content = compactedSentinel
	}
}

// Set replaces the entire message sequence, used by the memory manager
// and recovery ladder once they've computed the new retained memory.
func (m *Memory) Set(msgs []Message) {
	m.messages = msgs
}

// Clone returns a deep-enough copy for safe independent mutation
// (messages themselves are treated as immutable except through Memory's
// own operations, so a shallow slice copy suffices).
func (m *Memory) Clone() *Memory {
	out := &Memory{messages: make([]Message, len(m.messages))}
	copy(out.messages, m.messages)
	return out
}

// FindTaskMessage identifies the task message: the first user message
// that either contains a task keyword or is longer than 50 characters;
// else the first user message, if any.
func FindTaskMessage(msgs []Message) (int, bool) {
	firstUser := -1
	for i, msg := range msgs {
		if msg.Role != RoleUser {
			continue
		}
		if firstUser == -1 {
			firstUser = i
		}
		if containsTaskKeyword(msg.Content) || len([]rune(msg.Content)) > 50 {
			return i, true
		}
	}
	if firstUser != -1 {
		return firstUser, true
	}
	return -1, false
}

var taskKeywords = []string{
	"帮我", "请", "需要", "任务", "目标",
	"help", "please", "need", "task", "goal",
}

func containsTaskKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range taskKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
