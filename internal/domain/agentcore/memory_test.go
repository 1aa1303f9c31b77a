package agentcore

import "testing"

func TestMemory_AppendAndAll(t *testing.T) {
	m := NewMemory("you are an agent")
	m.Append(NewUserMessage("hi"))
	m.Append(NewAssistantMessage("hello", nil))

	all := m.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	if all[0].Role != RoleSystem || all[0].Content != "you are an agent" {
		t.Errorf("index 0 should be the system prompt, got %+v", all[0])
	}
}

func TestMemory_RollbackLast(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewUserMessage("hi"))
	m.RollbackLast()
	if m.Len() != 1 {
		t.Fatalf("expected 1 message after rollback, got %d", m.Len())
	}
}

func TestMemory_RollbackLast_Empty(t *testing.T) {
	m := &Memory{}
	m.RollbackLast() // must not panic
	if m.Len() != 0 {
		t.Fatalf("expected 0 messages, got %d", m.Len())
	}
}

func TestMemory_Clear(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewUserMessage("hi"))
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("expected empty memory after Clear, got %d", m.Len())
	}
}

func TestMemory_Compact_OnlyTouchesVolatileToolMessages(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewUserMessage("hi"))
	m.Append(NewToolMessage("c1", "browser_view", "<html>...</html>"))
	m.Append(NewToolMessage("c2", "file_read", "contents of file"))

	m.Compact()

	all := m.All()
	if all[2].Content != compactedSentinel {
		t.Errorf("browser_view content should be replaced, got %q", all[2].Content)
	}
	if all[3].Content != "contents of file" {
		t.Errorf("file_read content should survive compact(), got %q", all[3].Content)
	}
	if all[2].CallID != "c1" || all[2].ToolName != "browser_view" {
		t.Errorf("compact() must preserve callId and name")
	}
}

func TestMemory_Compact_Idempotent(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewToolMessage("c1", "browser_view", "<html>...</html>"))

	m.Compact()
	first := append([]Message(nil), m.All()...)
	m.Compact()
	second := m.All()

	if len(first) != len(second) {
		t.Fatalf("compact() changed message count on second call")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("compact() is not idempotent at index %d: %+v != %+v", i, first[i], second[i])
		}
	}
}

func TestNormalize_TruncatesToolCalls(t *testing.T) {
	msg := NewAssistantMessage("go", []ToolCall{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	got := Normalize(msg)
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].ID != "a" {
		t.Fatalf("Normalize should keep only the first tool call, got %+v", got.ToolCalls)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	msg := NewAssistantMessage("go", []ToolCall{{ID: "a"}, {ID: "b"}})
	once := Normalize(msg)
	twice := Normalize(once)
	if len(twice.ToolCalls) != 1 || twice.ToolCalls[0].ID != once.ToolCalls[0].ID {
		t.Fatalf("Normalize(Normalize(m)) != Normalize(m)")
	}
}

func TestFindTaskMessage_KeywordWins(t *testing.T) {
	msgs := []Message{
		NewSystemMessage("P"),
		NewUserMessage("ok"),
		NewUserMessage("请帮我实现一个功能"),
	}
	idx, ok := FindTaskMessage(msgs)
	if !ok || idx != 2 {
		t.Fatalf("expected task message at index 2, got idx=%d ok=%v", idx, ok)
	}
}

func TestFindTaskMessage_FallsBackToFirstUser(t *testing.T) {
	msgs := []Message{
		NewSystemMessage("P"),
		NewUserMessage("ok"),
		NewUserMessage("still short"),
	}
	idx, ok := FindTaskMessage(msgs)
	if !ok || idx != 1 {
		t.Fatalf("expected fallback to first user message at index 1, got idx=%d ok=%v", idx, ok)
	}
}

func TestFindTaskMessage_NoUserMessage(t *testing.T) {
	msgs := []Message{NewSystemMessage("P")}
	_, ok := FindTaskMessage(msgs)
	if ok {
		t.Fatalf("expected no task message found")
	}
}
