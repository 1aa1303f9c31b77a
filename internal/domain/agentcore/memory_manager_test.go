package agentcore

import (
	"context"
	"testing"
)

func buildLongMemory(n int) *Memory {
	m := NewMemory("P")
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			m.Append(NewUserMessage("short message"))
		} else {
			m.Append(NewAssistantMessage("short reply", nil))
		}
	}
	return m
}

func TestAutoManage_NoopBelowThreshold(t *testing.T) {
	mgr := NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil)
	m := buildLongMemory(10) // 1 system + 10 < 20
	before := append([]Message(nil), m.All()...)

	changed := mgr.AutoManage(context.Background(), m, RoleExecutor, false)
	if changed {
		t.Fatalf("expected AutoManage to be a no-op below cleanupThreshold")
	}
	if len(m.All()) != len(before) {
		t.Fatalf("memory length changed on a no-op call")
	}
}

func TestAutoManage_ReducesLengthAndKeepsSystem(t *testing.T) {
	mgr := NewMemoryManager(DefaultMemoryManagerConfig(), nil, nil)
	m := buildLongMemory(25) // 1 system + 25 = 26 messages

	changed := mgr.AutoManage(context.Background(), m, RoleExecutor, false)
	if !changed {
		t.Fatalf("expected AutoManage to compress once the threshold is reached")
	}

	all := m.All()
	if len(all) > mgr.config.KeepRecent+3 {
		t.Fatalf("expected at most keepRecent+3 = %d messages, got %d", mgr.config.KeepRecent+3, len(all))
	}
	if all[0].Role != RoleSystem {
		t.Fatalf("index 0 must remain the system message")
	}
}

// Regression: the compressed summary must be tagged assistant, not
// system, or it becomes permanently invisible to rung 2 of the recovery
// ladder (FindLongestCompressibleMessage skips RoleSystem) once it is
// itself the longest message left in memory.
func TestAutoManage_SummaryIsAssistantTaggedAndFindable(t *testing.T) {
	mgr := NewMemoryManager(DefaultMemoryManagerConfig(), stubSummarizer{result: words(5000)}, nil)
	m := buildLongMemory(25)

	if !mgr.AutoManage(context.Background(), m, RoleExecutor, false) {
		t.Fatalf("expected AutoManage to compress once the threshold is reached")
	}

	all := m.All()
	var summaryIdx = -1
	for i, msg := range all {
		if msg.Role == RoleAssistant && len(msg.Content) > 1000 {
			summaryIdx = i
			break
		}
	}
	if summaryIdx == -1 {
		t.Fatalf("expected to find the long summary message tagged assistant, got %+v", all)
	}

	idx, role, found := FindLongestCompressibleMessage(m, 1000) // 0.3*1000=300
	if !found {
		t.Fatalf("expected the summary message to be selectable for further compression")
	}
	if idx != summaryIdx {
		t.Fatalf("expected FindLongestCompressibleMessage to select the summary at %d, got %d", summaryIdx, idx)
	}
	if role != RoleAssistant {
		t.Errorf("expected RoleAssistant, got %v", role)
	}
}

func TestFindLongestCompressibleMessage_ExceedsThreshold(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewUserMessage(words(2000))) // long
	m.Append(NewUserMessage("short"))

	idx, role, found := FindLongestCompressibleMessage(m, 1000) // 0.3*1000=300
	if !found {
		t.Fatalf("expected the long message to be found")
	}
	if idx != 1 { // index 0 is system, index 1 is the long user message
		t.Errorf("expected index 1, got %d", idx)
	}
	if role != RoleUser {
		t.Errorf("expected RoleUser, got %v", role)
	}
}

func TestFindLongestCompressibleMessage_NoneExceedsThreshold(t *testing.T) {
	m := NewMemory("P")
	m.Append(NewUserMessage("short"))

	_, _, found := FindLongestCompressibleMessage(m, 100000)
	if found {
		t.Fatalf("expected no message to exceed the threshold")
	}
}
