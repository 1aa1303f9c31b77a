package models

import "time"

// AgentMemoryModel is the persisted snapshot of one agent's agentcore.Memory,
// keyed by (agent_id, role). Grounded on MessageModel's single-row-per-key
// layout, with the message list stored as a single JSON blob rather than
// exploded into rows: agentcore.Memory is a small, whole-document value
// that engine.go reads and rewrites in full on every turn.
type AgentMemoryModel struct {
	AgentID   string `gorm:"primaryKey;size:64"`
	Role      string `gorm:"primaryKey;size:32"`
	Messages  string `gorm:"type:text;not null"` // JSON encoded []agentcore.Message
	UpdatedAt time.Time
}

// TableName 指定表名
func (AgentMemoryModel) TableName() string {
	return "agent_memories"
}
