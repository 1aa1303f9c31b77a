package agentcore

import "context"

// MemoryRepository is the external Memory Repository collaborator from
// spec section 6: get/save keyed by (agentId, role). Save must be atomic with
// respect to a given memory; the engine awaits it before yielding an
// event so crash-restart observes a coherent state.
type MemoryRepository interface {
	Get(ctx context.Context, agentID string, role AgentRole) (*Memory, error)
	Save(ctx context.Context, agentID string, role AgentRole, memory *Memory) error
}
