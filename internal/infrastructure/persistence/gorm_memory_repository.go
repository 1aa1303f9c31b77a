package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/archflow/agentrun/internal/domain/agentcore"
	"github.com/archflow/agentrun/internal/infrastructure/persistence/models"
	domainErrors "github.com/archflow/agentrun/pkg/errors"
)

// GormMemoryRepository is the gorm-backed agentcore.MemoryRepository,
// grounded on GormMessageRepository's Save/FindByID structure but storing
// the whole Memory as one JSON row per (agentID, role) rather than one row
// per message — agentcore.Memory.Set rewrites its slice wholesale on every
// compaction, so row-per-message would require a delete-then-reinsert on
// every turn anyway.
type GormMemoryRepository struct {
	db *gorm.DB
}

// NewGormMemoryRepository creates a gorm memory repository.
func NewGormMemoryRepository(db *gorm.DB) *GormMemoryRepository {
	return &GormMemoryRepository{db: db}
}

// Get returns nil, nil when no row exists yet — engine.go's loadMemory
// seeds a fresh Memory with the configured system prompt in that case.
func (r *GormMemoryRepository) Get(ctx context.Context, agentID string, role agentcore.AgentRole) (*agentcore.Memory, error) {
	var model models.AgentMemoryModel
	err := r.db.WithContext(ctx).
		First(&model, "agent_id = ? AND role = ?", agentID, role.String()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domainErrors.NewInternalError("failed to load agent memory: " + err.Error())
	}

	var msgs []agentcore.Message
	if err := json.Unmarshal([]byte(model.Messages), &msgs); err != nil {
		return nil, domainErrors.NewInternalError("failed to unmarshal agent memory: " + err.Error())
	}

	mem := agentcore.NewMemory("")
	mem.Set(msgs)
	return mem, nil
}

// Save upserts the full message slice for (agentID, role).
func (r *GormMemoryRepository) Save(ctx context.Context, agentID string, role agentcore.AgentRole, memory *agentcore.Memory) error {
	payload, err := json.Marshal(memory.All())
	if err != nil {
		return domainErrors.NewInternalError("failed to marshal agent memory: " + err.Error())
	}

	model := &models.AgentMemoryModel{
		AgentID:  agentID,
		Role:     role.String(),
		Messages: string(payload),
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to save agent memory: " + err.Error())
	}
	return nil
}
