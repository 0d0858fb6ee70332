package memory

import (
	"context"
	"errors"
	"fmt"

	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"

	"go.uber.org/zap"
)

// ErrInvalidCap 保留上限必须至少为 1
var ErrInvalidCap = errors.New("memory: retention cap must be at least 1")

// RetentionManager 按创建时间保留每个 Agent 最新的 N 条记忆，不考虑重要度
type RetentionManager struct {
	store  *Store
	logger *zap.Logger
}

// NewRetentionManager 创建保留策略
func NewRetentionManager(store *Store, log *zap.Logger) *RetentionManager {
	return &RetentionManager{store: store, logger: logger.OrNop(log)}
}

// EnforceCap 保留最新 maxEntries 条，删除其余，返回删除数量
func (m *RetentionManager) EnforceCap(ctx context.Context, agentID string, maxEntries int) (int, error) {
	if maxEntries < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCap, maxEntries)
	}
	if agentID == "" {
		return 0, nil
	}

	records, err := m.store.ListByAgentNewest(ctx, agentID, 0)
	if err != nil {
		return 0, err
	}
	if len(records) <= maxEntries {
		return 0, nil
	}

	excess := records[maxEntries:]
	ids := make([]uint, len(excess))
	for i, r := range excess {
		ids[i] = r.ID
	}

	deleted, err := m.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	metrics.RetentionDeletedTotal.Add(float64(deleted))
	m.logger.Info("已淘汰超出保留上限的记忆",
		zap.String("agent_id", agentID),
		zap.Int("max_entries", maxEntries),
		zap.Int64("deleted", deleted),
	)
	return int(deleted), nil
}
