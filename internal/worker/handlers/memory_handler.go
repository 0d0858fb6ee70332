package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"chatmemory/internal/logger"
	"chatmemory/internal/memory"
	"chatmemory/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// MemoryMaintainer 记忆引擎的后台维护能力，便于注入 mock
type MemoryMaintainer interface {
	CleanupExpired(ctx context.Context) (int64, error)
	EnforceRetention(ctx context.Context, agentID string) (int, error)
	ProcessTurn(ctx context.Context, conversationID, agentID string) *memory.Record
}

type MemoryHandler struct {
	engine MemoryMaintainer
	logger *zap.Logger
}

func NewMemoryHandler(engine MemoryMaintainer, log *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		engine: engine,
		logger: logger.OrNop(log),
	}
}

// HandleCleanupExpired 定时清理过期记忆
func (h *MemoryHandler) HandleCleanupExpired(ctx context.Context, _ *asynq.Task) error {
	deleted, err := h.engine.CleanupExpired(ctx)
	if err != nil {
		h.logger.Error("清理过期记忆失败", zap.Error(err))
		return err
	}
	h.logger.Info("过期记忆清理完成", zap.Int64("deleted", deleted))
	return nil
}

// HandleEnforceRetention 执行 Agent 的保留上限
func (h *MemoryHandler) HandleEnforceRetention(ctx context.Context, t *asynq.Task) error {
	var p tasks.EnforceRetentionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w: %w", err, asynq.SkipRetry)
	}
	if p.AgentID == "" {
		return fmt.Errorf("agent_id 不能为空: %w", asynq.SkipRetry)
	}

	deleted, err := h.engine.EnforceRetention(ctx, p.AgentID)
	if err != nil {
		h.logger.Error("执行记忆保留上限失败",
			zap.String("agent_id", p.AgentID),
			zap.Error(err),
		)
		return err
	}
	h.logger.Info("记忆保留上限执行完成",
		zap.String("agent_id", p.AgentID),
		zap.Int("deleted", deleted),
	)
	return nil
}

// HandleProcessTurn 对话消息写入后判定并生成摘要；摘要失败不重试
func (h *MemoryHandler) HandleProcessTurn(ctx context.Context, t *asynq.Task) error {
	var p tasks.ProcessTurnPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w: %w", err, asynq.SkipRetry)
	}
	if p.TraceID != "" {
		ctx = logger.WithTraceID(ctx, p.TraceID)
	}

	record := h.engine.ProcessTurn(ctx, p.ConversationID, p.AgentID)
	if record != nil {
		logger.FromContext(ctx, h.logger).Info("会话记忆已生成",
			zap.String("conversation_id", p.ConversationID),
			zap.Uint("memory_id", record.ID),
			zap.String("range", record.SourceMessageRange),
		)
	}
	return nil
}
