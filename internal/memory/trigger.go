package memory

import (
	"context"
	"errors"

	"chatmemory/internal/chat"
	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"

	"go.uber.org/zap"
)

// TriggerEvaluator 判断会话是否积累了足够的新消息需要摘要
type TriggerEvaluator struct {
	resolver *Resolver
	chats    ChatStore
	store    *Store
	logger   *zap.Logger
}

// NewTriggerEvaluator 创建触发判定器
func NewTriggerEvaluator(resolver *Resolver, chats ChatStore, store *Store, log *zap.Logger) *TriggerEvaluator {
	return &TriggerEvaluator{resolver: resolver, chats: chats, store: store, logger: logger.OrNop(log)}
}

// TriggerState 一次判定的中间结果
type TriggerState struct {
	Settings    Settings
	TotalTurns  int
	LastCovered int
	NewTurns    int
	Threshold   int
	Triggered   bool
}

// ShouldTrigger 无副作用；任何错误都记录日志并返回 false
func (t *TriggerEvaluator) ShouldTrigger(ctx context.Context, conversationID, agentID string) bool {
	state, err := t.Evaluate(ctx, conversationID, agentID)
	if err != nil {
		t.logger.Warn("记忆触发判定失败",
			zap.String("conversation_id", conversationID),
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		metrics.TriggerChecksTotal.WithLabelValues("error").Inc()
		return false
	}
	if state.Triggered {
		metrics.TriggerChecksTotal.WithLabelValues("triggered").Inc()
	} else {
		metrics.TriggerChecksTotal.WithLabelValues("skipped").Inc()
	}
	return state.Triggered
}

// Evaluate 计算判定过程；记忆未启用或会话不存在时返回未触发且无错误
func (t *TriggerEvaluator) Evaluate(ctx context.Context, conversationID, agentID string) (TriggerState, error) {
	var state TriggerState
	if agentID == "" {
		return state, nil
	}

	// 双重开关：创建者的全局设置与 Agent 自身开关都必须开启
	settings, agent := t.resolver.resolveWithAgent(ctx, agentID)
	state.Settings = settings
	if !settings.Enabled || agent == nil || !agent.MemoryEnabled {
		return state, nil
	}

	conv, err := t.chats.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return state, nil
		}
		return state, err
	}

	turns, err := t.chats.ListConversationTurns(ctx, conv)
	if err != nil {
		return state, err
	}

	lastCovered, err := t.store.LastCovered(ctx, conversationID)
	if err != nil {
		return state, err
	}

	state.TotalTurns = len(DialogueTurns(turns))
	state.LastCovered = lastCovered
	state.NewTurns = max(0, state.TotalTurns-lastCovered)
	state.Threshold = settings.Threshold()
	state.Triggered = state.NewTurns >= state.Threshold
	return state, nil
}

// DialogueTurns 仅保留用户与助手消息
func DialogueTurns(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsDialogue() {
			out = append(out, t)
		}
	}
	return out
}
