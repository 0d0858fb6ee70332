package memory

import (
	"context"
	"fmt"
	"strings"

	"chatmemory/internal/logger"

	"go.uber.org/zap"
)

// ContextMemoryLimit 注入上下文的记忆条数
const ContextMemoryLimit = 3

// Composer 生成注入后续对话的记忆上下文块，每轮重新生成，不做缓存
type Composer struct {
	resolver *Resolver
	store    *Store
	locale   Locale
	logger   *zap.Logger
}

// NewComposer 创建上下文组装器
func NewComposer(resolver *Resolver, store *Store, locale Locale, log *zap.Logger) *Composer {
	return &Composer{resolver: resolver, store: store, locale: locale, logger: logger.OrNop(log)}
}

// BuildContextBlock Agent 在所有会话中最新的 3 条记忆；未启用或无记忆时返回空串
func (c *Composer) BuildContextBlock(ctx context.Context, conversationID, agentID string) string {
	if agentID == "" {
		return ""
	}
	settings, agent := c.resolver.resolveWithAgent(ctx, agentID)
	if !settings.Enabled || agent == nil || !agent.MemoryEnabled {
		return ""
	}

	records, err := c.store.ListByAgentNewest(ctx, agentID, ContextMemoryLimit)
	if err != nil {
		c.logger.Warn("加载记忆上下文失败",
			zap.String("conversation_id", conversationID),
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return ""
	}
	return RenderContextBlock(records, c.locale)
}

// RenderContextBlock 每条记忆渲染为 "[Memory <id>] <summary>"
func RenderContextBlock(records []Record, locale Locale) string {
	if len(records) == 0 {
		return ""
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, ContextHeading(locale))
	for i := range records {
		lines = append(lines, fmt.Sprintf("[Memory %d] %s", records[i].ID, records[i].SummaryText()))
	}
	return strings.Join(lines, "\n")
}
