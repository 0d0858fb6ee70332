package common

import (
	"time"

	"gorm.io/gorm"
)

// ByConversation 按会话ID过滤
// 使用方法：db.Scopes(common.ByConversation(id)).Find(&rows)
func ByConversation(conversationID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("conversation_id = ?", conversationID)
	}
}

// ByAgent 按 Agent ID 过滤
func ByAgent(agentID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("agent_id = ?", agentID)
	}
}

// NotExpired 排除已过期的记录（expires_at 为空视为永不过期）
func NotExpired(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("expires_at IS NULL OR expires_at > ?", now)
	}
}

// NewestFirst 按创建时间倒序，同一时间按主键倒序
func NewestFirst() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC").Order("id DESC")
	}
}

// ChronologicalOrder 按创建时间正序，同一时间按插入顺序
func ChronologicalOrder() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("id ASC")
	}
}
