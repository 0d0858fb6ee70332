package chat

import (
	"context"
	"errors"
	"fmt"

	"chatmemory/internal/common"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("chat: record not found")

// Repository 聊天数据访问（Agent、会话、消息、用户设置）
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建仓储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate 迁移聊天相关表
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(Models()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetAgentByID 获取 Agent
func (r *Repository) GetAgentByID(ctx context.Context, id string) (*Agent, error) {
	var agent Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

// GetConversationByID 获取会话
func (r *Repository) GetConversationByID(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// ListMessages 按时间顺序列出普通会话消息
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]Turn, error) {
	var rows []Message
	err := r.db.WithContext(ctx).
		Scopes(common.ByConversation(conversationID), common.ChronologicalOrder()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话消息失败: %w", err)
	}
	turns := make([]Turn, len(rows))
	for i, m := range rows {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// ListAgentMessages 按时间顺序列出 Agent 会话消息
func (r *Repository) ListAgentMessages(ctx context.Context, conversationID string) ([]Turn, error) {
	var rows []AgentMessage
	err := r.db.WithContext(ctx).
		Scopes(common.ByConversation(conversationID), common.ChronologicalOrder()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 Agent 会话消息失败: %w", err)
	}
	turns := make([]Turn, len(rows))
	for i, m := range rows {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// ListConversationTurns 根据会话类型选择消息来源
func (r *Repository) ListConversationTurns(ctx context.Context, conv *Conversation) ([]Turn, error) {
	if conv.IsAgentScoped() {
		return r.ListAgentMessages(ctx, conv.ID)
	}
	return r.ListMessages(ctx, conv.ID)
}

// GetByUserAndCategory 获取用户某分类下的全部设置
func (r *Repository) GetByUserAndCategory(ctx context.Context, userID, category string) ([]UserSetting, error) {
	var settings []UserSetting
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND category = ?", userID, category).
		Order("id ASC").
		Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户设置失败: %w", err)
	}
	return settings, nil
}

// FirstUser 最早创建的用户（仅供已废弃的全局设置兜底使用）
func (r *Repository) FirstUser(ctx context.Context) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// CreateUser 创建用户
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// CreateAgent 创建 Agent
func (r *Repository) CreateAgent(ctx context.Context, agent *Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

// CreateConversation 创建会话
func (r *Repository) CreateConversation(ctx context.Context, conv *Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// AppendMessage 向会话追加一条消息，按会话类型写入对应表
func (r *Repository) AppendMessage(ctx context.Context, conv *Conversation, role, content string) error {
	if conv.IsAgentScoped() {
		return r.db.WithContext(ctx).Create(&AgentMessage{
			ConversationID: conv.ID,
			AgentID:        conv.AgentID,
			Role:           role,
			Content:        content,
		}).Error
	}
	return r.db.WithContext(ctx).Create(&Message{
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
	}).Error
}

// UpsertSetting 写入或覆盖用户设置
func (r *Repository) UpsertSetting(ctx context.Context, userID, category, key, value string) error {
	setting := UserSetting{UserID: userID, Category: category, Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}
