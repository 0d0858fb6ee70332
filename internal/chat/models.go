package chat

import (
	"chatmemory/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// SettingCategoryMemory 记忆设置所属分类
const SettingCategoryMemory = "memory"

// User 用户
type User struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	Username string `json:"username" gorm:"size:100;uniqueIndex"`
	common.TimestampModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// BeforeCreate 生成主键
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Agent 智能体，UserID 为创建者；记忆设置归属创建者而非当前对话用户
type Agent struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	Name          string `json:"name" gorm:"size:200"`
	UserID        string `json:"user_id" gorm:"size:36;index"`
	MemoryEnabled bool   `json:"memory_enabled" gorm:"not null"`
	common.TimestampModel
}

// TableName 指定表名
func (Agent) TableName() string { return "agents" }

// BeforeCreate 生成主键
func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Conversation 会话
type Conversation struct {
	ID      string `json:"id" gorm:"primaryKey;size:36"`
	UserID  string `json:"user_id" gorm:"size:36;index"`
	AgentID string `json:"agent_id,omitempty" gorm:"size:36;index"`
	Title   string `json:"title" gorm:"size:255"`
	common.TimestampModel
}

// TableName 指定表名
func (Conversation) TableName() string { return "conversations" }

// BeforeCreate 生成主键
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsAgentScoped 会话是否绑定 Agent（消息存放于 agent_messages）
func (c *Conversation) IsAgentScoped() bool {
	return c.AgentID != ""
}

// Message 普通会话消息
type Message struct {
	ID             uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID string `json:"conversation_id" gorm:"size:36;index"`
	Role           string `json:"role" gorm:"size:20"`
	Content        string `json:"content" gorm:"type:text"`
	common.TimestampModel
}

// TableName 指定表名
func (Message) TableName() string { return "messages" }

// AgentMessage Agent 会话消息，结构与 Message 一致，单独成表
type AgentMessage struct {
	ID             uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID string `json:"conversation_id" gorm:"size:36;index"`
	AgentID        string `json:"agent_id" gorm:"size:36;index"`
	Role           string `json:"role" gorm:"size:20"`
	Content        string `json:"content" gorm:"type:text"`
	common.TimestampModel
}

// TableName 指定表名
func (AgentMessage) TableName() string { return "agent_messages" }

// UserSetting 用户设置键值对，Value 保存原始字符串（可能是 JSON 编码的值）
type UserSetting struct {
	ID       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   string `json:"user_id" gorm:"size:36;uniqueIndex:idx_user_setting"`
	Category string `json:"category" gorm:"size:50;uniqueIndex:idx_user_setting"`
	Key      string `json:"key" gorm:"column:setting_key;size:100;uniqueIndex:idx_user_setting"`
	Value    string `json:"value" gorm:"type:text"`
	common.TimestampModel
}

// TableName 指定表名
func (UserSetting) TableName() string { return "user_settings" }

// Turn 统一的消息视图（不区分来源表）
type Turn struct {
	Role    string
	Content string
}

// IsDialogue 是否为计入记忆窗口的用户/助手消息
func (t Turn) IsDialogue() bool {
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// Models 返回需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Agent{},
		&Conversation{},
		&Message{},
		&AgentMessage{},
		&UserSetting{},
	}
}
