package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatmemory/internal/chat"
	"chatmemory/internal/config"
	"chatmemory/internal/logger"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// SummaryStyle 摘要风格
type SummaryStyle string

const (
	StyleBrief      SummaryStyle = "brief"
	StyleDetailed   SummaryStyle = "detailed"
	StyleStructured SummaryStyle = "structured"
)

// Valid 是否为合法风格
func (s SummaryStyle) Valid() bool {
	switch s {
	case StyleBrief, StyleDetailed, StyleStructured:
		return true
	}
	return false
}

// 用户设置中的键（分类 "memory"）
const (
	KeyMemoryEnabled      = "memory_enabled"
	KeyMemoryModel        = "memory_model"
	KeyTriggerRounds      = "memory_trigger_rounds"
	KeyMaxMemoryEntries   = "max_memory_entries"
	KeySummaryStyle       = "summary_style"
	KeyMemorySystemPrompt = "memory_system_prompt"
)

// 默认值
const (
	DefaultModel         = "undefined"
	DefaultTriggerRounds = 20
	DefaultMaxEntries    = 10
	DefaultSummaryStyle  = StyleDetailed
)

// Settings 生效的记忆配置
type Settings struct {
	Enabled       bool         `json:"memory_enabled" yaml:"memory_enabled"`
	Model         string       `json:"memory_model" yaml:"memory_model"`
	TriggerRounds int          `json:"memory_trigger_rounds" yaml:"memory_trigger_rounds"`
	MaxEntries    int          `json:"max_memory_entries" yaml:"max_memory_entries"`
	SummaryStyle  SummaryStyle `json:"summary_style" yaml:"summary_style"`
	SystemPrompt  string       `json:"memory_system_prompt" yaml:"memory_system_prompt"`
}

// DefaultSettings 全部默认值，记忆关闭
func DefaultSettings() Settings {
	return Settings{
		Enabled:       false,
		Model:         DefaultModel,
		TriggerRounds: DefaultTriggerRounds,
		MaxEntries:    DefaultMaxEntries,
		SummaryStyle:  DefaultSummaryStyle,
		SystemPrompt:  "",
	}
}

// Threshold 触发摘要所需的新消息数（一轮 = 用户 + 助手两条）
func (s Settings) Threshold() int {
	return s.TriggerRounds * 2
}

// IsZero 调用方未传入设置
func (s Settings) IsZero() bool {
	return s == Settings{}
}

// withDefaults 越界或非法的字段回退为默认值，规则与 DecodeSettings 一致
func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	if s.TriggerRounds < 1 {
		s.TriggerRounds = DefaultTriggerRounds
	}
	if s.MaxEntries < 1 {
		s.MaxEntries = DefaultMaxEntries
	}
	if !s.SummaryStyle.Valid() {
		s.SummaryStyle = DefaultSummaryStyle
	}
	return s
}

// HasModel 是否配置了摘要模型
func (s Settings) HasModel() bool {
	return s.Model != "" && s.Model != DefaultModel
}

// DecodeSettings 将键值对合并到默认配置上；缺失、无法解析或越界的键保留默认值
func DecodeSettings(entries []chat.UserSetting) Settings {
	s := DefaultSettings()
	for _, e := range entries {
		value := unquote(e.Value)
		switch e.Key {
		case KeyMemoryEnabled:
			if b, err := cast.ToBoolE(value); err == nil {
				s.Enabled = b
			}
		case KeyMemoryModel:
			if v := strings.TrimSpace(value); v != "" {
				s.Model = v
			}
		case KeyTriggerRounds:
			if n, err := cast.ToIntE(value); err == nil && n >= 1 {
				s.TriggerRounds = n
			}
		case KeyMaxMemoryEntries:
			if n, err := cast.ToIntE(value); err == nil && n >= 1 {
				s.MaxEntries = n
			}
		case KeySummaryStyle:
			if style := SummaryStyle(strings.TrimSpace(value)); style.Valid() {
				s.SummaryStyle = style
			}
		case KeyMemorySystemPrompt:
			s.SystemPrompt = value
		}
	}
	return s
}

// unquote 设置值可能以 JSON 字符串形式保存（如 "\"brief\""）
func unquote(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s
		}
	}
	return raw
}

// ChatStore 记忆引擎依赖的聊天数据访问
type ChatStore interface {
	GetAgentByID(ctx context.Context, id string) (*chat.Agent, error)
	GetConversationByID(ctx context.Context, id string) (*chat.Conversation, error)
	ListConversationTurns(ctx context.Context, conv *chat.Conversation) ([]chat.Turn, error)
	GetByUserAndCategory(ctx context.Context, userID, category string) ([]chat.UserSetting, error)
}

// Resolver 按 Agent → Agent 创建者 → 默认值 解析记忆配置
type Resolver struct {
	chats    ChatStore
	fallback FallbackSource
	logger   *zap.Logger
}

// NewResolver 创建配置解析器，fallback 可为 nil
func NewResolver(chats ChatStore, fallback FallbackSource, log *zap.Logger) *Resolver {
	if fallback == nil {
		fallback = NoFallback{}
	}
	return &Resolver{chats: chats, fallback: fallback, logger: logger.OrNop(log)}
}

// Resolve 解析 Agent 的记忆配置，任何异常都返回默认配置
func (r *Resolver) Resolve(ctx context.Context, agentID string) Settings {
	settings, _ := r.resolveWithAgent(ctx, agentID)
	return settings
}

// resolveWithAgent 同时返回 Agent 记录，Agent 不存在时为 nil
func (r *Resolver) resolveWithAgent(ctx context.Context, agentID string) (settings Settings, agent *chat.Agent) {
	settings = DefaultSettings()
	if agentID == "" {
		return settings, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("解析记忆配置时发生异常，使用默认配置",
				zap.String("agent_id", agentID),
				zap.Any("panic", rec),
			)
			settings, agent = DefaultSettings(), nil
		}
	}()

	agent, err := r.chats.GetAgentByID(ctx, agentID)
	if err != nil {
		if !errors.Is(err, chat.ErrNotFound) {
			r.logger.Warn("查询 Agent 失败，使用默认记忆配置", zap.String("agent_id", agentID), zap.Error(err))
		}
		return DefaultSettings(), nil
	}

	entries, err := r.chats.GetByUserAndCategory(ctx, agent.UserID, chat.SettingCategoryMemory)
	if err != nil {
		r.logger.Warn("查询用户记忆设置失败，使用默认记忆配置",
			zap.String("agent_id", agentID),
			zap.String("owner_id", agent.UserID),
			zap.Error(err),
		)
		return DefaultSettings(), agent
	}
	return DecodeSettings(entries), agent
}

// ResolveGlobal 解析全局记忆配置
//
// Deprecated: 全局配置不区分 Agent，仅为旧调用方保留；请使用 Resolve。
func (r *Resolver) ResolveGlobal(ctx context.Context) Settings {
	settings, err := r.fallback.FallbackSettings(ctx)
	if err != nil {
		r.logger.Warn("读取全局兜底记忆配置失败，使用默认配置", zap.Error(err))
		return DefaultSettings()
	}
	return settings
}

// FallbackSource 显式的全局兜底配置来源
type FallbackSource interface {
	FallbackSettings(ctx context.Context) (Settings, error)
}

// NoFallback 不提供兜底，始终返回默认配置
type NoFallback struct{}

// FallbackSettings 实现 FallbackSource
func (NoFallback) FallbackSettings(context.Context) (Settings, error) {
	return DefaultSettings(), nil
}

// StaticFallback 来自配置文件的固定兜底配置
type StaticFallback struct {
	Settings Settings
}

// FallbackSettings 实现 FallbackSource
func (f StaticFallback) FallbackSettings(context.Context) (Settings, error) {
	return f.Settings, nil
}

// FirstUserReader 查询最早创建的用户
type FirstUserReader interface {
	FirstUser(ctx context.Context) (*chat.User, error)
	GetByUserAndCategory(ctx context.Context, userID, category string) ([]chat.UserSetting, error)
}

// FirstUserFallback 以最早创建的用户的记忆设置作为全局配置
type FirstUserFallback struct {
	Users FirstUserReader
}

// FallbackSettings 实现 FallbackSource
func (f FirstUserFallback) FallbackSettings(ctx context.Context) (Settings, error) {
	user, err := f.Users.FirstUser(ctx)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("查询首个用户失败: %w", err)
	}
	entries, err := f.Users.GetByUserAndCategory(ctx, user.ID, chat.SettingCategoryMemory)
	if err != nil {
		return Settings{}, fmt.Errorf("查询首个用户的记忆设置失败: %w", err)
	}
	return DecodeSettings(entries), nil
}

// NewFallbackSource 按配置构建兜底来源
func NewFallbackSource(cfg config.FallbackConfig, users FirstUserReader) (FallbackSource, error) {
	switch cfg.Source {
	case "", "none":
		return NoFallback{}, nil
	case "static":
		s := DefaultSettings()
		s.Enabled = cfg.Enabled
		if cfg.Model != "" {
			s.Model = cfg.Model
		}
		if cfg.TriggerRounds >= 1 {
			s.TriggerRounds = cfg.TriggerRounds
		}
		if cfg.MaxEntries >= 1 {
			s.MaxEntries = cfg.MaxEntries
		}
		if style := SummaryStyle(cfg.SummaryStyle); style.Valid() {
			s.SummaryStyle = style
		}
		return StaticFallback{Settings: s}, nil
	case "first_user":
		return FirstUserFallback{Users: users}, nil
	default:
		return nil, fmt.Errorf("不支持的兜底配置来源: %s", cfg.Source)
	}
}
