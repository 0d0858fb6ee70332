package memory

import (
	"context"
	"errors"
	"strings"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"
	"chatmemory/internal/common"
	"chatmemory/internal/config"
	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"

	"go.uber.org/zap"
)

// Options 记忆引擎选项
type Options struct {
	Locale               Locale
	DefaultModel         string
	RetentionSlackFactor int
	Budget               TranscriptBudget
	Fallback             FallbackSource
	Locker               Locker
}

// OptionsFromConfig 由配置构建选项（Fallback、Locker、Budget.Counter 需调用方另行注入）
func OptionsFromConfig(cfg config.MemoryConfig) Options {
	return Options{
		Locale:               ParseLocale(cfg.Locale),
		DefaultModel:         cfg.DefaultModel,
		RetentionSlackFactor: cfg.RetentionSlackFactor,
		Budget:               TranscriptBudget{MaxTokens: cfg.MaxTranscriptTokens},
	}
}

// Service 会话记忆引擎对外接口
//
// ShouldTriggerMemory、GenerateMemory、GetMemoryContext、ProcessTurn 为对话流程的旁路调用，
// 任何失败都只记录日志，不影响当前对话；管理接口返回 *common.BusinessError。
type Service struct {
	chats      ChatStore
	store      *Store
	resolver   *Resolver
	trigger    *TriggerEvaluator
	summarizer *Summarizer
	retention  *RetentionManager
	composer   *Composer
	locker     Locker
	cfg        SummarizerConfig
	logger     *zap.Logger
}

// NewService 组装记忆引擎
func NewService(chats ChatStore, store *Store, models ai.ModelProvider, opts Options, log *zap.Logger) *Service {
	log = logger.OrNop(log).Named("memory")
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Locale == "" {
		opts.Locale = LocaleZH
	}
	if opts.RetentionSlackFactor < 1 {
		opts.RetentionSlackFactor = 2
	}

	cfg := SummarizerConfig{
		Locale:               opts.Locale,
		DefaultModel:         opts.DefaultModel,
		RetentionSlackFactor: opts.RetentionSlackFactor,
		Budget:               opts.Budget,
	}
	resolver := NewResolver(chats, opts.Fallback, log)
	retention := NewRetentionManager(store, log)

	return &Service{
		chats:      chats,
		store:      store,
		resolver:   resolver,
		trigger:    NewTriggerEvaluator(resolver, chats, store, log),
		summarizer: NewSummarizer(models, store, retention, cfg, log),
		retention:  retention,
		composer:   NewComposer(resolver, store, opts.Locale, log),
		locker:     opts.Locker,
		cfg:        cfg,
		logger:     log,
	}
}

// Store 底层存储
func (s *Service) Store() *Store { return s.store }

// ResolveSettings 解析 Agent 的生效配置
func (s *Service) ResolveSettings(ctx context.Context, agentID string) Settings {
	return s.resolver.Resolve(ctx, agentID)
}

// ResolveGlobalSettings 全局兜底配置
//
// Deprecated: 请使用 ResolveSettings。
func (s *Service) ResolveGlobalSettings(ctx context.Context) Settings {
	return s.resolver.ResolveGlobal(ctx)
}

// ShouldTriggerMemory 判断是否需要摘要
func (s *Service) ShouldTriggerMemory(ctx context.Context, conversationID, agentID string) bool {
	return s.trigger.ShouldTrigger(ctx, conversationID, agentID)
}

// EvaluateTrigger 返回判定过程的详细信息
func (s *Service) EvaluateTrigger(ctx context.Context, conversationID, agentID string) (TriggerState, error) {
	return s.trigger.Evaluate(ctx, conversationID, agentID)
}

// GenerateMemory 按会话串行执行一次摘要，失败或无可摘要内容时返回 nil
func (s *Service) GenerateMemory(ctx context.Context, req GenerateRequest) *Record {
	unlock, err := s.locker.Lock(ctx, LockKey(req.ConversationID))
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("获取会话锁失败，跳过本次摘要",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return nil
	}
	defer unlock()
	return s.generate(ctx, req)
}

// ProcessTurn 对话消息持久化后调用：加锁后判定，满足条件则摘要
func (s *Service) ProcessTurn(ctx context.Context, conversationID, agentID string) *Record {
	if agentID == "" {
		return nil
	}
	unlock, err := s.locker.Lock(ctx, LockKey(conversationID))
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("获取会话锁失败，跳过本次摘要",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}
	defer unlock()

	if !s.trigger.ShouldTrigger(ctx, conversationID, agentID) {
		return nil
	}
	return s.generate(ctx, GenerateRequest{ConversationID: conversationID, AgentID: agentID})
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) *Record {
	log := logger.FromContext(ctx, s.logger).With(
		zap.String("conversation_id", req.ConversationID),
		zap.String("agent_id", req.AgentID),
	)

	if req.Settings.IsZero() {
		req.Settings = s.resolver.Resolve(ctx, req.AgentID)
	}
	req.Settings = req.Settings.withDefaults()

	if len(req.Messages) == 0 {
		conv, err := s.chats.GetConversationByID(ctx, req.ConversationID)
		if err != nil {
			if !errors.Is(err, chat.ErrNotFound) {
				log.Warn("加载会话失败，跳过本次摘要", zap.Error(err))
			}
			return nil
		}
		turns, err := s.chats.ListConversationTurns(ctx, conv)
		if err != nil {
			log.Warn("加载会话消息失败，跳过本次摘要", zap.Error(err))
			return nil
		}
		req.Messages = turns
	}

	record, err := s.summarizer.Summarize(ctx, req)
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, ErrRangeConflict) {
			log.Info("会话检查点已被推进，放弃本次摘要")
		} else {
			log.Error("生成会话记忆失败", zap.Error(err))
		}
		return nil
	}
	return record
}

// RequireConversation 会话不存在时返回 CodeConversationAbsent
func (s *Service) RequireConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return common.NewBusinessError(common.CodeInvalidRequest, "会话ID不能为空")
	}
	if _, err := s.chats.GetConversationByID(ctx, conversationID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return common.NewBusinessErrorWithCode(common.CodeConversationAbsent)
		}
		return s.internalError(ctx, "查询会话失败", err)
	}
	return nil
}

// GetMemoryContext 生成注入提示词的记忆上下文块
func (s *Service) GetMemoryContext(ctx context.Context, conversationID, agentID string) string {
	return s.composer.BuildContextBlock(ctx, conversationID, agentID)
}

// ============================================================================
// 管理接口
// ============================================================================

// UpdateMemoryRequest 编辑记忆
type UpdateMemoryRequest struct {
	Content         *Content    `json:"content,omitempty"`
	ImportanceScore *float64    `json:"importance_score,omitempty"`
	MemoryType      *MemoryType `json:"memory_type,omitempty"`
}

// Validate 校验编辑请求
func (r *UpdateMemoryRequest) Validate() error {
	if r.Content == nil && r.ImportanceScore == nil && r.MemoryType == nil {
		return common.NewBusinessError(common.CodeInvalidRequest, "至少需要提供一个更新字段")
	}
	if r.Content != nil && strings.TrimSpace(r.Content.Summary) == "" {
		return common.NewBusinessError(common.CodeMemoryInvalid, "记忆内容不能为空")
	}
	if r.ImportanceScore != nil && (*r.ImportanceScore < 0 || *r.ImportanceScore > 1) {
		return common.NewBusinessError(common.CodeMemoryInvalid, "重要度必须在 0 到 1 之间")
	}
	if r.MemoryType != nil && !r.MemoryType.Valid() {
		return common.NewBusinessError(common.CodeMemoryInvalid, "记忆类型必须是 summary、context 或 important")
	}
	return nil
}

// MemoryList 记忆列表与统计
type MemoryList struct {
	Memories []Record `json:"memories" yaml:"memories"`
	Stats    Stats    `json:"stats" yaml:"stats"`
}

func (s *Service) internalError(ctx context.Context, msg string, err error) error {
	logger.FromContext(ctx, s.logger).Error(msg, zap.Error(err))
	return common.NewBusinessError(common.CodeInternalError, msg)
}

// GetMemory 获取单条记忆
func (s *Service) GetMemory(ctx context.Context, id uint) (*Record, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMemoryNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeMemoryNotFound)
		}
		return nil, s.internalError(ctx, "查询记忆失败", err)
	}
	return record, nil
}

// UpdateMemory 编辑记忆内容、重要度或类型
func (s *Service) UpdateMemory(ctx context.Context, id uint, req UpdateMemoryRequest) (*Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, id, UpdateFields{
		Content:         req.Content,
		ImportanceScore: req.ImportanceScore,
		MemoryType:      req.MemoryType,
	})
	if err != nil {
		return nil, s.internalError(ctx, "更新记忆失败", err)
	}
	if !updated {
		return nil, common.NewBusinessErrorWithCode(common.CodeMemoryNotFound)
	}
	return s.GetMemory(ctx, id)
}

// DeleteMemory 删除单条记忆
func (s *Service) DeleteMemory(ctx context.Context, id uint) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return s.internalError(ctx, "删除记忆失败", err)
	}
	if !deleted {
		return common.NewBusinessErrorWithCode(common.CodeMemoryNotFound)
	}
	return nil
}

// ListConversationMemories 会话记忆列表与统计
func (s *Service) ListConversationMemories(ctx context.Context, conversationID string) (*MemoryList, error) {
	if conversationID == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "会话ID不能为空")
	}
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, s.internalError(ctx, "查询会话记忆失败", err)
	}
	return &MemoryList{Memories: records, Stats: StatsOf(records)}, nil
}

// ListAgentMemories Agent 记忆列表与统计
func (s *Service) ListAgentMemories(ctx context.Context, agentID string) (*MemoryList, error) {
	if agentID == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "Agent ID不能为空")
	}
	records, err := s.store.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, s.internalError(ctx, "查询 Agent 记忆失败", err)
	}
	return &MemoryList{Memories: records, Stats: StatsOf(records)}, nil
}

// ClearConversationMemories 清空会话记忆，返回是否删除了记录
func (s *Service) ClearConversationMemories(ctx context.Context, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, common.NewBusinessError(common.CodeInvalidRequest, "会话ID不能为空")
	}
	deleted, err := s.store.DeleteAllForConversation(ctx, conversationID)
	if err != nil {
		return false, s.internalError(ctx, "清空会话记忆失败", err)
	}
	return deleted, nil
}

// CleanupExpired 删除过期记忆
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, s.internalError(ctx, "清理过期记忆失败", err)
	}
	metrics.ExpiredDeletedTotal.Add(float64(count))
	if count > 0 {
		logger.FromContext(ctx, s.logger).Info("已清理过期记忆", zap.Int64("deleted", count))
	}
	return count, nil
}

// EnforceRetention 按 Agent 创建者的设置执行保留上限（与摘要后使用的上限一致）
func (s *Service) EnforceRetention(ctx context.Context, agentID string) (int, error) {
	if agentID == "" {
		return 0, common.NewBusinessError(common.CodeInvalidRequest, "Agent ID不能为空")
	}
	settings, agent := s.resolver.resolveWithAgent(ctx, agentID)
	if agent == nil {
		return 0, common.NewBusinessErrorWithCode(common.CodeAgentNotFound)
	}
	deleted, err := s.retention.EnforceCap(ctx, agentID, s.cfg.RetentionCap(settings.MaxEntries))
	if err != nil {
		return 0, s.internalError(ctx, "执行记忆保留上限失败", err)
	}
	return deleted, nil
}

// Stats 按会话或 Agent 统计
func (s *Service) Stats(ctx context.Context, filter StatsFilter) (Stats, error) {
	stats, err := s.store.Stats(ctx, filter)
	if err != nil {
		return Stats{}, s.internalError(ctx, "统计记忆失败", err)
	}
	return stats, nil
}
