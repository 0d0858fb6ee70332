package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"
	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// 摘要调用参数，偏向确定性输出
const (
	summaryTemperature = 0.3
	summaryTopP        = 0.8
)

// ErrNoModel 用户与服务配置均未指定摘要模型
var ErrNoModel = errors.New("memory: no summarization model configured")

// GenerateRequest 生成记忆的输入
// Messages 为空时由 Service 从会话加载；Settings 为零值时由 Service 解析
type GenerateRequest struct {
	ConversationID string
	AgentID        string
	Messages       []chat.Turn
	Settings       Settings
}

// SummarizerConfig 摘要流水线配置
type SummarizerConfig struct {
	Locale Locale
	// DefaultModel 用户未配置 memory_model 时使用
	DefaultModel string
	// RetentionSlackFactor 摘要后保留上限 = MaxEntries * RetentionSlackFactor
	RetentionSlackFactor int
	Budget               TranscriptBudget
}

// RetentionCap 摘要后实际执行的保留上限；maxEntries < 1 时按默认条数计算
func (c SummarizerConfig) RetentionCap(maxEntries int) int {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	factor := c.RetentionSlackFactor
	if factor < 1 {
		factor = 1
	}
	return maxEntries * factor
}

// Summarizer 摘要流水线：选取未覆盖的消息、调用模型、解析、评分、写入
type Summarizer struct {
	models    ai.ModelProvider
	store     *Store
	retention *RetentionManager
	cfg       SummarizerConfig
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewSummarizer 创建摘要流水线
func NewSummarizer(models ai.ModelProvider, store *Store, retention *RetentionManager, cfg SummarizerConfig, log *zap.Logger) *Summarizer {
	return &Summarizer{
		models:    models,
		store:     store,
		retention: retention,
		cfg:       cfg,
		logger:    logger.OrNop(log),
		tracer:    otel.Tracer("chatmemory/memory"),
	}
}

// Summarize 执行一次摘要；没有需要摘要的消息时返回 (nil, nil)
func (s *Summarizer) Summarize(ctx context.Context, req GenerateRequest) (record *Record, err error) {
	ctx, span := s.tracer.Start(ctx, "memory.summarize", trace.WithAttributes(
		attribute.String("conversation_id", req.ConversationID),
		attribute.String("agent_id", req.AgentID),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lastCovered, err := s.store.LastCovered(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	dialogue := DialogueTurns(req.Messages)
	total := len(dialogue)
	slice := selectSlice(dialogue, lastCovered, req.Settings.Threshold())
	span.SetAttributes(
		attribute.Int("memory.total_turns", total),
		attribute.Int("memory.last_covered", lastCovered),
		attribute.Int("memory.slice_turns", len(slice)),
	)
	if len(slice) == 0 {
		metrics.SummariesTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	model := req.Settings.Model
	if !req.Settings.HasModel() {
		model = s.cfg.DefaultModel
	}
	if model == "" || model == DefaultModel {
		return nil, ErrNoModel
	}

	client, err := s.models.GetClient(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("获取摘要模型失败: %w", err)
	}

	lines := s.cfg.Budget.Fit(TranscriptLines(slice, s.cfg.Locale))
	resp, err := client.ChatCompletion(ctx, &ai.ChatCompletionRequest{
		Messages: []ai.Message{
			{Role: chat.RoleSystem, Content: SystemPrompt(req.Settings, s.cfg.Locale)},
			{Role: chat.RoleUser, Content: UserPrompt(lines, s.cfg.Locale)},
		},
		Temperature: summaryTemperature,
		TopP:        summaryTopP,
		Stream:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("调用摘要模型失败: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errors.New("摘要模型返回空内容")
	}

	content, parsed := ParseSummary(resp.Content)
	if !parsed {
		s.logger.Warn("摘要输出不是有效的结构化内容，按原文保存",
			zap.String("conversation_id", req.ConversationID),
		)
	}

	data, err := EncodeContent(content)
	if err != nil {
		return nil, err
	}

	rng := MessageRange{Start: 1, End: total}
	if lastCovered > 0 {
		rng.Start = lastCovered + 1
	}

	record = &Record{
		ConversationID:     req.ConversationID,
		MemoryType:         TypeSummary,
		Content:            data,
		SourceMessageRange: rng.String(),
		ImportanceScore:    ScoreImportance(content),
		TokensSaved:        EstimateTokensSaved(charCount(slice), utf8.RuneCountInString(content.Summary)),
	}
	if req.AgentID != "" {
		agentID := req.AgentID
		record.AgentID = &agentID
	}

	if err := s.store.CreateNext(ctx, record, lastCovered); err != nil {
		if errors.Is(err, ErrRangeConflict) {
			metrics.SummariesTotal.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	status := "created"
	if !parsed {
		status = "fallback"
	}
	metrics.SummariesTotal.WithLabelValues(status).Inc()
	metrics.SummarizeDuration.Observe(time.Since(start).Seconds())
	metrics.TokensSavedTotal.Add(float64(record.TokensSaved))
	span.SetAttributes(
		attribute.String("memory.range", record.SourceMessageRange),
		attribute.Float64("memory.importance", record.ImportanceScore),
	)

	s.logger.Info("会话记忆已生成",
		zap.Uint("memory_id", record.ID),
		zap.String("conversation_id", req.ConversationID),
		zap.String("range", record.SourceMessageRange),
		zap.Float64("importance", record.ImportanceScore),
		zap.Int("tokens_saved", record.TokensSaved),
	)

	if req.AgentID != "" && s.retention != nil {
		capacity := s.cfg.RetentionCap(req.Settings.MaxEntries)
		if _, err := s.retention.EnforceCap(ctx, req.AgentID, capacity); err != nil {
			s.logger.Warn("记忆保留上限执行失败", zap.String("agent_id", req.AgentID), zap.Error(err))
		}
	}
	return record, nil
}

// selectSlice 有检查点时取其后的全部消息，首次摘要只取最近 threshold 条
func selectSlice(dialogue []chat.Turn, lastCovered, threshold int) []chat.Turn {
	total := len(dialogue)
	if lastCovered > 0 {
		if lastCovered >= total {
			return nil
		}
		return dialogue[lastCovered:]
	}
	return dialogue[max(0, total-threshold):]
}

func charCount(turns []chat.Turn) int {
	n := 0
	for _, t := range turns {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}
