package ai

import (
	"context"
	"time"

	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"

	"go.uber.org/zap"
)

// LoggingClient 带日志与指标记录的客户端包装器
type LoggingClient struct {
	client ModelClient
	model  string
	logger *zap.Logger
}

// NewLoggingClient 包装底层客户端；log 为 nil 时只记录指标
func NewLoggingClient(client ModelClient, model string, log *zap.Logger) *LoggingClient {
	return &LoggingClient{
		client: client,
		model:  model,
		logger: logger.OrNop(log),
	}
}

// ChatCompletion 对话补全（记录耗时、Token 用量与错误）
func (c *LoggingClient) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := c.client.ChatCompletion(ctx, req)
	c.logCall(ctx, resp, time.Since(start), err)
	return resp, err
}

// Name 返回客户端名称
func (c *LoggingClient) Name() string {
	return c.client.Name()
}

// Close 关闭客户端
func (c *LoggingClient) Close() error {
	return c.client.Close()
}

// Unwrap 返回底层客户端
func (c *LoggingClient) Unwrap() ModelClient {
	return c.client
}

func (c *LoggingClient) logCall(ctx context.Context, resp *ChatCompletionResponse, latency time.Duration, err error) {
	provider := c.client.Name()
	metrics.ModelCallDuration.WithLabelValues(provider).Observe(latency.Seconds())

	log := logger.FromContext(ctx, c.logger)
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(provider, "error").Inc()
		log.Warn("模型调用失败",
			zap.String("provider", provider),
			zap.String("model", c.model),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return
	}

	metrics.ModelCallsTotal.WithLabelValues(provider, "success").Inc()
	var usage Usage
	if resp != nil {
		usage = resp.Usage
	}
	metrics.ModelTokensTotal.WithLabelValues(provider, "prompt").Add(float64(usage.PromptTokens))
	metrics.ModelTokensTotal.WithLabelValues(provider, "completion").Add(float64(usage.CompletionTokens))

	log.Debug("模型调用完成",
		zap.String("provider", provider),
		zap.String("model", c.model),
		zap.Duration("latency", latency),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)
}
