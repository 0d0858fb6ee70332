package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chatmemory/internal/ai/ollama"
	"chatmemory/internal/ai/openai"
	"chatmemory/internal/config"
	"chatmemory/internal/logger"

	"go.uber.org/zap"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ClientFactory 模型客户端工厂
// 模型标识格式: "<provider>:<model>" 或直接 "<model>"（使用默认提供商）
// 例如 "openai:gpt-4o-mini"、"ollama:qwen2.5:7b"、"qwen2.5:7b"
type ClientFactory struct {
	cfg     config.AIConfig
	clients map[string]ModelClient // 客户端缓存
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewClientFactory 创建客户端工厂，返回的客户端均带调用日志与指标
func NewClientFactory(cfg config.AIConfig, log *zap.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:     cfg,
		clients: make(map[string]ModelClient),
		logger:  logger.OrNop(log).Named("ai"),
	}
}

// GetClient 获取模型客户端
func (f *ClientFactory) GetClient(ctx context.Context, model string) (ModelClient, error) {
	provider, name := f.splitModel(model)
	if name == "" {
		return nil, fmt.Errorf("模型标识不能为空")
	}

	cacheKey := provider + ":" + name
	f.mu.RLock()
	if client, ok := f.clients[cacheKey]; ok {
		f.mu.RUnlock()
		return client, nil
	}
	f.mu.RUnlock()

	raw, err := f.createClient(provider, name)
	if err != nil {
		return nil, fmt.Errorf("创建客户端失败: %w", err)
	}
	client := NewLoggingClient(raw, cacheKey, f.logger)

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.clients[cacheKey]; ok {
		_ = client.Close()
		return existing, nil
	}
	f.clients[cacheKey] = client
	return client, nil
}

// Close 关闭所有缓存的客户端
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, client := range f.clients {
		_ = client.Close()
		delete(f.clients, key)
	}
	return nil
}

// splitModel 拆分提供商前缀；ollama 模型名本身带冒号，只识别已知前缀
func (f *ClientFactory) splitModel(model string) (provider, name string) {
	model = strings.TrimSpace(model)
	if idx := strings.Index(model, ":"); idx > 0 {
		prefix := strings.ToLower(model[:idx])
		if prefix == ProviderOllama || prefix == ProviderOpenAI {
			return prefix, strings.TrimSpace(model[idx+1:])
		}
	}

	provider = strings.ToLower(f.cfg.DefaultProvider)
	if provider == "" {
		provider = ProviderOllama
	}
	return provider, model
}

func (f *ClientFactory) createClient(provider, model string) (ModelClient, error) {
	switch provider {
	case ProviderOllama:
		return ollama.NewClient(&ClientConfig{
			Provider: provider,
			Model:    model,
			BaseURL:  f.cfg.Ollama.BaseURL,
			Timeout:  f.cfg.Ollama.TimeoutSeconds,
		})
	case ProviderOpenAI:
		return openai.NewClient(&ClientConfig{
			Provider:   provider,
			Model:      model,
			APIKey:     f.cfg.OpenAI.APIKey,
			BaseURL:    f.cfg.OpenAI.BaseURL,
			OrgID:      f.cfg.OpenAI.OrgID,
			MaxRetries: f.cfg.OpenAI.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("不支持的模型提供商: %s", provider)
	}
}
