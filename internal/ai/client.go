package ai

import (
	"context"

	"chatmemory/pkg/aiinterface"
)

// 重新导出 aiinterface 包的类型，子包（ollama/openai）只依赖 aiinterface
type (
	Message                = aiinterface.Message
	ChatCompletionRequest  = aiinterface.ChatCompletionRequest
	ChatCompletionResponse = aiinterface.ChatCompletionResponse
	Usage                  = aiinterface.Usage
	ModelClient            = aiinterface.ModelClient
	ClientConfig           = aiinterface.ClientConfig
	ClientError            = aiinterface.ClientError
)

// ModelProvider 按模型标识获取补全客户端
// ClientFactory 实现了该接口，记忆引擎只依赖此接口
type ModelProvider interface {
	GetClient(ctx context.Context, model string) (ModelClient, error)
}
