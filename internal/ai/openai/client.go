package openai

import (
	"context"
	"strings"
	"time"

	"chatmemory/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器（兼容所有 OpenAI 协议的服务）
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    config.Model,
		maxRetries: maxRetries,
	}, nil
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   req.MaxTokens,
	}

	// 调用 API（带指数退避重试）
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil || !isRetryableError(err) {
			break
		}
		if i < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, wrapError(ctx.Err())
			case <-time.After(time.Duration(1<<uint(i)) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// Close OpenAI 客户端无需显式关闭
func (c *Client) Close() error {
	return nil
}

func isRetryableError(err error) bool {
	return classify(err) != aiinterface.ErrorTypeAuth &&
		classify(err) != aiinterface.ErrorTypeInvalidParams &&
		classify(err) != aiinterface.ErrorTypeUnknown
}

func classify(err error) aiinterface.ErrorType {
	msg := strings.ToLower(err.Error())
	hasAny := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny("401", "403"):
		return aiinterface.ErrorTypeAuth
	case hasAny("rate limit", "429"):
		return aiinterface.ErrorTypeRateLimit
	case hasAny("400", "invalid"):
		return aiinterface.ErrorTypeInvalidParams
	case hasAny("500", "502", "503", "504"):
		return aiinterface.ErrorTypeServerError
	case hasAny("timeout", "connection", "deadline"):
		return aiinterface.ErrorTypeNetwork
	default:
		return aiinterface.ErrorTypeUnknown
	}
}

func wrapError(err error) *aiinterface.ClientError {
	return &aiinterface.ClientError{
		Type:    classify(err),
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
