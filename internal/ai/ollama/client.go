package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatmemory/pkg/aiinterface"
)

const defaultBaseURL = "http://localhost:11434"

// OllamaClient Ollama 本地模型客户端
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 创建 Ollama 客户端
func NewClient(config *aiinterface.ClientConfig) (*OllamaClient, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeInvalidParams,
			Message: "Ollama 模型名称不能为空",
		}
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second // 本地推理可能较慢
	}

	return &OllamaClient{
		baseURL: baseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// chatRequest /api/chat 请求体
type chatRequest struct {
	Model    string                `json:"model"`
	Messages []aiinterface.Message `json:"messages"`
	Stream   bool                  `json:"stream"`
	Options  chatOptions           `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatCompletion 对话补全（非流式）
func (c *OllamaClient) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: req.Messages,
		Stream:   false,
		Options: chatOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeNetwork,
			Message: "Ollama API 调用失败",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		errType := aiinterface.ErrorTypeUnknown
		switch {
		case resp.StatusCode >= 500:
			errType = aiinterface.ErrorTypeServerError
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
			errType = aiinterface.ErrorTypeInvalidParams
		}
		return nil, &aiinterface.ClientError{
			Type:    errType,
			Message: fmt.Sprintf("Ollama 返回 HTTP %d", resp.StatusCode),
			Err:     fmt.Errorf("%s", strings.TrimSpace(string(bodyBytes))),
		}
	}

	var ollamaResp OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      "ollama-" + time.Now().Format("20060102150405"),
		Model:   c.model,
		Content: ollamaResp.Message.Content,
		Usage: aiinterface.Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}

// Name 返回客户端名称
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Close 关闭客户端
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// OllamaResponse Ollama API 响应
type OllamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}
