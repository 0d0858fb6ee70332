package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"chatmemory/internal/config"
	"chatmemory/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueProcessTurn(payload tasks.ProcessTurnPayload) error
	EnqueueEnforceRetention(agentID string) error
	EnqueueCleanupExpired() error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueProcessTurn(payload tasks.ProcessTurnPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeProcessTurn, data)

	// 摘要失败不影响对话，不重试
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(tasks.QueueMemory),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueEnforceRetention(agentID string) error {
	data, err := json.Marshal(tasks.EnforceRetentionPayload{AgentID: agentID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeEnforceRetention, data)
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Queue(tasks.QueueMaintenance),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueCleanupExpired() error {
	task := asynq.NewTask(tasks.TypeCleanupExpired, nil)
	_, err := c.client.Enqueue(task,
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(tasks.QueueMaintenance),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
