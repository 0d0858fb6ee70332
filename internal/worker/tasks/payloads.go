package tasks

// Task Types
const (
	TypeCleanupExpired   = "memory:cleanup_expired"
	TypeEnforceRetention = "memory:enforce_retention"
	TypeProcessTurn      = "memory:process_turn"
)

// Queues
const (
	QueueMemory      = "memory"
	QueueMaintenance = "maintenance"
)

// EnforceRetentionPayload 按 Agent 执行保留上限
type EnforceRetentionPayload struct {
	AgentID string `json:"agent_id"`
}

// ProcessTurnPayload 对话消息写入后的异步摘要任务
type ProcessTurnPayload struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	TraceID        string `json:"trace_id,omitempty"`
}
