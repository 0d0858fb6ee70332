package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chatmemory/internal/logger"
	"chatmemory/internal/memory"
	"chatmemory/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEngine struct {
	cleanupErr   error
	retentionErr error
	record       *memory.Record

	retentionAgent string
	processConv    string
	processAgent   string
	processTrace   string
}

func (f *fakeEngine) CleanupExpired(ctx context.Context) (int64, error) {
	return 2, f.cleanupErr
}

func (f *fakeEngine) EnforceRetention(ctx context.Context, agentID string) (int, error) {
	f.retentionAgent = agentID
	return 1, f.retentionErr
}

func (f *fakeEngine) ProcessTurn(ctx context.Context, conversationID, agentID string) *memory.Record {
	f.processConv = conversationID
	f.processAgent = agentID
	f.processTrace = logger.GetTraceID(ctx)
	return f.record
}

func TestMemoryHandler_CleanupExpired(t *testing.T) {
	engine := &fakeEngine{}
	h := NewMemoryHandler(engine, zaptest.NewLogger(t))
	require.NoError(t, h.HandleCleanupExpired(context.Background(), asynq.NewTask(tasks.TypeCleanupExpired, nil)))

	engine.cleanupErr = errors.New("db down")
	assert.ErrorIs(t, h.HandleCleanupExpired(context.Background(), asynq.NewTask(tasks.TypeCleanupExpired, nil)), engine.cleanupErr)
}

func TestMemoryHandler_EnforceRetention(t *testing.T) {
	engine := &fakeEngine{}
	h := NewMemoryHandler(engine, zaptest.NewLogger(t))

	payload, _ := json.Marshal(tasks.EnforceRetentionPayload{AgentID: "agent-1"})
	require.NoError(t, h.HandleEnforceRetention(context.Background(), asynq.NewTask(tasks.TypeEnforceRetention, payload)))
	assert.Equal(t, "agent-1", engine.retentionAgent)

	err := h.HandleEnforceRetention(context.Background(), asynq.NewTask(tasks.TypeEnforceRetention, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	empty, _ := json.Marshal(tasks.EnforceRetentionPayload{})
	err = h.HandleEnforceRetention(context.Background(), asynq.NewTask(tasks.TypeEnforceRetention, empty))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	engine.retentionErr = errors.New("boom")
	err = h.HandleEnforceRetention(context.Background(), asynq.NewTask(tasks.TypeEnforceRetention, payload))
	assert.ErrorIs(t, err, engine.retentionErr)
}

func TestMemoryHandler_ProcessTurn(t *testing.T) {
	engine := &fakeEngine{record: &memory.Record{ID: 9, SourceMessageRange: "1-4"}}
	h := NewMemoryHandler(engine, zaptest.NewLogger(t))

	payload, _ := json.Marshal(tasks.ProcessTurnPayload{ConversationID: "conv-1", AgentID: "agent-1", TraceID: "trace-1"})
	require.NoError(t, h.HandleProcessTurn(context.Background(), asynq.NewTask(tasks.TypeProcessTurn, payload)))
	assert.Equal(t, "conv-1", engine.processConv)
	assert.Equal(t, "agent-1", engine.processAgent)
	assert.Equal(t, "trace-1", engine.processTrace)

	// 未生成记忆也视为成功
	engine.record = nil
	require.NoError(t, h.HandleProcessTurn(context.Background(), asynq.NewTask(tasks.TypeProcessTurn, payload)))
}
