package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"
	"chatmemory/internal/common"
	memsvc "chatmemory/internal/memory"
	"chatmemory/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const reply = `{"summary":"用户在学习 Go 泛型","importantTopics":["泛型"],"keyFacts":[],"preferences":[],"context":"学习"}`

type stubClient struct{}

func (stubClient) ChatCompletion(context.Context, *ai.ChatCompletionRequest) (*ai.ChatCompletionResponse, error) {
	return &ai.ChatCompletionResponse{Content: reply}, nil
}
func (stubClient) Name() string { return "stub" }
func (stubClient) Close() error { return nil }

type stubModels struct{}

func (stubModels) GetClient(context.Context, string) (ai.ModelClient, error) { return stubClient{}, nil }

type stubQueue struct {
	err       error
	turns     []tasks.ProcessTurnPayload
	retention []string
}

func (q *stubQueue) EnqueueProcessTurn(p tasks.ProcessTurnPayload) error {
	q.turns = append(q.turns, p)
	return q.err
}

func (q *stubQueue) EnqueueEnforceRetention(agentID string) error {
	q.retention = append(q.retention, agentID)
	return q.err
}

type testEnv struct {
	router *gin.Engine
	repo   *chat.Repository
	agent  *chat.Agent
	conv   *chat.Conversation
	queue  *stubQueue
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := chat.NewRepository(db)
	require.NoError(t, repo.AutoMigrate())
	store := memsvc.NewStore(db)
	require.NoError(t, store.AutoMigrate())

	owner := &chat.User{Username: "owner"}
	require.NoError(t, repo.CreateUser(ctx, owner))
	agent := &chat.Agent{Name: "helper", UserID: owner.ID, MemoryEnabled: true}
	require.NoError(t, repo.CreateAgent(ctx, agent))
	conv := &chat.Conversation{UserID: owner.ID, AgentID: agent.ID}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	for k, v := range map[string]string{
		memsvc.KeyMemoryEnabled: "true",
		memsvc.KeyMemoryModel:   "ollama:qwen2.5:7b",
		memsvc.KeyTriggerRounds: "1",
	} {
		require.NoError(t, repo.UpsertSetting(ctx, owner.ID, chat.SettingCategoryMemory, k, v))
	}

	svc := memsvc.NewService(repo, store, stubModels{}, memsvc.Options{Locale: memsvc.LocaleZH}, zaptest.NewLogger(t))
	queue := &stubQueue{}
	router := gin.New()
	NewHandler(svc, queue).RegisterRoutes(router.Group("/api"))

	return &testEnv{router: router, repo: repo, agent: agent, conv: conv, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, common.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func (e *testEnv) addTurn(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.repo.AppendMessage(ctx, e.conv, chat.RoleUser, "泛型怎么写？"))
	require.NoError(t, e.repo.AppendMessage(ctx, e.conv, chat.RoleAssistant, "使用类型参数。"))
}

func TestHandler_MemoryLifecycle(t *testing.T) {
	env := setupEnv(t)
	env.addTurn(t)
	convPath := "/api/conversations/" + env.conv.ID

	w, resp := env.do(t, http.MethodPost, convPath+"/memories/process", ProcessTurnRequest{AgentID: env.agent.ID})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["generated"])
	memoryID := uint(data["memory"].(map[string]any)["id"].(float64))

	// 无新消息时不再生成
	_, resp = env.do(t, http.MethodPost, convPath+"/memories/process", ProcessTurnRequest{AgentID: env.agent.ID})
	assert.Equal(t, false, resp.Data.(map[string]any)["generated"])

	w, resp = env.do(t, http.MethodGet, convPath+"/memories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := resp.Data.(map[string]any)
	assert.Len(t, list["memories"], 1)
	assert.Equal(t, float64(1), list["stats"].(map[string]any)["total_memories"])

	w, resp = env.do(t, http.MethodGet, convPath+"/memory-context?agent_id="+env.agent.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp.Data.(map[string]any)["context"], "## 历史对话记忆")
	assert.Contains(t, resp.Data.(map[string]any)["context"], "用户在学习 Go 泛型")

	memPath := fmt.Sprintf("/api/memories/%d", memoryID)
	w, resp = env.do(t, http.MethodPut, memPath, map[string]any{"importance_score": 0.3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.3, resp.Data.(map[string]any)["importance_score"])

	w, resp = env.do(t, http.MethodPut, memPath, map[string]any{"content": map[string]any{"summary": "  "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeMemoryInvalid, resp.Code)

	w, _ = env.do(t, http.MethodDelete, memPath, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = env.do(t, http.MethodGet, memPath, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.CodeMemoryNotFound, resp.Code)
}

func TestHandler_InvalidRequests(t *testing.T) {
	env := setupEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/memories/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/conversations/"+env.conv.ID+"/memory-context", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/conversations/"+env.conv.ID+"/memories/process", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := env.do(t, http.MethodPost, "/api/agents/missing/memories/retention", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.CodeAgentNotFound, resp.Code)

	for _, async := range []bool{false, true} {
		w, resp = env.do(t, http.MethodPost, "/api/conversations/missing/memories/process", ProcessTurnRequest{AgentID: env.agent.ID, Async: async})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, common.CodeConversationAbsent, resp.Code)
	}
	assert.Empty(t, env.queue.turns)
}

func TestHandler_AgentEndpoints(t *testing.T) {
	env := setupEnv(t)

	w, resp := env.do(t, http.MethodGet, "/api/agents/"+env.agent.ID+"/memory-settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	settings := resp.Data.(map[string]any)
	assert.Equal(t, true, settings["memory_enabled"])
	assert.Equal(t, float64(1), settings["memory_trigger_rounds"])

	w, resp = env.do(t, http.MethodGet, "/api/agents/"+env.agent.ID+"/memories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.(map[string]any)["memories"], 0)

	w, resp = env.do(t, http.MethodPost, "/api/agents/"+env.agent.ID+"/memories/retention", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp.Data.(map[string]any)["deleted"])

	w, resp = env.do(t, http.MethodPost, "/api/memories/cleanup-expired", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp.Data.(map[string]any)["deleted"])

	w, resp = env.do(t, http.MethodGet, "/api/memories/stats?agent_id="+env.agent.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp.Data.(map[string]any)["total_memories"])
}

func TestHandler_AsyncDispatch(t *testing.T) {
	env := setupEnv(t)
	convPath := "/api/conversations/" + env.conv.ID

	w, resp := env.do(t, http.MethodPost, convPath+"/memories/process", ProcessTurnRequest{AgentID: env.agent.ID, Async: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]any)["queued"])
	require.Len(t, env.queue.turns, 1)
	assert.Equal(t, env.conv.ID, env.queue.turns[0].ConversationID)

	w, _ = env.do(t, http.MethodPost, "/api/agents/"+env.agent.ID+"/memories/retention?async=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{env.agent.ID}, env.queue.retention)

	env.queue.err = errors.New("redis down")
	w, resp = env.do(t, http.MethodPost, convPath+"/memories/process", ProcessTurnRequest{AgentID: env.agent.ID, Async: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, common.CodeServiceUnavailable, resp.Code)
}
