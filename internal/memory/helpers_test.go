package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testModel = "ollama:qwen2.5:7b"

const structuredReply = `{"summary":"User is learning Go generics.","importantTopics":["generics"],"keyFacts":["uses Go 1.22"],"preferences":[],"context":"learning"}`

func setupMemoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memory_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(chat.Models()...))
	require.NoError(t, db.AutoMigrate(&Record{}))
	return db
}

// fakeClient 记录请求并返回固定回复
type fakeClient struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*ai.ChatCompletionRequest
}

func (f *fakeClient) ChatCompletion(_ context.Context, req *ai.ChatCompletionRequest) (*ai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.ChatCompletionResponse{Content: f.reply}, nil
}

func (f *fakeClient) Name() string { return "fake" }
func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) lastRequest() *ai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

type fakeModels struct {
	client *fakeClient
	mu     sync.Mutex
	models []string
}

func (f *fakeModels) GetClient(_ context.Context, model string) (ai.ModelClient, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()
	return f.client, nil
}

type fixture struct {
	db     *gorm.DB
	repo   *chat.Repository
	store  *Store
	svc    *Service
	models *fakeModels
	owner  *chat.User
	agent  *chat.Agent
	conv   *chat.Conversation
	pairs  int
}

func newFixture(t *testing.T, rounds int, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	db := setupMemoryTestDB(t)
	repo := chat.NewRepository(db)
	store := NewStore(db)

	owner := &chat.User{Username: "author"}
	require.NoError(t, repo.CreateUser(ctx, owner))
	agent := &chat.Agent{Name: "tutor", UserID: owner.ID, MemoryEnabled: true}
	require.NoError(t, repo.CreateAgent(ctx, agent))
	conv := &chat.Conversation{UserID: "someone-else", AgentID: agent.ID}
	require.NoError(t, repo.CreateConversation(ctx, conv))

	setOwnerSettings(t, repo, owner.ID, map[string]string{
		KeyMemoryEnabled: "true",
		KeyMemoryModel:   testModel,
		KeyTriggerRounds: fmt.Sprint(rounds),
	})

	models := &fakeModels{client: &fakeClient{reply: structuredReply}}
	if opts.Locale == "" {
		opts.Locale = LocaleEN
	}
	svc := NewService(repo, store, models, opts, zaptest.NewLogger(t))

	return &fixture{db: db, repo: repo, store: store, svc: svc, models: models, owner: owner, agent: agent, conv: conv}
}

func setOwnerSettings(t *testing.T, repo *chat.Repository, userID string, values map[string]string) {
	t.Helper()
	for k, v := range values {
		require.NoError(t, repo.UpsertSetting(context.Background(), userID, chat.SettingCategoryMemory, k, v))
	}
}

// addPairs 追加 n 轮问答，内容带全局序号
func (f *fixture) addPairs(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		f.pairs++
		require.NoError(t, f.repo.AppendMessage(ctx, f.conv, chat.RoleUser, fmt.Sprintf("question-%d", f.pairs)))
		require.NoError(t, f.repo.AppendMessage(ctx, f.conv, chat.RoleAssistant, fmt.Sprintf("answer-%d", f.pairs)))
	}
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Record{}).Where("conversation_id = ?", f.conv.ID).Count(&n).Error)
	return n
}

func (f *fixture) generate(t *testing.T) *Record {
	t.Helper()
	return f.svc.GenerateMemory(context.Background(), GenerateRequest{ConversationID: f.conv.ID, AgentID: f.agent.ID})
}

func strPtr(s string) *string { return &s }
