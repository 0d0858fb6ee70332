package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"
	"chatmemory/internal/memory"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type noModels struct{}

func (noModels) GetClient(context.Context, string) (ai.ModelClient, error) {
	return nil, fmt.Errorf("no model in tests")
}

type fixture struct {
	svc   *memory.Service
	store *memory.Store
	agent *chat.Agent
	conv  *chat.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:cli_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := chat.NewRepository(db)
	require.NoError(t, repo.AutoMigrate())
	store := memory.NewStore(db)
	require.NoError(t, store.AutoMigrate())

	owner := &chat.User{Username: "owner"}
	require.NoError(t, repo.CreateUser(ctx, owner))
	agent := &chat.Agent{Name: "helper", UserID: owner.ID, MemoryEnabled: true}
	require.NoError(t, repo.CreateAgent(ctx, agent))
	conv := &chat.Conversation{UserID: owner.ID, AgentID: agent.ID}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	for k, v := range map[string]string{
		memory.KeyMemoryEnabled:    "true",
		memory.KeyTriggerRounds:    "5",
		memory.KeyMaxMemoryEntries: "1",
	} {
		require.NoError(t, repo.UpsertSetting(ctx, owner.ID, chat.SettingCategoryMemory, k, v))
	}

	svc := memory.NewService(repo, store, noModels{}, memory.Options{Locale: memory.LocaleZH}, zaptest.NewLogger(t))
	return &fixture{svc: svc, store: store, agent: agent, conv: conv}
}

func (f *fixture) seed(t *testing.T, rng, summary string, importance float64) uint {
	t.Helper()
	content, err := memory.EncodeContent(memory.Content{Summary: summary})
	require.NoError(t, err)
	agentID := f.agent.ID
	id, err := f.store.Create(context.Background(), &memory.Record{
		ConversationID:     f.conv.ID,
		AgentID:            &agentID,
		Content:            content,
		SourceMessageRange: rng,
		ImportanceScore:    importance,
		TokensSaved:        10,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context, string, string) (*memory.Service, func(), error) {
		return f.svc, func() {}, nil
	}
	cmd := NewRootCmd("test", open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSettingsCommand(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "settings", f.agent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "memory_enabled:        true")
	assert.Contains(t, out, "memory_trigger_rounds: 5")
	assert.Contains(t, out, "max_memory_entries:    1")

	out, err = f.run(t, "settings", f.agent.ID, "--format", "json")
	require.NoError(t, err)
	var settings memory.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	assert.True(t, settings.Enabled)
	assert.Equal(t, 5, settings.TriggerRounds)
}

func TestListCommand(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1-4", "讨论了泛型", 0.5)
	f.seed(t, "5-8", "讨论了并发", 0.8)

	out, err := f.run(t, "list", "--conversation", f.conv.ID)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 3)
	assert.Contains(t, lines[2], "讨论了并发")
	assert.Contains(t, lines[3], "讨论了泛型")
	assert.Contains(t, out, "total_memories:     2")

	out, err = f.run(t, "list", "--agent", f.agent.ID, "-o", "yaml")
	require.NoError(t, err)
	var view listView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	require.Len(t, view.Memories, 2)
	assert.Equal(t, "5-8", view.Memories[0].Range)
	assert.Equal(t, "讨论了并发", view.Memories[0].Content.Summary)
	assert.Equal(t, int64(20), view.Stats.TotalTokensSaved)
}

func TestListCommandRequiresScope(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "list")
	require.Error(t, err)

	_, err = f.run(t, "list", "--conversation", "a", "--agent", "b")
	require.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1-4", "a", 0.4)
	f.seed(t, "5-8", "b", 0.8)

	out, err := f.run(t, "stats", "--agent", f.agent.ID, "--format", "json")
	require.NoError(t, err)
	var stats memory.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.TotalMemories)
	assert.InDelta(t, 0.6, stats.AvgImportance, 1e-9)
}

func TestContextCommand(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "context", f.conv.ID, "--agent", f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "(empty)\n", out)

	id := f.seed(t, "1-4", "用户偏好简洁回答", 0.5)
	out, err = f.run(t, "context", f.conv.ID, "--agent", f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("## 历史对话记忆\n[Memory %d] 用户偏好简洁回答\n", id), out)

	_, err = f.run(t, "context", f.conv.ID)
	require.Error(t, err)
}

func TestProcessCommandBelowThreshold(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "process", f.conv.ID, "--agent", f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "No memory generated.\n", out)
}

func TestEnforceCapCommand(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1-2", "a", 0.5)
	f.seed(t, "3-4", "b", 0.5)
	f.seed(t, "5-6", "c", 0.5)

	// 上限 = max_memory_entries(1) * 默认系数 2
	out, err := f.run(t, "enforce-cap", f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deleted 1 memories beyond the retention cap.\n", out)

	out, err = f.run(t, "enforce-cap", f.agent.ID, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":0}`, out)
}

func TestCleanupExpiredCommand(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "cleanup-expired")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 0 expired memories.\n", out)
}

func TestInvalidFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "stats", "--agent", f.agent.ID, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "你好世…", truncate("你好世界和平", 4))
}
