package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupChatTestDB(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	repo := NewRepository(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func TestRepository_MessageSourceFollowsConversationScope(t *testing.T) {
	ctx := context.Background()
	repo := setupChatTestDB(t)

	owner := &User{Username: "owner"}
	require.NoError(t, repo.CreateUser(ctx, owner))
	agent := &Agent{Name: "助手", UserID: owner.ID, MemoryEnabled: true}
	require.NoError(t, repo.CreateAgent(ctx, agent))

	plain := &Conversation{UserID: owner.ID}
	scoped := &Conversation{UserID: owner.ID, AgentID: agent.ID}
	require.NoError(t, repo.CreateConversation(ctx, plain))
	require.NoError(t, repo.CreateConversation(ctx, scoped))

	require.NoError(t, repo.AppendMessage(ctx, plain, RoleUser, "你好"))
	require.NoError(t, repo.AppendMessage(ctx, scoped, RoleUser, "第一句"))
	require.NoError(t, repo.AppendMessage(ctx, scoped, RoleAssistant, "第二句"))

	turns, err := repo.ListConversationTurns(ctx, scoped)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "第一句", turns[0].Content)
	assert.Equal(t, "第二句", turns[1].Content)

	turns, err = repo.ListConversationTurns(ctx, plain)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.True(t, turns[0].IsDialogue())

	plainFromAgentTable, err := repo.ListAgentMessages(ctx, plain.ID)
	require.NoError(t, err)
	assert.Empty(t, plainFromAgentTable)
}

func TestRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := setupChatTestDB(t)

	_, err := repo.GetAgentByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetConversationByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FirstUser(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpsertSetting(t *testing.T) {
	ctx := context.Background()
	repo := setupChatTestDB(t)

	require.NoError(t, repo.UpsertSetting(ctx, "u1", SettingCategoryMemory, "memory_enabled", "false"))
	require.NoError(t, repo.UpsertSetting(ctx, "u1", SettingCategoryMemory, "memory_enabled", "true"))
	require.NoError(t, repo.UpsertSetting(ctx, "u1", "ui", "theme", "dark"))

	settings, err := repo.GetByUserAndCategory(ctx, "u1", SettingCategoryMemory)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "memory_enabled", settings[0].Key)
	assert.Equal(t, "true", settings[0].Value)
}

func TestRepository_AgentMemoryFlagRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := setupChatTestDB(t)

	disabled := &Agent{Name: "off", UserID: "u1"}
	require.NoError(t, repo.CreateAgent(ctx, disabled))

	got, err := repo.GetAgentByID(ctx, disabled.ID)
	require.NoError(t, err)
	assert.False(t, got.MemoryEnabled)
	assert.Equal(t, "u1", got.UserID)
}
