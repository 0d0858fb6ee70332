package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, store *Store, conv, agent string, start, end int, importance float64, createdAt time.Time) *Record {
	t.Helper()
	r := &Record{
		ConversationID:     conv,
		Content:            mustEncode(t, Content{Summary: MessageRange{Start: start, End: end}.String()}),
		SourceMessageRange: MessageRange{Start: start, End: end}.String(),
		ImportanceScore:    importance,
		CreatedAt:          createdAt,
	}
	if agent != "" {
		r.AgentID = strPtr(agent)
	}
	_, err := store.Create(context.Background(), r)
	require.NoError(t, err)
	return r
}

func TestStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupMemoryTestDB(t))
	base := time.Now().Add(-time.Hour)

	low := seedRecord(t, store, "c1", "a1", 1, 2, 0.5, base)
	highOld := seedRecord(t, store, "c1", "a1", 3, 4, 0.9, base.Add(time.Minute))
	highNew := seedRecord(t, store, "c1", "a1", 5, 6, 0.9, base.Add(2*time.Minute))
	other := seedRecord(t, store, "c2", "a1", 1, 2, 0.7, base)

	records, err := store.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []uint{highNew.ID, highOld.ID, low.ID}, ids(records))

	records, err = store.ListByAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []uint{highNew.ID, highOld.ID, other.ID, low.ID}, ids(records))

	latest, err := store.LatestForConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, highNew.ID, latest.ID)

	covered, err := store.LastCovered(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 6, covered)

	none, err := store.LatestForConversation(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_CreateNextDetectsStaleCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupMemoryTestDB(t))

	first := &Record{ConversationID: "c1", Content: mustEncode(t, Content{Summary: "a"}), SourceMessageRange: "1-4"}
	require.NoError(t, store.CreateNext(ctx, first, 0))
	assert.Equal(t, TypeSummary, first.MemoryType)

	stale := &Record{ConversationID: "c1", Content: mustEncode(t, Content{Summary: "b"}), SourceMessageRange: "1-6"}
	assert.ErrorIs(t, store.CreateNext(ctx, stale, 0), ErrRangeConflict)

	next := &Record{ConversationID: "c1", Content: mustEncode(t, Content{Summary: "c"}), SourceMessageRange: "5-8"}
	require.NoError(t, store.CreateNext(ctx, next, 4))

	dup := &Record{ConversationID: "c1", Content: mustEncode(t, Content{Summary: "d"}), SourceMessageRange: "5-9"}
	_, err := store.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrRangeConflict)

	records, err := store.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_ExpiryHandling(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupMemoryTestDB(t))

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	expired := seedRecord(t, store, "c1", "a1", 1, 2, 0.5, time.Now())
	require.NoError(t, store.db.Model(expired).Update("expires_at", past).Error)
	alive := seedRecord(t, store, "c1", "a1", 3, 4, 0.5, time.Now())
	require.NoError(t, store.db.Model(alive).Update("expires_at", future).Error)
	forever := seedRecord(t, store, "c1", "a1", 5, 6, 0.5, time.Now())

	active, err := store.ListActive(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{alive.ID, forever.ID}, ids(active))

	all, err := store.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrMemoryNotFound)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupMemoryTestDB(t))
	r := seedRecord(t, store, "c1", "a1", 1, 2, 0.5, time.Now())

	ok, err := store.Update(ctx, r.ID, UpdateFields{Content: &Content{Summary: "new"}})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.SummaryText())

	ok, err = store.Update(ctx, 424242, UpdateFields{ImportanceScore: ptrFloat(0.1)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DeleteAllForConversation(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupMemoryTestDB(t))

	empty, err := store.Stats(ctx, StatsFilter{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	a := seedRecord(t, store, "c1", "a1", 1, 2, 0.5, time.Now())
	b := seedRecord(t, store, "c1", "a1", 3, 4, 0.7, time.Now())
	require.NoError(t, store.db.Model(a).Update("tokens_saved", 10).Error)
	require.NoError(t, store.db.Model(b).Update("tokens_saved", 30).Error)

	stats, err := store.Stats(ctx, StatsFilter{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMemories)
	assert.Equal(t, int64(40), stats.TotalTokensSaved)
	assert.InDelta(t, 0.6, stats.AvgImportance, 1e-9)
}

func ids(records []Record) []uint {
	out := make([]uint, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
