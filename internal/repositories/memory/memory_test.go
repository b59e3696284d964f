package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

var at = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func appendPrivate(t *testing.T, store *MessageStore, id, from, to, text string) models.Message {
	t.Helper()
	msg, err := store.Append(context.Background(), models.NewPrivateMessage(id, from, from, to, text, at))
	require.NoError(t, err)
	return msg
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	store := NewMessageStore()
	ctx := context.Background()

	first, err := store.Append(ctx, models.NewPublicMessage("m1", "u1", "alice", "one", at))
	require.NoError(t, err)
	second, err := store.Append(ctx, models.NewPublicMessage("m2", "u1", "alice", "two", at))
	require.NoError(t, err)

	assert.Less(t, first.Seq, second.Seq)
	assert.Equal(t, []string{}, first.ReadBy)
}

func TestRecentPublicReturnsNewestChronologically(t *testing.T) {
	store := NewMessageStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := store.Append(ctx, models.NewPublicMessage(id, "u1", "alice", id, at))
		require.NoError(t, err)
	}
	appendPrivate(t, store, "p", "u1", "u2", "hidden")

	recent, err := store.RecentPublic(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)

	all, err := store.RecentPublic(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRecentPrivateOnlyReturnsThePair(t *testing.T) {
	store := NewMessageStore()
	appendPrivate(t, store, "1", "u1", "u2", "hi")
	appendPrivate(t, store, "2", "u2", "u1", "hey")
	appendPrivate(t, store, "3", "u1", "u3", "other")

	msgs, err := store.RecentPrivate(context.Background(), "u2", "u1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "2", msgs[1].ID)
}

func TestUnreadForAndCounts(t *testing.T) {
	store := NewMessageStore()
	ctx := context.Background()
	appendPrivate(t, store, "1", "u1", "u2", "hi")
	appendPrivate(t, store, "2", "u1", "u2", "again")
	appendPrivate(t, store, "3", "u3", "u2", "yo")
	appendPrivate(t, store, "4", "u2", "u1", "reply")

	unread, err := store.UnreadFor(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, unread, 3)

	counts, err := store.UnreadCounts(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 2, "u3": 1}, counts)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := NewMessageStore()
	ctx := context.Background()
	appendPrivate(t, store, "1", "u1", "u2", "hi")

	msg, changed, err := store.MarkRead(ctx, "1", "u2", at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"u2"}, msg.ReadBy)
	require.NotNil(t, msg.ReadAt)

	msg, changed, err = store.MarkRead(ctx, "1", "u2", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"u2"}, msg.ReadBy)
	assert.Equal(t, at, *msg.ReadAt)

	_, _, err = store.MarkRead(ctx, "missing", "u2", at)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestMarkReadConcurrentSingleWinner(t *testing.T) {
	store := NewMessageStore()
	appendPrivate(t, store, "1", "u1", "u2", "hi")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := store.MarkRead(context.Background(), "1", "u2", at)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	msg, err := store.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, msg.ReadBy)
}

func TestMarkAllReadFromReturnsOnlyChanged(t *testing.T) {
	store := NewMessageStore()
	ctx := context.Background()
	appendPrivate(t, store, "1", "u1", "u2", "hi")
	appendPrivate(t, store, "2", "u1", "u2", "again")
	appendPrivate(t, store, "3", "u3", "u2", "other")
	_, _, err := store.MarkRead(ctx, "1", "u2", at)
	require.NoError(t, err)

	changed, err := store.MarkAllReadFrom(ctx, "u2", "u1", at)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "2", changed[0].ID)

	counts, err := store.UnreadCounts(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u3": 1}, counts)
}

func TestReturnedMessagesAreCopies(t *testing.T) {
	store := NewMessageStore()
	msg := appendPrivate(t, store, "1", "u1", "u2", "hi")
	msg.ReadBy = append(msg.ReadBy, "intruder")

	stored, err := store.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, stored.ReadBy)
}

func TestBindSupersedesPreviousConnection(t *testing.T) {
	users := NewUserStore()
	ctx := context.Background()

	previous, err := users.Bind(ctx, "u1", "alice", "c1")
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, err = users.Bind(ctx, "u1", "alice", "c2")
	require.NoError(t, err)
	assert.Equal(t, "c1", previous)

	// the superseded connection closing must not disconnect c2
	_, ok, err := users.Unbind(ctx, "c1", at)
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	conn, connected := user.ActiveConnection()
	assert.True(t, connected)
	assert.Equal(t, "c2", conn)

	user, ok, err = users.Unbind(ctx, "c2", at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, user.Connected)
	assert.Nil(t, user.ConnectionID)
	require.NotNil(t, user.LastSeenAt)
}

func TestUserStoreListAndSetConnected(t *testing.T) {
	users := NewUserStore()
	ctx := context.Background()
	_, err := users.Bind(ctx, "u2", "bob", "c2")
	require.NoError(t, err)
	_, err = users.Bind(ctx, "u1", "alice", "c1")
	require.NoError(t, err)

	require.NoError(t, users.SetConnected(ctx, "u2", false))
	assert.ErrorIs(t, users.SetConnected(ctx, "nobody", true), repositories.ErrUserNotFound)

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.False(t, list[1].Connected)

	_, err = users.Get(ctx, "nobody")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}
