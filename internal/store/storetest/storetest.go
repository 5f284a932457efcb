// Package storetest holds a conformance suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sonicspectrum/msghub/internal/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, newStore(t)) })
	t.Run("ConversationSymmetricNewestFirst", func(t *testing.T) { testConversation(t, newStore(t)) })
	t.Run("ConversationSince", func(t *testing.T) { testSince(t, newStore(t)) })
	t.Run("MarkRead", func(t *testing.T) { testMarkRead(t, newStore(t)) })
}

// NewMessage builds a message with a fresh ID.
func NewMessage(sender, receiver, content string, at time.Time) *store.Message {
	return &store.Message{
		ID:         uuid.NewString(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at.UTC(),
	}
}

// SeedUsers creates users whose ID and username are the given values.
func SeedUsers(t *testing.T, st store.UserStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := st.CreateUser(context.Background(), id, id)
		require.NoError(t, err, "create user %s", id)
	}
}

func testUsers(t *testing.T, st store.Store) {
	defer st.Close()
	req := require.New(t)
	ctx := context.Background()

	exists, err := st.UserExists(ctx, "u1")
	req.NoError(err)
	req.False(exists)

	created, err := st.CreateUser(ctx, "u1", "alice")
	req.NoError(err)
	req.Equal("u1", created.ID)

	exists, err = st.UserExists(ctx, "u1")
	req.NoError(err)
	req.True(exists)

	user, err := st.GetUserByID(ctx, "u1")
	req.NoError(err)
	req.Equal("alice", user.Username)

	_, err = st.GetUserByID(ctx, "ghost")
	req.True(errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testSaveAndGet(t *testing.T, st store.Store) {
	defer st.Close()
	req := require.New(t)
	ctx := context.Background()
	SeedUsers(t, st, "u1", "u2")

	at := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	msg := NewMessage("u1", "u2", "hi", at)
	req.NoError(st.SaveMessage(ctx, msg))

	got, err := st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, got.ID)
	req.Equal("u1", got.SenderID)
	req.Equal("u2", got.ReceiverID)
	req.Equal("hi", got.Content)
	req.True(at.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, at)
	req.False(got.IsRead)

	_, err = st.GetMessage(ctx, uuid.NewString())
	req.True(errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testConversation(t *testing.T, st store.Store) {
	defer st.Close()
	req := require.New(t)
	ctx := context.Background()
	SeedUsers(t, st, "u1", "u2", "u3")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := NewMessage("u1", "u2", "first", base)
	second := NewMessage("u2", "u1", "second", base.Add(time.Second))
	third := NewMessage("u1", "u2", "third", base.Add(2*time.Second))
	other := NewMessage("u1", "u3", "elsewhere", base.Add(3*time.Second))
	for _, m := range []*store.Message{second, first, other, third} {
		req.NoError(st.SaveMessage(ctx, m))
	}

	ab, err := st.ListConversation(ctx, "u1", "u2", nil)
	req.NoError(err)
	ba, err := st.ListConversation(ctx, "u2", "u1", nil)
	req.NoError(err)

	req.Equal([]string{third.ID, second.ID, first.ID}, ids(ab))
	req.Equal(ids(ab), ids(ba))

	empty, err := st.ListConversation(ctx, "u2", "u3", nil)
	req.NoError(err)
	req.Empty(empty)
}

func testSince(t *testing.T, st store.Store) {
	defer st.Close()
	req := require.New(t)
	ctx := context.Background()
	SeedUsers(t, st, "u1", "u2")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	old := NewMessage("u1", "u2", "old", base)
	edge := NewMessage("u2", "u1", "edge", base.Add(time.Minute))
	recent := NewMessage("u1", "u2", "recent", base.Add(2*time.Minute))
	for _, m := range []*store.Message{old, edge, recent} {
		req.NoError(st.SaveMessage(ctx, m))
	}

	since := base.Add(time.Minute)
	got, err := st.ListConversation(ctx, "u1", "u2", &since)
	req.NoError(err)
	req.Equal([]string{recent.ID, edge.ID}, ids(got))
}

func testMarkRead(t *testing.T, st store.Store) {
	defer st.Close()
	req := require.New(t)
	ctx := context.Background()
	SeedUsers(t, st, "u1", "u2")

	msg := NewMessage("u1", "u2", "read me", time.Now())
	req.NoError(st.SaveMessage(ctx, msg))

	for i := 0; i < 2; i++ {
		found, err := st.MarkRead(ctx, msg.ID)
		req.NoError(err)
		req.True(found)

		got, err := st.GetMessage(ctx, msg.ID)
		req.NoError(err)
		req.True(got.IsRead)
	}

	found, err := st.MarkRead(ctx, uuid.NewString())
	req.NoError(err)
	req.False(found)
}

func ids(messages []*store.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
