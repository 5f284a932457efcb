package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sonicspectrum/msghub/internal/utils"
)

func TestServiceSend(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, "alice", "bob")
	svc := NewService(st, &testLogger)

	before := time.Now().UTC()
	msg, err := svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	canonical, ok := utils.ParseID(msg.ID)
	assert.True(t, ok)
	assert.Equal(t, canonical, msg.ID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "bob", msg.ReceiverID)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.IsRead)
	assert.Equal(t, time.UTC, msg.CreatedAt.Location())
	assert.False(t, msg.CreatedAt.Before(before))

	stored, err := st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Content)
	assert.True(t, msg.CreatedAt.Equal(stored.CreatedAt))
}

func TestServiceSendUnknownUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, "alice")
	svc := NewService(st, &testLogger)

	_, err := svc.Send(ctx, "alice", "ghost", "hi")
	require.ErrorIs(t, err, ErrUnknownUser)

	_, err = svc.Send(ctx, "ghost", "alice", "hi")
	require.ErrorIs(t, err, ErrUnknownUser)

	msgs, err := svc.ListConversation(ctx, "alice", "ghost", nil)
	require.NoError(t, err)
	require.Empty(t, msgs, "nothing is persisted for unknown users")
}

func TestServiceSendPersistenceFailure(t *testing.T) {
	st := &mockStore{}
	st.On("UserExists", mock.Anything, mock.Anything).Return(true, nil)
	st.On("SaveMessage", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc := NewService(st, &testLogger)

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "save message", perr.Op)
	st.AssertExpectations(t)
}

func TestServiceLookupFailureIsPersistenceError(t *testing.T) {
	st := &mockStore{}
	st.On("UserExists", mock.Anything, "alice").Return(false, errors.New("connection reset"))
	svc := NewService(st, &testLogger)

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.NotErrorIs(t, err, ErrUnknownUser)
	st.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}

func TestServiceListConversation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, "alice", "bob", "carol")
	svc := NewService(st, &testLogger)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	first, err := svc.Send(ctx, "alice", "bob", "one")
	require.NoError(t, err)
	second, err := svc.Send(ctx, "bob", "alice", "two")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "alice", "carol", "other")
	require.NoError(t, err)

	msgs, err := svc.ListConversation(ctx, "alice", "bob", nil)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, messageIDs(msgs))

	since := second.CreatedAt
	msgs, err = svc.ListConversation(ctx, "bob", "alice", &since)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, messageIDs(msgs))
}

func TestServiceMarkRead(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, "alice", "bob")
	svc := NewService(st, &testLogger)

	msg, err := svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, msg.ID))
	require.NoError(t, svc.MarkRead(ctx, msg.ID))
	require.NoError(t, svc.MarkRead(ctx, utils.NewID()), "unknown ids are ignored")

	stored, err := st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, stored.IsRead)
}

func TestServiceConversationSymmetry(t *testing.T) {
	ctx := context.Background()
	users := []string{"u1", "u2", "u3"}
	st := newTestStore(t, users...)
	svc := NewService(st, &testLogger)

	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.SampledFrom(users).Draw(rt, "a")
		b := rapid.SampledFrom(users).Draw(rt, "b")
		if rapid.Bool().Draw(rt, "send") {
			_, err := svc.Send(ctx, a, b, rapid.String().Draw(rt, "content"))
			if err != nil {
				rt.Fatalf("send: %v", err)
			}
		}

		ab, err := svc.ListConversation(ctx, a, b, nil)
		if err != nil {
			rt.Fatalf("list: %v", err)
		}
		ba, err := svc.ListConversation(ctx, b, a, nil)
		if err != nil {
			rt.Fatalf("list: %v", err)
		}
		if !assert.ObjectsAreEqual(messageIDs(ab), messageIDs(ba)) {
			rt.Fatalf("asymmetric conversation %s/%s: %v vs %v", a, b, messageIDs(ab), messageIDs(ba))
		}
		for i := 1; i < len(ab); i++ {
			if ab[i].CreatedAt.After(ab[i-1].CreatedAt) {
				rt.Fatalf("not newest first at %d", i)
			}
		}
	})
}
