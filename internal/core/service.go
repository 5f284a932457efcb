package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/store"
	"github.com/sonicspectrum/msghub/internal/utils"
)

// Service validates and persists direct messages. It never broadcasts;
// callers hand the returned message to a Dispatcher.
type Service struct {
	store store.Store
	log   *zerolog.Logger
	now   func() time.Time
}

// NewService creates a message service backed by st.
func NewService(st store.Store, logger *zerolog.Logger) *Service {
	return &Service{
		store: st,
		log:   logger,
		now:   time.Now,
	}
}

// Send checks that both users exist, then persists a new unread message
// with a fresh id and the current UTC time.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (*store.Message, error) {
	if err := s.requireUser(ctx, "sender", senderID); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, "receiver", receiverID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:         utils.NewID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, &PersistenceError{Op: "save message", Err: err}
	}

	s.log.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", senderID).
		Str("receiver_id", receiverID).
		Msg("message persisted")
	return msg, nil
}

// ListConversation returns the messages between two users in either
// direction, newest first, optionally limited to those created at or
// after since.
func (s *Service) ListConversation(ctx context.Context, userID, otherUserID string, since *time.Time) ([]*store.Message, error) {
	msgs, err := s.store.ListConversation(ctx, userID, otherUserID, since)
	if err != nil {
		return nil, &PersistenceError{Op: "list conversation", Err: err}
	}
	return msgs, nil
}

// MarkRead sets the read flag on a message. Unknown ids are not an error.
func (s *Service) MarkRead(ctx context.Context, messageID string) error {
	found, err := s.store.MarkRead(ctx, messageID)
	if err != nil {
		return &PersistenceError{Op: "mark read", Err: err}
	}
	if !found {
		s.log.Debug().Str("message_id", messageID).Msg("mark read: message not found")
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, role, id string) error {
	ok, err := s.store.UserExists(ctx, id)
	if err != nil {
		return &PersistenceError{Op: "lookup " + role, Err: err}
	}
	if !ok {
		return fmt.Errorf("%s %q: %w", role, id, ErrUnknownUser)
	}
	return nil
}
