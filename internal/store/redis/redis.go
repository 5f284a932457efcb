package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sonicspectrum/msghub/internal/store"
)

// Redis key prefixes
const (
	userPrefix    = "msghub:user:" // msghub:user:{userId} - hash of user fields
	messagePrefix = "msghub:msg:"  // msghub:msg:{messageId} - message JSON
	convPrefix    = "msghub:conv:" // msghub:conv:{min}:{max} - zset of message IDs scored by created_at
	readSetKey    = "msghub:read"  // set of message IDs that were marked read
)

// scoreMargin covers float64 rounding of nanosecond scores (ulp is 256ns at current epochs).
const scoreMargin = 1024

// Store implements store.Store on Redis. Messages never expire.
type Store struct {
	rdb *redis.Client
}

type storedMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at"`
}

// New wraps a connected client after checking it responds.
func New(ctx context.Context, rdb *redis.Client) (*Store, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// CreateUser stores a user hash.
func (s *Store) CreateUser(ctx context.Context, id, username string) (*store.User, error) {
	now := time.Now().UTC()
	created, err := s.rdb.HSetNX(ctx, userPrefix+id, "username", username).Result()
	if err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("user %s already exists", id)
	}
	if err := s.rdb.HSet(ctx, userPrefix+id, "created_at", now.UnixNano()).Err(); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	return &store.User{ID: id, Username: username, CreatedAt: now}, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	fields, err := s.rdb.HGetAll(ctx, userPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}

	user := &store.User{ID: id, Username: fields["username"]}
	if ns, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		user.CreatedAt = time.Unix(0, ns).UTC()
	}
	return user, nil
}

// UserExists reports whether a user with the given ID exists.
func (s *Store) UserExists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, userPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

// SaveMessage stores the message body and indexes it in the conversation set atomically.
func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	createdAt := msg.CreatedAt.UTC().UnixNano()
	data, err := json.Marshal(storedMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		CreatedAt:  createdAt,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	convKey := convPrefix + store.ConversationKey(msg.SenderID, msg.ReceiverID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messagePrefix+msg.ID, data, 0)
		// Scores are float64 and round nanosecond timestamps to a few hundred ns;
		// exact ordering comes from the sort in ListConversation.
		pipe.ZAdd(ctx, convKey, redis.Z{Score: float64(createdAt), Member: msg.ID})
		if msg.IsRead {
			pipe.SAdd(ctx, readSetKey, msg.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	data, err := s.rdb.Get(ctx, messagePrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	msg, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}
	read, err := s.rdb.SIsMember(ctx, readSetKey, id).Result()
	if err != nil {
		return nil, fmt.Errorf("check read flag: %w", err)
	}
	msg.IsRead = read
	return msg, nil
}

// ListConversation returns messages between two users, newest first.
func (s *Store) ListConversation(ctx context.Context, userID, otherUserID string, since *time.Time) ([]*store.Message, error) {
	minScore := "-inf"
	if since != nil {
		// Widen by the float64 rounding margin, the exact bound is applied below.
		lower := float64(since.UTC().UnixNano()) - scoreMargin
		minScore = strconv.FormatFloat(lower, 'f', -1, 64)
	}

	ids, err := s.rdb.ZRevRangeByScore(ctx, convPrefix+store.ConversationKey(userID, otherUserID), &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	messages := make([]*store.Message, 0, len(ids))
	if len(ids) == 0 {
		return messages, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = messagePrefix + id
		members[i] = id
	}

	bodies, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	readFlags, err := s.rdb.SMIsMember(ctx, readSetKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check read flags: %w", err)
	}

	for i, body := range bodies {
		data, ok := body.(string)
		if !ok {
			continue // indexed but body missing
		}
		msg, err := decodeMessage(data)
		if err != nil {
			return nil, err
		}
		if since != nil && msg.CreatedAt.Before(*since) {
			continue
		}
		msg.IsRead = readFlags[i]
		messages = append(messages, msg)
	}

	slices.SortStableFunc(messages, func(a, b *store.Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return messages, nil
}

// MarkRead adds the message to the read set. SADD is idempotent.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, messagePrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.rdb.SAdd(ctx, readSetKey, id).Err(); err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	return true, nil
}

func decodeMessage(data string) (*store.Message, error) {
	var sm storedMessage
	if err := json.Unmarshal([]byte(data), &sm); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &store.Message{
		ID:         sm.ID,
		SenderID:   sm.SenderID,
		ReceiverID: sm.ReceiverID,
		Content:    sm.Content,
		CreatedAt:  time.Unix(0, sm.CreatedAt).UTC(),
	}, nil
}
