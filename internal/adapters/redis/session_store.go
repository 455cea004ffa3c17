// Package redis provides the Redis-backed focus session store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
)

// Sessions stay readable for a day after they expire so a delayed cleanup
// job can still load the state it needs to revert.
const sessionRetention = 24 * time.Hour

// SessionStore reads and writes focus sessions in Redis. The chat
// integration owns session creation; this store mostly flips sessions
// inactive from the cleanup job.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: "focus_session:"}
}

// NewSessionStoreWithPrefix creates a session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

var _ core.SessionStore = (*SessionStore)(nil)

// Get loads a session by id. Missing keys map to core.ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*model.FocusSession, error) {
	if sessionID == "" {
		return nil, core.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess model.FocusSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Save writes the session back. The key lives until well after the session
// expires; already-expired sessions still get the retention window so their
// final inactive state remains visible.
func (s *SessionStore) Save(ctx context.Context, sess *model.FocusSession) error {
	if sess == nil || sess.SessionID == "" {
		return errors.New("session id is required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt()) + sessionRetention
	if ttl < sessionRetention {
		ttl = sessionRetention
	}

	if err := s.client.Set(ctx, s.prefix+sess.SessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}
