package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/youme-api/internal/domain"
)

const sessionPrefix = "session:"

// SessionStore keeps the identity behind each bearer session.
type SessionStore struct {
	client redis.Cmdable
}

func NewSessionStore(client redis.Cmdable) *SessionStore {
	return &SessionStore{client: client}
}

// Save writes s with the given lifetime. A zero ttl keeps the key's current expiry.
func (st *SessionStore) Save(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	exp := ttl
	if exp == 0 {
		exp = redis.KeepTTL
	}
	if err := st.client.Set(ctx, sessionPrefix+s.SessionID, payload, exp).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (st *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := st.client.Get(ctx, sessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (st *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := st.client.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
