package redisinfra

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	prefsNamespace = "auth_prefs"
	rememberMeKey  = "remember_me"
)

// Prefs is the per-device key-value store behind the remember-me flag.
type Prefs struct {
	client redis.Cmdable
	key    string
}

// NewPrefs scopes the preference to one device, the way on-device storage
// would be.
func NewPrefs(client redis.Cmdable, deviceID string) *Prefs {
	return &Prefs{
		client: client,
		key:    fmt.Sprintf("%s:%s:%s", prefsNamespace, deviceID, rememberMeKey),
	}
}

// RememberMe returns the stored flag, false when never set.
func (p *Prefs) RememberMe(ctx context.Context) (bool, error) {
	v, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read remember-me: %w", err)
	}
	return v == "1", nil
}

func (p *Prefs) SetRememberMe(ctx context.Context, remember bool) error {
	v := "0"
	if remember {
		v = "1"
	}
	if err := p.client.Set(ctx, p.key, v, 0).Err(); err != nil {
		return fmt.Errorf("write remember-me: %w", err)
	}
	return nil
}

func (p *Prefs) ClearRememberMe(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("clear remember-me: %w", err)
	}
	return nil
}
