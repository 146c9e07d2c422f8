// Package session looks up application sessions issued by the login service.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var ErrNoSession = errors.New("session not found")

type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

type AppSession struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string { return fmt.Sprintf("app:sess:%s", id) }

// Create stores a session. Production sessions come from the login service;
// the CLI uses this to mint one for local testing.
func (s *AppSessionStore) Create(ctx context.Context, id, userID string) error {
	now := s.now()
	b, err := jsoniter.ConfigFastest.Marshal(AppSession{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(id), b, s.ttl).Err()
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := jsoniter.ConfigFastest.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	// redis TTL 与 exp 不一致时以 exp 为准
	if as.ExpiresAt > 0 && s.now().Unix() >= as.ExpiresAt {
		return nil, ErrNoSession
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}
