package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis as the backing store.
// Sessions are stored as JSON under key: "session:<refreshToken>" with
// TTL = expiresAt - now, plus a pointer key "session:sid:<sid>" holding the
// refresh token so access tokens can resolve the session by its opaque id.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(refresh string) string {
	return r.prefix + refresh
}

func (r *RedisRepository) sidKey(sid string) string {
	return r.prefix + "sid:" + sid
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired sessions
		exp = time.Second
	}
	if err := r.client.Set(ctx, r.key(s.RefreshToken), b, exp).Err(); err != nil {
		return err
	}
	if s.SID != "" {
		return r.client.Set(ctx, r.sidKey(s.SID), s.RefreshToken, exp).Err()
	}
	return nil
}

func (r *RedisRepository) GetBySID(ctx context.Context, sid string) (*Session, error) {
	refresh, err := r.client.Get(ctx, r.sidKey(sid)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByRefresh(ctx, refresh)
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(refresh)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	// If session expired from perspective of stored value, treat as missing
	if time.Now().UTC().After(s.ExpiresAt) {
		_ = r.client.Del(ctx, r.key(refresh)).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) UpdateGoogleAccess(ctx context.Context, refresh, accessToken string) error {
	s, err := r.GetByRefresh(ctx, refresh)
	if err != nil || s == nil {
		return err
	}
	s.GoogleAccessToken = accessToken
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		exp = time.Second
	}
	return r.client.Set(ctx, r.key(refresh), b, exp).Err()
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	if s, err := r.GetByRefresh(ctx, refresh); err == nil && s != nil && s.SID != "" {
		_ = r.client.Del(ctx, r.sidKey(s.SID)).Err()
	}
	return r.client.Del(ctx, r.key(refresh)).Err()
}
