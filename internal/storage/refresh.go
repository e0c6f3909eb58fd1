package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oauth2jwt/internal/models"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore persists refresh tokens with at most one live token per user.
type RefreshTokenStore interface {
	// Save replaces any token the owner holds with tok in one atomic step.
	Save(ctx context.Context, tok models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (models.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// KEYS[1] user index, KEYS[2] new token key
// ARGV[1] token key prefix, ARGV[2] payload, ARGV[3] ttl ms, ARGV[4] token value
const saveTokenScript = `
local previous = redis.call("GET", KEYS[1])
if previous then
  redis.call("DEL", ARGV[1] .. previous)
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[1], ARGV[4], "PX", ARGV[3])
if previous then
  return 1
end
return 0
`

// KEYS[1] token key, KEYS[2] user index; ARGV[1] token value
const deleteTokenScript = `
local existed = redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return existed
`

// KEYS[1] user index; ARGV[1] token key prefix
const deleteUserTokenScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
redis.call("DEL", ARGV[1] .. current)
redis.call("DEL", KEYS[1])
return 1
`

var (
	saveTokenLua       = redis.NewScript(saveTokenScript)
	deleteTokenLua     = redis.NewScript(deleteTokenScript)
	deleteUserTokenLua = redis.NewScript(deleteUserTokenScript)
)

// RedisRefreshStore keeps each token under <prefix>:<token> and a per-user
// index under <prefix>:user:<id>. Both keys carry the token's TTL so expired
// tokens disappear from Redis even if nobody asks for them.
type RedisRefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisRefreshStore(client redis.UniversalClient, prefix string) *RedisRefreshStore {
	if prefix == "" {
		prefix = "refresh_token"
	}

	return &RedisRefreshStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisRefreshStore) tokenPrefix() string {
	return s.prefix + ":"
}

func (s *RedisRefreshStore) tokenKey(token string) string {
	return s.tokenPrefix() + token
}

func (s *RedisRefreshStore) userKey(userID uuid.UUID) string {
	return s.prefix + ":user:" + userID.String()
}

func (s *RedisRefreshStore) Save(ctx context.Context, tok models.RefreshToken) error {
	const op = "storage.SaveRefreshToken"

	ttl := time.Duration(tok.TimeToLive) * time.Second
	if ttl <= 0 {
		return fmt.Errorf("%s: non-positive ttl", op)
	}

	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = saveTokenLua.Run(ctx, s.redis,
		[]string{s.userKey(tok.UserID), s.tokenKey(tok.Token)},
		s.tokenPrefix(), payload, ttl.Milliseconds(), tok.Token,
	).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *RedisRefreshStore) FindByToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "storage.FindByToken"

	var tok models.RefreshToken

	data, err := s.redis.Get(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tok, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	if err != nil {
		return tok, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &tok); err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: decode: %w", op, err)
	}

	return tok, nil
}

func (s *RedisRefreshStore) DeleteByToken(ctx context.Context, token string) error {
	const op = "storage.DeleteByToken"

	tok, err := s.FindByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := deleteTokenLua.Run(ctx, s.redis,
		[]string{s.tokenKey(token), s.userKey(tok.UserID)},
		token,
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	return nil
}

func (s *RedisRefreshStore) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.DeleteByUserID"

	err := deleteUserTokenLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.tokenPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
