package rbac

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// ErrNoSession indicates the bearer token has no live session.
var ErrNoSession = errors.New("rbac: session not found")

// SessionStore resolves bearer tokens issued by the external login.
type SessionStore interface {
	UserID(ctx context.Context, token string) (int64, error)
}

// RedisSessions reads sessions written as <prefix>:<token> -> user id.
type RedisSessions struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSessions constructs the store.
func NewRedisSessions(client redis.Cmdable, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = "ledger:session"
	}
	return &RedisSessions{client: client, prefix: prefix}
}

// UserID returns the user bound to token.
func (s *RedisSessions) UserID(ctx context.Context, token string) (int64, error) {
	raw, err := s.client.Get(ctx, shared.SessionKey(s.prefix, token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNoSession
	}
	return id, nil
}
