package shared

import (
	"context"
	"fmt"
)

// Locker serialises critical sections keyed by name across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// BalanceLockKey builds redis keys guarding a (user, period) balance recompute.
func BalanceLockKey(userID, periodID int64) string {
	return fmt.Sprintf("ledger:balance:%d:%d:lock", userID, periodID)
}

// SessionKey builds the redis key holding the user id for a bearer token.
func SessionKey(prefix, token string) string {
	return fmt.Sprintf("%s:%s", prefix, token)
}

// UserChannel is the pub/sub channel carrying realtime events for a user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("ledger:user:%d", userID)
}
