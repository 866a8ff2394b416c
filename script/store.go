// Package script wires the Lua transaction scripts under script/lua into
// go-redis, following the fixed-checked-in-server-program pattern (no
// arbitrary user code ever reaches EVAL, per spec.md's Non-goals).
package script

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store is the connection collaborator every operation is dispatched
// through. It is satisfied directly by *redis.Client / *redis.ClusterClient;
// this package never constructs its own pool, matching spec.md's
// "connection management" exclusion.
type Store interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}
