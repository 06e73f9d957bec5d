package msgqueue

import "context"

// Store is the minimal list-store surface the queue needs. Backed by Valkey
// in production and by an in-process implementation in tests.
type Store interface {
	// LPush prepends value to the list at key.
	LPush(ctx context.Context, key, value string) error
	// RPopLPush atomically moves the tail of src to the head of dst.
	// Returns ok=false when src is empty.
	RPopLPush(ctx context.Context, src, dst string) (value string, ok bool, err error)
	// LRem removes every occurrence of value from the list at key and
	// returns how many were removed.
	LRem(ctx context.Context, key, value string) (int64, error)
	// LRange returns the elements at [start, stop], -1 meaning the tail.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LLen returns the list length.
	LLen(ctx context.Context, key string) (int64, error)
	// Del removes the key entirely.
	Del(ctx context.Context, key string) error
	// Expire sets a TTL in seconds on the key.
	Expire(ctx context.Context, key string, seconds int64) error
	// Ping checks liveness.
	Ping(ctx context.Context) error
	// Close releases the store connection.
	Close()
}
