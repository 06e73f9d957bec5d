package msgqueue

import (
	"context"

	"github.com/zapa-ai/zapa/infrastructure/valkey"
)

// ValkeyStore backs the queue with a Valkey (Redis-compatible) server.
type ValkeyStore struct {
	client *valkey.Client
}

func NewValkeyStore(client *valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) LPush(ctx context.Context, key, value string) error {
	c := s.client.Inner()
	return c.Do(ctx, c.B().Lpush().Key(key).Element(value).Build()).Error()
}

func (s *ValkeyStore) RPopLPush(ctx context.Context, src, dst string) (string, bool, error) {
	c := s.client.Inner()
	v, err := c.Do(ctx, c.B().Rpoplpush().Source(src).Destination(dst).Build()).ToString()
	if err != nil {
		if valkey.IsNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *ValkeyStore) LRem(ctx context.Context, key, value string) (int64, error) {
	c := s.client.Inner()
	return c.Do(ctx, c.B().Lrem().Key(key).Count(0).Element(value).Build()).AsInt64()
}

func (s *ValkeyStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c := s.client.Inner()
	return c.Do(ctx, c.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
}

func (s *ValkeyStore) LLen(ctx context.Context, key string) (int64, error) {
	c := s.client.Inner()
	n, err := c.Do(ctx, c.B().Llen().Key(key).Build()).AsInt64()
	if err != nil {
		if valkey.IsNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (s *ValkeyStore) Del(ctx context.Context, key string) error {
	c := s.client.Inner()
	return c.Do(ctx, c.B().Del().Key(key).Build()).Error()
}

func (s *ValkeyStore) Expire(ctx context.Context, key string, seconds int64) error {
	c := s.client.Inner()
	return c.Do(ctx, c.B().Expire().Key(key).Seconds(seconds).Build()).Error()
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *ValkeyStore) Close() {
	s.client.Close()
}
