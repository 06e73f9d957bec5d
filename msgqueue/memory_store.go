package msgqueue

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Lists grow at the head, like LPUSH.
type MemoryStore struct {
	mu    sync.Mutex
	lists map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string][]string)}
}

func (s *MemoryStore) LPush(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

func (s *MemoryStore) RPopLPush(ctx context.Context, src, dst string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[src]
	if len(list) == 0 {
		return "", false, nil
	}
	v := list[len(list)-1]
	s.lists[src] = list[:len(list)-1]
	s.lists[dst] = append([]string{v}, s.lists[dst]...)
	return v, true, nil
}

func (s *MemoryStore) LRem(ctx context.Context, key, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []string
	var removed int64
	for _, v := range s.lists[key] {
		if v == value {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	s.lists[key] = kept
	return removed, nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	n := int64(len(list))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, key)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, seconds int64) error {
	// TTLs are a production concern; the in-process store ignores them.
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}
