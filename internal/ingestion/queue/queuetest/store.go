// Package queuetest provides an in-memory implementation of the queue's
// backing store so the queue, orchestrator, and HTTP surface can be exercised
// without a running Redis.
package queuetest

import (
	"context"
	"sync"
	"time"
)

const pollInterval = 2 * time.Millisecond

// MemStore is a mutex-guarded key-value and list store. TTLs are recorded but
// never enforced; tests assert on them directly. The error knobs inject
// failures per operation and must be set before the store is shared across
// goroutines.
type MemStore struct {
	mu    sync.Mutex
	kv    map[string]string
	ttls  map[string]time.Duration
	lists map[string][]string
	calls map[string]int

	PingErr  error
	GetErr   error
	SetErr   error
	DelErr   error
	LPushErr error
	BRPopErr error
	LLenErr  error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		kv:    make(map[string]string),
		ttls:  make(map[string]time.Duration),
		lists: make(map[string][]string),
		calls: make(map[string]int),
	}
}

func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	s.calls["Ping"]++
	s.mu.Unlock()
	return s.PingErr
}

func (s *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Get"]++
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	val, ok := s.kv[key]
	return val, ok, nil
}

func (s *MemStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Set"]++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.kv[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *MemStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Del"]++
	if s.DelErr != nil {
		return s.DelErr
	}
	for _, key := range keys {
		delete(s.kv, key)
		delete(s.ttls, key)
		delete(s.lists, key)
	}
	return nil
}

// LPush prepends, so index 0 is the newest element, matching Redis.
func (s *MemStore) LPush(ctx context.Context, key string, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["LPush"]++
	if s.LPushErr != nil {
		return 0, s.LPushErr
	}
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return int64(len(s.lists[key])), nil
}

// BRPop pops the oldest element from the first non-empty key, polling until
// data arrives, the timeout lapses, or ctx is done. A timeout of zero or less
// blocks until ctx is done, as BRPOP does.
func (s *MemStore) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, string, bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if key, val, ok, err := s.tryPop(keys); ok || err != nil {
			return key, val, ok, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return "", "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", "", false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *MemStore) tryPop(keys []string) (string, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["BRPop"]++
	if s.BRPopErr != nil {
		return "", "", false, s.BRPopErr
	}
	for _, key := range keys {
		list := s.lists[key]
		if len(list) == 0 {
			continue
		}
		val := list[len(list)-1]
		s.lists[key] = list[:len(list)-1]
		return key, val, true, nil
	}
	return "", "", false, nil
}

func (s *MemStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["LLen"]++
	if s.LLenErr != nil {
		return 0, s.LLenErr
	}
	return int64(len(s.lists[key])), nil
}

// TTL reports the duration recorded by the last Set for key.
func (s *MemStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl, ok := s.ttls[key]
	return ttl, ok
}

// ListLen reports the current length of a list without the Store error path.
func (s *MemStore) ListLen(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[key])
}

// Calls reports how many times a store operation ran. Operation names match
// the Store interface methods.
func (s *MemStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}
