package natsx

import (
	"context"
	"sync"
	"time"
)

// msgIDHeaders are checked in order for a publisher supplied message id.
var msgIDHeaders = []string{"Nats-Msg-Id", "X-Msg-Id"}

type dedupEntry struct {
	result any
	err    error
	expire time.Time
}

// dedupStore 内存实现（单进程）
type dedupStore struct {
	mu  sync.Mutex
	m   map[string]dedupEntry
	ttl time.Duration
	now func() time.Time
}

func newDedupStore(ttl time.Duration) *dedupStore {
	return &dedupStore{m: make(map[string]dedupEntry), ttl: ttl, now: time.Now}
}

func (s *dedupStore) get(id string) (dedupEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok || !e.expire.After(s.now()) {
		return dedupEntry{}, false
	}
	return e, true
}

func (s *dedupStore) put(id string, result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// prune on write; the map only grows with retried messages
	for k, e := range s.m {
		if !e.expire.After(now) {
			delete(s.m, k)
		}
	}
	s.m[id] = dedupEntry{result: result, err: err, expire: now.Add(s.ttl)}
}

func msgID(h map[string]string) string {
	for _, k := range msgIDHeaders {
		if v := h[k]; v != "" {
			return v
		}
	}
	return ""
}

// Dedup answers a redelivered request carrying the same message id header
// with the outcome of the first delivery instead of running it again.
// Requests without an id always run.
func Dedup(ttl time.Duration) Middleware {
	store := newDedupStore(ttl)
	return dedup(store)
}

func dedup(store *dedupStore) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (any, error) {
			id := msgID(msg.Header)
			if id == "" {
				return next(ctx, msg)
			}
			key := msg.Subject + "|" + id
			if e, ok := store.get(key); ok {
				return e.result, e.err
			}
			result, err := next(ctx, msg)
			store.put(key, result, err)
			return result, err
		}
	}
}
