package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for single-instance runs without Redis
// and for tests.
type MemoryCache struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]memEntry
}

type memEntry struct {
	raw     []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now, data: map[string]memEntry{}}
}

func (c *MemoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.data[key]
	if ok && !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.data, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.raw, dst); err != nil {
		_ = c.Del(context.Background(), key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	e := memEntry{raw: b}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}
