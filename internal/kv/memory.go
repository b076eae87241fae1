package kv

import (
	"context"
	"path"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and local development. An
// optional byte quota makes it reject writes the way a full Redis instance
// would, which exercises the competition store's cleanup-and-retry path.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]memoryEntry
	quota  int // total value bytes allowed; 0 means unlimited
	nowFn  func() time.Time
	closed bool
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an unbounded in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:  make(map[string]memoryEntry),
		nowFn: time.Now,
	}
}

// NewMemoryWithQuota creates an in-memory store that rejects writes once the
// sum of stored value bytes would exceed quota.
func NewMemoryWithQuota(quota int) *Memory {
	m := NewMemory()
	m.quota = quota
	return m
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && m.nowFn().After(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	return m.set(key, value, 0)
}

func (m *Memory) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.set(key, value, ttl)
}

func (m *Memory) set(key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		total := len(value)
		for k, e := range m.data {
			if k == key {
				continue
			}
			total += len(e.value)
		}
		if total > m.quota {
			return ErrQuotaExceeded
		}
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.nowFn().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
