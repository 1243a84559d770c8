package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/coocood/freecache"
)

// ErrObjectNotFound is core.ErrObjectNotFound, kept here for callers of the
// concrete stores.
var ErrObjectNotFound = core.ErrObjectNotFound

// MemoryObjectStore implements the core.ObjectStore interface on a bounded
// in-process cache. Objects expire after ttl; the oldest are evicted when the
// cache is full.
type MemoryObjectStore struct {
	cache      *freecache.Cache
	ttlSeconds int
}

// NewMemory creates a cache of sizeBytes. A zero ttl keeps objects until they
// are deleted or evicted.
func NewMemory(sizeBytes int, ttl time.Duration) *MemoryObjectStore {
	return &MemoryObjectStore{
		cache:      freecache.NewCache(sizeBytes),
		ttlSeconds: int(ttl / time.Second),
	}
}

// Download retrieves an object from the cache.
func (m *MemoryObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, err := m.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, fmt.Errorf("%w: '%s'", ErrObjectNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s': %w", key, err)
	}

	return data, nil
}

// Upload saves an object to the cache.
func (m *MemoryObjectStore) Upload(_ context.Context, key string, data []byte) error {
	err := m.cache.Set([]byte(key), data, m.ttlSeconds)
	if err != nil {
		return fmt.Errorf("failed to put object '%s': %w", key, err)
	}

	return nil
}

// Delete removes an object from the cache.
func (m *MemoryObjectStore) Delete(_ context.Context, key string) error {
	m.cache.Del([]byte(key))

	return nil
}
