package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	createdAt time.Time
	lastUsed  time.Time
	expiresAt time.Time // zero = never
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryClient is an in-process Client with a bounded number of entries
type MemoryClient struct {
	cache       map[string]*memoryEntry
	mutex       sync.RWMutex
	maxEntries  int           // Maximum number of entries, 0 = unbounded
	maxAge      time.Duration // Default ttl, 0 = no expiry
	cleanupTick time.Duration // How often to run cleanup
	stopCleanup chan struct{}
	stopOnce    sync.Once
	cachedSize  int64
	hits        int64
	misses      int64

	now func() time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates a new cache with specified limits and starts its cleanup loop
func NewMemoryClient(maxEntries int, maxAge, cleanupTick time.Duration) *MemoryClient {
	return newMemoryClient(maxEntries, maxAge, cleanupTick, time.Now)
}

func newMemoryClient(maxEntries int, maxAge, cleanupTick time.Duration, now func() time.Time) *MemoryClient {
	if cleanupTick <= 0 {
		cleanupTick = time.Minute
	}
	mc := &MemoryClient{
		cache:       make(map[string]*memoryEntry),
		maxEntries:  maxEntries,
		maxAge:      maxAge,
		cleanupTick: cleanupTick,
		stopCleanup: make(chan struct{}),
		now:         now,
	}

	go mc.cleanupLoop()

	return mc
}

// Get implements Client
func (mc *MemoryClient) Get(_ context.Context, key string, dst any) (bool, error) {
	now := mc.now()

	mc.mutex.Lock()
	entry, exists := mc.cache[key]
	if exists && entry.expired(now) {
		mc.removeLocked(key, entry)
		exists = false
	}
	if !exists {
		mc.misses++
		mc.mutex.Unlock()
		return false, nil
	}
	mc.hits++
	entry.lastUsed = now
	data := entry.data
	mc.mutex.Unlock()

	// data is never mutated in place, Set swaps the slice
	if err := decode(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Client
func (mc *MemoryClient) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	now := mc.now()
	if ttl <= 0 {
		ttl = mc.maxAge
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if old, exists := mc.cache[key]; exists {
		mc.cachedSize += int64(len(data)) - int64(len(old.data))
		old.data = data
		old.lastUsed = now
		old.expiresAt = expiresAt
		return nil
	}

	if mc.maxEntries > 0 && len(mc.cache) >= mc.maxEntries {
		mc.evictLocked(now)
	}

	mc.cache[key] = &memoryEntry{
		data:      data,
		createdAt: now,
		lastUsed:  now,
		expiresAt: expiresAt,
	}
	mc.cachedSize += int64(len(data))
	return nil
}

// Replace implements Client
func (mc *MemoryClient) Replace(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := encode(value)
	if err != nil {
		return false, err
	}
	now := mc.now()
	if ttl <= 0 {
		ttl = mc.maxAge
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	old, exists := mc.cache[key]
	if !exists {
		return false, nil
	}
	if old.expired(now) {
		mc.removeLocked(key, old)
		return false, nil
	}
	mc.cachedSize += int64(len(data)) - int64(len(old.data))
	old.data = data
	old.lastUsed = now
	old.expiresAt = time.Time{}
	if ttl > 0 {
		old.expiresAt = now.Add(ttl)
	}
	return true, nil
}

// Remove implements Client
func (mc *MemoryClient) Remove(_ context.Context, key string) error {
	mc.mutex.Lock()
	if entry, exists := mc.cache[key]; exists {
		mc.removeLocked(key, entry)
	}
	mc.mutex.Unlock()
	return nil
}

// FlushAll implements Client
func (mc *MemoryClient) FlushAll(_ context.Context) error {
	mc.mutex.Lock()
	mc.cache = make(map[string]*memoryEntry)
	mc.cachedSize = 0
	mc.mutex.Unlock()
	return nil
}

// Stats implements Client
func (mc *MemoryClient) Stats() Stats {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	return Stats{
		Provider:   "memory",
		Entries:    int64(len(mc.cache)),
		MaxEntries: mc.maxEntries,
		Size:       mc.cachedSize,
		Hits:       mc.hits,
		Misses:     mc.misses,
	}
}

// Close stops the cleanup loop. The client stays usable.
func (mc *MemoryClient) Close() error {
	mc.stopOnce.Do(func() { close(mc.stopCleanup) })
	return nil
}

// evictLocked drops expired entries, or the least recently used one if none expired
func (mc *MemoryClient) evictLocked(now time.Time) {
	removed := 0
	var oldestKey string
	var oldest *memoryEntry
	for key, entry := range mc.cache {
		if entry.expired(now) {
			mc.removeLocked(key, entry)
			removed++
			continue
		}
		if oldest == nil || entry.lastUsed.Before(oldest.lastUsed) {
			oldestKey, oldest = key, entry
		}
	}
	if removed == 0 && oldest != nil {
		mc.removeLocked(oldestKey, oldest)
	}
}

func (mc *MemoryClient) removeLocked(key string, entry *memoryEntry) {
	delete(mc.cache, key)
	mc.cachedSize -= int64(len(entry.data))
}

func (mc *MemoryClient) cleanupLoop() {
	ticker := time.NewTicker(mc.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.cleanup()
		case <-mc.stopCleanup:
			return
		}
	}
}

// cleanup removes expired entries
func (mc *MemoryClient) cleanup() int {
	now := mc.now()
	keysToDelete := make([]string, 0)

	mc.mutex.RLock()
	for key, entry := range mc.cache {
		if entry.expired(now) {
			keysToDelete = append(keysToDelete, key)
		}
	}
	mc.mutex.RUnlock()

	if len(keysToDelete) == 0 {
		return 0
	}

	removed := 0
	mc.mutex.Lock()
	for _, key := range keysToDelete {
		// re-check, the entry may have been refreshed meanwhile
		if entry, exists := mc.cache[key]; exists && entry.expired(now) {
			mc.removeLocked(key, entry)
			removed++
		}
	}
	mc.mutex.Unlock()
	return removed
}
