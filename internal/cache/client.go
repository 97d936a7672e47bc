// Package cache provides the cache client registered into the web host.
// Sessions and any other per-request state that must outlive a request
// go through a Client.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client is the cache abstraction the host depends on
type Client interface {
	// Get decodes the value stored under key into dst, reporting whether it was found
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores value under key. ttl <= 0 means the client default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Replace overwrites key only while it still exists, reporting whether it did
	Replace(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	// Remove deletes key, missing keys are not an error
	Remove(ctx context.Context, key string) error
	// FlushAll drops every entry owned by this client
	FlushAll(ctx context.Context) error
	// Stats returns counters for monitoring
	Stats() Stats
	Close() error
}

// Stats holds cache counters. Entries and Size are -1 when the backend cannot tell.
type Stats struct {
	Provider   string `json:"provider"`
	Entries    int64  `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Size       int64  `json:"size"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// HitRate returns hits in percent of all lookups
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// SizeHuman formats Size for logs
func (s Stats) SizeHuman() string {
	size := s.Size
	switch {
	case size < 0:
		return "unknown"
	case size < 1024:
		return fmt.Sprintf("%d bytes", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024.0)
	default:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024.0*1024.0))
	}
}

func encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to encode value: %w", err)
	}
	return data, nil
}

func decode(data []byte, dst any) error {
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("cache: failed to decode value: %w", err)
	}
	return nil
}
