package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

// MemoryWeatherCache implements WeatherCache with an in-process map. Suitable
// for development and tests; production deployments use sqlite or memcached.
type MemoryWeatherCache struct {
	mu   sync.RWMutex
	data map[string]WeatherEntry
}

// NewMemoryWeatherCache creates an empty in-memory weather cache.
func NewMemoryWeatherCache() *MemoryWeatherCache {
	return &MemoryWeatherCache{data: make(map[string]WeatherEntry)}
}

// Get returns the live entry for key, expired or not; freshness is the
// caller's concern via IsExpired.
func (c *MemoryWeatherCache) Get(ctx context.Context, key string) (WeatherEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	return entry, ok, nil
}

// Put upserts the entry for key with CreatedAt set to now.
func (c *MemoryWeatherCache) Put(ctx context.Context, key string, weather models.WeatherData, info cloud.Info) error {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = WeatherEntry{
		Key:       key,
		Weather:   weather,
		Cloud:     info,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	return nil
}

// MemoryAudioCache implements AudioCache with an in-process append-only map.
type MemoryAudioCache struct {
	mu   sync.RWMutex
	data map[string][]AudioEntry
}

// NewMemoryAudioCache creates an empty in-memory audio cache.
func NewMemoryAudioCache() *MemoryAudioCache {
	return &MemoryAudioCache{data: make(map[string][]AudioEntry)}
}

// Get returns the oldest entry for key.
func (c *MemoryAudioCache) Get(ctx context.Context, key string) (AudioEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.data[key]
	if len(entries) == 0 {
		return AudioEntry{}, false, nil
	}
	return entries[0], true, nil
}

// Put appends an entry for key. Duplicates under the same key are kept.
func (c *MemoryAudioCache) Put(ctx context.Context, key, audioURL, transcript string, cloudType cloud.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append(c.data[key], AudioEntry{
		Key:        key,
		AudioURL:   audioURL,
		Transcript: transcript,
		CloudType:  cloudType,
		CreatedAt:  time.Now(),
	})
	return nil
}

// Fallback returns any stored clear-sky entry, or the hardcoded placeholder.
func (c *MemoryAudioCache) Fallback(ctx context.Context) (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entries := range c.data {
		for _, entry := range entries {
			if entry.CloudType == cloud.Clear {
				return entry.AudioURL, entry.Transcript
			}
		}
	}
	return FallbackAudioURL, FallbackTranscript
}
