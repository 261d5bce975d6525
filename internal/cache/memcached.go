package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

const weatherKeyPrefix = "weather:"

// MemcachedWeatherCache implements WeatherCache on memcached. Only the weather
// tier lives here: its 15-minute freshness window maps onto memcached's
// expiration, while the permanent audio tier needs durable storage.
type MemcachedWeatherCache struct {
	client *memcache.Client
}

// NewMemcachedWeatherCache creates a MemcachedWeatherCache. addrs is a
// comma-separated server list (e.g. "localhost:11211,host2:11211"). timeout
// and maxIdleConns use package defaults when zero.
func NewMemcachedWeatherCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedWeatherCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedWeatherCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedWeatherCache) key(k string) string {
	return weatherKeyPrefix + k
}

// Get implements WeatherCache.Get. Returns false, nil on miss; false, err on
// storage failure.
func (c *MemcachedWeatherCache) Get(ctx context.Context, key string) (WeatherEntry, bool, error) {
	if ctx.Err() != nil {
		return WeatherEntry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return WeatherEntry{}, false, nil
		}
		return WeatherEntry{}, false, err
	}
	var entry WeatherEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return WeatherEntry{}, false, err
	}
	return entry, true, nil
}

// Put implements WeatherCache.Put. The server-side expiration is set slightly
// past the TTL so the read-side IsExpired predicate stays the source of truth.
func (c *MemcachedWeatherCache) Put(ctx context.Context, key string, weather models.WeatherData, info cloud.Info) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := time.Now()
	entry := WeatherEntry{
		Key:       key,
		Weather:   weather,
		Cloud:     info,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: int32((TTL + time.Minute).Seconds()),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedWeatherCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedWeatherCache) Close() error {
	return c.client.Close()
}
