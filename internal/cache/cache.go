// Package cache implements the two cache tiers backing the story pipeline:
// a 15-minute weather cache keyed by location grid bucket, and a permanent
// audio cache keyed by content fingerprint. Both tiers are advisory: every
// caller treats read errors as misses and write errors as log-and-continue.
package cache

import (
	"context"
	"time"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

// TTL is the single global freshness window for weather entries. Expiry is
// enforced by the read-side IsExpired predicate; stores may carry an
// informational expires_at but are not required to evict.
const TTL = 15 * time.Minute

// FallbackAudioURL and FallbackTranscript are served when the audio cache
// holds no clear-sky entry and the pipeline has already failed.
const (
	FallbackAudioURL   = "https://storage.about-those-clouds.dev/cloud-audio/fallback-clear.mp3"
	FallbackTranscript = "Look at that beautiful clear blue sky!"
)

// WeatherEntry is one weather cache row.
type WeatherEntry struct {
	Key       string             `json:"key"`
	Weather   models.WeatherData `json:"weather"`
	Cloud     cloud.Info         `json:"cloud"`
	CreatedAt time.Time          `json:"createdAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// AudioEntry is one audio cache row.
type AudioEntry struct {
	Key        string     `json:"key"`
	AudioURL   string     `json:"audioUrl"`
	Transcript string     `json:"transcript"`
	CloudType  cloud.Type `json:"cloudType"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// WeatherCache stores classified observations per location bucket.
// Get returns (zero, false, nil) on miss; errors are storage failures only.
// Put upserts: exactly one live entry per key.
type WeatherCache interface {
	Get(ctx context.Context, key string) (WeatherEntry, bool, error)
	Put(ctx context.Context, key string, weather models.WeatherData, info cloud.Info) error
}

// AudioCache stores generated narration per content key. Put inserts; a second
// story for the same key is a duplicate row, not an overwrite, and Get returns
// the oldest match. Fallback returns the stored clear-sky entry or, failing
// that, the hardcoded placeholder. It never errors.
type AudioCache interface {
	Get(ctx context.Context, key string) (AudioEntry, bool, error)
	Put(ctx context.Context, key, audioURL, transcript string, cloudType cloud.Type) error
	Fallback(ctx context.Context) (audioURL, transcript string)
}

// IsExpired reports whether a weather entry created at the given time has
// outlived the TTL.
func IsExpired(createdAt time.Time) bool {
	return time.Since(createdAt) > TTL
}
