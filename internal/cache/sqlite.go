package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS weather_cache (
	location_hash TEXT PRIMARY KEY,
	cloud_type    TEXT NOT NULL,
	weather_data  TEXT NOT NULL,
	cloud_info    TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audio_cache (
	content_hash TEXT NOT NULL,
	audio_url    TEXT NOT NULL,
	transcript   TEXT NOT NULL,
	cloud_type   TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audio_cache_content_hash ON audio_cache(content_hash);
CREATE INDEX IF NOT EXISTS idx_audio_cache_cloud_type ON audio_cache(cloud_type);
CREATE TABLE IF NOT EXISTS card_plays (
	user_id    TEXT,
	card_id    TEXT,
	ip_address TEXT,
	city       TEXT,
	region     TEXT,
	played_at  INTEGER NOT NULL
);
`

// Store is the SQLite-backed durable store for both cache tiers plus play
// tracking. content_hash carries no uniqueness constraint: concurrent builders
// for the same key may both insert, and reads take the oldest row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache: sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity. Used by the health handler.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func toMillis(t time.Time) int64    { return t.UTC().UnixMilli() }
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Get implements WeatherCache.Get.
func (s *Store) Get(ctx context.Context, key string) (WeatherEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT weather_data, cloud_info, created_at, expires_at FROM weather_cache WHERE location_hash = ?`, key)
	var weatherJSON, cloudJSON string
	var createdMs, expiresMs int64
	if err := row.Scan(&weatherJSON, &cloudJSON, &createdMs, &expiresMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WeatherEntry{}, false, nil
		}
		return WeatherEntry{}, false, fmt.Errorf("read weather cache: %w", err)
	}
	entry := WeatherEntry{Key: key, CreatedAt: fromMillis(createdMs), ExpiresAt: fromMillis(expiresMs)}
	if err := json.Unmarshal([]byte(weatherJSON), &entry.Weather); err != nil {
		return WeatherEntry{}, false, fmt.Errorf("decode weather_data: %w", err)
	}
	if err := json.Unmarshal([]byte(cloudJSON), &entry.Cloud); err != nil {
		return WeatherEntry{}, false, fmt.Errorf("decode cloud_info: %w", err)
	}
	return entry, true, nil
}

// Put implements WeatherCache.Put with upsert semantics: one live row per
// location bucket, last write wins.
func (s *Store) Put(ctx context.Context, key string, weather models.WeatherData, info cloud.Info) error {
	weatherJSON, err := json.Marshal(weather)
	if err != nil {
		return fmt.Errorf("encode weather_data: %w", err)
	}
	cloudJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode cloud_info: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO weather_cache (location_hash, cloud_type, weather_data, cloud_info, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(location_hash) DO UPDATE SET
			cloud_type = excluded.cloud_type,
			weather_data = excluded.weather_data,
			cloud_info = excluded.cloud_info,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, string(info.Type), string(weatherJSON), string(cloudJSON), toMillis(now), toMillis(now.Add(TTL)))
	if err != nil {
		return fmt.Errorf("write weather cache: %w", err)
	}
	return nil
}

// GetAudio implements AudioCache.Get, returning the oldest row for the key.
func (s *Store) GetAudio(ctx context.Context, key string) (AudioEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT audio_url, transcript, cloud_type, created_at FROM audio_cache
		 WHERE content_hash = ? ORDER BY created_at ASC LIMIT 1`, key)
	var entry AudioEntry
	var cloudType string
	var createdMs int64
	if err := row.Scan(&entry.AudioURL, &entry.Transcript, &cloudType, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AudioEntry{}, false, nil
		}
		return AudioEntry{}, false, fmt.Errorf("read audio cache: %w", err)
	}
	entry.Key = key
	entry.CloudType = cloud.Type(cloudType)
	entry.CreatedAt = fromMillis(createdMs)
	return entry, true, nil
}

// PutAudio implements AudioCache.Put with insert semantics.
func (s *Store) PutAudio(ctx context.Context, key, audioURL, transcript string, cloudType cloud.Type) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_cache (content_hash, audio_url, transcript, cloud_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, audioURL, transcript, string(cloudType), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("write audio cache: %w", err)
	}
	return nil
}

// FallbackAudio returns a stored clear-sky entry, or the hardcoded placeholder
// when none exists or the read fails. It never errors: this is the last stop
// of the hard-failure path.
func (s *Store) FallbackAudio(ctx context.Context) (string, string) {
	row := s.db.QueryRowContext(ctx,
		`SELECT audio_url, transcript FROM audio_cache WHERE cloud_type = ? ORDER BY created_at ASC LIMIT 1`,
		string(cloud.Clear))
	var url, transcript string
	if err := row.Scan(&url, &transcript); err != nil {
		return FallbackAudioURL, FallbackTranscript
	}
	return url, transcript
}

// RecordPlay inserts a play-tracking row. Best-effort analytics; callers
// swallow the error.
func (s *Store) RecordPlay(ctx context.Context, userID, cardID, ip, city, region string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO card_plays (user_id, card_id, ip_address, city, region, played_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, cardID, ip, city, region, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// AudioStore adapts a Store to the AudioCache interface (the Store's weather
// methods already satisfy WeatherCache directly).
type AudioStore struct {
	*Store
}

// Get implements AudioCache.Get.
func (a AudioStore) Get(ctx context.Context, key string) (AudioEntry, bool, error) {
	return a.GetAudio(ctx, key)
}

// Put implements AudioCache.Put.
func (a AudioStore) Put(ctx context.Context, key, audioURL, transcript string, cloudType cloud.Type) error {
	return a.PutAudio(ctx, key, audioURL, transcript, cloudType)
}

// Fallback implements AudioCache.Fallback.
func (a AudioStore) Fallback(ctx context.Context) (string, string) {
	return a.FallbackAudio(ctx)
}
