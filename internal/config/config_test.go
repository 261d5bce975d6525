package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `server:
  port: "8080"
`

const fullEnvYAML = `server:
  port: "9090"
weather_api:
  url: "https://weather.example.com/data"
  timeout: "3s"
anthropic:
  model: "claude-haiku-4-5-20251001"
speech:
  provider: "elevenlabs"
  elevenlabs_voice: "storyteller"
storage:
  supabase_url: "https://project.supabase.co"
  bucket: "stories"
cache:
  weather_backend: "memcached"
  audio_backend: "sqlite"
  sqlite_path: "/var/lib/clouds/cache.db"
  memcached:
    addrs: "cache1:11211,cache2:11211"
    timeout: "250ms"
    max_idle_conns: 4
pipeline:
  failure_mode: "error"
  coalesce_enabled: true
  coalesce_timeout: "5s"
reliability:
  retry_max_attempts: 5
  rate_limit_rps: 50
  rate_limit_burst: 100
shutdown:
  timeout: "20s"
lifecycle:
  degraded_window: "2m"
  degraded_error_pct: 25
default_location:
  lat: 42.443
  lon: -71.2289
  city: "Lexington"
  region: "Massachusetts"
`

const allSecretsYAML = `weather_api_key: weather-secret
anthropic_api_key: anthropic-secret
google_tts_api_key: google-secret
elevenlabs_api_key: elevenlabs-secret
supabase_key: supabase-secret
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "secrets.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ENV_NAME", "WEATHER_API_KEY", "ANTHROPIC_API_KEY",
		"GOOGLE_TTS_API_KEY", "ELEVENLABS_API_KEY",
		"SUPABASE_URL", "SUPABASE_KEY",
		"WEATHER_CACHE_BACKEND", "AUDIO_CACHE_BACKEND",
		"SQLITE_PATH", "MEMCACHED_ADDRS",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad_FailsWhenNoWeatherAPIKey(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatalf("Load() = %+v, want error when no WEATHER_API_KEY", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_FailsWhenNoAnthropicKey(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: weather-secret\n")
	chdir(t, dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("Load() error = %v, want message containing ANTHROPIC_API_KEY", err)
	}
}

func TestLoad_SecretsFileSuppliesKeys(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, fullEnvYAML)
	writeSecretsFile(t, dir, allSecretsYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "weather-secret" {
		t.Errorf("WeatherAPIKey = %q", cfg.WeatherAPIKey)
	}
	if cfg.AnthropicAPIKey != "anthropic-secret" {
		t.Errorf("AnthropicAPIKey = %q", cfg.AnthropicAPIKey)
	}
	if cfg.SupabaseKey != "supabase-secret" {
		t.Errorf("SupabaseKey = %q", cfg.SupabaseKey)
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, fullEnvYAML)
	writeSecretsFile(t, dir, allSecretsYAML)
	chdir(t, dir)
	t.Setenv("WEATHER_API_KEY", "key-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want env value", cfg.WeatherAPIKey)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, fullEnvYAML)
	writeSecretsFile(t, dir, allSecretsYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.WeatherAPIURL != "https://weather.example.com/data" {
		t.Errorf("WeatherAPIURL = %q", cfg.WeatherAPIURL)
	}
	if cfg.WeatherAPITimeout != 3*time.Second {
		t.Errorf("WeatherAPITimeout = %v", cfg.WeatherAPITimeout)
	}
	if cfg.SpeechProvider != "elevenlabs" {
		t.Errorf("SpeechProvider = %q", cfg.SpeechProvider)
	}
	if cfg.WeatherCacheBackend != "memcached" {
		t.Errorf("WeatherCacheBackend = %q", cfg.WeatherCacheBackend)
	}
	if cfg.AudioCacheBackend != "sqlite" {
		t.Errorf("AudioCacheBackend = %q", cfg.AudioCacheBackend)
	}
	if cfg.SQLitePath != "/var/lib/clouds/cache.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.MemcachedAddrs != "cache1:11211,cache2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.FailureMode != "error" {
		t.Errorf("FailureMode = %q", cfg.FailureMode)
	}
	if !cfg.CoalesceEnabled || cfg.CoalesceTimeout != 5*time.Second {
		t.Errorf("coalesce = (%v, %v)", cfg.CoalesceEnabled, cfg.CoalesceTimeout)
	}
	if cfg.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d", cfg.RetryAttempts)
	}
	if cfg.DegradedWindow != 2*time.Minute || cfg.DegradedErrorPct != 25 {
		t.Errorf("degraded = (%v, %d)", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
	if cfg.DefaultCity != "Lexington" || cfg.DefaultLat != 42.443 {
		t.Errorf("default location = %q %v", cfg.DefaultCity, cfg.DefaultLat)
	}
	if cfg.SupabaseBucket != "stories" {
		t.Errorf("SupabaseBucket = %q", cfg.SupabaseBucket)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, allSecretsYAML+"\n")
	chdir(t, dir)
	// minimal config has no storage section; supply the URL via env
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FailureMode != "fallback_audio" {
		t.Errorf("FailureMode = %q, want fallback_audio default", cfg.FailureMode)
	}
	if cfg.WeatherCacheBackend != "in_memory" || cfg.AudioCacheBackend != "in_memory" {
		t.Errorf("backends = (%q, %q), want in_memory defaults", cfg.WeatherCacheBackend, cfg.AudioCacheBackend)
	}
	if cfg.SpeechProvider != "google" {
		t.Errorf("SpeechProvider = %q, want google default", cfg.SpeechProvider)
	}
	if cfg.SupabaseBucket != "cloud-audio" {
		t.Errorf("SupabaseBucket = %q, want cloud-audio default", cfg.SupabaseBucket)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = (%d, %d)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoad_InvalidFailureMode(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+`pipeline:
  failure_mode: "panic"
`)
	writeSecretsFile(t, dir, allSecretsYAML)
	chdir(t, dir)
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "failure_mode") {
		t.Fatalf("Load() error = %v, want failure_mode validation error", err)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, allSecretsYAML)
	chdir(t, dir)
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("WEATHER_CACHE_BACKEND", "redis")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "weather_backend") {
		t.Fatalf("Load() error = %v, want backend validation error", err)
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	clearKeyEnv(t)
	chdir(t, t.TempDir())

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v, want not-found error", err)
	}
}
