package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	AnthropicAPIKey string
	AnthropicAPIURL string
	AnthropicModel  string

	SpeechProvider   string // "google" or "elevenlabs"
	GoogleTTSAPIKey  string
	GoogleTTSVoice   string
	ElevenLabsAPIKey string
	ElevenLabsVoice  string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	RequestTimeout time.Duration

	WeatherCacheBackend string // "in_memory", "memcached", or "sqlite"
	AudioCacheBackend   string // "in_memory" or "sqlite"
	SQLitePath          string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	FailureMode     string // "fallback_audio" or "error"
	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	DefaultLat    float64
	DefaultLon    float64
	DefaultCity   string
	DefaultRegion string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Anthropic struct {
		URL   string `yaml:"url"`
		Model string `yaml:"model"`
	} `yaml:"anthropic"`

	Speech struct {
		Provider        string `yaml:"provider"`
		GoogleVoice     string `yaml:"google_voice"`
		ElevenLabsVoice string `yaml:"elevenlabs_voice"`
	} `yaml:"speech"`

	Storage struct {
		SupabaseURL string `yaml:"supabase_url"`
		Bucket      string `yaml:"bucket"`
	} `yaml:"storage"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		WeatherBackend string `yaml:"weather_backend"`
		AudioBackend   string `yaml:"audio_backend"`
		SQLitePath     string `yaml:"sqlite_path"`
		Memcached      struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Pipeline struct {
		FailureMode     string `yaml:"failure_mode"`
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"pipeline"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	DefaultLocation struct {
		Lat    float64 `yaml:"lat"`
		Lon    float64 `yaml:"lon"`
		City   string  `yaml:"city"`
		Region string  `yaml:"region"`
	} `yaml:"default_location"`
}

type secretsFile struct {
	WeatherAPIKey    string `yaml:"weather_api_key"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	GoogleTTSAPIKey  string `yaml:"google_tts_api_key"`
	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key"`
	SupabaseKey      string `yaml:"supabase_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. API keys come from env first, then the secrets file.
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 2*time.Second)

	cfg.AnthropicAPIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), sec.AnthropicAPIKey)
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY required (set env or config/secrets.yaml anthropic_api_key)")
	}
	cfg.AnthropicAPIURL = fc.Anthropic.URL
	if cfg.AnthropicAPIURL == "" {
		cfg.AnthropicAPIURL = "https://api.anthropic.com/v1/messages"
	}
	cfg.AnthropicModel = fc.Anthropic.Model

	cfg.SpeechProvider = strings.TrimSpace(strings.ToLower(fc.Speech.Provider))
	if cfg.SpeechProvider == "" {
		cfg.SpeechProvider = "google"
	}
	cfg.GoogleTTSAPIKey = firstNonEmpty(os.Getenv("GOOGLE_TTS_API_KEY"), sec.GoogleTTSAPIKey)
	cfg.GoogleTTSVoice = fc.Speech.GoogleVoice
	cfg.ElevenLabsAPIKey = firstNonEmpty(os.Getenv("ELEVENLABS_API_KEY"), sec.ElevenLabsAPIKey)
	cfg.ElevenLabsVoice = fc.Speech.ElevenLabsVoice

	cfg.SupabaseURL = firstNonEmpty(os.Getenv("SUPABASE_URL"), fc.Storage.SupabaseURL)
	cfg.SupabaseKey = firstNonEmpty(os.Getenv("SUPABASE_KEY"), sec.SupabaseKey)
	cfg.SupabaseBucket = fc.Storage.Bucket
	if cfg.SupabaseBucket == "" {
		cfg.SupabaseBucket = "cloud-audio"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.WeatherCacheBackend = backendName(os.Getenv("WEATHER_CACHE_BACKEND"), fc.Cache.WeatherBackend, "in_memory")
	cfg.AudioCacheBackend = backendName(os.Getenv("AUDIO_CACHE_BACKEND"), fc.Cache.AudioBackend, "in_memory")
	cfg.SQLitePath = firstNonEmpty(os.Getenv("SQLITE_PATH"), fc.Cache.SQLitePath)
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "data/clouds.db"
	}

	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.FailureMode = strings.TrimSpace(strings.ToLower(fc.Pipeline.FailureMode))
	if cfg.FailureMode == "" {
		cfg.FailureMode = "fallback_audio"
	}
	cfg.CoalesceEnabled = fc.Pipeline.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Pipeline.CoalesceTimeout, 10*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.DefaultLat = fc.DefaultLocation.Lat
	cfg.DefaultLon = fc.DefaultLocation.Lon
	cfg.DefaultCity = fc.DefaultLocation.City
	cfg.DefaultRegion = fc.DefaultLocation.Region

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func backendName(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.WeatherCacheBackend {
	case "in_memory", "memcached", "sqlite":
	default:
		return fmt.Errorf("cache.weather_backend must be in_memory, memcached, or sqlite, got %q", cfg.WeatherCacheBackend)
	}
	switch cfg.AudioCacheBackend {
	case "in_memory", "sqlite":
	default:
		return fmt.Errorf("cache.audio_backend must be in_memory or sqlite, got %q", cfg.AudioCacheBackend)
	}
	switch cfg.FailureMode {
	case "fallback_audio", "error":
	default:
		return fmt.Errorf("pipeline.failure_mode must be fallback_audio or error, got %q", cfg.FailureMode)
	}
	switch cfg.SpeechProvider {
	case "google":
		if cfg.GoogleTTSAPIKey == "" {
			return fmt.Errorf("GOOGLE_TTS_API_KEY required for speech.provider google")
		}
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY required for speech.provider elevenlabs")
		}
	default:
		return fmt.Errorf("speech.provider must be google or elevenlabs, got %q", cfg.SpeechProvider)
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY required for audio storage")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	return nil
}
