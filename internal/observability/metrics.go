package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. The stream endpoint pays for every
	// upstream miss, so p99 here tracks the whole pipeline.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate, by status.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External weather API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Cache hits per tier (weather, audio).
	CacheHitsTotal *prometheus.CounterVec

	// Cache storage failures per tier and operation. These are always soft;
	// a rising rate means the store is sick even though requests still serve.
	CacheErrorsTotal *prometheus.CounterVec

	// Story generation latency (LLM call). Dominates cold-path response time.
	StoryGenerationDuration prometheus.Histogram

	// Speech synthesis latency (TTS call).
	SpeechSynthesisDuration prometheus.Histogram

	// Blob upload latency.
	AudioUploadDuration prometheus.Histogram

	// Responses served from the fallback clear-sky entry. Nonzero means the
	// pipeline failed hard but the player still got audio; alert on this, the
	// endpoint will not.
	FallbackServesTotal prometheus.Counter

	// Stories served, by source (weather_hit/audio_hit/generated) and cloud type.
	StoriesServedTotal *prometheus.CounterVec

	// Play-tracking insert failures. Fire-and-forget, so logs and this counter
	// are the only signal.
	PlayTrackingFailuresTotal prometheus.Counter

	// Rate limit denials (429s).
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits per tier",
		},
		[]string{"tier"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache storage failures per tier and operation (always non-fatal)",
		},
		[]string{"tier", "operation"},
	)
	StoryGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyGenerationDurationSeconds",
			Help:    "LLM story generation latency in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30},
		},
	)
	SpeechSynthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "speechSynthesisDurationSeconds",
			Help:    "Text-to-speech synthesis latency in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30},
		},
	)
	AudioUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audioUploadDurationSeconds",
			Help:    "Blob storage upload latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	FallbackServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fallbackServesTotal",
			Help: "Responses served from the fallback clear-sky entry after a hard pipeline failure",
		},
	)
	StoriesServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storiesServedTotal",
			Help: "Stories served, by source and cloud type",
		},
		[]string{"source", "cloudType"},
	)
	PlayTrackingFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playTrackingFailuresTotal",
			Help: "Failed play-tracking inserts (fire-and-forget, never fatal)",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal,
		StoryGenerationDuration, SpeechSynthesisDuration, AudioUploadDuration,
		FallbackServesTotal, StoriesServedTotal, PlayTrackingFailuresTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
