package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amarcher/about-those-clouds/internal/cache"
	"github.com/amarcher/about-those-clouds/internal/config"
	"github.com/amarcher/about-those-clouds/internal/geo"
	httphandler "github.com/amarcher/about-those-clouds/internal/http"
	"github.com/amarcher/about-those-clouds/internal/lifecycle"
	"github.com/amarcher/about-those-clouds/internal/models"
	"github.com/amarcher/about-those-clouds/internal/observability"
	"github.com/amarcher/about-those-clouds/internal/service"
	"github.com/amarcher/about-those-clouds/internal/speech"
	"github.com/amarcher/about-those-clouds/internal/storage"
	"github.com/amarcher/about-those-clouds/internal/story"
	"github.com/amarcher/about-those-clouds/internal/weather"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := weather.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	resolver := geo.NewIPAPIResolver("", 2*time.Second)
	resolver.SetFallback(models.Location{
		Lat:    cfg.DefaultLat,
		Lon:    cfg.DefaultLon,
		City:   cfg.DefaultCity,
		Region: cfg.DefaultRegion,
	})

	generator, err := story.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicAPIURL, cfg.AnthropicModel, cfg.RequestTimeout)
	if err != nil {
		logger.Fatal("story generator", zap.Error(err))
	}

	var synthesizer speech.Synthesizer
	switch cfg.SpeechProvider {
	case "elevenlabs":
		synthesizer, err = speech.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, "", cfg.ElevenLabsVoice, cfg.RequestTimeout)
	default:
		synthesizer, err = speech.NewGoogleSynthesizer(cfg.GoogleTTSAPIKey, "", cfg.GoogleTTSVoice, cfg.RequestTimeout)
	}
	if err != nil {
		logger.Fatal("speech synthesizer", zap.Error(err))
	}

	uploader, err := storage.NewSupabaseUploader(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, cfg.RequestTimeout)
	if err != nil {
		logger.Fatal("audio uploader", zap.Error(err))
	}

	// A single sqlite store backs whichever tiers ask for it, plus play
	// tracking. In-memory-only deployments run without tracking.
	var store *cache.Store
	needsSQLite := cfg.WeatherCacheBackend == "sqlite" || cfg.AudioCacheBackend == "sqlite"
	if needsSQLite {
		store, err = cache.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite cache", zap.Error(err))
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
	}

	var weatherCache cache.WeatherCache
	var memcacheCloser *cache.MemcachedWeatherCache
	switch cfg.WeatherCacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedWeatherCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		weatherCache = mc
		logger.Info("weather cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "sqlite":
		weatherCache = store
		logger.Info("weather cache backend: sqlite")
	default:
		weatherCache = cache.NewMemoryWeatherCache()
		logger.Info("weather cache backend: in_memory")
	}

	var audioCache cache.AudioCache
	switch cfg.AudioCacheBackend {
	case "sqlite":
		audioCache = cache.AudioStore{Store: store}
		logger.Info("audio cache backend: sqlite")
	default:
		audioCache = cache.NewMemoryAudioCache()
		logger.Info("audio cache backend: in_memory")
	}

	var tracker service.PlayTracker
	if store != nil {
		tracker = store
	}

	stories := service.New(weatherClient, weatherCache, audioCache, generator, synthesizer, uploader, logger, service.Options{
		FailureMode:     service.FailureMode(cfg.FailureMode),
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
		Tracker:         tracker,
	})

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	} else if store != nil {
		healthConfig.CachePing = store.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(stories, resolver, healthConfig, logger, limiter)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	streamRouter := router.PathPrefix("/stream").Subrouter()
	streamRouter.Use(httphandler.RateLimitMiddleware(limiter))
	streamRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	streamRouter.HandleFunc("/{cardId}", handler.StreamStory).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // story generation plus synthesis can run long
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("sqlite close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
