// Package service orchestrates one story request end to end: weather cache →
// provider fetch → cloud classification → audio cache → story generation →
// speech synthesis → blob upload. Both cache tiers are advisory; every
// storage failure is absorbed here and the request continues.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amarcher/about-those-clouds/internal/cache"
	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
	"github.com/amarcher/about-those-clouds/internal/observability"
	"github.com/amarcher/about-those-clouds/internal/speech"
	"github.com/amarcher/about-those-clouds/internal/storage"
	"github.com/amarcher/about-those-clouds/internal/story"
	"github.com/amarcher/about-those-clouds/internal/weather"
)

// FailureMode selects what the service does when the pipeline fails hard.
// The two behaviors both shipped at different points; the choice is a named
// deployment option, never a blend.
type FailureMode string

const (
	// FailureModeFallback serves the stored clear-sky narration so the player
	// always receives playable audio. Operators must watch logs and the
	// fallbackServesTotal counter, because responses will not show errors.
	FailureModeFallback FailureMode = "fallback_audio"
	// FailureModeError propagates a structured error to the transport layer.
	FailureModeError FailureMode = "error"
)

// Request is one inbound story request with its resolved location.
type Request struct {
	Location models.Location
	Children []models.Child
	UserID   string
	CardID   string
	ClientIP string
}

// Result is the playable outcome of a story request.
type Result struct {
	AudioURL   string
	Transcript string
	Cloud      cloud.Info
	Fallback   bool
	Source     string // weather+audio cache hit, generated, or fallback
}

// Source labels for Result.Source and the storiesServedTotal metric.
const (
	SourceAudioHit  = "audio_hit"
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

// PlayTracker records play events. Implementations are best-effort; the
// service never lets a tracking failure touch the response.
type PlayTracker interface {
	RecordPlay(ctx context.Context, userID, cardID, ip, city, region string) error
}

// StoryService composes the pipeline collaborators.
type StoryService struct {
	weather      weather.Client
	weatherCache cache.WeatherCache
	audioCache   cache.AudioCache
	generator    story.Generator
	synthesizer  speech.Synthesizer
	uploader     storage.Uploader
	tracker      PlayTracker
	failureMode  FailureMode
	coalescer    *weatherCoalescer // nil when coalescing disabled
	logger       *zap.Logger
}

// Options configures optional StoryService behavior.
type Options struct {
	FailureMode     FailureMode
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	Tracker         PlayTracker
}

// New creates a StoryService. A nil logger is replaced with a no-op logger;
// a nil Tracker disables play tracking.
func New(
	weatherClient weather.Client,
	weatherCache cache.WeatherCache,
	audioCache cache.AudioCache,
	generator story.Generator,
	synthesizer speech.Synthesizer,
	uploader storage.Uploader,
	logger *zap.Logger,
	opts Options,
) *StoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := opts.FailureMode
	if mode == "" {
		mode = FailureModeFallback
	}
	var coalescer *weatherCoalescer
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		coalescer = newWeatherCoalescer(opts.CoalesceTimeout)
	}
	return &StoryService{
		weather:      weatherClient,
		weatherCache: weatherCache,
		audioCache:   audioCache,
		generator:    generator,
		synthesizer:  synthesizer,
		uploader:     uploader,
		tracker:      opts.Tracker,
		failureMode:  mode,
		coalescer:    coalescer,
		logger:       logger,
	}
}

// GetStory runs the full pipeline for one request. Under FailureModeFallback
// it never returns an error: any hard failure degrades to the stored
// clear-sky entry. Under FailureModeError the pipeline error comes back and
// the transport layer decides the response shape.
func (s *StoryService) GetStory(ctx context.Context, req Request) (Result, error) {
	s.trackPlay(req)

	result, err := s.run(ctx, req)
	if err == nil {
		observability.StoriesServedTotal.WithLabelValues(result.Source, string(result.Cloud.Type)).Inc()
		return result, nil
	}

	if s.failureMode == FailureModeError {
		return Result{}, err
	}

	s.logger.Error("pipeline failed, serving fallback audio", zap.Error(err))
	observability.FallbackServesTotal.Inc()
	url, transcript := s.audioCache.Fallback(ctx)
	fallback := Result{
		AudioURL:   url,
		Transcript: transcript,
		Cloud:      cloud.Lookup(cloud.Clear),
		Fallback:   true,
		Source:     SourceFallback,
	}
	observability.StoriesServedTotal.WithLabelValues(SourceFallback, string(cloud.Clear)).Inc()
	return fallback, nil
}

func (s *StoryService) run(ctx context.Context, req Request) (Result, error) {
	weatherData, cloudInfo, err := s.weatherStage(ctx, req.Location)
	if err != nil {
		return Result{}, fmt.Errorf("weather stage: %w", err)
	}

	contentKey := cache.ContentKey(cloudInfo, weatherData)
	return s.audioStage(ctx, req, contentKey, weatherData, cloudInfo)
}

// weatherStage returns a fresh or cached observation with its classification.
func (s *StoryService) weatherStage(ctx context.Context, loc models.Location) (models.WeatherData, cloud.Info, error) {
	key := cache.LocationKey(loc.Lat, loc.Lon)

	entry, ok, err := s.weatherCache.Get(ctx, key)
	if err != nil {
		// Soft failure: treat as a miss and fetch fresh.
		observability.CacheErrorsTotal.WithLabelValues("weather", "get").Inc()
		s.logger.Warn("weather cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok && !cache.IsExpired(entry.CreatedAt) {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		s.logger.Debug("weather cache hit", zap.String("key", key), zap.String("cloudType", string(entry.Cloud.Type)))
		return entry.Weather, entry.Cloud, nil
	}

	fetch := func() (weatherResult, error) {
		data, fetchErr := s.weather.GetCurrentWeather(ctx, loc.Lat, loc.Lon)
		if fetchErr != nil {
			return weatherResult{}, fetchErr
		}
		return weatherResult{Weather: data, Cloud: cloud.Identify(data)}, nil
	}

	var result weatherResult
	if s.coalescer != nil {
		result, err = s.coalescer.GetOrDo(ctx, key, fetch)
	} else {
		result, err = fetch()
	}
	if err != nil {
		return models.WeatherData{}, cloud.Info{}, err
	}

	if putErr := s.weatherCache.Put(ctx, key, result.Weather, result.Cloud); putErr != nil {
		// Soft failure: the fresh data is already in hand.
		observability.CacheErrorsTotal.WithLabelValues("weather", "put").Inc()
		s.logger.Warn("weather cache write failed", zap.String("key", key), zap.Error(putErr))
	}
	s.logger.Debug("weather fetched and classified",
		zap.String("key", key),
		zap.String("cloudType", string(result.Cloud.Type)),
		zap.Int("coverage", result.Weather.Clouds.All))
	return result.Weather, result.Cloud, nil
}

// audioStage reuses cached narration when the request is anonymous, otherwise
// (or on a miss) generates, synthesizes, and uploads fresh audio.
// Personalized requests never touch the audio cache in either direction: a
// story addressed to one family's children must not serve another listener
// who shares the weather fingerprint.
func (s *StoryService) audioStage(ctx context.Context, req Request, contentKey string, weatherData models.WeatherData, cloudInfo cloud.Info) (Result, error) {
	personalized := len(req.Children) > 0

	if !personalized {
		entry, ok, err := s.audioCache.Get(ctx, contentKey)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("audio", "get").Inc()
			s.logger.Warn("audio cache read failed", zap.String("key", contentKey), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues("audio").Inc()
			s.logger.Debug("audio cache hit", zap.String("key", contentKey))
			return Result{
				AudioURL:   entry.AudioURL,
				Transcript: entry.Transcript,
				Cloud:      cloudInfo,
				Source:     SourceAudioHit,
			}, nil
		}
	}

	transcript, err := s.generator.Generate(ctx, story.Request{
		Cloud:    cloudInfo,
		Weather:  weatherData,
		Location: req.Location,
		Children: req.Children,
		Seed:     contentKey,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate story: %w", err)
	}

	audio, err := s.synthesizer.Synthesize(ctx, transcript)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize speech: %w", err)
	}

	audioURL, err := s.uploader.UploadAudio(ctx, audio, contentKey)
	if err != nil {
		return Result{}, fmt.Errorf("upload audio: %w", err)
	}

	if !personalized {
		if putErr := s.audioCache.Put(ctx, contentKey, audioURL, transcript, cloudInfo.Type); putErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("audio", "put").Inc()
			s.logger.Warn("audio cache write failed", zap.String("key", contentKey), zap.Error(putErr))
		}
	}

	return Result{
		AudioURL:   audioURL,
		Transcript: transcript,
		Cloud:      cloudInfo,
		Source:     SourceGenerated,
	}, nil
}

// trackPlay dispatches the play event without blocking or failing the
// request. The goroutine gets its own deadline because the request context
// may be gone before the insert lands.
func (s *StoryService) trackPlay(req Request) {
	if s.tracker == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracker.RecordPlay(ctx, req.UserID, req.CardID, req.ClientIP, req.Location.City, req.Location.Region); err != nil {
			observability.PlayTrackingFailuresTotal.Inc()
			s.logger.Warn("play tracking failed", zap.String("cardId", req.CardID), zap.Error(err))
		}
	}()
}
