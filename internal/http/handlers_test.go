package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amarcher/about-those-clouds/internal/cache"
	"github.com/amarcher/about-those-clouds/internal/lifecycle"
	"github.com/amarcher/about-those-clouds/internal/models"
	"github.com/amarcher/about-those-clouds/internal/service"
	"github.com/amarcher/about-those-clouds/internal/story"
	"github.com/amarcher/about-those-clouds/internal/traffic"
)

type stubWeatherClient struct {
	weather models.WeatherData
	err     error
}

func (s *stubWeatherClient) GetCurrentWeather(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	return s.weather, s.err
}

type stubGenerator struct {
	transcript string
	err        error
	lastReq    story.Request
}

func (s *stubGenerator) Generate(ctx context.Context, req story.Request) (string, error) {
	s.lastReq = req
	return s.transcript, s.err
}

type stubSynthesizer struct{}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("mp3"), nil
}

type stubUploader struct {
	url string
}

func (s *stubUploader) UploadAudio(ctx context.Context, audio []byte, contentHash string) (string, error) {
	return s.url, nil
}

type stubResolver struct {
	location models.Location
	lastIP   string
}

func (s *stubResolver) Resolve(ctx context.Context, ip string) models.Location {
	s.lastIP = ip
	return s.location
}

func partlyCloudy() models.WeatherData {
	w := models.WeatherData{Name: "Lexington"}
	w.Weather = []models.WeatherCondition{{ID: 802, Main: "Clouds", Description: "scattered clouds"}}
	w.Main.Temp = 72
	w.Clouds.All = 40
	return w
}

func newTestHandler(t *testing.T, gen *stubGenerator, clientErr error, mode service.FailureMode) (*Handler, *stubResolver) {
	t.Helper()
	svc := service.New(
		&stubWeatherClient{weather: partlyCloudy(), err: clientErr},
		cache.NewMemoryWeatherCache(),
		cache.NewMemoryAudioCache(),
		gen,
		&stubSynthesizer{},
		&stubUploader{url: "https://storage.example.com/audio/abc123.mp3"},
		zap.NewNop(),
		service.Options{FailureMode: mode},
	)
	resolver := &stubResolver{location: models.Location{Lat: 42.44, Lon: -71.23, City: "Lexington", Region: "Massachusetts"}}
	handler := NewHandler(svc, resolver, &HealthConfig{
		DegradedWindow:   time.Minute,
		DegradedErrorPct: 50,
		StartTime:        time.Now(),
	}, zap.NewNop(), nil)
	return handler, resolver
}

func newTestRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stream/{cardId}", h.StreamStory).Methods(http.MethodGet)
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	return r
}

// TestStreamStory_Redirect verifies the default response is a 302 to the
// audio URL.
func TestStreamStory_Redirect(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{transcript: "a cloud story"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "https://storage.example.com/audio/abc123.mp3" {
		t.Errorf("Location = %q", loc)
	}
}

// TestStreamStory_JSONResponse verifies the Accept: application/json variant
// carries the transcript and classification.
func TestStreamStory_JSONResponse(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{transcript: "a cloud story"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp streamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AudioURL != "https://storage.example.com/audio/abc123.mp3" {
		t.Errorf("audioUrl = %q", resp.AudioURL)
	}
	if resp.Transcript != "a cloud story" {
		t.Errorf("transcript = %q", resp.Transcript)
	}
	if resp.CloudType != "cumulus" {
		t.Errorf("cloudType = %q, want cumulus", resp.CloudType)
	}
	if resp.Fallback {
		t.Error("fallback = true on a healthy pipeline")
	}
}

// TestStreamStory_ChildrenParam verifies the personalization payload reaches
// the generator.
func TestStreamStory_ChildrenParam(t *testing.T) {
	traffic.Reset()
	gen := &stubGenerator{transcript: "a story for Maya and Leo"}
	handler, _ := newTestHandler(t, gen, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	children := url.QueryEscape(`[{"name":"Maya","age":5,"pronouns":"she/her"},{"name":"Leo","age":7,"pronouns":"he/him"}]`)
	req := httptest.NewRequest(http.MethodGet, "/stream/card-42?children="+children, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if len(gen.lastReq.Children) != 2 {
		t.Fatalf("generator children = %d, want 2", len(gen.lastReq.Children))
	}
	if gen.lastReq.Children[0].Name != "Maya" || gen.lastReq.Children[1].Name != "Leo" {
		t.Errorf("children = %+v", gen.lastReq.Children)
	}
}

// TestStreamStory_InvalidChildren verifies malformed personalization is a 400.
func TestStreamStory_InvalidChildren(t *testing.T) {
	handler, _ := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42?children=not-json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "INVALID_CHILDREN" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

// TestStreamStory_FallbackStillRedirects verifies that under the fallback
// policy a dead pipeline still yields a playable 302.
func TestStreamStory_FallbackStillRedirects(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{}, errors.New("provider down"), service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != cache.FallbackAudioURL {
		t.Errorf("Location = %q, want fallback URL", loc)
	}
}

// TestStreamStory_ErrorMode503 verifies the strict policy surfaces a 503
// with the standard error body.
func TestStreamStory_ErrorMode503(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{}, errors.New("provider down"), service.FailureModeError)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "STORY_UNAVAILABLE" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

// TestStreamStory_ResolverReceivesClientIP verifies the forwarded address is
// what geolocation sees.
func TestStreamStory_ResolverReceivesClientIP(t *testing.T) {
	traffic.Reset()
	handler, resolver := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/stream/card-42", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if resolver.lastIP != "198.51.100.7" {
		t.Errorf("resolver IP = %q, want first forwarded address", resolver.lastIP)
	}
}

// TestGetHealth_Healthy verifies the baseline healthy response shape.
func TestGetHealth_Healthy(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["pipeline"] != "healthy" {
		t.Errorf("pipeline check = %q", resp.Checks["pipeline"])
	}
}

// TestGetHealth_Degraded verifies the error-rate breach flips health to 503.
func TestGetHealth_Degraded(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	for i := 0; i < 9; i++ {
		traffic.RecordError()
	}
	traffic.RecordSuccess()

	handler, _ := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// TestGetHealth_ShuttingDown verifies the drain flag wins over everything.
func TestGetHealth_ShuttingDown(t *testing.T) {
	traffic.Reset()
	lifecycle.SetShuttingDown(true)
	t.Cleanup(func() { lifecycle.SetShuttingDown(false) })

	handler, _ := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "shutting-down" {
		t.Errorf("status = %q, want shutting-down", resp.Status)
	}
}

// TestGetHealth_CachePing verifies the optional cache check appears in the body.
func TestGetHealth_CachePing(t *testing.T) {
	traffic.Reset()
	handler, _ := newTestHandler(t, &stubGenerator{transcript: "x"}, nil, service.FailureModeFallback)
	handler.healthConfig.CachePing = func() error { return errors.New("memcached down") }
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Checks["weatherCache"] != "unhealthy" {
		t.Errorf("weatherCache check = %q, want unhealthy", resp.Checks["weatherCache"])
	}
	// Advisory tier: an unreachable cache alone never degrades overall health.
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

// TestRateLimitMiddleware verifies denials produce 429 with the standard body.
func TestRateLimitMiddleware(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimitMiddleware(limiter)(inner)

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/stream/x", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/stream/x", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

// TestCorrelationIDMiddleware verifies header propagation and generation.
func TestCorrelationIDMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := CorrelationIDMiddleware(zap.NewNop())(inner)

	t.Run("existing header echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Correlation-ID", "abc-123")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
			t.Errorf("X-Correlation-ID = %q, want abc-123", got)
		}
	})

	t.Run("missing header generated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Header().Get("X-Correlation-ID") == "" {
			t.Error("X-Correlation-ID not set")
		}
	})
}

// TestGetRoute verifies path normalization for metric labels.
func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/stream/card-1", "/stream/{cardId}"},
		{"/unknown", "/unknown"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if got := getRoute(req); got != tc.want {
			t.Errorf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
