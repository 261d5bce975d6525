package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amarcher/about-those-clouds/internal/geo"
	"github.com/amarcher/about-those-clouds/internal/lifecycle"
	"github.com/amarcher/about-those-clouds/internal/models"
	"github.com/amarcher/about-those-clouds/internal/service"
	"github.com/amarcher/about-those-clouds/internal/traffic"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// CachePing, when set, checks weather cache reachability. Used when the
	// weather tier is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	stories      *service.StoryService
	resolver     geo.Resolver
	healthConfig *HealthConfig
	logger       *zap.Logger
	rateLimiter  *rate.Limiter

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	stories *service.StoryService,
	resolver geo.Resolver,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	return &Handler{
		stories:      stories,
		resolver:     resolver,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
	}
}

// streamResponse is the JSON body returned when the caller asks for
// application/json instead of a redirect.
type streamResponse struct {
	AudioURL   string `json:"audioUrl"`
	Transcript string `json:"transcript"`
	CloudType  string `json:"cloudType"`
	CloudName  string `json:"cloudName"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// StreamStory handles GET /stream/{cardId}. The default response is a 302 to
// the audio URL so dumb players can follow it directly; callers that accept
// JSON get the transcript and classification too.
func (h *Handler) StreamStory(w http.ResponseWriter, r *http.Request) {
	cardID := strings.TrimSpace(mux.Vars(r)["cardId"])
	if cardID == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_CARD", "cardId is required")
		return
	}

	children, err := parseChildren(r.URL.Query().Get("children"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CHILDREN", "children must be a JSON array of {name, age, pronouns}")
		return
	}

	clientIP := geo.ClientIP(r)
	location := h.resolver.Resolve(r.Context(), clientIP)

	result, err := h.stories.GetStory(r.Context(), service.Request{
		Location: location,
		Children: children,
		UserID:   r.URL.Query().Get("userId"),
		CardID:   cardID,
		ClientIP: clientIP,
	})
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, streamResponse{
			AudioURL:   result.AudioURL,
			Transcript: result.Transcript,
			CloudType:  string(result.Cloud.Type),
			CloudName:  result.Cloud.ScientificName,
			Fallback:   result.Fallback,
		})
		return
	}

	http.Redirect(w, r, result.AudioURL, http.StatusFound)
}

// parseChildren decodes the optional personalization payload. An absent or
// empty parameter means an anonymous request.
func parseChildren(raw string) ([]models.Child, error) {
	if raw == "" {
		return nil, nil
	}
	var children []models.Child
	if err := json.Unmarshal([]byte(raw), &children); err != nil {
		return nil, err
	}
	return children, nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["pipeline"] = "unhealthy"
	} else {
		checks["pipeline"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["weatherCache"] = "healthy"
		} else {
			checks["weatherCache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "about-those-clouds",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded (pipeline error rate) > healthy. A failing weather
// cache never degrades health on its own because the cache is advisory.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for pipeline failures. Reached only under
// the strict failure policy; the fallback policy never surfaces errors here.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "STORY_UNAVAILABLE", "Unable to produce a story right now")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("pipeline error", zap.Error(err))
	}
}
