// Package geo resolves caller IPs to coarse locations via ip-api.com.
// Resolution fails open: any provider problem yields the default location so
// the story pipeline never dies at its first stage.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/amarcher/about-those-clouds/internal/models"
)

// DefaultLocation is served whenever resolution fails or the provider reports
// failure (private IPs, unroutable addresses).
var DefaultLocation = models.Location{
	Lat:    42.443,
	Lon:    -71.2289,
	City:   "Lexington",
	Region: "MA",
}

// Resolver looks up locations by IP.
type Resolver interface {
	Resolve(ctx context.Context, ip string) models.Location
}

// IPAPIResolver resolves against the ip-api.com JSON endpoint.
type IPAPIResolver struct {
	baseURL  string
	client   *http.Client
	fallback models.Location
}

// NewIPAPIResolver creates a resolver. baseURL defaults to the public
// ip-api.com endpoint when empty.
func NewIPAPIResolver(baseURL string, timeout time.Duration) *IPAPIResolver {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &IPAPIResolver{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		fallback: DefaultLocation,
	}
}

// SetFallback replaces the location served on resolution failure. Zero
// coordinates are ignored so a blank config keeps the default.
func (r *IPAPIResolver) SetFallback(loc models.Location) {
	if loc.Lat == 0 && loc.Lon == 0 {
		return
	}
	r.fallback = loc
}

type ipAPIResponse struct {
	Status     string  `json:"status"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
}

// Resolve returns the location for ip, or the default location on any failure.
// It never returns an error: geolocation degrades, it does not abort.
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) models.Location {
	loc, err := r.resolve(ctx, ip)
	if err != nil {
		return r.fallback
	}
	return loc
}

func (r *IPAPIResolver) resolve(ctx context.Context, ip string) (models.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+ip, nil)
	if err != nil {
		return models.Location{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("geolocation status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Location{}, fmt.Errorf("parse response: %w", err)
	}
	if body.Status == "fail" {
		return models.Location{}, fmt.Errorf("geolocation failed for %s", ip)
	}
	return models.Location{
		Lat:    body.Lat,
		Lon:    body.Lon,
		City:   body.City,
		Region: body.RegionName,
	}, nil
}

// ClientIP extracts the caller IP from proxy headers, falling back to the
// connection remote address and finally to a public test IP so development
// behind localhost still resolves somewhere.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" && !isLoopback(host) {
		return host
	}
	return "8.8.8.8"
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
