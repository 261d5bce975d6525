package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.7" {
			t.Errorf("path = %q, want /203.0.113.7", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","lat":47.61,"lon":-122.33,"city":"Seattle","regionName":"Washington"}`))
	}))
	defer srv.Close()

	resolver := NewIPAPIResolver(srv.URL, time.Second)
	loc := resolver.Resolve(context.Background(), "203.0.113.7")
	if loc.City != "Seattle" || loc.Region != "Washington" {
		t.Fatalf("Resolve = %+v", loc)
	}
	if loc.Lat != 47.61 || loc.Lon != -122.33 {
		t.Fatalf("Resolve coords = %v,%v", loc.Lat, loc.Lon)
	}
}

func TestResolve_FailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"provider reports fail", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			resolver := NewIPAPIResolver(srv.URL, time.Second)
			loc := resolver.Resolve(context.Background(), "10.0.0.1")
			if loc != DefaultLocation {
				t.Fatalf("Resolve = %+v, want default location", loc)
			}
		})
	}
}

func TestResolve_UnreachableProvider(t *testing.T) {
	resolver := NewIPAPIResolver("http://127.0.0.1:1", 100*time.Millisecond)
	loc := resolver.Resolve(context.Background(), "203.0.113.7")
	if loc != DefaultLocation {
		t.Fatalf("Resolve = %+v, want default location", loc)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded-for single", "203.0.113.7", "", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded-for chain takes first", "203.0.113.7, 70.41.3.18", "", "10.0.0.1:1234", "203.0.113.7"},
		{"real-ip when no forwarded", "", "198.51.100.2", "10.0.0.1:1234", "198.51.100.2"},
		{"remote addr", "", "", "192.0.2.9:5555", "192.0.2.9"},
		{"loopback falls back to test IP", "", "", "127.0.0.1:5555", "8.8.8.8"},
		{"nothing usable", "", "", "bogus", "8.8.8.8"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(r); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
