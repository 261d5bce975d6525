package service

import (
	"context"
	"sync"
	"time"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

// weatherResult bundles an observation with its classification so coalesced
// callers all see the same pair.
type weatherResult struct {
	Weather models.WeatherData
	Cloud   cloud.Info
}

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  weatherResult
	err     error
	done    bool
	waiters []chan struct{}
}

// weatherCoalescer collapses concurrent fetches for the same location key
// into one upstream call. Without it, a burst of players in the same city
// right after cache expiry would each hit the weather provider.
type weatherCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newWeatherCoalescer(timeout time.Duration) *weatherCoalescer {
	return &weatherCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo checks if a fetch for key is already in-flight. If yes, waits for
// its result. If no, executes fn and registers the fetch. Respects context
// cancellation and timeout to prevent indefinite blocking.
func (wc *weatherCoalescer) GetOrDo(ctx context.Context, key string, fn func() (weatherResult, error)) (weatherResult, error) {
	wc.mu.Lock()
	req, exists := wc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result := req.result
			err := req.err
			req.mu.Unlock()
			wc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		wc.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, wc.timeout)
		defer cancel()
		select {
		case <-notify:
			req.mu.Lock()
			result := req.result
			err := req.err
			req.mu.Unlock()
			return result, err
		case <-waitCtx.Done():
			return weatherResult{}, waitCtx.Err()
		}
	}

	req = &inFlightFetch{
		waiters: make([]chan struct{}, 0),
	}
	wc.inFlight[key] = req
	wc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		wc.cleanup(key)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()
	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result := req.result
		err := req.err
		req.mu.Unlock()
		return result, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	select {
	case <-notify:
		req.mu.Lock()
		result := req.result
		err := req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return weatherResult{}, waitCtx.Err()
	}
}

// cleanup removes the in-flight fetch for key. Must be called after the fetch completes.
func (wc *weatherCoalescer) cleanup(key string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	delete(wc.inFlight, key)
}
