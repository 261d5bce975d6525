// Package storage uploads generated audio to blob storage and hands back
// public URLs for the player to stream.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amarcher/about-those-clouds/internal/observability"
)

// ErrStorage wraps any upload failure; the orchestrator treats it as a hard
// pipeline error.
var ErrStorage = errors.New("blob storage failed")

// Uploader stores audio bytes under a content-derived name and returns a
// public URL.
type Uploader interface {
	UploadAudio(ctx context.Context, audio []byte, contentHash string) (string, error)
}

// SupabaseUploader stores objects in a Supabase Storage bucket with upsert, so
// concurrent builders for the same content hash converge on one object.
type SupabaseUploader struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

// NewSupabaseUploader creates an uploader for the given project URL and
// bucket. bucket defaults to "cloud-audio" when empty.
func NewSupabaseUploader(baseURL, serviceKey, bucket string, timeout time.Duration) (*SupabaseUploader, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrStorage)
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("%w: service key is required", ErrStorage)
	}
	if bucket == "" {
		bucket = "cloud-audio"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SupabaseUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// UploadAudio stores audio as {contentHash}.mp3 and returns its public URL.
func (u *SupabaseUploader) UploadAudio(ctx context.Context, audio []byte, contentHash string) (string, error) {
	start := time.Now()
	fileName := contentHash + ".mp3"
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrStorage, err)
	}
	req.Header.Set("Content-Type", "audio/mpeg")
	req.Header.Set("Authorization", "Bearer "+u.serviceKey)
	req.Header.Set("x-upsert", "true")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer resp.Body.Close()

	observability.AudioUploadDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrStorage, resp.StatusCode, body)
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, fileName), nil
}
