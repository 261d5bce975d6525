package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSupabaseUploader_UploadAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/cloud-audio/deadbeef.mp3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("x-upsert") != "true" {
			t.Error("missing x-upsert header")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "mp3-bytes" {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewSupabaseUploader(srv.URL, "service-key", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	url, err := up.UploadAudio(context.Background(), []byte("mp3-bytes"), "deadbeef")
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	want := srv.URL + "/storage/v1/object/public/cloud-audio/deadbeef.mp3"
	if url != want {
		t.Fatalf("UploadAudio = %q, want %q", url, want)
	}
}

func TestSupabaseUploader_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	up, err := NewSupabaseUploader(srv.URL, "service-key", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := up.UploadAudio(context.Background(), []byte("x"), "k"); err == nil {
		t.Fatal("UploadAudio succeeded on HTTP 503")
	}
}

func TestNewSupabaseUploader_Validation(t *testing.T) {
	if _, err := NewSupabaseUploader("", "key", "", 0); err == nil {
		t.Error("no error for empty base URL")
	}
	if _, err := NewSupabaseUploader("https://x", "", "", 0); err == nil {
		t.Error("no error for empty service key")
	}
}

var _ Uploader = (*SupabaseUploader)(nil)
