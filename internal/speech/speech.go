// Package speech converts story transcripts to MP3 audio. Two backends exist:
// Google Cloud TTS (default) and ElevenLabs; both return complete audio
// buffers rather than streams because the result is uploaded, not piped.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amarcher/about-those-clouds/internal/observability"
)

// ErrSynthesis wraps any TTS failure; the orchestrator treats it as a hard
// pipeline error.
var ErrSynthesis = errors.New("speech synthesis failed")

// Synthesizer produces MP3 audio for a transcript.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// GoogleSynthesizer calls the Google Cloud text:synthesize endpoint.
type GoogleSynthesizer struct {
	apiKey string
	apiURL string
	voice  string
	client *http.Client
}

const (
	defaultGoogleTTSURL = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultGoogleVoice  = "en-US-Neural2-C"
)

// NewGoogleSynthesizer creates a Google TTS client. apiURL and voice default
// to production values when empty.
func NewGoogleSynthesizer(apiKey, apiURL, voice string, timeout time.Duration) (*GoogleSynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrSynthesis)
	}
	if apiURL == "" {
		apiURL = defaultGoogleTTSURL
	}
	if voice == "" {
		voice = defaultGoogleVoice
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleSynthesizer{
		apiKey: apiKey,
		apiURL: apiURL,
		voice:  voice,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type googleTTSRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
		SSMLGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		Pitch         float64 `json:"pitch"`
	} `json:"audioConfig"`
}

// Synthesize returns MP3 bytes for text.
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()

	var reqBody googleTTSRequest
	reqBody.Input.Text = text
	reqBody.Voice.LanguageCode = "en-US"
	reqBody.Voice.Name = s.voice
	reqBody.Voice.SSMLGender = "FEMALE"
	reqBody.AudioConfig.AudioEncoding = "MP3"
	reqBody.AudioConfig.SpeakingRate = 1.0

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"?key="+s.apiKey, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	observability.SpeechSynthesisDuration.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrSynthesis, resp.StatusCode, truncate(body))
	}

	var parsed struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrSynthesis, err)
	}
	if parsed.AudioContent == "" {
		return nil, fmt.Errorf("%w: no audio content returned", ErrSynthesis)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("%w: decode audio: %v", ErrSynthesis, err)
	}
	return audio, nil
}

// ElevenLabsSynthesizer calls the ElevenLabs text-to-speech endpoint, which
// returns raw MP3 bytes directly.
type ElevenLabsSynthesizer struct {
	apiKey  string
	apiURL  string
	voiceID string
	client  *http.Client
}

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultElevenLabsVoice = "EXAVITQu4vr4xnSDxMaL"
)

// NewElevenLabsSynthesizer creates an ElevenLabs TTS client.
func NewElevenLabsSynthesizer(apiKey, apiURL, voiceID string, timeout time.Duration) (*ElevenLabsSynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrSynthesis)
	}
	if apiURL == "" {
		apiURL = defaultElevenLabsURL
	}
	if voiceID == "" {
		voiceID = defaultElevenLabsVoice
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabsSynthesizer{
		apiKey:  apiKey,
		apiURL:  apiURL,
		voiceID: voiceID,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type elevenLabsRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

// Synthesize returns MP3 bytes for text.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()

	var reqBody elevenLabsRequest
	reqBody.Text = text
	reqBody.ModelID = "eleven_monolingual_v1"
	reqBody.VoiceSettings.Stability = 0.5
	reqBody.VoiceSettings.SimilarityBoost = 0.75

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/"+s.voiceID, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	observability.SpeechSynthesisDuration.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrSynthesis, resp.StatusCode, truncate(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesis)
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
