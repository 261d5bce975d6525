// Package story generates the narrated Milo the Cloud adventure text. The
// narrative branch (Milo found or Milo away) follows the cloud family check,
// and the prompt quotes the classifier's metadata verbatim.
package story

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
	"github.com/amarcher/about-those-clouds/internal/observability"
)

// ErrGeneration wraps any story generation failure; the orchestrator treats it
// as a hard pipeline error.
var ErrGeneration = errors.New("story generation failed")

// Request carries everything the generator needs for one story.
type Request struct {
	Cloud    cloud.Info
	Weather  models.WeatherData
	Location models.Location
	Children []models.Child
	// Seed makes the adventure-city pick deterministic so stories sharing a
	// content key stay cache-consistent. Empty seed falls back to random.
	Seed string
}

// Generator produces the spoken story script.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const (
	defaultAPIURL  = "https://api.anthropic.com/v1/messages"
	defaultModel   = "claude-haiku-4-5-20251001"
	apiVersion     = "2023-06-01"
	storyMaxTokens = 512 // stories run 300-400 tokens
)

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewAnthropicGenerator creates a generator. apiURL and model default to the
// production endpoint and the haiku model when empty.
func NewAnthropicGenerator(apiKey, apiURL, model string, timeout time.Duration) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrGeneration)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicGenerator{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate builds the prompt for the appropriate narrative branch and returns
// the spoken script.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	prompt := BuildPrompt(req)

	body, err := json.Marshal(messagesRequest{
		Model:     g.model,
		MaxTokens: storyMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrGeneration, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	observability.StoryGenerationDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrGeneration, resp.StatusCode, raw)
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrGeneration, err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: response contained no text", ErrGeneration)
}
