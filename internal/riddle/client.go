package riddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIURL = "https://api.anthropic.com/v1/messages"
	defaultModel    = "claude-sonnet-4-20250514"
	maxTokens       = 200
	temperature     = 0.9
)

// ErrNoAPIKey is returned by NewClient when no key is configured.
var ErrNoAPIKey = errors.New("riddle: no API key configured")

var themes = map[int]string{
	1: "colors, unity, and awakening consciousness",
	2: "symbols, connections, and resonating patterns",
	3: "fragments, alignment, and cosmic convergence",
}

// Theme returns the riddle theme for a phase.
func Theme(phase int) string {
	if t, ok := themes[phase]; ok {
		return t
	}
	return "cosmic mysteries"
}

// Client generates riddles through the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithModel overrides the model name.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at another endpoint (used by tests).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a Client for apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    anthropicAPIURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Generate asks the model for a single-word-answer riddle themed on phase.
func (c *Client) Generate(ctx context.Context, phase int, recent []string) (Riddle, error) {
	theme := Theme(phase)
	body, err := json.Marshal(request{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      systemPrompt(theme, recent),
		Messages: []message{
			{Role: "user", Content: fmt.Sprintf("Generate a riddle for Phase %d about %s.", phase, theme)},
		},
	})
	if err != nil {
		return Riddle{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Riddle{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Riddle{}, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Riddle{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Riddle{}, fmt.Errorf("API status %d", resp.StatusCode)
	}

	var apiResp response
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return Riddle{}, fmt.Errorf("unmarshaling response: %w", err)
	}
	if apiResp.Error != nil {
		return Riddle{}, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return Riddle{}, fmt.Errorf("empty response from API")
	}
	return parseRiddle(apiResp.Content[0].Text)
}

// parseRiddle decodes the model's JSON reply, tolerating a markdown fence.
func parseRiddle(text string) (Riddle, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var r Riddle
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err != nil {
		return Riddle{}, fmt.Errorf("decoding riddle: %w", err)
	}
	r.Text = strings.TrimSpace(r.Text)
	r.Answer = strings.TrimSpace(r.Answer)
	if r.Text == "" || Normalize(r.Answer) == "" {
		return Riddle{}, errors.New("riddle missing text or answer")
	}
	return r, nil
}

func systemPrompt(theme string, recent []string) string {
	prev := strings.Join(recent, ", ")
	if prev == "" {
		prev = "none yet"
	}

	var sb strings.Builder
	sb.WriteString("You are a mystical oracle creating riddles for The Tesseract game. ")
	sb.WriteString(fmt.Sprintf("Create riddles themed around %s. Each riddle should be:\n", theme))
	sb.WriteString("- Short (2-3 lines max)\n")
	sb.WriteString("- Mystical and cosmic in tone\n")
	sb.WriteString("- Have a single-word answer\n")
	sb.WriteString("- Be solvable with thought\n")
	sb.WriteString(fmt.Sprintf("- Different from previous riddles: %s\n\n", prev))
	sb.WriteString("Return ONLY a JSON object with this format:\n")
	sb.WriteString(`{"riddle": "the riddle text", "answer": "single word answer", "alternateAnswers": ["optional synonyms"], "hint": "optional hint if stuck"}`)
	return sb.String()
}
