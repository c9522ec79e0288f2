package transcribe

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

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	// maxTranscriptionWindow is the hard ceiling on a single transcription
	// call regardless of configuration.
	maxTranscriptionWindow = 2 * time.Minute
)

// Config captures the runtime settings required to talk to the transcription
// provider.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	MaxMediaBytes  int64
}

// Client wraps an HTTP transcription API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a transcription client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if timeout > maxTranscriptionWindow {
		timeout = maxTranscriptionWindow
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxMediaBytes:  cfg.MaxMediaBytes,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

// Configured reports whether the client has credentials to attempt a call.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// Segment is one timed span of transcript text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the provider's transcription result.
type Transcript struct {
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Segments   []Segment `json:"segments"`
	Confidence float64   `json:"confidence"`
}

// Request describes one transcription call.
type Request struct {
	MediaURL     string
	MediaBytes   int64
	LanguageHint string
}

type apiRequest struct {
	MediaURL string `json:"media_url"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// Transcribe submits the media at req.MediaURL for transcription. Oversized
// media is rejected with ErrResourceExhausted before any network call so
// callers can degrade to a no-transcript analysis instead of timing out
// expensively.
func (c *Client) Transcribe(ctx context.Context, req Request) (Transcript, error) {
	var empty Transcript
	if !c.Configured() {
		return empty, services.Wrap(services.ErrProviderUnavailable, "transcribe", "transcribe", "no transcription provider configured", nil)
	}
	if strings.TrimSpace(req.MediaURL) == "" {
		return empty, services.Wrap(services.ErrValidation, "transcribe", "transcribe", "media url required", nil)
	}
	if c.cfg.MaxMediaBytes > 0 && req.MediaBytes > c.cfg.MaxMediaBytes {
		return empty, services.Wrap(
			services.ErrResourceExhausted,
			"transcribe",
			"transcribe",
			fmt.Sprintf("media size %d exceeds limit %d", req.MediaBytes, c.cfg.MaxMediaBytes),
			nil,
		)
	}

	payload, err := json.Marshal(apiRequest{
		MediaURL: req.MediaURL,
		Model:    c.cfg.Model,
		Language: strings.TrimSpace(req.LanguageHint),
	})
	if err != nil {
		return empty, fmt.Errorf("marshal transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/transcriptions", bytes.NewReader(payload))
	if err != nil {
		return empty, fmt.Errorf("build transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return empty, services.Wrap(services.ErrTimeout, "transcribe", "transcribe", "transcription call timed out", err)
		}
		return empty, services.Wrap(services.ErrExternalAPI, "transcribe", "transcribe", "transcription call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return empty, services.Wrap(services.ErrExternalAPI, "transcribe", "transcribe", "read transcription response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return empty, services.Wrap(services.ErrAuth, "transcribe", "transcribe", fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return empty, services.Wrap(services.ErrExternalAPI, "transcribe", "transcribe", fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	}

	var transcript Transcript
	if err := json.Unmarshal(body, &transcript); err != nil {
		return empty, services.Wrap(services.ErrParse, "transcribe", "transcribe", "decode transcription response", err)
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return empty, services.Wrap(services.ErrParse, "transcribe", "transcribe", "transcription response contained no text", nil)
	}
	if transcript.Confidence < 0 {
		transcript.Confidence = 0
	}
	if transcript.Confidence > 1 {
		transcript.Confidence = 1
	}
	return transcript, nil
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func snippet(body []byte) string {
	const maxLen = 200
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxLen {
		return trimmed[:maxLen] + "..."
	}
	return trimmed
}
