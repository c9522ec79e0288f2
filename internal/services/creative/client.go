package creative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
)

const (
	jsonResponseType      = "json_object"
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Config captures the runtime settings for the creative-scoring provider.
// SecondaryModel is a reduced-fidelity fallback used when the primary model
// is unavailable; the model that actually served a request is always
// reported on the result.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	SecondaryModel string
	TimeoutSeconds int
}

// Client wraps a chat-completion API for creative scoring.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
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

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a creative-scoring client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			SecondaryModel: strings.TrimSpace(cfg.SecondaryModel),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
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
	return c.cfg.APIKey != "" && c.cfg.BaseURL != "" && c.cfg.Model != ""
}

// OrgContext carries the organizational framing for scoring.
type OrgContext struct {
	OrgID           string
	TargetAudience  string
	BrandGuidelines string
	PlatformType    string
}

// ParameterScore is one entry in the per-parameter breakdown.
type ParameterScore struct {
	Parameter string  `json:"parameter"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
}

// Scores is the structured creative analysis output. All score fields are
// clamped to the 0-100 range at the parse boundary; out-of-range provider
// values never propagate.
type Scores struct {
	CreativeScore   float64          `json:"creative_score"`
	RiskScore       float64          `json:"risk_score"`
	BrandFitScore   float64          `json:"brand_fit_score"`
	Parameters      []ParameterScore `json:"parameters"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations"`
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("creative request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// AnalyzeTranscript scores a transcript against the organizational context.
// The primary model is tried first; when it is unavailable the secondary
// model serves the request at reduced fidelity, and the result records
// which model actually ran.
func (c *Client) AnalyzeTranscript(ctx context.Context, transcript string, orgCtx OrgContext) (Scores, error) {
	var empty Scores
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return empty, services.Wrap(services.ErrValidation, "creative", "analyze", "transcript required", nil)
	}
	if !c.Configured() {
		return empty, services.Wrap(services.ErrProviderUnavailable, "creative", "analyze", "no creative provider configured", nil)
	}

	userPrompt := buildScoringPrompt(transcript, orgCtx)

	content, model, err := c.completeWithFallback(ctx, scoringSystemPrompt, userPrompt)
	if err != nil {
		return empty, err
	}

	var scores Scores
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		return empty, services.Wrap(services.ErrParse, "creative", "analyze", "decode scoring payload", err)
	}
	scores.Model = model
	scores.Provider = "chat-completions"
	clampScores(&scores)
	return scores, nil
}

func (c *Client) completeWithFallback(ctx context.Context, systemPrompt, userPrompt string) (string, string, error) {
	content, err := c.completeJSON(ctx, c.cfg.Model, systemPrompt, userPrompt)
	if err == nil {
		return content, c.cfg.Model, nil
	}
	if c.cfg.SecondaryModel == "" || !isProviderUnavailable(err) {
		return "", "", err
	}

	content, fallbackErr := c.completeJSON(ctx, c.cfg.SecondaryModel, systemPrompt, userPrompt)
	if fallbackErr != nil {
		return "", "", errors.Join(err, fallbackErr)
	}
	return content, c.cfg.SecondaryModel, nil
}

func isProviderUnavailable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound ||
			statusErr.StatusCode == http.StatusServiceUnavailable ||
			statusErr.StatusCode == http.StatusBadGateway
	}
	return errors.Is(err, services.ErrTimeout) || errors.Is(err, services.ErrProviderUnavailable)
}

func (c *Client) completeJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("creative complete: failed after %d attempts: %w", attempts, lastErr)
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("creative request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("creative request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("creative request: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("creative request: read body: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", services.Wrap(services.ErrAuth, "creative", "complete", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrParse, "creative", "complete", "decode response", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("creative request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", services.Wrap(services.ErrParse, "creative", "complete", "empty completion content", nil)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if seconds, err := time.ParseDuration(header + "s"); err == nil {
		return seconds, true
	}
	if at, err := http.ParseTime(header); err == nil {
		if until := time.Until(at); until > 0 {
			return until, true
		}
	}
	return 0, false
}

func clampScores(scores *Scores) {
	scores.CreativeScore = clamp(scores.CreativeScore)
	scores.RiskScore = clamp(scores.RiskScore)
	scores.BrandFitScore = clamp(scores.BrandFitScore)
	for i := range scores.Parameters {
		scores.Parameters[i].Score = clamp(scores.Parameters[i].Score)
	}
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
