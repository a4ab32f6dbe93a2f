package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrCompletionFailed is returned once the retry budget of a completion is exhausted.
	ErrCompletionFailed = errors.New("completion failed")
	// ErrMissingAPIKey is returned when no credential is configured for the endpoint.
	ErrMissingAPIKey = errors.New("API key not configured")

	errNoChoices = errors.New("response contains no choices")
)

// Role tags a chat message.
type Role string

const (
	RoleSystem Role = openai.ChatMessageRoleSystem
	RoleUser   Role = openai.ChatMessageRoleUser
)

// Message is one role-tagged entry of a chat exchange.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage builds a system instruction message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user prompt message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// Config holds the endpoint and retry settings of a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per HTTP request
	MaxRetries  int           // total attempts, including the first
	RetryDelay  time.Duration // base delay between attempts
}

// DefaultConfig returns the settings used against the OpenAI endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   4096,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
	}
}

// Client performs single chat completions with retry and backoff.
// It holds no state shared between calls.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a completion client for one credential.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends the messages and returns the text of the first choice.
//
// A rate-limited attempt waits RetryDelay multiplied by the attempt number,
// any other failure waits RetryDelay. After the last attempt the error is
// wrapped in ErrCompletionFailed.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, ErrMissingAPIKey)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toChatMessages(messages),
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	}

	attempts := max(c.cfg.MaxRetries, 1)
	start := time.Now()

	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt

		content, err := c.complete(ctx, req)
		if err == nil {
			c.logger.Debug("completion succeeded",
				zap.Int("attempt", attempt),
				zap.Int("response_len", len(content)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return content, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts {
			break
		}

		wait := c.cfg.RetryDelay
		if IsRateLimited(err) {
			wait = c.cfg.RetryDelay * time.Duration(attempt)
			c.logger.Warn("rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
			)
		} else {
			c.logger.Warn("completion attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}

		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	c.logger.Error("completion failed",
		zap.Int("attempts", made),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(lastErr),
	)
	return "", fmt.Errorf("%w after %d attempts: %w", ErrCompletionFailed, made, lastErr)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// IsRateLimited reports whether err carries an HTTP 429 from the endpoint.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
