package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultOpenAITimeout = 90 * time.Second

var ErrOpenAINotConfigured = errors.New("openai not configured")

type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	ModelMax          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type chatCompletionRequest struct {
	Model               string            `json:"model"`
	Messages            []entity.ChatTurn `json:"messages"`
	MaxCompletionTokens int               `json:"max_completion_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIClient calls the chat completions endpoint.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	requestLimiter *rate.Limiter
	breakers       *breaker.Registry
}

func NewOpenAIClient(cfg OpenAIConfig, breakers *breaker.Registry) *OpenAIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(nil)
	}

	return &OpenAIClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		requestLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breakers:       breakers,
	}
}

func (o *OpenAIClient) Enabled() bool {
	return o != nil && strings.TrimSpace(o.cfg.APIKey) != ""
}

// ModelFor picks the larger model for max mode.
func (o *OpenAIClient) ModelFor(mode string) string {
	if mode == entity.MentorModeMax && o.cfg.ModelMax != "" {
		return o.cfg.ModelMax
	}
	return o.cfg.Model
}

// Chat sends the conversation and returns the first choice, trimmed.
func (o *OpenAIClient) Chat(ctx context.Context, model string, messages []entity.ChatTurn, maxTokens int) (string, error) {
	if !o.Enabled() {
		return "", ErrOpenAINotConfigured
	}

	return breaker.Call(ctx, o.breakers, breaker.ProviderOpenAI, func(ctx context.Context) (string, error) {
		return o.sendRequest(ctx, chatCompletionRequest{
			Model:               model,
			Messages:            messages,
			MaxCompletionTokens: maxTokens,
		})
	}, nil)
}

func (o *OpenAIClient) sendRequest(ctx context.Context, payload chatCompletionRequest) (string, error) {
	if err := o.requestLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for request limit: %w", err)
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("failed to create new http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	logrus.WithFields(logrus.Fields{
		"model":    payload.Model,
		"messages": len(payload.Messages),
	}).Debug("sending request to openai")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to openai: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: breaker.ProviderOpenAI, Code: resp.StatusCode, Body: truncate(string(body), maxErrorBodyBytes)}
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
