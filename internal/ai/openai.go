package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint. It
// implements both Classifier and Oracle. Requests are throttled client-side
// and bounded by the configured timeout.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewOpenAIClient(cfg config.AIConfig) *OpenAIClient {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

const classifyPrompt = `You rate how a news article affects the value of an ocean region.
Region: %s
Title: %s
Body: %s

Answer with exactly one word: positive, negative, or neutral.`

const verifyPrompt = `Does this photo show the following? %s
Answer with exactly one word: YES or NO.`

func (c *OpenAIClient) Classify(ctx context.Context, regionName, title, text string) (model.Sentiment, error) {
	answer, err := c.complete(ctx, "classifier", []chatMessage{
		{Role: "user", Content: fmt.Sprintf(classifyPrompt, regionName, title, text)},
	}, 5)
	if err != nil {
		return model.SentimentNeutral, err
	}
	return model.ParseSentiment(strings.ToLower(strings.Trim(answer, " .\n\"'"))), nil
}

func (c *OpenAIClient) Verify(ctx context.Context, image []byte, expected string) (bool, error) {
	if len(image) == 0 {
		return false, fmt.Errorf("%w: empty image", model.ErrExternalService)
	}
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	answer, err := c.complete(ctx, "oracle", []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: fmt.Sprintf(verifyPrompt, expected)},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}}, 3)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES"), nil
}

// complete sends one chat request and returns the first choice's text.
func (c *OpenAIClient) complete(ctx context.Context, service string, msgs []chatMessage, maxTokens int) (string, error) {
	answer, err := c.do(ctx, msgs, maxTokens)
	if err != nil {
		metrics.ExternalCalls.WithLabelValues(service, "error").Inc()
		return "", fmt.Errorf("%w: %s: %v", model.ErrExternalService, service, err)
	}
	metrics.ExternalCalls.WithLabelValues(service, "ok").Inc()
	return answer, nil
}

func (c *OpenAIClient) do(ctx context.Context, msgs []chatMessage, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error.message").String())
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("response has no choices")
	}
	return content.String(), nil
}
