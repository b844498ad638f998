package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// ErrMissingAPIKey is returned before any network call when no credential is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

// ProviderError is a non-success answer of the completion API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

type OpenAIClient struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	// no client-level timeout: it would cut long streams, the caller's context bounds the call
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OpenAIClient{
		client:      httpClient,
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

func (c *OpenAIClient) Stream(
	ctx context.Context,
	systemPrompt string,
	history []Message,
) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)

	// system prompt goes first and only lives in the request
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	b, err := json.Marshal(openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode completion request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(b),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build completion request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "completion request")
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		perr := &ProviderError{StatusCode: resp.StatusCode}
		var apiErr openai.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil {
			perr.Message = apiErr.Error.Message
		}

		log.WithFields(log.Fields{
			"component": "ai",
			"status":    resp.StatusCode,
			"model":     c.model,
		}).Warnf("completion API error: %s", short(string(raw)))

		return nil, perr
	}

	return resp.Body, nil
}

func short(s string) string {
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
