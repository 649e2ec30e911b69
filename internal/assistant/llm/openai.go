package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"

	defaultDeepSeekBase  = "https://api.deepseek.com/v1"
	defaultDeepSeekModel = "deepseek-chat"

	defaultMistralBase  = "https://api.mistral.ai/v1"
	defaultMistralModel = "mistral-small-latest"
)

// openAIClient implements Completer against the OpenAI chat completions API.
// DeepSeek and Mistral expose the same wire format, so the three providers
// share this client and differ only in defaults.
type openAIClient struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI returns a Completer backed by the OpenAI (or compatible) chat
// API.  The returned client is safe for concurrent use.
func NewOpenAI(cfg Config) Completer {
	return newCompatible(cfg, defaultOpenAIBase, defaultOpenAIModel)
}

// NewDeepSeek returns a Completer for the DeepSeek chat API.
func NewDeepSeek(cfg Config) Completer {
	return newCompatible(cfg, defaultDeepSeekBase, defaultDeepSeekModel)
}

// NewMistral returns a Completer for the Mistral chat API.
func NewMistral(cfg Config) Completer {
	return newCompatible(cfg, defaultMistralBase, defaultMistralModel)
}

func newCompatible(cfg Config, base, model string) Completer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = base
	}
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends the conversation and returns the first choice's text.
func (c *openAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	wire := make([]oaiMessage, len(messages))
	for i, m := range messages {
		wire[i] = oaiMessage{Role: m.Role, Content: m.Content}
	}

	body := oaiRequest{
		Model:     c.cfg.Model,
		Messages:  wire,
		MaxTokens: 1024,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimit
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", fmt.Errorf("llm: decode API response: %w", err)
	}
	if oaiResp.Error != nil {
		return "", fmt.Errorf("llm: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned (HTTP %d)", resp.StatusCode)
	}

	return oaiResp.Choices[0].Message.Content, nil
}
