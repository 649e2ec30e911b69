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
	defaultGeminiBase  = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-1.5-flash"
)

// geminiClient implements Completer against the Google generateContent API.
// The wire format differs from the OpenAI shape: system messages travel in a
// separate systemInstruction block and the key is a query parameter.
type geminiClient struct {
	cfg    Config
	client *http.Client
}

// NewGemini returns a Completer for the Google Gemini API.
func NewGemini(cfg Config) Completer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal generateContent wire types ---

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation and returns the first candidate's text.
func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := geminiRequest{}
	for _, m := range messages {
		if m.Role == "system" {
			if req.SystemInstruction == nil {
				req.SystemInstruction = &geminiContent{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, geminiPart{Text: m.Content})
			continue
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var gResp geminiResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return "", fmt.Errorf("llm: decode API response: %w", err)
	}
	if gResp.Error != nil {
		return "", fmt.Errorf("llm: API error (%s): %s", gResp.Error.Status, gResp.Error.Message)
	}
	if len(gResp.Candidates) == 0 || len(gResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: no candidates returned (HTTP %d)", resp.StatusCode)
	}

	return gResp.Candidates[0].Content.Parts[0].Text, nil
}
