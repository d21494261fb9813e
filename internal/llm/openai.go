package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI performs chat completions against any OpenAI-compatible
// endpoint.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// OpenAIOption configures the client.
type OpenAIOption func(*OpenAI)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAI) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAI) {
		c.http = hc
	}
}

// NewOpenAI creates an OpenAI-compatible chat client.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) *OpenAI {
	c := &OpenAI{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultOpenAIBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "llm: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "llm: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "llm: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("llm: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "llm: unmarshal response")
	}
	if len(result.Choices) == 0 {
		return "", eris.New("llm: empty choices in response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
