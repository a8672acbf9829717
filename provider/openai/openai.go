package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/citesearch/provider/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client implements chat completions against api.openai.com or an Azure
// OpenAI resource. Azure is selected by a non-empty apiVersion, in which case
// the model name is used as the deployment name.
type client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the chat completions API
type request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// response represents a response from the chat completions API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey, baseURL, apiVersion string, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) azure() bool { return c.apiVersion != "" }

func (c *client) endpoint(model string) string {
	if c.azure() {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiVersion))
	}
	return c.baseURL + "/chat/completions"
}

// Generate sends one system+user exchange and returns the first choice's content.
func (c *client) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	messages := []Message{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: req.UserPrompt},
	}
	body := request{
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if !c.azure() {
		body.Model = req.Model
	}
	return c.sendRequest(ctx, c.endpoint(req.Model), body)
}

// sendRequest sends a request to the chat completions API
func (c *client) sendRequest(ctx context.Context, endpoint string, body request) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.azure() {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return openaiResp.Choices[0].Message.Content, nil
}
