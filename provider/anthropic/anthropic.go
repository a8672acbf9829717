// Package anthropic_provider implements text generation on the Anthropic Messages API.
package anthropic_provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mohammad-safakhou/citesearch/provider/models"
)

// Client wraps the Anthropic SDK client.
type Client struct {
	inner anthropic.Client
}

// NewClient creates a client. An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewClient(apiKey string, timeout time.Duration, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		all = append(all, option.WithRequestTimeout(timeout))
	}
	all = append(all, opts...)
	return &Client{inner: anthropic.NewClient(all...)}, nil
}

// Generate sends one system+user exchange and concatenates the text blocks of the reply.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return b.String(), nil
}
