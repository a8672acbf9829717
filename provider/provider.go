package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/citesearch/config"
	anthropic_provider "github.com/mohammad-safakhou/citesearch/provider/anthropic"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	openai_provider "github.com/mohammad-safakhou/citesearch/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// TextGenerator is the interface that all LLM implementations must satisfy
type TextGenerator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (string, error)
}

// New creates a text generator for the configured provider
func New(cfg config.LLMConfig) (TextGenerator, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("llm.openai.api_key not set")
		}
		return openai_provider.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.APIVersion, cfg.OpenAI.Timeout), nil
	case Anthropic:
		return anthropic_provider.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
