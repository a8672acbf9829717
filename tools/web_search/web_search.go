package web_search

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/citesearch/config"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/coveo"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/local"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/serper"
)

// Searcher is a document retrieval capability.
type Searcher interface {
	Search(ctx context.Context, req models.Request) ([]models.Result, error)
}

type Provider string

const (
	CoveoProvider  Provider = "coveo"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	LocalProvider  Provider = "local"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

// NewSearcher builds the configured search provider.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch Provider(cfg.Provider) {
	case CoveoProvider:
		return coveo.Search{
			Endpoint:      cfg.Coveo.Endpoint,
			Token:         cfg.Coveo.Token,
			ExcerptLength: cfg.Coveo.ExcerptLength,
			Client:        httpClient,
		}, nil
	case SerperProvider:
		return serper.Search{ApiKey: cfg.Serper.APIKey, Client: httpClient}, nil
	case BraveProvider:
		return brave.Search{ApiKey: cfg.Brave.APIKey, Client: httpClient}, nil
	case LocalProvider:
		s, err := local.Load(cfg.Local.CorpusPath)
		if err != nil {
			return nil, fmt.Errorf("local search: %w", err)
		}
		return s, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
