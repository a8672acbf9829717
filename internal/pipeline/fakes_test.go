package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/citesearch/provider/models"
	searchmodels "github.com/mohammad-safakhou/citesearch/tools/web_search/models"
)

const (
	testDecomposeModel  = "decompose-model"
	testSynthesizeModel = "synthesize-model"
)

var errCapability = errors.New("capability unavailable")

func testOptions() Options {
	return Options{
		DecompositionModel: testDecomposeModel,
		SynthesisModel:     testSynthesizeModel,
		MaxTokens:          4096,
		Temperature:        0.7,
		MaxSubQueries:      3,
		ResultsPerQuery:    3,
		Locale:             "en",
		SortCriteria:       "relevancy",
	}
}

// fakeGenerator answers by model name and records every request.
type fakeGenerator struct {
	mu         sync.Mutex
	decompose  func(req models.GenerateRequest) (string, error)
	synthesize func(req models.GenerateRequest) (string, error)
	requests   []models.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req models.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	switch req.Model {
	case testDecomposeModel:
		if f.decompose != nil {
			return f.decompose(req)
		}
	case testSynthesizeModel:
		if f.synthesize != nil {
			return f.synthesize(req)
		}
	}
	return "", errCapability
}

func (f *fakeGenerator) requestsFor(model string) []models.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GenerateRequest
	for _, r := range f.requests {
		if r.Model == model {
			out = append(out, r)
		}
	}
	return out
}

// fakeSearcher serves canned results per query.
type fakeSearcher struct {
	results map[string][]searchmodels.Result
	err     error
	before  func(query string)
}

func (f *fakeSearcher) Search(_ context.Context, req searchmodels.Request) ([]searchmodels.Result, error) {
	if f.before != nil {
		f.before(req.Query)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[req.Query], nil
}

func result(title, url string, rank int) searchmodels.Result {
	return searchmodels.Result{Title: title, Excerpt: "About " + title, URL: url, Rank: rank}
}
