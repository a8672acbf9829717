package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/mohammad-safakhou/citesearch/utils"
)

const endpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *http.Client
}

func (s Search) Search(ctx context.Context, req models.Request) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("count", strconv.Itoa(req.NumberOfResults))
	if req.Locale != "" {
		params.Set("search_lang", req.Locale)
	}
	base := s.Endpoint
	if base == "" {
		base = endpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", s.ApiKey)
	resp, err := utils.HTTPClient(s.Client).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := utils.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= req.NumberOfResults {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Excerpt: r.Snippet, Rank: i + 1})
	}
	return out, nil
}
