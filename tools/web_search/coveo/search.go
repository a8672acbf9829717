package coveo

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

type Search struct {
	Endpoint      string // e.g. https://<org>.org.coveo.com/rest/search/v2
	Token         string
	ExcerptLength int
	Client        *http.Client
}

func (s Search) Search(ctx context.Context, req models.Request) ([]models.Result, error) {
	// https://docs.coveo.com/en/13/api-reference/search-api
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("locale", req.Locale)
	params.Set("numberOfResults", strconv.Itoa(req.NumberOfResults))
	params.Set("sortCriteria", req.SortCriteria)
	params.Set("enableDidYouMean", "true")
	params.Set("retrieveFirstSentences", "true")
	if s.ExcerptLength > 0 {
		params.Set("excerptLength", strconv.Itoa(s.ExcerptLength))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "*/*")
	if s.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := utils.HTTPClient(s.Client).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := utils.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("coveo: %w", err)
	}

	var raw struct {
		Results []struct {
			Title    string `json:"title"`
			Excerpt  string `json:"excerpt"`
			ClickURI string `json:"clickUri"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coveo: decode: %w", err)
	}
	out := make([]models.Result, 0, len(raw.Results))
	for i, r := range raw.Results {
		out = append(out, models.Result{Title: r.Title, Excerpt: r.Excerpt, URL: r.ClickURI, Rank: i + 1})
	}
	return out, nil
}
