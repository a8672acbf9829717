package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/mohammad-safakhou/citesearch/utils"
)

const endpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *http.Client
}

func (s Search) Search(ctx context.Context, req models.Request) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": req.Query, "num": req.NumberOfResults}
	if req.Locale != "" {
		payload["hl"] = req.Locale
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := s.Endpoint
	if url == "" {
		url = endpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-API-KEY", s.ApiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := utils.HTTPClient(s.Client).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := utils.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for i, it := range items {
			if i >= req.NumberOfResults {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			rank := i + 1
			if pos, ok := m["position"].(float64); ok && pos > 0 {
				rank = int(pos)
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Excerpt: utils.Str(m["snippet"]), Rank: rank,
			})
		}
	}
	return out, nil
}
