package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksMatches(t *testing.T) {
	s, err := New([]Document{
		{Title: "Index funds", URL: "https://a.example/index", Excerpt: "Low cost index funds track the market."},
		{Title: "Target date funds", URL: "https://a.example/tdf", Excerpt: "Target date funds rebalance toward bonds as retirement nears."},
		{Title: "Gardening", URL: "https://a.example/garden", Excerpt: "Tomatoes need sun."},
	})
	require.NoError(t, err)

	got, err := s.Search(context.Background(), models.Request{Query: "target date funds", NumberOfResults: 2})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, "https://a.example/tdf", got[0].URL)
	assert.Equal(t, 1, got[0].Rank)
	for _, r := range got {
		assert.NotEqual(t, "https://a.example/garden", r.URL)
	}
}

func TestSearchBlankQuery(t *testing.T) {
	s, err := New([]Document{{Title: "x", URL: "u", Excerpt: "y"}})
	require.NoError(t, err)
	got, err := s.Search(context.Background(), models.Request{Query: "  ", NumberOfResults: 3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadCorpusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"title":"Bonds","url":"https://b.example","excerpt":"bond ladders"}]`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	got, err := s.Search(context.Background(), models.Request{Query: "bond", NumberOfResults: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bonds", got[0].Title)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
