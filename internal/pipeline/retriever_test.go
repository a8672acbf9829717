package pipeline

import (
	"context"
	"testing"

	searchmodels "github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetrieveOrdersByRankAndTruncates(t *testing.T) {
	s := &fakeSearcher{results: map[string][]searchmodels.Result{
		"q": {
			result("third", "https://x.example/3", 3),
			result("unranked", "https://x.example/u", 0),
			result("first", "https://x.example/1", 1),
			result("fourth", "https://x.example/4", 4),
			result("second", "https://x.example/2", 2),
		},
	}}
	r := NewRetriever(s, testOptions(), zap.NewNop())

	docs := r.Retrieve(context.Background(), "q")
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].Title)
	assert.Equal(t, "second", docs[1].Title)
	assert.Equal(t, "third", docs[2].Title)
	assert.Equal(t, "https://x.example/1", docs[0].IdentityKey)
}

func TestRetrieveNormalisesFields(t *testing.T) {
	s := &fakeSearcher{results: map[string][]searchmodels.Result{
		"q": {{Title: "  T ", Excerpt: " E\n", URL: " HTTPS://X.example/a?utm_source=feed ", Rank: 1}, {Title: "no url", Excerpt: "e", Rank: 2}},
	}}
	docs := NewRetriever(s, testOptions(), zap.NewNop()).Retrieve(context.Background(), "q")
	require.Len(t, docs, 2)
	assert.Equal(t, Document{IdentityKey: "https://x.example/a", Title: "T", Excerpt: "E", URL: "HTTPS://X.example/a?utm_source=feed"}, docs[0])
	assert.Equal(t, "", docs[1].IdentityKey)
}

func TestRetrieveFailureYieldsEmpty(t *testing.T) {
	docs := NewRetriever(&fakeSearcher{err: errCapability}, testOptions(), zap.NewNop()).Retrieve(context.Background(), "q")
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
