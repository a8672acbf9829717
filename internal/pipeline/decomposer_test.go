package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/citesearch/provider/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitSubQueries(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"empty", "", []string{}},
		{"blank lines only", "\n  \n\t\n", []string{}},
		{"trims and drops blanks", "  first \n\n second\n", []string{"first", "second"}},
		{"caps at three", "a\nb\nc\nd\ne", []string{"a", "b", "c"}},
		{"windows line endings", "a\r\nb\r\n", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSubQueries(tt.reply, 3))
		})
	}
}

func TestDecomposeSendsQuery(t *testing.T) {
	gen := &fakeGenerator{decompose: func(req models.GenerateRequest) (string, error) {
		return "What is X?\nWhy X?\nHow X?\nWhen X?", nil
	}}
	d := NewDecomposer(gen, testOptions(), zap.NewNop())

	got := d.Decompose(context.Background(), "Tell me about X")
	assert.Equal(t, []string{"What is X?", "Why X?", "How X?"}, got)

	reqs := gen.requestsFor(testDecomposeModel)
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].UserPrompt, "Query: Tell me about X"))
	assert.Equal(t, 4096, reqs[0].MaxTokens)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 1e-9)
}

func TestDecomposeFailureYieldsEmpty(t *testing.T) {
	d := NewDecomposer(&fakeGenerator{}, testOptions(), zap.NewNop())
	got := d.Decompose(context.Background(), "anything")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, NewDecomposer(nil, testOptions(), zap.NewNop()).Decompose(context.Background(), "q"))
}
