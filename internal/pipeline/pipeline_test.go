package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	searchmodels "github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var targetDateSubQueries = []string{
	"Definition of target-date fund",
	"How target-date funds rebalance",
	"Fees of target-date funds",
}

func targetDateSearcher() *fakeSearcher {
	return &fakeSearcher{results: map[string][]searchmodels.Result{
		targetDateSubQueries[0]: {
			result("What is a target-date fund", "https://funds.example/tdf", 1),
			result("Glide paths", "https://funds.example/glide", 2),
			result("Retirement planning", "https://funds.example/retire", 3),
		},
		targetDateSubQueries[1]: {
			result("Rebalancing explained", "https://funds.example/rebalance", 1),
			result("What is a target-date fund (again)", "https://funds.example/tdf", 2),
			result("Bond allocation", "https://funds.example/bonds", 3),
		},
		targetDateSubQueries[2]: {
			result("Expense ratios", "https://funds.example/fees", 1),
			result("Glide paths (again)", "https://funds.example/glide#fees", 2),
			result("Fund costs compared", "https://funds.example/costs", 3),
		},
	}}
}

func newTestPipeline(gen *fakeGenerator, s *fakeSearcher, hub *events.Hub) *Pipeline {
	deps := Deps{Generator: gen, Searcher: s}
	if hub != nil {
		deps.Publisher = hub
		deps.Sessions = hub
	}
	return New(deps, testOptions())
}

func drain(t *testing.T, sub *events.Subscription, until string) []events.ProgressEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []events.ProgressEvent
	for {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		if ev.Type == events.TypeKeepalive {
			continue
		}
		out = append(out, ev)
		if ev.Step == until {
			return out
		}
	}
}

func steps(evs []events.ProgressEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Step)
	}
	return out
}

func TestRunTargetDateFund(t *testing.T) {
	gen := &fakeGenerator{
		decompose: func(models.GenerateRequest) (string, error) {
			return targetDateSubQueries[0] + "\n" + targetDateSubQueries[1] + "\n\n" + targetDateSubQueries[2] + "\n", nil
		},
		synthesize: func(models.GenerateRequest) (string, error) {
			return "<answer>A target-date fund shifts to bonds over time [1][5].</answer>\n<reasoning>Per [1] and [5].</reasoning>", nil
		},
	}
	hub := events.NewHub(events.HubOptions{})
	sub := hub.Subscribe("session-tdf")
	defer sub.Close()

	answer, err := newTestPipeline(gen, targetDateSearcher(), hub).Run(context.Background(), "What is a target-date fund?", "session-tdf")
	require.NoError(t, err)

	require.Len(t, answer.Sources, 7)
	for i, s := range answer.Sources {
		assert.Equal(t, i+1, s.ID)
	}
	assert.Equal(t, "What is a target-date fund", answer.Sources[0].Title)
	assert.Equal(t, "Rebalancing explained", answer.Sources[3].Title)
	assert.Equal(t, "Fund costs compared", answer.Sources[6].Title)
	assert.Equal(t, "A target-date fund shifts to bonds over time [1][5].", answer.Content.Answer)
	assert.Equal(t, "Per [1] and [5].", answer.Content.Reasoning)

	evs := drain(t, sub, StepSynthesizeDone)
	got := steps(evs)
	assert.Equal(t, []string{StepDecomposeStart, StepDecomposeDone, StepSubQueries, StepSearchStart}, got[:4])
	assert.Equal(t, []string{StepDuplicate, StepDuplicate, StepDedupeDone, StepSearchDone, StepSynthesizeStart, StepSynthesizeDone}, got[7:])
	assert.ElementsMatch(t, []string{StepQueryResults, StepQueryResults, StepQueryResults}, got[4:7])

	assert.Equal(t, "Analyzing: What is a target-date fund?", evs[0].DetailsOrEmpty())
	assert.Equal(t, "Generated 3 sub-queries", evs[1].DetailsOrEmpty())
	var listed []string
	require.NoError(t, json.Unmarshal([]byte(evs[2].DetailsOrEmpty()), &listed))
	assert.Equal(t, targetDateSubQueries, listed)
	assert.Nil(t, evs[3].Details)
	assert.Equal(t, "Total unique documents: 7", evs[9].DetailsOrEmpty())
	assert.Equal(t, "Found 7 documents", evs[10].DetailsOrEmpty())
	assert.Equal(t, "Response ready", evs[12].DetailsOrEmpty())
}

func TestSubQueryDetails(t *testing.T) {
	assert.Equal(t, "[]", subQueryDetails(nil))
	assert.Equal(t, `["a","b"]`, subQueryDetails([]string{"a", "b"}))

	// clients that swap ' for " before parsing must still get valid JSON
	raw := subQueryDetails([]string{"What's a fund?", `say "hi"`})
	assert.Equal(t, `["What\u0027s a fund?","say \"hi\""]`, raw)
	var parsed []string
	require.NoError(t, json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &parsed))
	assert.Equal(t, []string{"What's a fund?", `say "hi"`}, parsed)
}

func TestRunRetrievalAlwaysFails(t *testing.T) {
	gen := &fakeGenerator{
		decompose:  func(models.GenerateRequest) (string, error) { return "a\nb", nil },
		synthesize: func(models.GenerateRequest) (string, error) { return "<answer>none</answer>", nil },
	}
	answer, err := newTestPipeline(gen, &fakeSearcher{err: errCapability}, nil).Run(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, "none", answer.Content.Answer)

	raw, err := json.Marshal(answer)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":{"answer":"none","reasoning":""},"sources":[]}`, string(raw))
}

func TestRunEveryCapabilityFails(t *testing.T) {
	hub := events.NewHub(events.HubOptions{})
	sub := hub.Subscribe("s")
	defer sub.Close()

	answer, err := newTestPipeline(&fakeGenerator{}, &fakeSearcher{err: errCapability}, hub).Run(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Equal(t, Content{}, answer.Content)
	assert.Empty(t, answer.Sources)

	evs := drain(t, sub, StepSynthesizeDone)
	assert.Equal(t, []string{
		StepDecomposeStart, StepDecomposeDone, StepSubQueries,
		StepSearchStart, StepDedupeDone, StepSearchDone,
		StepSynthesizeStart, StepSynthesizeDone,
	}, steps(evs))
	assert.Equal(t, "Generated 0 sub-queries", evs[1].DetailsOrEmpty())
	assert.Equal(t, "[]", evs[2].DetailsOrEmpty())
}

func TestRunValidation(t *testing.T) {
	gen := &fakeGenerator{}
	hub := events.NewHub(events.HubOptions{})
	p := newTestPipeline(gen, &fakeSearcher{}, hub)

	_, err := p.Run(context.Background(), "  ", "s")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = p.Run(context.Background(), "q", "")
	assert.ErrorIs(t, err, ErrMissingSession)

	assert.Empty(t, gen.requests)
	assert.Equal(t, 0, hub.Len())
}

func TestRunWithoutSubscriber(t *testing.T) {
	gen := &fakeGenerator{decompose: func(models.GenerateRequest) (string, error) { return targetDateSubQueries[0], nil }}
	hub := events.NewHub(events.HubOptions{})

	answer, err := newTestPipeline(gen, targetDateSearcher(), hub).Run(context.Background(), "q", "nobody-listening")
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 3)
	assert.True(t, hub.Exists("nobody-listening"))
}

func TestRunFaultIsReported(t *testing.T) {
	gen := &fakeGenerator{decompose: func(models.GenerateRequest) (string, error) {
		panic("decomposer exploded")
	}}
	hub := events.NewHub(events.HubOptions{})
	sub := hub.Subscribe("s")
	defer sub.Close()

	_, err := newTestPipeline(gen, &fakeSearcher{}, hub).Run(context.Background(), "q", "s")
	require.Error(t, err)
	var fault *FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, StageDecomposing, fault.Stage)
	assert.False(t, IsValidation(err))

	evs := drain(t, sub, StepError)
	assert.Equal(t, []string{StepDecomposeStart, StepError}, steps(evs))
	assert.Equal(t, "Processing error: decomposer exploded", evs[1].DetailsOrEmpty())
}

func TestRunFaultInsideRetrieval(t *testing.T) {
	gen := &fakeGenerator{decompose: func(models.GenerateRequest) (string, error) { return "a\nb", nil }}
	s := &fakeSearcher{before: func(q string) {
		if q == "b" {
			panic(errors.New("search client bug"))
		}
	}}
	_, err := newTestPipeline(gen, s, nil).Run(context.Background(), "q", "s")
	var fault *FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, StageRetrieving, fault.Stage)
	assert.EqualError(t, fault.Cause, "search client bug")
}

func TestRunIsolatesConcurrentSessions(t *testing.T) {
	gen := &fakeGenerator{
		decompose:  func(req models.GenerateRequest) (string, error) { return targetDateSubQueries[0], nil },
		synthesize: func(models.GenerateRequest) (string, error) { return "<answer>ok</answer>", nil },
	}
	hub := events.NewHub(events.HubOptions{})
	p := newTestPipeline(gen, targetDateSearcher(), hub)

	ids := []string{"s1", "s2", "s3", "s4"}
	subs := make(map[string]*events.Subscription, len(ids))
	for _, id := range ids {
		subs[id] = hub.Subscribe(id)
	}
	errs := make(chan error, len(ids))
	for _, id := range ids {
		go func() {
			_, err := p.Run(context.Background(), "query for "+id, id)
			errs <- err
		}()
	}
	for range ids {
		require.NoError(t, <-errs)
	}
	for _, id := range ids {
		evs := drain(t, subs[id], StepSynthesizeDone)
		assert.Equal(t, "Analyzing: query for "+id, evs[0].DetailsOrEmpty())
		subs[id].Close()
	}
}
