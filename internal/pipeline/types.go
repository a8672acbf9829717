package pipeline

// Document is one retrieved search hit. IdentityKey is the canonical
// locator used for deduplication; an empty key never collides.
type Document struct {
	IdentityKey string `json:"-"`
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt"`
	URL         string `json:"url"`
}

// Source is a cited document as exposed to callers.
type Source struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

type Content struct {
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning"`
}

// Answer is the synthesized result of a run. Sources is never nil.
type Answer struct {
	Content Content  `json:"content"`
	Sources []Source `json:"sources"`
}

// QueryResults holds the documents one sub-query retrieved, in provider order.
type QueryResults struct {
	SubQuery  string
	Documents []Document
}

// Collection is the outcome of the retrieval stage.
type Collection struct {
	PerQuery   []QueryResults
	Documents  []Document
	Duplicates int
}

// Counts returns the number of results per sub-query.
func (c Collection) Counts() map[string]int {
	out := make(map[string]int, len(c.PerQuery))
	for _, q := range c.PerQuery {
		out[q.SubQuery] += len(q.Documents)
	}
	return out
}

// Stage is a step of the per-session run state machine.
type Stage string

const (
	StageCreated      Stage = "created"
	StageDecomposing  Stage = "decomposing"
	StageRetrieving   Stage = "retrieving"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
	StageErrored      Stage = "errored"
)

// Reporter publishes a progress step for the current session. It must be
// safe for concurrent use.
type Reporter func(step string, details ...string)

func (r Reporter) emit(step string, details ...string) {
	if r != nil {
		r(step, details...)
	}
}

// Progress steps, in the order a run emits them.
const (
	StepDecomposeStart  = "Breaking down query..."
	StepDecomposeDone   = "Query breakdown complete"
	StepSubQueries      = "Sub-queries"
	StepSearchStart     = "Searching for relevant documents..."
	StepQueryResults    = "Query Results"
	StepDuplicate       = "Duplicate Found"
	StepDedupeDone      = "Deduplication Complete"
	StepSearchDone      = "Search complete"
	StepSynthesizeStart = "Generating comprehensive answer..."
	StepSynthesizeDone  = "Answer generation complete"
	StepError           = "Error"
)
