package models

// Request is one document search call.
type Request struct {
	Query           string
	Locale          string
	NumberOfResults int
	SortCriteria    string
}

// Result is a single search hit. Rank is the provider's relevance order,
// starting at 1 for the most relevant hit.
type Result struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	URL     string `json:"url"`
	Rank    int    `json:"rank"`
}
