package domain

// BatchItem is one unit of enrichment work. Priority is caller-supplied
// (e.g. an upstream relevance score); higher values are scheduled earlier.
// Items carry no identity beyond coordinates; duplicates in one batch are
// processed independently.
type BatchItem struct {
	Coordinates
	Priority float64 `json:"priority"`
}
