package models

// RetrievalQuery is an ephemeral, structured retrieval request.
// All fields are optional; zero values mean "not set".
type RetrievalQuery struct {
	GRNo      string  `json:"gr_no,omitempty"`
	Date      string  `json:"date,omitempty"` // full date or a bare year
	Branch    string  `json:"branch,omitempty"`
	Subject   string  `json:"subject,omitempty"`
	Semantic  string  `json:"semantic,omitempty"`
	Threshold float64 `json:"threshold,omitempty"` // 0 => configured default
	Limit     int     `json:"limit,omitempty"`     // 0 => configured default
}

// HasFilters reports whether any structured (non-semantic) filter
// besides the exact GR number is set.
func (q RetrievalQuery) HasFilters() bool {
	return q.Date != "" || q.Branch != "" || q.Subject != ""
}

// RetrievalResult is one ranked candidate. Chunk is nil for results
// produced by metadata filtering rather than vector search.
type RetrievalResult struct {
	Document Document `json:"document"`
	Chunk    *Chunk   `json:"chunk,omitempty"`
	Score    float64  `json:"score"`
}
