package retrieval

// Reason explains why a query fell back to the static answer.
type Reason string

const (
	// ReasonNoMatch means retrieval worked but nothing cleared the
	// similarity threshold.
	ReasonNoMatch Reason = "no_match"

	// ReasonRetrievalUnavailable means the provider or store kept failing
	// after retries.
	ReasonRetrievalUnavailable Reason = "retrieval_unavailable"

	// ReasonTimeout means the query deadline expired before retrieval
	// finished.
	ReasonTimeout Reason = "timeout"
)

// Source is one accepted chunk, annotated for citation.
type Source struct {
	Document    string   `json:"document"`
	SectionPath []string `json:"section_path"`
	Content     string   `json:"content"`
	Similarity  float64  `json:"similarity"`
}

// Outcome is the result of one query: either grounded context from the
// store or the base's static fallback answer with the reason it was
// served. Degraded marks answers produced without the query's image.
type Outcome struct {
	// QueryID correlates the outcome with its log lines.
	QueryID string `json:"query_id"`

	// Grounded reports whether Sources carry retrieved context.
	Grounded bool `json:"grounded"`

	// Sources are accepted chunks in descending similarity. Empty unless
	// Grounded.
	Sources []Source `json:"sources,omitempty"`

	// Fallback is the base's static answer. Empty when Grounded.
	Fallback string `json:"fallback,omitempty"`

	// Reason is set when Fallback is served.
	Reason Reason `json:"reason,omitempty"`

	// Degraded is true when the image part of the query was dropped.
	Degraded bool `json:"degraded"`
}
