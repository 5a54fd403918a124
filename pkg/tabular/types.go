package tabular

import "time"

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	// Query is the natural-language question
	Query string `json:"query"`

	// Data is the current row set
	Data []Row `json:"data"`

	// Headers optionally fixes the column order; when omitted the keys of
	// the rows are used in first-seen order
	Headers []string `json:"headers,omitempty"`

	// Expression is an optional boolean expression applied after the
	// generated conditions
	Expression string `json:"expression,omitempty"`
}

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RowSkipInfo describes a data line dropped while parsing.
type RowSkipInfo struct {
	// Line is the 1-based line number within the trimmed input
	Line int `json:"line"`

	// Expected is the header field count
	Expected int `json:"expected"`

	// Found is the field count of the skipped line
	Found int `json:"found"`

	// Reason is a human-readable description
	Reason string `json:"reason"`
}

// ParseResponse is returned by POST /parse.
type ParseResponse struct {
	Table   *Table        `json:"table"`
	Skipped []RowSkipInfo `json:"skipped"`
}

// DatasetResponse describes a stored dataset.
type DatasetResponse struct {
	ID        string        `json:"id"`
	Headers   []string      `json:"headers"`
	RowCount  int           `json:"rowCount"`
	Skipped   []RowSkipInfo `json:"skipped"`
	CreatedAt time.Time     `json:"createdAt"`
}

// DatasetQueryRequest is the body of POST /datasets/{id}/query. When
// Conditions is set, no generation happens.
type DatasetQueryRequest struct {
	Query      string            `json:"query,omitempty"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
	Expression string            `json:"expression,omitempty"`
}

// QueryResponse is returned by POST /datasets/{id}/query.
type QueryResponse struct {
	// ID identifies this execution in the logs
	ID string `json:"id"`

	// Table is the filtered table, or the unfiltered one when Fallback is set
	Table *Table `json:"table"`

	// Conditions are the conditions that were applied (or attempted)
	Conditions []FilterCondition `json:"conditions"`

	// Fallback is true when filtering failed and the unfiltered table is shown
	Fallback bool `json:"fallback"`

	// Error carries the failure message when Fallback is set
	Error string `json:"error,omitempty"`
}
