package discovery

import (
	"time"

	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
)

// StopReason explains why the frontier stopped being drained.
type StopReason string

const (
	StopFrontierExhausted StopReason = "frontier_exhausted"
	StopMaxQueries        StopReason = "max_queries"
	StopCancelled         StopReason = "cancelled"
	StopFatal             StopReason = "fatal"
)

// FailedQuery is a term that exhausted its retry budget.
type FailedQuery struct {
	Term     string `json:"term"`
	Depth    int    `json:"depth"`
	Attempts int    `json:"attempts"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Err      error  `json:"-"`
}

// Response is one successful search, retained when Options.KeepResponses is set.
type Response struct {
	Term       string               `json:"term"`
	Depth      int                  `json:"depth"`
	Candidates []taxonomy.Candidate `json:"candidates"`
}

// Stats are the run counters.
type Stats struct {
	Seeds           int           `json:"seeds"`
	QueriesIssued   int           `json:"queriesIssued"`
	Attempts        int           `json:"attempts"`
	Retries         int           `json:"retries"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	CandidatesSeen  int           `json:"candidatesSeen"`
	NodesInserted   int           `json:"nodesInserted"`
	DepthSkipped    int           `json:"depthSkipped"`
	MaxDepthReached int           `json:"maxDepthReached"`
	StopReason      StopReason    `json:"stopReason"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
}

// Result is the outcome of a discovery run. Taxonomy is frozen and Index is built from it,
// also when the run was cancelled or aborted.
type Result struct {
	RunID         string
	Taxonomy      *taxonomy.Taxonomy
	Index         *synonyms.Index
	Stats         Stats
	FailedQueries []FailedQuery
	// NotAttempted lists queued terms that were never sent, plus terms abandoned mid-flight by cancellation.
	NotAttempted []string
	Anomalies    []taxonomy.Anomaly
	Responses    []Response
	// Diagnostic is a KindFatal error when the run was aborted.
	Diagnostic error
}

// Partial reports whether the run stopped before its frontier was exhausted.
func (r *Result) Partial() bool {
	return r.Stats.StopReason != StopFrontierExhausted
}

// Fatal reports whether the run was aborted.
func (r *Result) Fatal() bool {
	return apperr.Is(r.Diagnostic, apperr.KindFatal)
}

// Lookup resolves a free-text query against the run's synonym index.
func (r *Result) Lookup(query string) (taxonomy.Path, bool) {
	if r.Index == nil {
		return nil, false
	}
	return r.Index.Lookup(query)
}
