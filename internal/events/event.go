// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"location_mapper/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Taxonomy Domain Events
// =============================================================================

// TaxonomyRunCompleted is published once the artifacts of a discovery run were handed to the sinks.
type TaxonomyRunCompleted struct {
	BaseEvent
	RunID         string   `json:"runId"`
	StopReason    string   `json:"stopReason"`
	Partial       bool     `json:"partial"`
	Nodes         int      `json:"nodes"`
	Aliases       int      `json:"aliases"`
	QueriesIssued int      `json:"queriesIssued"`
	FailedQueries int      `json:"failedQueries"`
	Diagnostic    string   `json:"diagnostic,omitempty"`
	SinkErrors    []string `json:"sinkErrors,omitempty"`
	RequestedBy   string   `json:"requestedBy,omitempty"`
}

func (e TaxonomyRunCompleted) EventName() string { return "taxonomy.run.completed" }

// DiscoveryQueryFailed is published for every search term that exhausted its retries.
type DiscoveryQueryFailed struct {
	BaseEvent
	RunID    string `json:"runId"`
	Term     string `json:"term"`
	Depth    int    `json:"depth"`
	Attempts int    `json:"attempts"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

func (e DiscoveryQueryFailed) EventName() string { return "taxonomy.query.failed" }

// StructuralAnomalyDetected is published for each hierarchy inconsistency seen during a run.
type StructuralAnomalyDetected struct {
	BaseEvent
	RunID  string `json:"runId"`
	Kind   string `json:"kind"`
	NodeID string `json:"nodeId"`
	Detail string `json:"detail"`
}

func (e StructuralAnomalyDetected) EventName() string { return "taxonomy.anomaly.detected" }
