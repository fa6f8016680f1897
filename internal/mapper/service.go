// Package mapper runs a complete taxonomy rebuild: discovery against the location search
// endpoint, artifact assembly and delivery to every configured sink.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"location_mapper/internal/artifact"
	"location_mapper/internal/discovery"
	"location_mapper/internal/events"
	"location_mapper/platform/logger"
)

// RunRequest describes one rebuild. Empty Seeds fall back to DefaultSeeds.
type RunRequest struct {
	Seeds       []string
	Options     *OptionOverrides
	RequestedBy string
}

// Report is the outcome of a rebuild.
type Report struct {
	Result   *discovery.Result
	Artifact *artifact.Artifact
	// SinkErr joins the failures of every sink that could not store the artifact.
	SinkErr error
}

// Failed reports whether the run should be treated as unsuccessful by the caller.
func (r *Report) Failed() bool {
	return r.Result.Fatal() || r.SinkErr != nil
}

// Service orchestrates discovery runs.
type Service struct {
	engine *discovery.Engine
	sinks  []artifact.Sink
	bus    events.Bus
	opts   discovery.Options
	log    *logger.Logger
	now    func() time.Time
}

// NewService creates a rebuild service. bus may be nil.
func NewService(search discovery.LocationSearchClient, sinks []artifact.Sink, bus events.Bus, opts discovery.Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		engine: discovery.New(search, log),
		sinks:  sinks,
		bus:    bus,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// Run discovers the taxonomy and writes the artifact. A cancelled context still produces and
// stores the partial artifact; an aborted run stores only its diagnostic so the sinks keep the
// last good snapshot. The returned error is set only when nothing could be run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Report, error) {
	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = DefaultSeeds
	}
	opts := s.opts
	req.Options.Apply(&opts)

	res, err := s.engine.Discover(ctx, seeds, opts)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	log := s.log.WithRunID(res.RunID)
	a := artifact.Build(res, s.now())

	// Sinks run detached so an interrupted run still leaves its partial snapshot behind.
	sinkErr := artifact.WriteAll(context.WithoutCancel(ctx), a, s.sinks, log)

	s.publish(ctx, res, req.RequestedBy, sinkErr)

	if res.Partial() {
		log.Warn("taxonomy run incomplete", "stop_reason", res.Stats.StopReason, "not_attempted", len(res.NotAttempted))
	}
	return &Report{Result: res, Artifact: a, SinkErr: sinkErr}, nil
}

func (s *Service) publish(ctx context.Context, res *discovery.Result, requestedBy string, sinkErr error) {
	if s.bus == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, fq := range res.FailedQueries {
		s.bus.Publish(ctx, events.DiscoveryQueryFailed{
			BaseEvent: events.NewBaseEvent(),
			RunID:     res.RunID,
			Term:      fq.Term,
			Depth:     fq.Depth,
			Attempts:  fq.Attempts,
			Kind:      fq.Kind,
			Error:     fq.Error,
		})
	}
	for _, an := range res.Anomalies {
		s.bus.Publish(ctx, events.StructuralAnomalyDetected{
			BaseEvent: events.NewBaseEvent(),
			RunID:     res.RunID,
			Kind:      string(an.Kind),
			NodeID:    an.NodeID,
			Detail:    an.Detail,
		})
	}

	completed := events.TaxonomyRunCompleted{
		BaseEvent:     events.NewBaseEvent(),
		RunID:         res.RunID,
		StopReason:    string(res.Stats.StopReason),
		Partial:       res.Partial(),
		Nodes:         res.Taxonomy.Len(),
		Aliases:       res.Index.Len(),
		QueriesIssued: res.Stats.QueriesIssued,
		FailedQueries: len(res.FailedQueries),
		RequestedBy:   requestedBy,
	}
	if res.Diagnostic != nil {
		completed.Diagnostic = res.Diagnostic.Error()
	}
	completed.SinkErrors = splitJoined(sinkErr)
	s.bus.Publish(ctx, completed)
}

func splitJoined(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
