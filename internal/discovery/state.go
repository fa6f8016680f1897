package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
	"location_mapper/platform/logger"
	"location_mapper/platform/textnorm"
)

type queryTerm struct {
	text  string
	depth int
}

// runState is the frontier, the visited set, and the counters of one run. Every field is
// guarded by mu; merges into the taxonomy happen under mu so they are serialized too.
type runState struct {
	mu   sync.Mutex
	opts Options
	tax  *taxonomy.Taxonomy
	log  *logger.Logger

	queue   []queryTerm
	queued  map[string]struct{}
	visited map[string]struct{}

	inflight     int
	budgetHit    bool
	outOfTime    bool
	fatal        error
	malformedRun int
	abandoned    []string
	anomalySeen  int

	failed    []FailedQuery
	responses []Response
	stats     Stats

	cancel context.CancelFunc
	cond   *sync.Cond
}

func newRunState(opts Options, log *logger.Logger, cancel context.CancelFunc) *runState {
	s := &runState{
		opts:    opts,
		tax:     taxonomy.New(),
		log:     log,
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		cancel:  cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// wakeOnDone releases every worker blocked in next once ctx is done.
func (s *runState) wakeOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

// enqueue adds a normalized term unless it was already queued or sent. Callers hold mu.
func (s *runState) enqueue(text string, depth int) {
	key := textnorm.NormalizeKey(text)
	if key == "" {
		return
	}
	if _, ok := s.visited[key]; ok {
		return
	}
	if _, ok := s.queued[key]; ok {
		return
	}
	if s.opts.MaxDepth > 0 && depth > s.opts.MaxDepth {
		s.stats.DepthSkipped++
		return
	}
	s.queued[key] = struct{}{}
	s.queue = append(s.queue, queryTerm{text: key, depth: depth})
}

// next blocks until a term can be sent. It returns false once the frontier is empty with
// nothing in flight, the query budget is spent, the run was aborted or ran out of time, or ctx
// is done.
func (s *runState) next(ctx context.Context) (queryTerm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.fatal != nil || s.outOfTime || ctx.Err() != nil {
			return queryTerm{}, false
		}
		if len(s.queue) > 0 {
			if s.opts.MaxQueries > 0 && s.stats.QueriesIssued >= s.opts.MaxQueries {
				s.budgetHit = true
				return queryTerm{}, false
			}
			t := s.queue[0]
			s.queue = s.queue[1:]
			delete(s.queued, t.text)
			s.visited[t.text] = struct{}{}
			s.inflight++
			s.stats.QueriesIssued++
			if t.depth > s.stats.MaxDepthReached {
				s.stats.MaxDepthReached = t.depth
			}
			return t, true
		}
		if s.inflight == 0 {
			return queryTerm{}, false
		}
		s.cond.Wait()
	}
}

// complete folds the outcome of one term back into the run. Terms cut short by cancellation or
// by the run deadline are abandoned, not failed. The returned error means the run cannot go on.
func (s *runState) complete(ctx context.Context, t queryTerm, candidates []taxonomy.Candidate, attempts int, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()

	s.inflight--
	s.stats.Attempts += attempts
	if attempts > 1 {
		s.stats.Retries += attempts - 1
	}

	if err != nil {
		if errors.Is(err, errOutOfTime) && !s.outOfTime {
			s.outOfTime = true
			s.log.Warn("discovery_out_of_time", "term", t.text, "error", err.Error())
		}
		if ctx.Err() != nil || errors.Is(err, errOutOfTime) {
			s.abandoned = append(s.abandoned, t.text)
			return nil
		}
		s.fail(t, attempts, err)
		return nil
	}

	s.malformedRun = 0
	s.stats.Succeeded++
	s.stats.CandidatesSeen += countCandidates(candidates)
	if s.opts.KeepResponses {
		s.responses = append(s.responses, Response{Term: t.text, Depth: t.depth, Candidates: candidates})
	}

	inserted, err := s.tax.Merge(candidates)
	if err != nil {
		s.cancel()
		return fmt.Errorf("merge results for %q: %w", t.text, err)
	}
	s.stats.NodesInserted += len(inserted)
	s.logAnomalies()

	for _, id := range inserted {
		n, ok := s.tax.Node(id)
		if !ok || n.Name == "" {
			continue
		}
		s.enqueue(n.Name, t.depth+1)
		if s.opts.ExpandSynonyms {
			for _, alias := range synonyms.Generate(n.Name) {
				s.enqueue(alias, t.depth+1)
			}
		}
	}
	return nil
}

func (s *runState) fail(t queryTerm, attempts int, err error) {
	kind := apperr.GetKind(err)
	if !kind.Transient() {
		kind = apperr.KindUnreachable
	}

	s.stats.Failed++
	s.failed = append(s.failed, FailedQuery{
		Term:     t.text,
		Depth:    t.depth,
		Attempts: attempts,
		Kind:     kind.String(),
		Error:    err.Error(),
		Err:      err,
	})
	s.log.QueryFailed(t.text, attempts, kind.String(), err)

	if kind != apperr.KindMalformed {
		return
	}
	s.malformedRun++
	if s.opts.FatalThreshold > 0 && s.malformedRun >= s.opts.FatalThreshold && s.fatal == nil {
		s.fatal = apperr.Fatal(fmt.Sprintf("%d consecutive malformed responses, upstream contract changed", s.malformedRun)).
			WithOp("discovery.Discover").
			WithDetails(map[string]any{"lastTerm": t.text, "lastError": err.Error()})
		s.log.Error("discovery_aborted", "reason", s.fatal.Error())
		s.cancel()
	}
}

func (s *runState) logAnomalies() {
	anomalies := s.tax.Anomalies()
	for _, a := range anomalies[s.anomalySeen:] {
		s.log.StructuralAnomaly(string(a.Kind), a.NodeID, a.Detail)
	}
	s.anomalySeen = len(anomalies)
}

// notAttempted returns the abandoned in-flight terms followed by the undrained queue.
func (s *runState) notAttempted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.abandoned)+len(s.queue))
	out = append(out, s.abandoned...)
	for _, t := range s.queue {
		out = append(out, t.text)
	}
	return out
}

func countCandidates(cs []taxonomy.Candidate) int {
	n := 0
	stack := make([]*taxonomy.Candidate, 0, len(cs))
	for i := range cs {
		stack = append(stack, &cs[i])
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		for i := range c.Children {
			stack = append(stack, &c.Children[i])
		}
	}
	return n
}
