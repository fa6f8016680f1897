// Package discovery crawls a location search endpoint breadth-first from a set of seed terms,
// assembling every place it finds into a taxonomy and indexing the result by alias.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
	"location_mapper/platform/logger"
	"location_mapper/platform/validator"
)

// LocationSearchClient answers one search term with the matching location candidates.
// Errors should carry an apperr fetch kind (timeout, rate_limited, malformed, unreachable);
// untyped errors are treated as unreachable.
type LocationSearchClient interface {
	Query(ctx context.Context, term string) ([]taxonomy.Candidate, error)
}

// Engine runs discovery against a single search client.
type Engine struct {
	client LocationSearchClient
	log    *logger.Logger
	val    *validator.Validator
	now    func() time.Time
}

// New creates a discovery engine.
func New(client LocationSearchClient, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		client: client,
		log:    log,
		val:    validator.New(),
		now:    time.Now,
	}
}

// Discover drains the frontier seeded with seeds and returns the frozen taxonomy and its index.
// The returned error is non-nil only for invalid options; failed queries, cancellation and
// aborts are reported on the Result, which always carries whatever was assembled.
func (e *Engine) Discover(ctx context.Context, seeds []string, opts Options) (*Result, error) {
	if err := opts.Validate(e.val); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	runID := uuid.NewString()
	if id, ok := ctx.Value(logger.RunIDKey).(string); ok && id != "" {
		runID = id
	}
	log := e.log.WithRunID(runID)
	started := e.now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := newRunState(opts, log, cancel)
	st.stats.StartedAt = started
	st.mu.Lock()
	for _, seed := range seeds {
		st.enqueue(seed, 0)
	}
	st.stats.Seeds = len(st.queue)
	st.mu.Unlock()

	limiter := newLimiter(opts.MinRequestInterval)
	stop := st.wakeOnDone(runCtx)
	defer stop()

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i := 0; i < opts.Concurrency; i++ {
		g.Go(func() error {
			for {
				t, ok := st.next(runCtx)
				if !ok {
					return nil
				}
				candidates, attempts, err := e.fetch(runCtx, limiter, t.text, opts)
				if err := st.complete(runCtx, t, candidates, attempts, err); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("discovery_worker_failed", "error", err.Error())
		st.mu.Lock()
		if st.fatal == nil {
			st.fatal = apperr.Fatal(err.Error()).WithOp("discovery.Discover")
		}
		st.mu.Unlock()
	}

	st.tax.Freeze()
	st.logAnomalies()
	index := synonyms.Build(st.tax, opts.CollisionPolicy)

	res := &Result{
		RunID:         runID,
		Taxonomy:      st.tax,
		Index:         index,
		FailedQueries: st.failed,
		NotAttempted:  st.notAttempted(),
		Anomalies:     st.tax.Anomalies(),
		Responses:     st.responses,
		Diagnostic:    st.fatal,
	}
	res.Stats = st.stats
	res.Stats.Duration = e.now().Sub(started)
	switch {
	case st.fatal != nil:
		res.Stats.StopReason = StopFatal
	case ctx.Err() != nil || st.outOfTime:
		res.Stats.StopReason = StopCancelled
	case st.budgetHit:
		res.Stats.StopReason = StopMaxQueries
	default:
		res.Stats.StopReason = StopFrontierExhausted
	}

	for _, c := range index.Collisions() {
		log.Debug("alias_collision", "alias", c.Alias, "kept", c.Kept, "rejected", c.Rejected)
	}
	log.RunSummary(res.Stats.QueriesIssued, res.Stats.Failed, st.tax.Len(), index.Len(), string(res.Stats.StopReason), res.Stats.Duration)

	return res, nil
}

// errOutOfTime marks a term that could not be sent because the run's deadline would pass
// before the limiter allows another request.
var errOutOfTime = errors.New("run deadline reached before the next request slot")

// fetch issues one term with retry. Each attempt waits on the shared limiter first. Errors of a
// non-transient kind stop retrying immediately.
func (e *Engine) fetch(ctx context.Context, limiter *rate.Limiter, term string, opts Options) ([]taxonomy.Candidate, int, error) {
	var (
		attempts int
		out      []taxonomy.Candidate
	)

	op := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", errOutOfTime, err))
		}
		attempts++
		candidates, err := e.client.Query(ctx, term)
		if err == nil {
			out = candidates
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if kind := apperr.GetKind(err); kind != apperr.KindUnknown && !kind.Transient() {
			return backoff.Permanent(err)
		}
		e.log.Debug("query_retry", "term", term, "attempt", attempts, "error", err.Error())
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(newBackOff(opts.RetryBaseDelay), uint64(opts.MaxRetries)), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, attempts, err
	}
	return out, attempts, nil
}

func newBackOff(base time.Duration) backoff.BackOff {
	if base <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = 30 * base
	b.MaxElapsedTime = 0
	return b
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
