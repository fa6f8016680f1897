package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location_mapper/internal/discovery"
	"location_mapper/internal/mapper"
	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
	"location_mapper/platform/config"
	"location_mapper/platform/logger"
)

func TestTaxonomyRebuildTaskPayload(t *testing.T) {
	task, err := NewTaxonomyRebuildTask(TaxonomyRebuildPayload{Seeds: []string{"Faro"}, RequestedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, TaskTaxonomyRebuild, task.Type())
	assert.JSONEq(t, `{"seeds":["Faro"],"requestedBy":"ops"}`, string(task.Payload()))

	payload, err := ParseTaxonomyRebuildPayload(task)
	require.NoError(t, err)
	assert.Equal(t, []string{"Faro"}, payload.Seeds)

	_, err = ParseTaxonomyRebuildPayload(asynq.NewTask(TaskTaxonomyRebuild, []byte("{")))
	assert.Error(t, err)
}

type fakeRebuilder struct {
	req    mapper.RunRequest
	report *mapper.Report
	err    error
	taskID string
}

func (f *fakeRebuilder) Run(ctx context.Context, req mapper.RunRequest) (*mapper.Report, error) {
	f.req = req
	f.taskID, _ = ctx.Value(logger.TaskIDKey).(string)
	return f.report, f.err
}

func emptyReport(stop discovery.StopReason, diag error, sinkErr error) *mapper.Report {
	tax := taxonomy.New()
	tax.Freeze()
	return &mapper.Report{
		Result: &discovery.Result{
			RunID:      "run-9",
			Taxonomy:   tax,
			Index:      synonyms.Build(tax, synonyms.PolicyFirstWins),
			Stats:      discovery.Stats{StopReason: stop},
			Diagnostic: diag,
		},
		SinkErr: sinkErr,
	}
}

func TestHandleTaxonomyRebuild(t *testing.T) {
	tests := []struct {
		name      string
		report    *mapper.Report
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "success", report: emptyReport(discovery.StopFrontierExhausted, nil, nil)},
		{name: "budget reached is still a success", report: emptyReport(discovery.StopMaxQueries, nil, nil)},
		{name: "fatal run", report: emptyReport(discovery.StopFatal, apperr.Fatal("contract changed"), nil), wantErr: true, skipRetry: true},
		{name: "sink failure retries", report: emptyReport(discovery.StopFrontierExhausted, nil, errors.New("minio down")), wantErr: true},
		{name: "invalid options", err: apperr.Validation("invalid discovery options", nil), wantErr: true, skipRetry: true},
		{name: "unexpected error retries", err: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := &fakeRebuilder{report: tt.report, err: tt.err}
			w := newWorker(rb, logger.Discard())

			task, err := NewTaxonomyRebuildTask(TaxonomyRebuildPayload{Seeds: []string{"beja"}, RequestedBy: "cron"})
			require.NoError(t, err)

			err = w.handleTaxonomyRebuild(context.Background(), task)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, []string{"beja"}, rb.req.Seeds)
				assert.Equal(t, "cron", rb.req.RequestedBy)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleTaxonomyRebuildRejectsBadPayload(t *testing.T) {
	w := newWorker(&fakeRebuilder{}, logger.Discard())
	err := w.handleTaxonomyRebuild(context.Background(), asynq.NewTask(TaskTaxonomyRebuild, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMuxRoutesRebuildTask(t *testing.T) {
	rb := &fakeRebuilder{report: emptyReport(discovery.StopFrontierExhausted, nil, nil)}
	w := newWorker(rb, logger.Discard())

	task, err := NewTaxonomyRebuildTask(TaxonomyRebuildPayload{RequestedBy: "api"})
	require.NoError(t, err)
	require.NoError(t, w.mux.ProcessTask(context.Background(), task))
	assert.Equal(t, "api", rb.req.RequestedBy)
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)

	opt, err = redisClientOpt("redis://localhost:6379/0", false)
	require.NoError(t, err)
	assert.Nil(t, opt.TLSConfig)

	_, err = redisClientOpt("::not a url", false)
	assert.Error(t, err)
}

func TestNewClientRequiresRedis(t *testing.T) {
	_, err := NewClient(&config.Config{})
	assert.Error(t, err)

	_, err = NewWorker(&config.Config{}, &fakeRebuilder{}, logger.Discard())
	assert.Error(t, err)
}

func TestNewPeriodic(t *testing.T) {
	p, err := NewPeriodic(&config.Config{}, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewPeriodic(&config.Config{RedisURL: "redis://localhost:6379/0", TaxonomyRebuildCron: "0 3 * * 1"}, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.entryID)

	_, err = NewPeriodic(&config.Config{RedisURL: "redis://localhost:6379/0", TaxonomyRebuildCron: "every tuesday"}, logger.Discard())
	assert.Error(t, err)
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args[0].(time.Time))
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func TestRunHistoryCleanupCutoff(t *testing.T) {
	db := &fakeExecer{}
	c := NewRunHistoryCleanup(db, logger.Discard(), 0, 48*time.Hour)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.cleanup(context.Background())
	require.Len(t, db.calls, 1)
	assert.Equal(t, now.Add(-48*time.Hour), db.calls[0])
	assert.Equal(t, defaultRunHistoryCleanupInterval, c.interval)

	db.err = errors.New("relation does not exist")
	c.cleanup(context.Background())
	assert.Len(t, db.calls, 2)
}

func TestRunHistoryCleanupStopsOnCancel(t *testing.T) {
	db := &fakeExecer{}
	c := NewRunHistoryCleanup(db, logger.Discard(), time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
	assert.Len(t, db.calls, 1)
	assert.Equal(t, defaultRunHistoryRetention, c.retention)
}
