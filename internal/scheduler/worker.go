package scheduler

import (
	"context"
	"errors"
	"fmt"

	"location_mapper/internal/mapper"
	"location_mapper/platform/apperr"
	"location_mapper/platform/config"
	"location_mapper/platform/logger"

	"github.com/hibiken/asynq"
)

// Rebuilder runs one taxonomy rebuild.
type Rebuilder interface {
	Run(ctx context.Context, req mapper.RunRequest) (*mapper.Report, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	rebuild Rebuilder
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, rebuild Rebuilder, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(rebuild, log)
	w.server = server
	return w, nil
}

func newWorker(rebuild Rebuilder, log *logger.Logger) *Worker {
	w := &Worker{
		mux:     asynq.NewServeMux(),
		rebuild: rebuild,
		log:     log,
	}
	w.mux.HandleFunc(TaskTaxonomyRebuild, w.handleTaxonomyRebuild)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleTaxonomyRebuild(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTaxonomyRebuildPayload(task)
	if err != nil {
		return fmt.Errorf("decode rebuild payload: %v: %w", err, asynq.SkipRetry)
	}

	if taskID, ok := asynq.GetTaskID(ctx); ok {
		ctx = context.WithValue(ctx, logger.TaskIDKey, taskID)
	}
	log := w.log.WithContext(ctx)
	log.Info("taxonomy rebuild started", "seeds", len(payload.Seeds), "requested_by", payload.RequestedBy)

	report, err := w.rebuild.Run(ctx, mapper.RunRequest{
		Seeds:       payload.Seeds,
		RequestedBy: payload.RequestedBy,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	res := report.Result
	log.Info("taxonomy rebuild finished",
		"run_id", res.RunID,
		"stop_reason", res.Stats.StopReason,
		"nodes", res.Taxonomy.Len(),
		"failed_queries", len(res.FailedQueries),
	)

	switch {
	case res.Fatal():
		return fmt.Errorf("run %s aborted: %v: %w", res.RunID, res.Diagnostic, asynq.SkipRetry)
	case report.SinkErr != nil:
		return fmt.Errorf("run %s: %w", res.RunID, report.SinkErr)
	case ctx.Err() != nil:
		return errors.Join(ctx.Err(), fmt.Errorf("run %s cancelled", res.RunID))
	}
	return nil
}
