package scheduler

import (
	"context"
	"fmt"

	"location_mapper/platform/config"
	"location_mapper/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues a taxonomy rebuild on the TAXONOMY_REBUILD_CRON schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	entryID   string
	log       *logger.Logger
}

// NewPeriodic returns nil when no cron spec is configured.
func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	spec := cfg.GetTaxonomyRebuildCron()
	if spec == "" {
		return nil, nil
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("periodic rebuild enqueue failed", "error", err)
				return
			}
			log.Info("periodic rebuild enqueued", "task_id", info.ID)
		},
	})

	task, err := NewTaxonomyRebuildTask(TaxonomyRebuildPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, err
	}

	entryID, err := scheduler.Register(spec, task, rebuildOptions(queueName(cfg))...)
	if err != nil {
		return nil, fmt.Errorf("register rebuild cron %q: %w", spec, err)
	}

	return &Periodic{scheduler: scheduler, entryID: entryID, log: log}, nil
}

// Run starts the scheduler and stops it when ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}
	p.log.Info("periodic rebuild registered", "entry_id", p.entryID)

	<-ctx.Done()
	p.scheduler.Shutdown()
}
