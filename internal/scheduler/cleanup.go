package scheduler

import (
	"context"
	"time"

	"location_mapper/platform/logger"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultRunHistoryCleanupInterval = time.Hour
	defaultRunHistoryRetention       = 90 * 24 * time.Hour
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunHistoryCleanup periodically removes old taxonomy_runs rows that no stored snapshot refers to.
type RunHistoryCleanup struct {
	db        execer
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRunHistoryCleanup(db execer, log *logger.Logger, interval, retention time.Duration) *RunHistoryCleanup {
	if interval <= 0 {
		interval = defaultRunHistoryCleanupInterval
	}
	if retention <= 0 {
		retention = defaultRunHistoryRetention
	}

	return &RunHistoryCleanup{
		db:        db,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *RunHistoryCleanup) Run(ctx context.Context) {
	if c == nil || c.db == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

const deleteExpiredRunsSQL = `
	DELETE FROM taxonomy_runs r
	WHERE r.created_at < $1
	  AND NOT EXISTS (SELECT 1 FROM location_nodes n WHERE n.run_id = r.run_id)
	  AND NOT EXISTS (SELECT 1 FROM location_aliases a WHERE a.run_id = r.run_id)`

func (c *RunHistoryCleanup) cleanup(ctx context.Context) {
	tag, err := c.db.Exec(ctx, deleteExpiredRunsSQL, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("run history cleanup failed", "error", err)
		return
	}

	if deleted := tag.RowsAffected(); deleted > 0 {
		c.log.Info("run history cleanup deleted expired runs", "deleted", deleted)
	}
}
