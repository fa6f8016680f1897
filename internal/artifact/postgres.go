package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// txBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink replaces the location_nodes and location_aliases tables with the run's snapshot
// and records the run in taxonomy_runs, all in one transaction. Aborted runs are recorded in
// taxonomy_runs only.
type PostgresSink struct {
	db txBeginner
}

// NewPostgresSink creates a sink on a pool.
func NewPostgresSink(db txBeginner) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, a *Artifact) error {
	stats, err := json.Marshal(a.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO taxonomy_runs (run_id, created_at, stop_reason, node_count, alias_count, failed_count, diagnostic, stats)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		a.RunID, a.CreatedAt, string(a.Stats.StopReason), len(a.Nodes), len(a.SynonymsIndex), len(a.FailedQueries), a.Diagnostic, stats,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if a.Aborted() {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM location_aliases`); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM location_nodes`); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"location_nodes"}, nodeColumns, pgx.CopyFromRows(NodeRows(a))); err != nil {
		return fmt.Errorf("copy nodes: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"location_aliases"}, aliasColumns, pgx.CopyFromRows(AliasRows(a))); err != nil {
		return fmt.Errorf("copy aliases: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var (
	nodeColumns  = []string{"id", "run_id", "slug", "name", "full_name", "level", "path", "parent_id", "depth", "placeholder"}
	aliasColumns = []string{"alias", "run_id", "path"}
)

// NodeRows returns the location_nodes rows in nodeColumns order.
func NodeRows(a *Artifact) [][]any {
	rows := make([][]any, 0, len(a.Nodes))
	for _, n := range a.Nodes {
		var parent any
		if n.ParentID != "" {
			parent = n.ParentID
		}
		rows = append(rows, []any{n.ID, a.RunID, n.Slug, n.Name, n.FullName, n.Level.String(), n.Path, parent, n.Depth, n.Placeholder})
	}
	return rows
}

// AliasRows returns the location_aliases rows in aliasColumns order.
func AliasRows(a *Artifact) [][]any {
	rows := make([][]any, 0, len(a.SynonymsIndex))
	for alias, path := range a.SynonymsIndex {
		rows = append(rows, []any{alias, a.RunID, path})
	}
	return rows
}
