// Package runlog keeps a journal of sync runs in sqlite. Only the outcome of
// each run is stored, never the data a run read.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// DefaultRetention is how many runs are kept when Options.Retention is 0.
const DefaultRetention = 200

// MakeTx creates a transaction bound to a set of queries.
type MakeTx = func() (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(db *sql.DB) MakeTx {
	return func() (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := db.Begin()
		if err != nil {
			return nil, nil, nil, err
		}
		return New(sqltx),
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}

// Run is one finished sync as callers see it.
type Run struct {
	ID               string    `json:"run_id"`
	Mode             string    `json:"mode"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	CoursesCount     int       `json:"courses_count"`
	AssignmentsCount int       `json:"assignments_count"`
}

type Journal struct {
	db        *sql.DB
	qry       *Queries
	makeTx    MakeTx
	retention int64
}

type Options struct {
	// Retention is the number of runs kept, older ones are pruned on every
	// Record.
	Retention int
}

// Open opens (or creates) the journal at dsn, ":memory:" keeps it in
// memory for the life of the process.
func Open(ctx context.Context, dsn string, opts Options) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	if dsn != ":memory:" {
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	_, err = db.ExecContext(ctx, Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create run journal schema: %w", err)
	}

	retention := int64(opts.Retention)
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Journal{
		db:        db,
		qry:       New(db),
		makeTx:    NewMakeTx(db),
		retention: retention,
	}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a run and prunes the journal down to its retention.
func (j *Journal) Record(ctx context.Context, run Run) error {
	tx, discard, commit, err := j.makeTx()
	if err != nil {
		return err
	}
	defer discard()

	err = tx.InsertRun(ctx, SyncRun{
		ID:               run.ID,
		Mode:             run.Mode,
		StartedAt:        run.StartedAt.UnixMilli(),
		FinishedAt:       run.FinishedAt.UnixMilli(),
		Success:          run.Success,
		Message:          run.Message,
		CoursesCount:     int64(run.CoursesCount),
		AssignmentsCount: int64(run.AssignmentsCount),
	})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	err = tx.PruneRuns(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return commit()
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.qry.RecentRuns(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, Run{
			ID:               r.ID,
			Mode:             r.Mode,
			StartedAt:        time.UnixMilli(r.StartedAt).UTC(),
			FinishedAt:       time.UnixMilli(r.FinishedAt).UTC(),
			Success:          r.Success,
			Message:          r.Message,
			CoursesCount:     int(r.CoursesCount),
			AssignmentsCount: int(r.AssignmentsCount),
		})
	}
	return out, nil
}
