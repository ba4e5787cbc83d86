package runlog

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type SyncRun struct {
	ID               string
	Mode             string
	StartedAt        int64
	FinishedAt       int64
	Success          bool
	Message          string
	CoursesCount     int64
	AssignmentsCount int64
}

const insertRun = `
insert into SyncRun(id, mode, startedAt, finishedAt, success, message, coursesCount, assignmentsCount)
values (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertRun(ctx context.Context, arg SyncRun) error {
	_, err := q.db.ExecContext(
		ctx, insertRun,
		arg.ID,
		arg.Mode,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Success,
		arg.Message,
		arg.CoursesCount,
		arg.AssignmentsCount,
	)
	return err
}

const pruneRuns = `
delete from SyncRun where id not in (
    select id from SyncRun order by startedAt desc, rowid desc limit ?
)
`

func (q *Queries) PruneRuns(ctx context.Context, keep int64) error {
	_, err := q.db.ExecContext(ctx, pruneRuns, keep)
	return err
}

const recentRuns = `
select id, mode, startedAt, finishedAt, success, message, coursesCount, assignmentsCount
from SyncRun
order by startedAt desc, rowid desc
limit ?
`

func (q *Queries) RecentRuns(ctx context.Context, limit int64) ([]SyncRun, error) {
	rows, err := q.db.QueryContext(ctx, recentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SyncRun
	for rows.Next() {
		var i SyncRun
		err := rows.Scan(
			&i.ID,
			&i.Mode,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Success,
			&i.Message,
			&i.CoursesCount,
			&i.AssignmentsCount,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
