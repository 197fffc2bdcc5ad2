package audit

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeSubmission = "evaluation.submitted"
	TypeFinalized  = "schedule.finalized"
)

// Event is one append-only audit record. Key identifies the affected
// aggregate (the schedule id for engine events) and DataJSON carries the
// event payload verbatim.
type Event struct {
	Offset    int64  `json:"offset"`
	Actor     string `json:"actor"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// execer is satisfied by *sql.DB and *sql.Tx so appends can ride the
// transaction that produced the event.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, q execer, e Event) error {
	if q == nil {
		q = r.db
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_log (actor, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.Actor, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Recent returns up to limit events for one key, newest first. An empty key
// returns events across all keys.
func (r *Repo) Recent(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if key == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT offset_id, actor, typ, key, data, created_at
			FROM audit_log ORDER BY offset_id DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT offset_id, actor, typ, key, data, created_at
			FROM audit_log WHERE key=$1 ORDER BY offset_id DESC LIMIT $2`, key, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Actor, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
