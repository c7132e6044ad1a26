package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeInternalError Outcome = "internal_error"
)

// StepRun is one journaled run-step attempt that reached the engine call.
type StepRun struct {
	ID         uuid.UUID
	Subject    string
	Topic      string
	StepNumber float64
	Engine     string
	Model      string
	Outcome    Outcome
	ContentLen int
	Latency    time.Duration
	CreatedAt  time.Time
}

// StepRepo is an append-only journal. It is never read on the request path.
type StepRepo struct{ DB *sql.DB }

func NewStepRepo(db *sql.DB) *StepRepo { return &StepRepo{DB: db} }

const schemaSQL = `
create table if not exists step_runs (
  id          uuid primary key,
  subject     text not null,
  topic       text not null,
  step_number double precision not null,
  engine      text not null,
  model       text not null,
  outcome     text not null,
  content_len integer not null default 0,
  latency_ms  bigint not null default 0,
  created_at  timestamptz not null default now()
)`

// EnsureSchema creates the journal table when missing.
func (r *StepRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schemaSQL)
	return err
}

// Record inserts run, filling ID and CreatedAt when zero.
func (r *StepRepo) Record(ctx context.Context, run StepRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const q = `
insert into step_runs (id, subject, topic, step_number, engine, model, outcome, content_len, latency_ms, created_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.DB.ExecContext(ctx, q,
		run.ID.String(), run.Subject, run.Topic, run.StepNumber,
		run.Engine, run.Model, string(run.Outcome), run.ContentLen,
		run.Latency.Milliseconds(), run.CreatedAt,
	)
	return err
}

// PurgeOlderThan deletes journal rows older than olderThan.
func (r *StepRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from step_runs where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
