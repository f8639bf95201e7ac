package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/aipo/idgen"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// StageRun is one row of stage_runs.
type StageRun struct {
	ID         string          `json:"run_id"`
	Stage      string          `json:"stage"`
	Locale     string          `json:"locale"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Stats      json.RawMessage `json:"stats"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunLogger writes stage_runs rows. Like the metrics manager it never fails
// the stage it observes: write errors are logged and swallowed.
type RunLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// RunLoggerOption configures a RunLogger.
type RunLoggerOption func(*RunLogger)

// WithRunIDGenerator sets a custom ID generator for run IDs.
func WithRunIDGenerator(gen idgen.Generator) RunLoggerOption {
	return func(l *RunLogger) { l.newID = gen }
}

// NewRunLogger creates a RunLogger over an initialised observability database.
func NewRunLogger(db *sql.DB, opts ...RunLoggerOption) *RunLogger {
	l := &RunLogger{
		db:    db,
		newID: idgen.Prefixed("run_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run is an in-progress stage run.
type Run struct {
	logger  *RunLogger
	ID      string
	Stage   string
	Locale  string
	started time.Time
}

// Start inserts a running row and returns its handle.
func (l *RunLogger) Start(ctx context.Context, stage, locale string) *Run {
	r := &Run{logger: l, ID: l.newID(), Stage: stage, Locale: locale, started: l.now()}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, locale, status, started_at) VALUES (?,?,?,?,?)`,
		r.ID, stage, locale, StatusRunning, r.started.UnixMilli())
	if err != nil {
		slog.Error("observability runs: start", "error", err, "stage", stage, "locale", locale)
	}
	return r
}

// Finish marks the run ok (runErr == nil) or failed and stores stats as JSON.
// It returns the elapsed time.
func (r *Run) Finish(ctx context.Context, runErr error, stats any) time.Duration {
	finished := r.logger.now()
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	statsJSON := []byte("{}")
	if stats != nil {
		if b, err := json.Marshal(stats); err == nil {
			statsJSON = b
		}
	}
	// The stage context may already be cancelled; the row must still close.
	ctx = context.WithoutCancel(ctx)
	_, err := r.logger.db.ExecContext(ctx,
		`UPDATE stage_runs SET status=?, error_message=?, stats=?, finished_at=? WHERE run_id=?`,
		status, msg, string(statsJSON), finished.UnixMilli(), r.ID)
	if err != nil {
		slog.Error("observability runs: finish", "error", err, "run_id", r.ID)
	}
	return finished.Sub(r.started)
}

// Recent returns the latest runs, newest first. Empty stage means all stages.
func (l *RunLogger) Recent(ctx context.Context, stage string, limit int) ([]*StageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT run_id, stage, locale, status, error_message, stats, started_at, finished_at
		FROM stage_runs`
	args := []any{}
	if stage != "" {
		q += ` WHERE stage = ?`
		args = append(args, stage)
	}
	q += ` ORDER BY started_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*StageRun
	for rows.Next() {
		var run StageRun
		var stats string
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Stage, &run.Locale, &run.Status, &run.Error, &stats, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Stats = json.RawMessage(stats)
		run.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
