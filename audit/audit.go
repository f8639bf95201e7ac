// Package audit keeps an append-only trail of the queries agents run against
// the registry through MCP: which tool, with which arguments, how it ended.
//
// Entries are written by a background goroutine in batches; Log writes
// synchronously and is meant for tests and rare events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/aipo/idgen"
	"github.com/hazyhaar/aipo/kit"
)

// Schema is the audit_log table, kept in the observability database.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL,
	trace_id      TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action, timestamp);
`

// Statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one audited call.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	TraceID    string `json:"trace_id,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// SQLiteLogger writes entries into audit_log.
type SQLiteLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	done  chan struct{}
	once  sync.Once
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator overrides the entry id generator. Default: "aud_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// NewSQLiteLogger starts the batch writer. Stop it with Close.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, 256),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.loop()
	return l
}

// Init creates audit_log.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: schema: %w", err)
	}
	return nil
}

func (l *SQLiteLogger) fill(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

// Log writes e immediately, filling id, timestamp, transport and status.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fill(e)
	_, err := l.db.ExecContext(ctx, insertEntry,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.TraceID, e.Parameters, e.Status, e.Error, e.DurationMs)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// LogAsync queues e for the batch writer. When the queue is full the entry
// is written synchronously instead.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fill(e)
	select {
	case l.ch <- e:
	default:
		if err := l.Log(context.Background(), e); err != nil {
			slog.Warn("audit: queue full, entry dropped", "action", e.Action, "entry_id", e.EntryID, "error", err)
		}
	}
}

// Recent returns the latest entries for action (every action when empty).
func (l *SQLiteLogger) Recent(ctx context.Context, action string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT entry_id, timestamp, action, transport, trace_id, parameters, status, error_message, duration_ms
		 FROM audit_log WHERE ? = '' OR action = ? ORDER BY timestamp DESC, entry_id DESC LIMIT ?`,
		action, action, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.TraceID,
			&e.Parameters, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close drains the queue and stops the writer.
func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
	return nil
}

const insertEntry = `INSERT INTO audit_log
	(entry_id, timestamp, action, transport, trace_id, parameters, status, error_message, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (l *SQLiteLogger) loop() {
	defer close(l.done)
	batch := make([]*Entry, 0, 32)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.write(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 32 {
				l.write(batch)
				batch = batch[:0]
			}
		case <-tick.C:
			l.write(batch)
			batch = batch[:0]
		}
	}
}

func (l *SQLiteLogger) write(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := l.db.Begin()
	if err != nil {
		slog.Error("audit: begin", "error", err)
		return
	}
	for _, e := range batch {
		if _, err := tx.Exec(insertEntry, e.EntryID, e.Timestamp, e.Action, e.Transport,
			e.TraceID, e.Parameters, e.Status, e.Error, e.DurationMs); err != nil {
			slog.Error("audit: insert", "error", err, "entry_id", e.EntryID)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("audit: commit", "error", err)
	}
}

// Middleware audits every call of the wrapped endpoint under action. The
// request is recorded as JSON.
func Middleware(l *SQLiteLogger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				TraceID:    kit.GetTraceID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if params, merr := json.Marshal(req); merr == nil {
				e.Parameters = string(params)
			}
			if err != nil {
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}
