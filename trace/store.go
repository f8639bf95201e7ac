package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Schema is the sql_traces table, kept in the observability database.
const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL DEFAULT '',
	op          TEXT NOT NULL,
	query       TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_ts ON sql_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_sql_traces_tid ON sql_traces(trace_id) WHERE trace_id != '';
`

const (
	queueSize = 1024
	batchSize = 64
)

// Store batches entries into sql_traces from a single goroutine. A full
// queue drops entries rather than slowing the traced query down.
type Store struct {
	db      *sql.DB
	ch      chan *Entry
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewStore starts the flush goroutine. Stop it with Close.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Entry, queueSize),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Init creates sql_traces.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues e.
func (s *Store) RecordAsync(e *Entry) {
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded on a full queue.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Close flushes queued entries and stops the goroutine. Entries recorded
// after Close panic, so uninstall the store with SetRecorder(nil) first.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

// Slow returns the slowest traced statements of a trace (or of every trace
// when traceID is empty), slowest first.
func (s *Store) Slow(ctx context.Context, traceID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trace_id, op, query, duration_us, error, timestamp FROM sql_traces
		 WHERE ? = '' OR trace_id = ? ORDER BY duration_us DESC LIMIT ?`,
		traceID, traceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Op, &e.Query, &e.DurationUs, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loop() {
	defer close(s.done)
	batch := make([]*Entry, 0, batchSize)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-tick.C:
			s.flush(batch)
			batch = batch[:0]
		}
	}
}

func (s *Store) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("trace: begin", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, op, query, duration_us, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("trace: prepare", "error", err)
		return
	}
	defer stmt.Close()
	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Op, e.Query, e.DurationUs, e.Error, e.Timestamp); err != nil {
			slog.Error("trace: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("trace: commit", "error", err)
	}
}
