// Package trace records the SQL issued against the registry index.
//
// It registers a "sqlite-trace" driver wrapping modernc.org/sqlite. Every
// statement run through it is logged via slog (Debug, Warn when slower than
// SlowQuery, Error on failure) and, when a Recorder is installed, queued for
// persistence with the request's trace id:
//
//	obs, _ := dbopen.Open("data/observability.db")
//	store := trace.NewStore(obs)
//	store.Init()
//	trace.SetRecorder(store)
//	defer store.Close()
//
//	index, _ := dbopen.Open("data/registry.db", dbopen.WithDriver(trace.DriverName))
//
// The Store's own database must use the plain "sqlite" driver.
package trace

import (
	"database/sql"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// SlowQuery is the duration above which a statement is logged at Warn.
const SlowQuery = 100 * time.Millisecond

// Entry is one traced statement.
type Entry struct {
	TraceID    string `json:"trace_id"`
	Op         string `json:"op"` // Exec or Query
	Query      string `json:"query"`
	DurationUs int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix microseconds
}

// Recorder persists entries without blocking the caller.
type Recorder interface {
	RecordAsync(e *Entry)
	Close() error
}

var (
	recMu    sync.RWMutex
	recorder Recorder
)

// SetRecorder installs the process-wide recorder. Nil disables persistence;
// statements are still logged.
func SetRecorder(r Recorder) {
	recMu.Lock()
	recorder = r
	recMu.Unlock()
}

func currentRecorder() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

func init() {
	sql.Register(DriverName, &tracingDriver{Driver: &sqlite.Driver{}})
}
