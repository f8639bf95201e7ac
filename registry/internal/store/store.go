// Package store indexes canonical registry sequences and extracted details
// in SQLite so they can be looked up and searched without re-reading the
// JSON outputs.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/hazyhaar/aipo/registry/internal/model"
)

// ErrNotFound is returned by lookups of an id absent from the index.
var ErrNotFound = errors.New("store: not found")

// Store wraps the registry index database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store from an already-opened database connection
// with Schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// Patent is an indexed record with its details, if extracted.
type Patent struct {
	Locale string `json:"locale"`
	model.Record
	Details     json.RawMessage `json:"details,omitempty"`
	ExtractedAt *time.Time      `json:"extracted_at,omitempty"`
}

// SearchResult is a title match.
type SearchResult struct {
	model.Record
	Rank float64 `json:"rank"`
}

// Stats summarises one locale's index.
type Stats struct {
	Locale      string     `json:"locale"`
	Patents     int        `json:"patents"`
	Gaps        int        `json:"gaps"`
	Details     int        `json:"details"`
	LastID      int        `json:"last_id"`
	ParsingDate string     `json:"parsing_date,omitempty"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}
