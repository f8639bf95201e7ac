package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/aipo/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	// WHAT: OpenMemory applies foreign_keys, synchronous and busy_timeout.
	// WHY: The registry index relies on these for transactional replacement.
	db := dbopen.OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var sync int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if sync != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", sync)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatal(err)
	}
	if busyTimeout != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busyTimeout)
	}
}

func TestWithSchema(t *testing.T) {
	// WHAT: Inline schema runs after the pragmas.
	// WHY: Stores pass their DDL through WithSchema instead of a separate init call.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	// WHAT: WithMkdirAll creates missing parent directories.
	// WHY: data/<locale>/ does not exist on a fresh checkout.
	path := filepath.Join(t.TempDir(), "nested", "dir", "registry.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.Close()
}

func TestRunTx_RollbackOnError(t *testing.T) {
	// WHAT: A failing fn rolls back everything done in the transaction.
	// WHY: Index replacement must be all-or-nothing.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY)`))
	errBoom := errors.New("boom")

	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n)
	if n != 0 {
		t.Fatalf("rows = %d, want 0 after rollback", n)
	}
}

func TestIsBusy(t *testing.T) {
	if dbopen.IsBusy(nil) {
		t.Error("nil is not busy")
	}
	if !dbopen.IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("locked error should be busy")
	}
	if dbopen.IsBusy(errors.New("no such table")) {
		t.Error("schema error is not busy")
	}
}
