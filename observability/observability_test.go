package observability

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/aipo/dbopen"
	"github.com/hazyhaar/aipo/idgen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestInit_CreatesTables(t *testing.T) {
	db := setupObsDB(t)
	if err := Init(db); err != nil {
		t.Fatalf("Init should be idempotent: %v", err)
	}
	for _, table := range []string{"metrics_timeseries", "stage_runs"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	// WHAT: Recorded metrics are persisted on Close and queryable with labels.
	// WHY: Stage summaries are read back from this table.
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.RecordCount(MetricCanonicalRecords, "canonical", "en", 1234)
	mm.RecordCount(MetricCanonicalGaps, "canonical", "en", 2)
	mm.Close()
	mm.Close()

	mm2 := NewMetricsManager(db, 100, time.Hour)
	defer mm2.Close()

	got, err := mm2.Query(context.Background(), MetricCanonicalRecords, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("count: got %d", len(got))
	}
	if got[0].Value != 1234 {
		t.Fatalf("value: got %f", got[0].Value)
	}
	if got[0].Labels["locale"] != "en" || got[0].Labels["stage"] != "canonical" {
		t.Fatalf("labels: got %v", got[0].Labels)
	}

	all, err := mm2.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all: got %d, want 2", len(all))
	}
}

func TestMetricsManager_FlushOnBufferSize(t *testing.T) {
	// WHAT: Reaching bufferSize flushes without waiting for the ticker.
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.RecordCount(MetricSnapshotEntries, "snapshot", "en", 1)
	mm.RecordCount(MetricSnapshotEntries, "snapshot", "en", 2)

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM metrics_timeseries`).Scan(&n)
	if n != 2 {
		t.Fatalf("rows after size flush: got %d, want 2", n)
	}
}

func TestRunLogger_StartFinish(t *testing.T) {
	// WHAT: A run goes running -> ok with stats, or running -> failed with the error text.
	// WHY: The run table is the history of sweeps; failures must be visible.
	db := setupObsDB(t)
	ctx := context.Background()
	l := NewRunLogger(db, WithRunIDGenerator(idgen.Sequence("run_")))

	ok := l.Start(ctx, "snapshot", "en")
	ok.Finish(ctx, nil, map[string]int{"entries": 10})

	failed := l.Start(ctx, "canonical", "ru")
	failed.Finish(ctx, errors.New("transport down"), nil)

	runs, err := l.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs: got %d", len(runs))
	}
	byID := map[string]*StageRun{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	if r := byID["run_1"]; r.Status != StatusOK || string(r.Stats) != `{"entries":10}` || r.FinishedAt == nil {
		t.Errorf("run_1: %+v", r)
	}
	if r := byID["run_2"]; r.Status != StatusFailed || r.Error != "transport down" {
		t.Errorf("run_2: %+v", r)
	}

	onlySnap, _ := l.Recent(ctx, "snapshot", 10)
	if len(onlySnap) != 1 {
		t.Errorf("stage filter: got %d", len(onlySnap))
	}
}

func TestRun_FinishAfterCancel(t *testing.T) {
	// WHAT: Finish still closes the row when the stage context is cancelled.
	// WHY: SIGINT aborts a sweep; the run must not stay "running" forever.
	db := setupObsDB(t)
	l := NewRunLogger(db)
	ctx, cancel := context.WithCancel(context.Background())
	run := l.Start(ctx, "details", "hy")
	cancel()
	run.Finish(ctx, context.Canceled, nil)

	var status string
	db.QueryRow(`SELECT status FROM stage_runs WHERE run_id = ?`, run.ID).Scan(&status)
	if status != StatusFailed {
		t.Fatalf("status: got %q", status)
	}
}
