package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/aipo/dbopen"
	"github.com/hazyhaar/aipo/registry/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s
}

func sampleSequence() model.Sequence {
	return model.Sequence{
		Records: []model.Record{
			{CertificateID: 1, ApplicationID: 101, Title: "Glass bottle", Link: "l1"},
			{CertificateID: 2, ApplicationID: 102, Title: "Office chair", Link: "l2"},
			{CertificateID: 4, ApplicationID: 104, Title: "Bottle cap", Link: "l4"},
		},
		Gaps: []int{3},
	}
}

func TestApplySchema(t *testing.T) {
	// WHAT: Schema creates every table and is idempotent.
	s := openTestStore(t)
	if err := ApplySchema(s.DB); err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"patents", "patents_fts", "gaps", "details", "sequences"} {
		var name string
		if err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE name=?`, table).Scan(&name); err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestReplaceSequence_ReplacesOnlyLocale(t *testing.T) {
	// WHAT: Replacing a locale's sequence drops its old rows and leaves other locales intact.
	// WHY: Each canonical run is authoritative for its locale.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceSequence(ctx, "en", "2026-01-01", sampleSequence()); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceSequence(ctx, "ru", "2026-01-01", sampleSequence()); err != nil {
		t.Fatal(err)
	}
	smaller := model.Sequence{Records: []model.Record{{CertificateID: 1, ApplicationID: 101, Title: "Glass bottle"}}}
	if err := s.ReplaceSequence(ctx, "en", "2026-02-01", smaller); err != nil {
		t.Fatal(err)
	}

	en, err := s.Stats(ctx, "en")
	if err != nil {
		t.Fatal(err)
	}
	if en.Patents != 1 || en.Gaps != 0 || en.LastID != 1 || en.ParsingDate != "2026-02-01" {
		t.Errorf("en stats: %+v", en)
	}
	ru, _ := s.Stats(ctx, "ru")
	if ru.Patents != 3 || ru.Gaps != 1 || ru.LastID != 4 {
		t.Errorf("ru stats: %+v", ru)
	}
}

func TestGetPatent_WithDetails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.ReplaceSequence(ctx, "en", "2026-01-01", sampleSequence())

	p, err := s.GetPatent(ctx, "en", 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Office chair" || p.Details != nil || p.ExtractedAt != nil {
		t.Errorf("patent: %+v", p)
	}

	if err := s.UpsertDetail(ctx, "en", 2, map[string]any{"id": 2, "title": "Office chair"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDetail(ctx, "en", 2, map[string]any{"id": 2, "title": "Office chair v2"}); err != nil {
		t.Fatal(err)
	}
	p, err = s.GetPatent(ctx, "en", 2)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(p.Details, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["title"] != "Office chair v2" || p.ExtractedAt == nil {
		t.Errorf("details: %s", p.Details)
	}

	if _, err := s.GetPatent(ctx, "en", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("gap id: err = %v", err)
	}
}

func TestSearchPatents(t *testing.T) {
	// WHAT: FTS5 search on titles, scoped to a locale, tolerant of FTS syntax in input.
	s := openTestStore(t)
	ctx := context.Background()
	s.ReplaceSequence(ctx, "en", "2026-01-01", sampleSequence())

	res, err := s.SearchPatents(ctx, "en", "bottle", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("results: %d", len(res))
	}

	res, _ = s.SearchPatents(ctx, "en", "bott", 10)
	if len(res) != 2 {
		t.Errorf("prefix results: %d", len(res))
	}

	res, _ = s.SearchPatents(ctx, "ru", "bottle", 10)
	if len(res) != 0 {
		t.Errorf("other locale: %d", len(res))
	}

	if _, err := s.SearchPatents(ctx, "en", `chair" OR NEAR(`, 10); err != nil {
		t.Errorf("quoted input should not break MATCH: %v", err)
	}
	if res, err := s.SearchPatents(ctx, "en", "   ", 10); err != nil || res != nil {
		t.Errorf("blank query: %v %v", res, err)
	}
}

func TestListGaps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	gaps, err := s.ListGaps(ctx, "hy")
	if err != nil || len(gaps) != 0 {
		t.Fatalf("empty: %v %v", gaps, err)
	}
	s.ReplaceSequence(ctx, "hy", "2026-01-01", sampleSequence())
	gaps, _ = s.ListGaps(ctx, "hy")
	if len(gaps) != 1 || gaps[0] != 3 {
		t.Fatalf("gaps: %v", gaps)
	}
}
