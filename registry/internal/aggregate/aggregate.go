// Package aggregate sweeps every classification code once and collects the
// non-empty answers into a registry snapshot.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/aipo/registry/internal/icid"
	"github.com/hazyhaar/aipo/registry/internal/model"
)

// GroupFetcher answers "every record tagged with code". No match is
// (nil, nil); an error is fatal to the sweep.
type GroupFetcher interface {
	FetchGroup(ctx context.Context, code icid.Code) ([]model.Record, error)
}

// Aggregator builds snapshots.
type Aggregator struct {
	fetcher       GroupFetcher
	logger        *slog.Logger
	now           func() time.Time
	progressEvery int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the clock used for the parsing date.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithProgressEvery sets how many codes pass between info progress logs.
// Zero or negative disables them.
func WithProgressEvery(n int) Option {
	return func(a *Aggregator) { a.progressEvery = n }
}

// New creates an Aggregator. A nil logger falls back to slog.Default().
func New(fetcher GroupFetcher, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{fetcher: fetcher, logger: logger, now: time.Now, progressEvery: 25}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run queries every code in order. Non-empty answers become groups in
// enumeration order; Entries counts their records, duplicates included.
// The first fetch error aborts the sweep and no snapshot is returned.
func (a *Aggregator) Run(ctx context.Context, codes icid.Codes) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		ParsingDate: a.now().Format(time.DateOnly),
		Groups:      []model.Group{},
	}

	done := 0
	for code := range codes.Seq {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregate: %s: %w", code, err)
		}
		recs, err := a.fetcher.FetchGroup(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %s: %w", code, err)
		}
		done++
		a.logger.Debug("aggregate: code", "code", code.String(), "records", len(recs),
			"done", done, "total", codes.Total)

		if len(recs) > 0 {
			snap.Groups = append(snap.Groups, model.Group{Code: code.String(), Data: recs})
			snap.Entries += len(recs)
		}
		if a.progressEvery > 0 && done%a.progressEvery == 0 {
			a.logger.Info("aggregate: progress", "done", done, "total", codes.Total,
				"groups", len(snap.Groups), "entries", snap.Entries)
		}
	}

	a.logger.Info("aggregate: sweep complete", "codes", done, "groups", len(snap.Groups),
		"entries", snap.Entries, "parsing_date", snap.ParsingDate)
	return snap, nil
}
