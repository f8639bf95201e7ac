// CLAUDE:SUMMARY Rebuilds the dense-by-id canonical registry from a classification-partitioned candidate pool, filling gaps and extending the upper boundary with point queries.
// Package reconcile turns the fragmented candidate pool of a snapshot into
// the canonical registry: one record per certificate id from 1 upwards,
// ascending, with ids the service never answers for kept as documented gaps.
//
// The pool is sorted once and merged against an expected-id cursor into a
// fresh output slice. Missing ids are asked for individually; after the
// highest known id, ids are queried until the first miss. The result is then
// re-walked and any deviation is reported, never repaired.
package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hazyhaar/aipo/registry/internal/model"
)

// PointFetcher answers "the record with certificate id". A miss is
// (Record{}, false, nil); an error is fatal.
type PointFetcher interface {
	FetchPoint(ctx context.Context, id int) (model.Record, bool, error)
}

// Stats counts what the merge did.
type Stats struct {
	Input      int `json:"input"`
	Accepted   int `json:"accepted"`
	Filled     int `json:"filled"`
	Gaps       int `json:"gaps"`
	Duplicates int `json:"duplicates"`
	Extended   int `json:"extended"`
}

// Result is a verified canonical sequence.
type Result struct {
	Sequence model.Sequence
	Stats    Stats
}

// Reconciler owns no state between runs.
type Reconciler struct {
	fetcher PointFetcher
	logger  *slog.Logger
}

// New creates a Reconciler. A nil logger falls back to slog.Default().
func New(fetcher PointFetcher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{fetcher: fetcher, logger: logger}
}

// Reconcile builds and verifies the canonical sequence for pool. pool is not
// modified. Among records sharing an id, the first one in pool order wins.
func (r *Reconciler) Reconcile(ctx context.Context, pool []model.Record) (*Result, error) {
	sorted := slices.Clone(pool)
	slices.SortStableFunc(sorted, byID)

	res := &Result{Stats: Stats{Input: len(pool)}}
	seq := &res.Sequence
	seq.Records = make([]model.Record, 0, len(sorted))

	next := 1
	for i := 0; i < len(sorted); {
		rec := sorted[i]
		switch {
		case rec.CertificateID == next:
			seq.Records = append(seq.Records, rec)
			res.Stats.Accepted++
			next++
			i++

		case rec.CertificateID > next:
			filled, found, err := r.fetcher.FetchPoint(ctx, next)
			if err != nil {
				return nil, fmt.Errorf("reconcile: fill id %d: %w", next, err)
			}
			if found {
				r.logger.Debug("reconcile: filled gap", "id", next)
				seq.Records = append(seq.Records, filled)
				res.Stats.Filled++
			} else {
				r.logger.Info("reconcile: documented gap", "id", next)
				seq.Gaps = append(seq.Gaps, next)
				res.Stats.Gaps++
			}
			next++

		default:
			r.logger.Debug("reconcile: discarded duplicate", "id", rec.CertificateID)
			res.Stats.Duplicates++
			i++
		}
	}

	for {
		rec, found, err := r.fetcher.FetchPoint(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("reconcile: extend id %d: %w", next, err)
		}
		if !found {
			break
		}
		r.logger.Debug("reconcile: extended boundary", "id", next)
		seq.Records = append(seq.Records, rec)
		res.Stats.Extended++
		next++
	}

	if err := Verify(*seq); err != nil {
		return nil, err
	}

	r.logger.Info("reconcile: sequence verified",
		"records", len(seq.Records), "last_id", seq.Last(),
		"accepted", res.Stats.Accepted, "filled", res.Stats.Filled,
		"gaps", res.Stats.Gaps, "duplicates", res.Stats.Duplicates,
		"extended", res.Stats.Extended)
	return res, nil
}

func byID(a, b model.Record) int {
	return cmp.Compare(a.CertificateID, b.CertificateID)
}

// Verify checks that seq's records and gaps, merged, enumerate 1..N exactly
// once with records strictly ascending, and that no gap lies past the last
// record. It returns an *InvariantViolation for the first deviation.
func Verify(seq model.Sequence) error {
	ri, gi := 0, 0
	for want := 1; ri < len(seq.Records) || gi < len(seq.Gaps); want++ {
		switch {
		case ri < len(seq.Records) && seq.Records[ri].CertificateID == want:
			ri++
		case gi < len(seq.Gaps) && seq.Gaps[gi] == want:
			if ri == len(seq.Records) {
				return &InvariantViolation{Position: want - 1, Want: want, Got: 0}
			}
			gi++
		default:
			got := 0
			if ri < len(seq.Records) {
				got = seq.Records[ri].CertificateID
			}
			if gi < len(seq.Gaps) && (got == 0 || seq.Gaps[gi] < got) {
				got = seq.Gaps[gi]
			}
			return &InvariantViolation{Position: want - 1, Want: want, Got: got}
		}
	}
	return nil
}
