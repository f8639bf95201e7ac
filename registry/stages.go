// CLAUDE:SUMMARY The three rebuild stages plus offline verification, and Run which cascades into missing prerequisites after confirmation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hazyhaar/aipo/observability"
	"github.com/hazyhaar/aipo/registry/internal/aggregate"
	"github.com/hazyhaar/aipo/registry/internal/buffer"
	"github.com/hazyhaar/aipo/registry/internal/detail"
	"github.com/hazyhaar/aipo/registry/internal/icid"
	"github.com/hazyhaar/aipo/registry/internal/model"
	"github.com/hazyhaar/aipo/registry/internal/reconcile"
)

// gapsFile is the layout of data/<locale>/gaps.json.
type gapsFile struct {
	Gaps []int `json:"gaps"`
}

// Locales resolves an operator's locale choice: "" means en, "all" means
// every locale.
func Locales(choice string) ([]string, error) {
	locales, err := model.ExpandLocale(choice)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocale, choice)
	}
	return locales, nil
}

// Run executes stage for locale. When the stage's input is missing, the
// confirmer is asked whether to build it first; the cascade may recurse
// from details down to snapshot.
func (s *Service) Run(ctx context.Context, stage, locale string) (*Summary, error) {
	var run func(context.Context, string) (*Summary, error)
	switch stage {
	case StageSnapshot:
		return s.BuildSnapshot(ctx, locale)
	case StageCanonical:
		run = s.BuildCanonical
	case StageDetails:
		run = s.ExtractDetails
	case StageVerify:
		return s.Verify(ctx, locale)
	default:
		return nil, fmt.Errorf("registry: unknown stage %q", stage)
	}

	sum, err := run(ctx, locale)
	var upstream string
	switch {
	case errors.Is(err, ErrMissingSnapshot):
		upstream = StageSnapshot
	case errors.Is(err, ErrMissingCanonical):
		upstream = StageCanonical
	default:
		return sum, err
	}

	q := fmt.Sprintf("%v\nDo you want to run the %s stage for %s first?", err, upstream, locale)
	if s.confirm == nil || !s.confirm(q) {
		return nil, err
	}
	if _, err := s.Run(ctx, upstream, locale); err != nil {
		return nil, err
	}
	return run(ctx, locale)
}

// BuildSnapshot sweeps every classification code and writes ICID.json.
func (s *Service) BuildSnapshot(ctx context.Context, locale string) (sum *Summary, err error) {
	path, err := s.config.SnapshotPath(locale)
	if err != nil {
		return nil, err
	}
	codes, err := icid.Load(s.config.CodeTable, s.icidConfirmer())
	if err != nil {
		return nil, fmt.Errorf("registry: classification codes: %w", err)
	}
	client, err := s.client(locale)
	if err != nil {
		return nil, err
	}

	run := s.startRun(ctx, StageSnapshot, locale)
	defer func() { run.finish(ctx, locale, err, sum, nil) }()

	agg := aggregate.New(client, s.logger.With("locale", locale),
		aggregate.WithClock(s.now),
		aggregate.WithProgressEvery(s.config.ProgressEvery))
	snap, err := agg.Run(ctx, codes)
	if err != nil {
		return nil, err
	}
	if err := buffer.WriteJSON(path, snap); err != nil {
		return nil, err
	}

	s.count(observability.MetricSnapshotEntries, StageSnapshot, locale, snap.Entries)
	s.count(observability.MetricSnapshotGroups, StageSnapshot, locale, len(snap.Groups))
	return &Summary{
		Stage:       StageSnapshot,
		Locale:      locale,
		ParsingDate: snap.ParsingDate,
		Records:     snap.Entries,
		Path:        path,
	}, nil
}

// BuildCanonical reconciles the snapshot into patents.json (and gaps.json
// when ids are missing), then replaces the locale's index.
func (s *Service) BuildCanonical(ctx context.Context, locale string) (sum *Summary, err error) {
	snapPath, err := s.config.SnapshotPath(locale)
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := buffer.ReadJSON(snapPath, &snap); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSnapshot, snapPath)
		}
		return nil, err
	}
	client, err := s.client(locale)
	if err != nil {
		return nil, err
	}

	run := s.startRun(ctx, StageCanonical, locale)
	var stats *reconcile.Stats
	defer func() {
		var extra any
		if stats != nil {
			extra = stats
		}
		run.finish(ctx, locale, err, sum, extra)
	}()

	res, err := reconcile.New(client, s.logger.With("locale", locale)).Reconcile(ctx, snap.Pool())
	if err != nil {
		return nil, err
	}
	stats = &res.Stats
	seq := res.Sequence

	path, _ := s.config.CanonicalPath(locale)
	gapsPath, _ := s.config.GapsPath(locale)
	// gaps.json is settled before patents.json is replaced.
	if err := os.Remove(gapsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("registry: remove stale gaps: %w", err)
	}
	if len(seq.Gaps) > 0 {
		if err := buffer.WriteJSON(gapsPath, gapsFile{Gaps: seq.Gaps}); err != nil {
			return nil, err
		}
	}
	if err := buffer.WriteJSON(path, seq.Records); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.ReplaceSequence(ctx, locale, snap.ParsingDate, seq); err != nil {
			return nil, err
		}
	}

	s.count(observability.MetricCanonicalRecords, StageCanonical, locale, len(seq.Records))
	s.count(observability.MetricCanonicalGaps, StageCanonical, locale, len(seq.Gaps))
	s.count(observability.MetricCanonicalFilled, StageCanonical, locale, res.Stats.Filled+res.Stats.Extended)
	return &Summary{
		Stage:       StageCanonical,
		Locale:      locale,
		ParsingDate: snap.ParsingDate,
		Records:     len(seq.Records),
		Gaps:        len(seq.Gaps),
		LastID:      seq.Last(),
		Path:        path,
	}, nil
}

// ExtractDetails fetches and parses the page of every canonical record into
// all_info.json. Records already present in an existing all_info.json are
// skipped; a page without a (11) field gets the record's certificate id so
// it is recognised on the next run. The accumulated array is written even when the run fails or is
// interrupted, so a later run resumes where this one stopped.
func (s *Service) ExtractDetails(ctx context.Context, locale string) (sum *Summary, err error) {
	canonPath, err := s.config.CanonicalPath(locale)
	if err != nil {
		return nil, err
	}
	var records []model.Record
	if err := buffer.ReadJSON(canonPath, &records); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingCanonical, canonPath)
		}
		return nil, err
	}
	client, err := s.client(locale)
	if err != nil {
		return nil, err
	}

	path, _ := s.config.DetailsPath(locale)
	all := []detail.Fields{}
	if err := buffer.ReadJSON(path, &all); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	done := make(map[int]bool, len(all))
	for _, f := range all {
		if id, ok := f.ID(); ok {
			done[id] = true
		}
	}
	resumed := len(all)
	if resumed > 0 {
		s.logger.Info("registry: resuming detail extraction", "locale", locale, "already", resumed)
	}

	run := s.startRun(ctx, StageDetails, locale)
	defer func() {
		if werr := buffer.WriteJSON(path, all); werr != nil {
			err = errors.Join(err, werr)
			sum = nil
		}
		s.count(observability.MetricDetailsExtracted, StageDetails, locale, len(all)-resumed)
		run.finish(ctx, locale, err, sum, nil)
	}()

	logger := s.logger.With("locale", locale)
	for i, rec := range records {
		if done[rec.CertificateID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("registry: details interrupted at id %d: %w", rec.CertificateID, err)
		}
		page, err := client.FetchDetail(ctx, rec.Link)
		if err != nil {
			return nil, fmt.Errorf("registry: details id %d: %w", rec.CertificateID, err)
		}
		fields, err := detail.Parse(page, client.DetailBaseURL())
		if err != nil {
			return nil, fmt.Errorf("registry: details id %d: %w", rec.CertificateID, err)
		}
		if _, ok := fields.ID(); !ok {
			fields["id"] = rec.CertificateID
		}
		all = append(all, fields)

		if s.store != nil {
			if err := s.store.UpsertDetail(ctx, locale, rec.CertificateID, fields); err != nil {
				return nil, err
			}
		}
		if s.markdown != nil {
			if err := s.writeMarkdown(ctx, locale, rec, fields, page); err != nil {
				return nil, err
			}
		}
		logger.Debug("registry: detail extracted", "id", rec.CertificateID)
		if n := s.config.ProgressEvery; n > 0 && (i+1)%n == 0 {
			logger.Info("registry: details progress", "done", i+1, "total", len(records))
		}
	}

	return &Summary{
		Stage:   StageDetails,
		Locale:  locale,
		Records: len(all),
		Path:    path,
	}, nil
}

func (s *Service) writeMarkdown(ctx context.Context, locale string, rec model.Record, fields detail.Fields, page []byte) error {
	meta := buffer.Metadata{
		CertificateID: rec.CertificateID,
		Locale:        locale,
		Title:         rec.Title,
		SourceURL:     rec.Link,
		ExtractedAt:   s.now().UTC().Truncate(time.Second),
	}
	if codes, ok := fields["ICID_codes"].([]string); ok {
		meta.ICIDCodes = codes
	}
	_, err := s.markdown.Write(ctx, meta, string(page))
	return err
}

// Verify re-checks a persisted canonical sequence without network access.
func (s *Service) Verify(ctx context.Context, locale string) (sum *Summary, err error) {
	path, err := s.config.CanonicalPath(locale)
	if err != nil {
		return nil, err
	}
	var seq model.Sequence
	if err := buffer.ReadJSON(path, &seq.Records); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingCanonical, path)
		}
		return nil, err
	}
	gapsPath, _ := s.config.GapsPath(locale)
	var gaps gapsFile
	if err := buffer.ReadJSON(gapsPath, &gaps); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	seq.Gaps = gaps.Gaps

	run := s.startRun(ctx, StageVerify, locale)
	defer func() { run.finish(ctx, locale, err, sum, nil) }()

	if err := reconcile.Verify(seq); err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return &Summary{
		Stage:   StageVerify,
		Locale:  locale,
		Records: len(seq.Records),
		Gaps:    len(seq.Gaps),
		LastID:  seq.Last(),
		Path:    path,
	}, nil
}
