package registry

import (
	"context"
	"fmt"

	"github.com/hazyhaar/aipo/registry/internal/model"
)

func (s *Service) checkQuery(locale string) error {
	if s.store == nil {
		return ErrNoIndex
	}
	if !model.ValidLocale(locale) {
		return fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
	}
	return nil
}

// GetPatent returns an indexed record with its details, if extracted.
func (s *Service) GetPatent(ctx context.Context, locale string, id int) (*Patent, error) {
	if err := s.checkQuery(locale); err != nil {
		return nil, err
	}
	return s.store.GetPatent(ctx, locale, id)
}

// SearchPatents searches indexed titles.
func (s *Service) SearchPatents(ctx context.Context, locale, query string, limit int) ([]*SearchResult, error) {
	if err := s.checkQuery(locale); err != nil {
		return nil, err
	}
	if limit > 200 {
		limit = 200
	}
	return s.store.SearchPatents(ctx, locale, query, limit)
}

// ListGaps returns the documented gaps of the indexed sequence.
func (s *Service) ListGaps(ctx context.Context, locale string) ([]int, error) {
	if err := s.checkQuery(locale); err != nil {
		return nil, err
	}
	return s.store.ListGaps(ctx, locale)
}

// Stats returns counters of the indexed sequence.
func (s *Service) Stats(ctx context.Context, locale string) (*IndexStats, error) {
	if err := s.checkQuery(locale); err != nil {
		return nil, err
	}
	return s.store.Stats(ctx, locale)
}

// RecentRuns returns the latest stage runs, newest first. Empty stage
// means every stage. Nil without observability.
func (s *Service) RecentRuns(ctx context.Context, stage string, limit int) ([]*StageRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.Recent(ctx, stage, limit)
}

// RecentAudit returns the latest audited MCP calls, newest first. Empty
// action means every tool. Nil without observability.
func (s *Service) RecentAudit(ctx context.Context, action string, limit int) ([]AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.Recent(ctx, action, limit)
}

// MetricHistory returns persisted stage metrics, newest first, after
// flushing the buffer. Empty name means every metric. Nil without
// observability.
func (s *Service) MetricHistory(ctx context.Context, name string, limit int) ([]*Metric, error) {
	if s.obs == nil {
		return nil, nil
	}
	s.obs.Flush()
	return s.obs.Query(ctx, name, limit)
}

// SlowQueries returns the slowest traced index statements, optionally for a
// single trace id. Nil when no trace store is wired.
func (s *Service) SlowQueries(ctx context.Context, traceID string, limit int) ([]TraceEntry, error) {
	if s.traces == nil {
		return nil, nil
	}
	return s.traces.Slow(ctx, traceID, limit)
}
