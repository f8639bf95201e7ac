// CLAUDE:SUMMARY Service orchestrator for the registry rebuild: stage wiring (snapshot, canonical, details, verify), index, metrics and run tracking.
// Package registry rebuilds the industrial-design registry of the Armenian
// IP office in three stages per locale:
//
//  1. snapshot: sweep every classification code into data/<locale>/ICID.json
//  2. canonical: reconcile the snapshot into the dense data/<locale>/patents.json
//  3. details: fetch every record's page into data/<locale>/all_info.json
//
// A stage whose input is missing fails with ErrMissingSnapshot or
// ErrMissingCanonical; Run offers to build the missing stage first.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/aipo/audit"
	"github.com/hazyhaar/aipo/observability"
	"github.com/hazyhaar/aipo/registry/internal/aipo"
	"github.com/hazyhaar/aipo/registry/internal/buffer"
	"github.com/hazyhaar/aipo/registry/internal/icid"
	"github.com/hazyhaar/aipo/registry/internal/metrics"
	"github.com/hazyhaar/aipo/registry/internal/store"
	"github.com/hazyhaar/aipo/trace"
)

// Stage names.
const (
	StageSnapshot  = "snapshot"
	StageCanonical = "canonical"
	StageDetails   = "details"
	StageVerify    = "verify"
)

// Confirmer asks the operator a yes/no question.
type Confirmer func(question string) bool

// Type aliases for index results returned by the query methods.
type (
	Patent       = store.Patent
	SearchResult = store.SearchResult
	IndexStats   = store.Stats
	StageRun     = observability.StageRun
	AuditEntry   = audit.Entry
	Metric       = observability.Metric
	TraceEntry   = trace.Entry
)

// Summary reports what a stage produced.
type Summary struct {
	Stage       string        `json:"stage"`
	Locale      string        `json:"locale"`
	ParsingDate string        `json:"parsing_date,omitempty"`
	Records     int           `json:"records"`
	Gaps        int           `json:"gaps,omitempty"`
	LastID      int           `json:"last_id,omitempty"`
	Path        string        `json:"path"`
	Duration    time.Duration `json:"duration"`
}

// Service is the registry orchestrator.
type Service struct {
	config   *Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *store.Store                  // optional
	obs      *observability.MetricsManager // optional
	runs     *observability.RunLogger      // optional
	audit    *audit.SQLiteLogger           // optional
	traces   *trace.Store                  // optional, owned by the caller
	markdown *buffer.MarkdownWriter        // optional
	confirm  Confirmer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

// WithIndex indexes canonical sequences and details into db, and enables
// the query methods.
func WithIndex(db *sql.DB) Option {
	return func(s *Service) error {
		if err := store.ApplySchema(db); err != nil {
			return fmt.Errorf("registry: index schema: %w", err)
		}
		s.store = store.NewStore(db)
		return nil
	}
}

// WithObservability records stage metrics, stage runs and the MCP audit
// trail into db.
func WithObservability(db *sql.DB) Option {
	return func(s *Service) error {
		if err := observability.Init(db); err != nil {
			return fmt.Errorf("registry: observability schema: %w", err)
		}
		al := audit.NewSQLiteLogger(db)
		if err := al.Init(); err != nil {
			al.Close()
			return err
		}
		s.obs = observability.NewMetricsManager(db, 100, 5*time.Second)
		s.runs = observability.NewRunLogger(db)
		s.audit = al
		return nil
	}
}

// WithTraces exposes the slowest statements recorded by st. The caller
// keeps ownership of st.
func WithTraces(st *trace.Store) Option {
	return func(s *Service) error { s.traces = st; return nil }
}

// WithConfirmer sets the prompt used before bruteforce enumeration and
// before building a missing prerequisite. Without one, both are refused.
func WithConfirmer(c Confirmer) Option {
	return func(s *Service) error { s.confirm = c; return nil }
}

// WithClock overrides the clock used for parsing dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error { s.now = now; return nil }
}

// New creates a registry Service.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("registry: config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
		now:     time.Now,
	}
	if cfg.MarkdownDir != "" {
		s.markdown = buffer.NewMarkdownWriter(cfg.MarkdownDir)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close flushes buffered observability metrics and audit entries.
func (s *Service) Close() error {
	var err error
	if s.audit != nil {
		err = s.audit.Close()
	}
	if s.obs != nil {
		err = errors.Join(err, s.obs.Close())
	}
	return err
}

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.config }

func (s *Service) client(locale string) (*aipo.Client, error) {
	return aipo.New(aipo.Config{
		SearchURL:     s.config.SearchURL,
		DetailBaseURL: s.config.DetailBaseURL,
		Locale:        locale,
		Timeout:       s.config.Timeout,
		MaxBytes:      s.config.MaxBytes,
		UserAgent:     s.config.UserAgent,
		Metrics:       s.metrics,
		Logger:        s.logger,
	})
}

func (s *Service) icidConfirmer() icid.Confirmer {
	if s.confirm == nil {
		return nil
	}
	return icid.Confirmer(s.confirm)
}

// stageRun tracks one stage execution in the observability database.
type stageRun struct {
	svc   *Service
	run   *observability.Run
	stage string
	start time.Time
}

func (s *Service) startRun(ctx context.Context, stage, locale string) *stageRun {
	r := &stageRun{svc: s, stage: stage, start: time.Now()}
	if s.runs != nil {
		r.run = s.runs.Start(ctx, stage, locale)
	}
	s.logger.Info("registry: stage started", "stage", stage, "locale", locale)
	return r
}

func (r *stageRun) finish(ctx context.Context, locale string, err error, sum *Summary, extra any) {
	elapsed := time.Since(r.start)
	if sum != nil {
		sum.Duration = elapsed
	}
	if r.run != nil {
		stats := extra
		if stats == nil && sum != nil {
			stats = sum
		}
		r.run.Finish(ctx, err, stats)
	}
	if r.svc.obs != nil {
		r.svc.obs.Record(&observability.Metric{
			Name:   observability.MetricStageDurationMs,
			Value:  float64(elapsed.Milliseconds()),
			Labels: map[string]string{"stage": r.stage, "locale": locale},
			Unit:   "milliseconds",
		})
	}
	if err != nil {
		r.svc.logger.Error("registry: stage failed", "stage", r.stage, "locale", locale,
			"error", err, "duration_ms", elapsed.Milliseconds())
		return
	}
	r.svc.logger.Info("registry: stage complete", "stage", r.stage, "locale", locale,
		"duration_ms", elapsed.Milliseconds())
}

func (s *Service) count(name, stage, locale string, v int) {
	if s.obs != nil {
		s.obs.RecordCount(name, stage, locale, v)
	}
}
