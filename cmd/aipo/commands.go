package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/aipo/dbopen"
	"github.com/hazyhaar/aipo/registry"
	"github.com/hazyhaar/aipo/trace"
)

func (a *app) stageCmd(stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locales, err := registry.Locales(a.locale)
			if err != nil {
				return err
			}
			return a.runStage(cmd.Context(), stage, locales)
		},
	}
}

// runStage runs stage for each locale in turn and stops at the first failure.
func (a *app) runStage(ctx context.Context, stage string, locales []string) error {
	svc, closeAll, err := a.open("")
	if err != nil {
		return err
	}
	defer closeAll()

	for _, locale := range locales {
		sum, err := svc.Run(ctx, stage, locale)
		if err != nil {
			return fmt.Errorf("%s %s: %w", stage, locale, err)
		}
		printSummary(a.out, sum)
	}
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry index as a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := a.open(listen)
			if err != nil {
				return err
			}
			defer closeAll()
			return serve(cmd.Context(), svc)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, svc *registry.Service) error {
	srv := &http.Server{
		Addr:              svc.Config().Listen,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("aipo: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("aipo: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("aipo: server stopped")
	return nil
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the registry index as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := a.open("")
			if err != nil {
				return err
			}
			defer closeAll()

			srv := mcp.NewServer(&mcp.Implementation{Name: "aipo", Version: version}, nil)
			svc.RegisterMCP(srv)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func (a *app) loadConfig() (*registry.Config, error) {
	if a.configPath != "" {
		return registry.LoadConfig(a.configPath)
	}
	cfg := registry.DefaultConfig()
	cfg.ApplyEnv(envLookup)
	return cfg, cfg.Validate()
}

// open loads the config, installs the logger and opens both databases.
// The returned func closes everything in reverse order.
func (a *app) open(listen string) (*registry.Service, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	logger := newLogger(a.errOut, cfg.LogFormat, a.logLevel)
	slog.SetDefault(logger)

	// Observability first: it holds the SQL trace of the index, so it is
	// opened with the plain driver.
	obsDB, err := dbopen.Open(cfg.ObservabilityPath(), dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, fmt.Errorf("observability db: %w", err)
	}
	traces := trace.NewStore(obsDB)
	if err := traces.Init(); err != nil {
		traces.Close()
		obsDB.Close()
		return nil, nil, fmt.Errorf("trace init: %w", err)
	}
	trace.SetRecorder(traces)
	closeObs := func() {
		trace.SetRecorder(nil)
		traces.Close()
		if n := traces.Dropped(); n > 0 {
			logger.Warn("aipo: sql trace entries dropped", "count", n)
		}
		obsDB.Close()
	}

	indexDB, err := dbopen.Open(cfg.IndexPath(), dbopen.WithMkdirAll(), dbopen.WithDriver(trace.DriverName))
	if err != nil {
		closeObs()
		return nil, nil, fmt.Errorf("index db: %w", err)
	}

	svc, err := registry.New(cfg, logger,
		registry.WithIndex(indexDB),
		registry.WithObservability(obsDB),
		registry.WithTraces(traces),
		registry.WithConfirmer(a.confirm))
	if err != nil {
		indexDB.Close()
		closeObs()
		return nil, nil, err
	}
	return svc, func() {
		svc.Close()
		indexDB.Close()
		closeObs()
	}, nil
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func printSummary(w io.Writer, sum *registry.Summary) {
	fmt.Fprintf(w, "%s %s: %d records", sum.Locale, sum.Stage, sum.Records)
	if sum.Gaps > 0 {
		fmt.Fprintf(w, ", %d gaps", sum.Gaps)
	}
	if sum.LastID > 0 {
		fmt.Fprintf(w, ", last id %d", sum.LastID)
	}
	if sum.ParsingDate != "" {
		fmt.Fprintf(w, ", parsed %s", sum.ParsingDate)
	}
	fmt.Fprintf(w, " in %s\n  %s\n", sum.Duration.Round(time.Millisecond), sum.Path)
}
