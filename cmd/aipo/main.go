// CLAUDE:SUMMARY Entry point for the aipo CLI: interactive stage menu, one-shot stage subcommands, read-only API server and MCP over stdio.
// Command aipo rebuilds the industrial-design registry of the Armenian IP
// office and serves the rebuilt index.
//
// Usage:
//
//	aipo                              # interactive menu
//	aipo snapshot --locale all        # sweep every classification code
//	aipo canonical -l ru              # reconcile ICID.json into patents.json
//	aipo details --yes                # extract record pages, building prerequisites
//	aipo verify                       # re-check patents.json offline
//	aipo serve --listen :8086         # read-only JSON API + /metrics
//	aipo mcp                          # MCP tools over stdio
package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/aipo/registry"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app carries the persistent flags and the terminal the commands talk to.
type app struct {
	configPath string
	locale     string
	yes        bool
	logLevel   string

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "aipo",
		Short: "Rebuild the AIPO industrial-design registry",
		Long: `aipo rebuilds the industrial-design registry in three stages per locale:

  snapshot   sweep every classification code into data/<locale>/ICID.json
  canonical  reconcile the snapshot into the dense data/<locale>/patents.json
  details    extract every record page into data/<locale>/all_info.json

Without a subcommand it asks for the locale and the stage interactively.`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runMenu,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to aipo.yaml (defaults apply when empty)")
	flags.StringVarP(&a.locale, "locale", "l", "en", "locale: en, ru, hy or all")
	flags.BoolVarP(&a.yes, "yes", "y", false, "answer yes to every confirmation")
	flags.StringVar(&a.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")

	root.AddCommand(
		a.stageCmd(registry.StageSnapshot, "Sweep every classification code into ICID.json"),
		a.stageCmd(registry.StageCanonical, "Reconcile ICID.json into the dense patents.json"),
		a.stageCmd(registry.StageDetails, "Extract every record page into all_info.json"),
		a.stageCmd(registry.StageVerify, "Re-check patents.json and gaps.json without network access"),
		a.serveCmd(),
		a.mcpCmd(),
	)
	return root
}

var envLookup = os.Getenv

func envOr(key, fallback string) string {
	if v := envLookup(key); v != "" {
		return v
	}
	return fallback
}
