package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/indicator-etl/internal/adapter/source"
	"github.com/couchcryptid/indicator-etl/internal/config"
	"github.com/couchcryptid/indicator-etl/internal/observability"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

// sourceFlags holds the flags shared by every report.
type sourceFlags struct {
	cfg     *config.Config
	verbose bool
}

// NewRootCommand builds the indicators command tree. Flag defaults come from
// the same environment variables the service reads.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = &config.Config{}
	}
	flags := &sourceFlags{cfg: cfg}

	root := &cobra.Command{
		Use:           "indicators",
		Short:         "Reconcile internet adoption, GDP and electricity access tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return cfgErr
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.InternetSource, "internet", cfg.InternetSource, "internet adoption source (long format), path or URL")
	pf.StringVar(&cfg.GDPSource, "gdp", cfg.GDPSource, "GDP per capita source (World Bank wide format), path or URL")
	pf.StringVar(&cfg.ElectricitySource, "electricity", cfg.ElectricitySource, "electricity access source (World Bank wide format), path or URL")
	pf.StringVar(&cfg.GeoJSONSource, "geojson", cfg.GeoJSONSource, "country GeoJSON with continent labels, path or URL")
	pf.IntVar(&cfg.HeaderScanLines, "header-scan-lines", cfg.HeaderScanLines, "lines scanned for the wide-table header")
	pf.IntVar(&cfg.LoadConcurrency, "concurrency", cfg.LoadConcurrency, "sources loaded in parallel")
	pf.DurationVar(&cfg.FetchTimeout, "timeout", cfg.FetchTimeout, "per-request timeout for URL sources")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log source loading to stderr")

	root.AddCommand(
		newLatestCommand(flags),
		newProsperityCommand(flags),
		newContinentsCommand(flags),
		newGapCommand(flags),
		newTopCommand(flags),
		newCompareCommand(flags),
		newValidateCommand(flags),
	)
	return root
}

// engine builds a one-shot engine over the configured sources.
func (f *sourceFlags) engine(cmd *cobra.Command) *pipeline.Engine {
	level := slog.LevelError
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	fetcher := source.NewRouter(source.NewHTTPFetcher(f.cfg.FetchTimeout, logger))

	return pipeline.New(fetcher, pipeline.Settings{
		Sources:     pipeline.SourcesFromConfig(f.cfg),
		GeoJSON:     f.cfg.GeoJSONSource,
		Parse:       pipeline.ParseOptionsFromConfig(f.cfg),
		Concurrency: f.cfg.LoadConcurrency,
	}, logger, observability.NewMetricsWithRegistry(nil))
}

// session loads every source once and returns the resulting session. Each
// failed source is reported on stderr regardless of verbosity.
func (f *sourceFlags) session(cmd *cobra.Command) (*pipeline.Session, error) {
	s, err := f.engine(cmd).Load(cmd.Context())
	for _, name := range s.FailedSources() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: source %s failed: %s\n", name, s.Failures[name])
	}
	return s, err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
