package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"infrafi/analytics"
	"infrafi/export"
	"infrafi/observability/logging"
	"infrafi/subgraph"
)

// Source supplies the indexed history an export run combines.
type Source interface {
	EventsSince(ctx context.Context, start int64) ([]subgraph.Event, error)
	RateSnapshotsSince(ctx context.Context, start int64) ([]subgraph.RateSnapshot, error)
}

// Command returns the root infrafi-export command with its flags bound.
func Command() *cobra.Command {
	c := &cobra.Command{
		Use:          "infrafi-export",
		Short:        "Exports lending events paired with rate snapshots to CSV or Parquet",
		SilenceUsage: true,
		RunE:         exportFunc,
	}
	AddFlags(c.Flags())
	return c
}

func exportFunc(c *cobra.Command, _ []string) error {
	config, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	logger, closer := logging.Configure(logging.Options{
		Service: "infrafi-export",
		Level:   config.LogLevel,
	})
	defer closer.Close()

	client, err := subgraph.NewClient(subgraph.Config{
		Endpoint: config.Subgraph,
		Timeout:  config.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	_, err = Run(c.Context(), client, config, time.Now, logger, c.OutOrStdout())
	return err
}

// Run fetches the last config.Days of events and rate snapshots, combines
// them and writes the report. It returns nil without writing when the
// window holds no events.
func Run(ctx context.Context, src Source, config *Config, now func() time.Time, logger *slog.Logger, out io.Writer) (*export.Result, error) {
	start := now().Add(-time.Duration(config.Days) * 24 * time.Hour).Unix()
	fmt.Fprintf(out, "Fetching events since %s\n", time.Unix(start, 0).UTC().Format(time.RFC3339))

	var (
		events []subgraph.Event
		rates  []subgraph.RateSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if events, err = src.EventsSince(gctx, start); err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if rates, err = src.RateSnapshotsSince(gctx, start); err != nil {
			return fmt.Errorf("fetch rate snapshots: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found in the requested window")
		return nil, nil
	}
	logger.Info("fetched history", "events", len(events), "rate_snapshots", len(rates))

	rows := analytics.CombineEvents(events, rates)
	result, err := export.Write(rows, export.Options{
		Dir:    config.Out,
		Format: config.Format,
		Now:    now,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	printSummary(out, result)
	return result, nil
}

func printSummary(out io.Writer, result *export.Result) {
	fmt.Fprintf(out, "Exported %d events (run %s)\n", result.Rows, result.RunID)
	for _, kind := range export.SortedTypes(result.ByType) {
		fmt.Fprintf(out, "  %-16s %d\n", kind, result.ByType[kind])
	}
	if result.CSVPath != "" {
		fmt.Fprintf(out, "CSV:     %s\n", result.CSVPath)
	}
	if result.ParquetPath != "" {
		fmt.Fprintf(out, "Parquet: %s\n", result.ParquetPath)
	}
}
