package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/initify/flakie/internal/pipeline"
	"github.com/initify/flakie/internal/report"
	"github.com/initify/flakie/internal/runner"
	"github.com/initify/flakie/internal/scenario"
)

func simulateCommand(stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("flakie simulate", flag.ContinueOnError)
	var (
		runs    = fs.Int("runs", 0, "runs per scenario (0 uses the pipeline setting)")
		seed    = fs.Int64("seed", 0, "seed for a reproducible build (0 picks one)")
		suite   = fs.String("suite", "", "only run this suite")
		config  = fs.String("config", "", "pipeline YAML file (defaults to the built-in demo pipeline)")
		jsonOut = fs.Bool("json", false, "print the result as JSON")
		junit   = fs.String("junit", "", "also write a JUnit XML report to this path")
		verbose = fs.Bool("v", false, "verbose logging")
	)
	return &ffcli.Command{
		Name:       "simulate",
		ShortUsage: "flakie simulate [flags]",
		ShortHelp:  "run the flaky scenario catalog like a CI build",
		LongHelp:   "EXAMPLES\n   flakie simulate -runs 20 -seed 42\n   flakie simulate -suite IntegrationTest -json",
		FlagSet:    fs,
		Options:    envOptions(),
		Exec: func(ctx context.Context, _ []string) error {
			cfg := pipeline.Default()
			if *config != "" {
				var err error
				if cfg, err = pipeline.Load(*config); err != nil {
					return err
				}
			}
			cat, err := scenario.Default()
			if err != nil {
				return err
			}
			logger := newLogger(*verbose)
			defer func() { _ = logger.Sync() }()

			res, err := runner.New(cfg, cat, logger).Run(ctx, runner.Options{Runs: *runs, Seed: *seed, Suite: *suite})
			if err != nil {
				return err
			}
			if *junit != "" {
				if err := writeJUnit(*junit, cfg.Name, res); err != nil {
					return err
				}
			}
			if *jsonOut {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if err := printResult(stdout, res); err != nil {
				return err
			}
			if code := res.ExitCode(); code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
}

func writeJUnit(path, name string, res *runner.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJUnit(f, name, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(w io.Writer, res *runner.Result) error {
	if err := res.WriteHuman(w); err != nil {
		return err
	}
	for _, m := range res.Muted {
		fmt.Fprintf(w, "muted: %s (flakiness=%.2f, assignee=%s)\n", m.Test, m.Rate, m.Assignee)
	}
	for _, a := range res.Alerts {
		fmt.Fprintf(w, "alert: %s = %.2f > %.2f %s\n", a.Metric, a.Value, a.Threshold, a.Description)
	}
	_, err := fmt.Fprintf(w, "status: %s (seed %d)\n", res.Status, res.Seed)
	return err
}
