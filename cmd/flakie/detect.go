package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/initify/flakie/internal/detect"
)

func detectCommand(stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("flakie detect", flag.ContinueOnError)
	var (
		runs      = fs.Int("runs", 5, "number of times to run the test suite")
		pkg       = fs.String("pkg", "./...", "package pattern to test (e.g., ./... or ./pkg/...)")
		dir       = fs.String("dir", ".", "module directory to run in")
		timeout   = fs.Duration("timeout", 10*time.Minute, "timeout for each test run")
		race      = fs.Bool("race", false, "enable the race detector")
		tags      = fs.String("tags", "", "build tags passed to go test")
		extraArgs = fs.String("args", "", "extra args to pass to 'go test' (quoted)")
		jsonOut   = fs.Bool("json", false, "print JSON summary instead of human-readable output")
		verbose   = fs.Bool("v", false, "verbose logging")
	)
	return &ffcli.Command{
		Name:       "detect",
		ShortUsage: "flakie detect [flags]",
		ShortHelp:  "run go test repeatedly and report flaky tests",
		LongHelp:   "EXAMPLE\n   flakie detect -runs 10 -tags demo -pkg ./examples/...",
		FlagSet:    fs,
		Options:    envOptions(),
		Exec: func(ctx context.Context, _ []string) error {
			logger := newLogger(*verbose)
			defer func() { _ = logger.Sync() }()

			summary, err := detect.RunGoTest(ctx, detect.Options{
				Dir:       *dir,
				Pkg:       *pkg,
				Runs:      *runs,
				Timeout:   *timeout,
				Race:      *race,
				Tags:      *tags,
				ExtraArgs: *extraArgs,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			if *jsonOut {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			} else if err := summary.WriteHuman(stdout); err != nil {
				return err
			}
			if code := summary.ExitCode(); code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
}
