package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"
	"moul.io/motd"
)

// exitCode carries a non-zero process status out of a subcommand.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	err := run(os.Args, os.Stdout)
	var code exitCode
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case errors.As(err, &code):
		os.Exit(int(code))
	default:
		log.Fatalf("error: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	root := &ffcli.Command{
		ShortUsage: "flakie <subcommand> [flags]",
		ShortHelp:  "Flaky test detection and simulation.",
		Exec: func(context.Context, []string) error {
			fmt.Fprintln(stdout, motd.Default())
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			simulateCommand(stdout),
			detectCommand(stdout),
			scenariosCommand(stdout),
			validateCommand(stdout),
		},
	}
	return root.ParseAndRun(context.Background(), args[1:])
}

func envOptions() []ff.Option {
	return []ff.Option{ff.WithEnvVarPrefix("FLAKIE")}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
