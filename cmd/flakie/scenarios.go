package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/initify/flakie/internal/pipeline"
	"github.com/initify/flakie/internal/scenario"
)

func scenariosCommand(stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("flakie scenarios", flag.ContinueOnError)
	suite := fs.String("suite", "", "only list this suite")
	return &ffcli.Command{
		Name:       "scenarios",
		ShortUsage: "flakie scenarios [flags]",
		ShortHelp:  "list the scenario catalog",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			cat, err := scenario.Default()
			if err != nil {
				return err
			}
			if cat, err = cat.Filter(*suite); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUITE\tNAME\tKIND\tFAILURE RATE")
			for _, s := range cat.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", s.Suite, s.Name, s.Kind, s.Threshold)
			}
			return tw.Flush()
		},
	}
}

func validateCommand(stdout io.Writer) *ffcli.Command {
	return &ffcli.Command{
		Name:       "validate",
		ShortUsage: "flakie validate <pipeline.yml>",
		ShortHelp:  "check a pipeline file",
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			cfg, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "%s: ok (%d steps, %d muting rules)\n", cfg.Name, len(cfg.Steps), len(cfg.Features.Muting.Rules))
			return err
		},
	}
}
