package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kubev2v/workflow-dispatcher/internal/config"
)

type flags struct {
	catalog  string
	report   string
	format   string
	logLevel string
	dryRun   bool
}

func NewDispatcherCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "dispatcher [flags]",
		Short: "dispatcher triggers the selected downstream workflows and reports their outcome.",
		Long: `dispatcher reads the job catalog, triggers one workflow_dispatch per selected job,
follows every run it created until it finishes or times out, and writes a status report.

The configuration is read from the environment; flags override it.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), cfg)
			return run(cfg)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.catalog, "catalog", "", "Path to the job catalog (DISPATCHER_CATALOG)")
	fs.StringVar(&f.report, "report", "", "Report destination, appended to (DISPATCHER_REPORT_PATH)")
	fs.StringVar(&f.format, "format", "", "Report format: markdown, csv or xlsx (DISPATCHER_REPORT_FORMAT)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (DISPATCHER_LOG_LEVEL)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Plan and report without dispatching (DISPATCHER_DRY_RUN)")
}

// apply overrides the environment with the flags set on the command line.
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("catalog") {
		cfg.Catalog.Path = f.catalog
	}
	if fs.Changed("report") {
		cfg.Report.Path = f.report
	}
	if fs.Changed("format") {
		cfg.Report.Format = f.format
	}
	if fs.Changed("log-level") {
		cfg.Service.LogLevel = f.logLevel
	}
	if fs.Changed("dry-run") {
		cfg.Dispatch.DryRun = f.dryRun
	}
}
