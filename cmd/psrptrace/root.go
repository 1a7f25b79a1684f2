package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/smnsjas/go-psrptrace/config"
	"github.com/spf13/cobra"
)

// globalFlags mirrors houzhh15-mote's root.go GlobalFlags pattern: flags
// parsed on the root command, consumed by PersistentPreRunE before any
// subcommand runs.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

// cliContext carries the config and logger built during PersistentPreRunE
// to subcommand RunE functions, grounded on houzhh15-mote's CLIContext
// pattern (internal/cli root.go's equivalent wiring).
type cliContext struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

var (
	flags globalFlags
	ctx   cliContext
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "psrptrace",
		Short:         "Passively reconstruct remote PowerShell activity from ETW trace events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return setupCLIContext()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ctx.logCloser != nil {
				return ctx.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to psrptrace.yaml (optional)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "force debug logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "force error-only logging")

	root.AddCommand(newWinRMCmd())
	root.AddCommand(newPowerShellCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func setupCLIContext() error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	if flags.quiet {
		level = "error"
	}

	logger, closer, err := buildLogger(cfg, level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx = cliContext{cfg: cfg, logger: logger, logCloser: closer}
	return nil
}
