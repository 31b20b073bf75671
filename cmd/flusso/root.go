package main

import (
	"github.com/spf13/cobra"

	"flusso/internal/cli"
	"flusso/internal/config"
	"flusso/internal/log"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "flusso",
		Short: "Cash-flow projection from a ledger of accounts, transactions and recurring rules",
		Long: "flusso projects account balances day by day: recurring rules fire on their\n" +
			"schedule and the average daily flow of past transactions is added as drift.",
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (default $FLUSSO_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(newProjectCmd(a), newImportCmd(a), newRefreshCmd(a))
	return root
}

// init loads .env and configuration. Logs go to stderr so stdout holds
// only the command's output.
func (a *app) init(cmd *cobra.Command) error {
	cli.LoadEnvFile(log.Discard())

	cfg, err := cli.LoadAndValidateConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := *cfg
	logCfg.LogLevel = "warn"
	if a.verbose {
		logCfg.LogLevel = "debug"
	}
	a.logger = cli.SetupLogger(&logCfg, "cli", cmd.ErrOrStderr())
	return nil
}
