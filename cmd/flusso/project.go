package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"flusso/internal/backend"
	"flusso/internal/cli"
	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/ledger"
	"flusso/internal/ledger/memory"
	"flusso/internal/services"
	"flusso/internal/storage"
)

type projectOptions struct {
	ledgerFile string
	dbPath     string
	balance    string
	today      string
	horizon    int
	every      int
	asJSON     bool
}

func newProjectCmd(a *app) *cobra.Command {
	var o projectOptions
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project the balance over the coming days",
		Example: "  flusso project --ledger ledger.yaml --horizon 30\n" +
			"  flusso project --db data/flusso.db --balance 1200 --json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runProject(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.ledgerFile, "ledger", "", "YAML ledger file to project")
	f.StringVar(&o.dbPath, "db", "", "SQLite database to project")
	f.StringVar(&o.balance, "balance", "", "Starting balance (default: sum of account balances)")
	f.IntVarP(&o.horizon, "horizon", "n", 0, "Days to project (default from config)")
	f.StringVar(&o.today, "today", "", "Project as of this day, YYYY-MM-DD (default: today)")
	f.IntVar(&o.every, "every", 7, "Show every Nth day in the balance table")
	f.BoolVar(&o.asJSON, "json", false, "Print the full forecast as JSON")
	cmd.MarkFlagsMutuallyExclusive("ledger", "db")
	return cmd
}

func (a *app) runProject(cmd *cobra.Command, o projectOptions) error {
	ctx := cmd.Context()

	reader, closeReader, err := a.openReader(ctx, o.ledgerFile, o.dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = closeReader() }()

	loc := a.cfg.Location()
	popts := []forecast.Option{forecast.WithLocation(loc)}
	if o.today != "" {
		day, err := core.ParseDay(o.today, loc)
		if err != nil {
			return fmt.Errorf("--today: %w", err)
		}
		noon := time.Date(day.Year(), time.Month(day.Month()), day.Day(), 12, 0, 0, 0, loc)
		popts = append(popts, forecast.WithClock(func() time.Time { return noon }))
	}

	svc := services.NewForecastService(reader, forecast.New(popts...),
		services.WithDefaultHorizon(a.cfg.HorizonDays),
		services.WithLogger(a.logger))

	var req services.Request
	if cmd.Flags().Changed("horizon") {
		h := o.horizon
		req.HorizonDays = &h
	}
	if o.balance != "" {
		b, err := decimal.NewFromString(o.balance)
		if err != nil {
			return fmt.Errorf("--balance: %q is not a decimal amount", o.balance)
		}
		req.Balance = &b
	}

	res, err := svc.Forecast(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprint(out, cli.RenderForecast(res.Forecast, o.every))
	return err
}

// openReader picks the ledger source: a YAML file, an explicit database, or
// the configured backend.
func (a *app) openReader(ctx context.Context, ledgerFile, dbPath string) (ledger.SnapshotReader, func() error, error) {
	noop := func() error { return nil }

	switch {
	case ledgerFile != "":
		store, err := memory.NewFromFile(ledgerFile)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case dbPath != "":
		repo, err := storage.NewSQLiteRepository(dbPath, storage.WithLocation(a.cfg.Location()))
		if err != nil {
			return nil, noop, err
		}
		return repo, repo.Close, nil
	}

	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, noop, err
	}
	be, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, noop, err
	}
	return be.Ledger, be.Close, nil
}
