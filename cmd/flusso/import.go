package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"flusso/internal/ledger"
	"flusso/internal/log"
	"flusso/internal/storage"
)

type ledgerWriter interface {
	ledger.AccountWriter
	ledger.TransactionWriter
	ledger.RuleWriter
}

type importReport struct {
	Accounts     int
	Transactions int
	Rules        int
	Rejected     []string
}

func newImportCmd(a *app) *cobra.Command {
	var ledgerFile, dbPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a YAML ledger into the SQLite database",
		Long: "Accounts are matched by name and their balances replaced. Transactions and\n" +
			"rules are appended. Entries that fail validation are reported and skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				dbPath = a.cfg.SQLiteDBPath
			}
			return a.runImport(cmd.Context(), cmd.OutOrStdout(), ledgerFile, dbPath)
		},
	}
	cmd.Flags().StringVar(&ledgerFile, "ledger", "", "YAML ledger file to import")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default from config)")
	_ = cmd.MarkFlagRequired("ledger")
	return cmd
}

func (a *app) runImport(ctx context.Context, out io.Writer, ledgerFile, dbPath string) error {
	doc, err := ledger.DecodeFile(ledgerFile)
	if err != nil {
		return err
	}
	contents, err := doc.ToDomain()
	if err != nil {
		return fmt.Errorf("ledger %s: %w", ledgerFile, err)
	}

	repo, err := storage.NewSQLiteRepository(dbPath, storage.WithLocation(a.cfg.Location()))
	if err != nil {
		return err
	}
	defer repo.Close()

	report, err := importContents(ctx, repo, contents)
	if err != nil {
		return err
	}
	a.logger.Info("Ledger imported",
		log.FieldOperation, log.OpImport,
		"accounts", report.Accounts,
		"transactions", report.Transactions,
		"rules", report.Rules,
		"rejected", len(report.Rejected))

	fmt.Fprintf(out, "Imported %d accounts, %d transactions and %d rules into %s\n",
		report.Accounts, report.Transactions, report.Rules, dbPath)
	if len(report.Rejected) > 0 {
		fmt.Fprintf(out, "Rejected %d entries:\n", len(report.Rejected))
		for _, r := range report.Rejected {
			fmt.Fprintf(out, "  %s\n", r)
		}
	}
	return nil
}

// importContents writes every valid entry of c. Invalid entries are listed
// in the report; a storage failure aborts the import.
func importContents(ctx context.Context, w ledgerWriter, c ledger.Contents) (importReport, error) {
	var report importReport

	for i, acc := range c.Accounts {
		if err := acc.Validate(); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("account #%d: %v", i, err))
			continue
		}
		if _, err := w.UpsertAccount(ctx, acc); err != nil {
			return report, fmt.Errorf("account %q: %w", acc.Name, err)
		}
		report.Accounts++
	}
	for i, tx := range c.Transactions {
		if err := tx.Validate(); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("transaction #%d: %v", i, err))
			continue
		}
		if _, err := w.AddTransaction(ctx, tx); err != nil {
			return report, fmt.Errorf("transaction #%d: %w", i, err)
		}
		report.Transactions++
	}
	for i, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("rule #%d: %v", i, err))
			continue
		}
		if _, err := w.AddRule(ctx, rule); err != nil {
			return report, fmt.Errorf("rule %q: %w", rule.Description, err)
		}
		report.Rules++
	}
	return report, nil
}
