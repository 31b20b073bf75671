// Package ledger defines the ports through which the forecasting code reads
// and writes ledger data, and the YAML file format used to seed a ledger.
package ledger

import (
	"context"
	"errors"

	"flusso/internal/core"
)

var ErrNotFound = errors.New("not found")

// Snapshot is a consistent view of the ledger at one version.
type Snapshot struct {
	// Balance is the sum of all account balances.
	Balance      core.Money
	Transactions []core.Transaction
	Rules        []core.RecurringRule
	// Version increases on every write. Cached projections are keyed on it.
	Version int64
}

// Ports for ledger adapters.
type (
	SnapshotReader interface {
		Snapshot(ctx context.Context) (Snapshot, error)
	}

	AccountWriter interface {
		// UpsertAccount creates the account or replaces the balance of the
		// account with the same name.
		UpsertAccount(ctx context.Context, a core.Account) (id int64, err error)
	}

	TransactionWriter interface {
		AddTransaction(ctx context.Context, t core.Transaction) (id int64, err error)
	}

	RuleWriter interface {
		AddRule(ctx context.Context, r core.RecurringRule) (id int64, err error)
		DeleteRule(ctx context.Context, id int64) error
	}

	// Store is implemented by every backend.
	Store interface {
		SnapshotReader
		AccountWriter
		TransactionWriter
		RuleWriter
	}
)
