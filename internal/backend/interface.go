package backend

import (
	"context"
	"time"

	"flusso/internal/ledger"
	"flusso/internal/storage"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// RunStore persists and reads back computed forecasts.
type RunStore interface {
	SaveForecast(ctx context.Context, run storage.ForecastRun) error
	LatestForecast(ctx context.Context) (storage.ForecastRun, error)
	PruneForecasts(ctx context.Context, keep int) (int64, error)
}

// BackendResult is what a factory hands to the binaries.
type BackendResult struct {
	Ledger ledger.Store
	// Runs is nil when the backend cannot store forecasts.
	Runs RunStore
	// Ping reports whether the backend can serve requests.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	// Location reduces time-valued dates to days before they are stored.
	Location *time.Location

	// Memory specific; empty starts an empty ledger.
	LedgerFile string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
