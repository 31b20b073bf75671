package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	pragmas = "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"

	// Fixed width so that created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
}

// RepositoryOption configures a SQLiteRepository.
type RepositoryOption func(*SQLiteRepository)

// WithLocation sets the zone in which time-valued dates are reduced to a
// calendar day before they are stored. Defaults to UTC.
func WithLocation(loc *time.Location) RepositoryOption {
	return func(r *SQLiteRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func NewSQLiteRepository(dbPath string, opts ...RepositoryOption) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + pragmas

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{db: db, loc: time.UTC}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn in a transaction and bumps the ledger version when bump is set.
func (r *SQLiteRepository) inTx(ctx context.Context, bump bool, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if bump {
		if _, err := tx.ExecContext(ctx, `UPDATE ledger_meta SET version = version + 1 WHERE id = 1`); err != nil {
			return fmt.Errorf("bump ledger version: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertAccount implements ledger.AccountWriter
func (r *SQLiteRepository) UpsertAccount(ctx context.Context, a core.Account) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.inTx(ctx, true, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO accounts (name, balance_cents) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET balance_cents = excluded.balance_cents, updated_at = CURRENT_TIMESTAMP
			RETURNING id`, a.Name, a.Balance.Cents).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert account: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, balance_cents FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Balance.Cents); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AddTransaction implements ledger.TransactionWriter
func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.inTx(ctx, true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (date, description, amount_cents, kind) VALUES (?, ?, ?, ?)`,
			t.Date.In(r.loc).String(), t.Description, t.Amount.Cents, string(t.Kind))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add transaction: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return listTransactions(ctx, r.db)
}

// AddRule implements ledger.RuleWriter
func (r *SQLiteRepository) AddRule(ctx context.Context, rule core.RecurringRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	var end sql.NullString
	if !rule.EndDate.IsEmpty() {
		end = sql.NullString{String: rule.EndDate.In(r.loc).String(), Valid: true}
	}
	var id int64
	err := r.inTx(ctx, true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO recurring_rules
				(description, every, amount_cents, kind, start_date, end_date, day_of_week, day_of_month)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.Description, string(rule.Every), rule.Amount.Cents, string(rule.Kind),
			rule.StartDate.In(r.loc).String(), end, rule.DayOfWeek, rule.DayOfMonth)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add rule: %w", err)
	}
	return id, nil
}

// DeleteRule implements ledger.RuleWriter
func (r *SQLiteRepository) DeleteRule(ctx context.Context, id int64) error {
	return r.inTx(ctx, true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("rule %d: %w", id, ledger.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) ListRules(ctx context.Context) ([]core.RecurringRule, error) {
	return listRules(ctx, r.db)
}

// Snapshot implements ledger.SnapshotReader. All reads share one
// transaction so the version matches the data.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := r.inTx(ctx, false, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT version FROM ledger_meta WHERE id = 1`).Scan(&snap.Version); err != nil {
			return fmt.Errorf("read ledger version: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance_cents), 0) FROM accounts`).Scan(&snap.Balance.Cents); err != nil {
			return fmt.Errorf("sum balances: %w", err)
		}
		var err error
		if snap.Transactions, err = listTransactions(ctx, tx); err != nil {
			return err
		}
		snap.Rules, err = listRules(ctx, tx)
		return err
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listTransactions(ctx context.Context, q querier) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, date, description, amount_cents, kind
		FROM transactions ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var (
			t          core.Transaction
			date, kind string
		)
		if err := rows.Scan(&t.ID, &date, &t.Description, &t.Amount.Cents, &kind); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Date = core.DateText(date)
		t.Kind = core.Kind(kind)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func listRules(ctx context.Context, q querier) ([]core.RecurringRule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, description, every, amount_cents, kind, start_date, end_date, day_of_week, day_of_month
		FROM recurring_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurringRule
	for rows.Next() {
		var (
			rule               core.RecurringRule
			every, kind, start string
			end                sql.NullString
		)
		if err := rows.Scan(&rule.ID, &rule.Description, &every, &rule.Amount.Cents, &kind,
			&start, &end, &rule.DayOfWeek, &rule.DayOfMonth); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Every = core.RepetitionTypes(every)
		rule.Kind = core.Kind(kind)
		rule.StartDate = core.DateText(start)
		if end.Valid {
			rule.EndDate = core.DateText(end.String)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ForecastRun is a persisted projection.
type ForecastRun struct {
	ID            string
	CreatedAt     time.Time
	Reason        string
	LedgerVersion int64
	Forecast      forecast.Forecast
}

// SaveForecast stores a run and its points. Saving an id twice is a no-op.
func (r *SQLiteRepository) SaveForecast(ctx context.Context, run ForecastRun) error {
	drift, err := json.Marshal(run.Forecast.Drift)
	if err != nil {
		return fmt.Errorf("encode drift: %w", err)
	}
	occurrences, err := json.Marshal(run.Forecast.Occurrences)
	if err != nil {
		return fmt.Errorf("encode occurrences: %w", err)
	}
	skipped, err := json.Marshal(run.Forecast.Skipped)
	if err != nil {
		return fmt.Errorf("encode skipped: %w", err)
	}

	f := run.Forecast
	return r.inTx(ctx, false, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_runs
				(id, created_at, reason, ledger_version, today, horizon_days, starting_balance,
				 drift_json, occurrences_json, skipped_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			run.ID, run.CreatedAt.UTC().Format(timestampLayout), run.Reason, run.LedgerVersion,
			f.Today.String(), f.HorizonDays, f.StartingBalance.String(),
			string(drift), string(occurrences), string(skipped))
		if err != nil {
			return fmt.Errorf("insert forecast run: %w", err)
		}
		// A redelivered request carries the same id; the first save wins.
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO forecast_points (run_id, day_offset, date, balance) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare forecast points: %w", err)
		}
		defer stmt.Close()

		for i, p := range f.Points {
			if _, err := stmt.ExecContext(ctx, run.ID, i, p.Date.String(), p.Balance.StringFixed(2)); err != nil {
				return fmt.Errorf("insert forecast point %d: %w", i, err)
			}
		}
		return nil
	})
}

// LatestForecast returns the most recently saved run, or ledger.ErrNotFound.
func (r *SQLiteRepository) LatestForecast(ctx context.Context) (ForecastRun, error) {
	var (
		run                                     ForecastRun
		createdAt, today, starting              string
		driftJSON, occurrencesJSON, skippedJSON string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, reason, ledger_version, today, horizon_days, starting_balance,
		       drift_json, occurrences_json, skipped_json
		FROM forecast_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&run.ID, &createdAt, &run.Reason, &run.LedgerVersion, &today, &run.Forecast.HorizonDays,
			&starting, &driftJSON, &occurrencesJSON, &skippedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ForecastRun{}, fmt.Errorf("forecast run: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return ForecastRun{}, fmt.Errorf("read forecast run: %w", err)
	}

	f := &run.Forecast
	if run.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return ForecastRun{}, fmt.Errorf("parse created_at: %w", err)
	}
	if f.Today, err = core.ParseDay(today, time.UTC); err != nil {
		return ForecastRun{}, fmt.Errorf("parse today: %w", err)
	}
	if f.StartingBalance, err = decimal.NewFromString(starting); err != nil {
		return ForecastRun{}, fmt.Errorf("parse starting balance: %w", err)
	}
	if err := json.Unmarshal([]byte(driftJSON), &f.Drift); err != nil {
		return ForecastRun{}, fmt.Errorf("decode drift: %w", err)
	}
	if err := json.Unmarshal([]byte(occurrencesJSON), &f.Occurrences); err != nil {
		return ForecastRun{}, fmt.Errorf("decode occurrences: %w", err)
	}
	if err := json.Unmarshal([]byte(skippedJSON), &f.Skipped); err != nil {
		return ForecastRun{}, fmt.Errorf("decode skipped: %w", err)
	}

	if f.Points, err = r.forecastPoints(ctx, run.ID); err != nil {
		return ForecastRun{}, err
	}
	return run, nil
}

func (r *SQLiteRepository) forecastPoints(ctx context.Context, runID string) ([]forecast.Point, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date, balance FROM forecast_points WHERE run_id = ? ORDER BY day_offset`, runID)
	if err != nil {
		return nil, fmt.Errorf("list forecast points: %w", err)
	}
	defer rows.Close()

	var points []forecast.Point
	for rows.Next() {
		var date, balance string
		if err := rows.Scan(&date, &balance); err != nil {
			return nil, fmt.Errorf("scan forecast point: %w", err)
		}
		var p forecast.Point
		if p.Date, err = core.ParseDay(date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse point date: %w", err)
		}
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse point balance: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// PruneForecasts deletes all but the newest keep runs.
func (r *SQLiteRepository) PruneForecasts(ctx context.Context, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM forecast_runs WHERE id NOT IN (
			SELECT id FROM forecast_runs ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune forecasts: %w", err)
	}
	return res.RowsAffected()
}

var _ ledger.Store = (*SQLiteRepository)(nil)
