package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id               TEXT PRIMARY KEY,
			timestamp            INTEGER NOT NULL,
			group_id             TEXT NOT NULL,
			status               TEXT NOT NULL,
			stage                TEXT,
			error                TEXT,
			gregorian_date       TEXT,
			hijri_year           INTEGER,
			hijri_month          INTEGER,
			hijri_day            INTEGER,
			total_balance        TEXT,
			threshold            TEXT,
			threshold_provenance TEXT,
			above_threshold      INTEGER,
			streak               INTEGER,
			levy_due             INTEGER,
			levy_amount          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS source_balances (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL REFERENCES runs(run_id),
			source_id  TEXT NOT NULL,
			currency   TEXT,
			original   TEXT,
			rate       TEXT,
			converted  TEXT,
			period_end TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_balances_run ON source_balances(run_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			group_id  TEXT NOT NULL,
			paid_on   TEXT NOT NULL,
			amount    TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	obs := evt.Observation
	v := evt.Verdict
	_, err = tx.Exec(`INSERT INTO runs
		(run_id, timestamp, group_id, status,
		 gregorian_date, hijri_year, hijri_month, hijri_day,
		 total_balance, threshold, threshold_provenance,
		 above_threshold, streak, levy_due, levy_amount)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		evt.RunID, time.Now().Unix(), evt.GroupID, "OK",
		obs.Date.Format(time.DateOnly), obs.Hijri.Year, obs.Hijri.Month, obs.Hijri.Day,
		obs.Balance.String(), evt.Threshold.Value.String(), string(evt.Threshold.Provenance),
		v.IsAboveThreshold, v.ConsecutiveMonthsAbove, v.LevyDue, v.LevyAmount.StringFixed(2),
	)
	if err != nil {
		return err
	}

	for _, b := range evt.Balances {
		var periodEnd string
		if !b.PeriodEnd.IsZero() {
			periodEnd = b.PeriodEnd.Format(time.DateOnly)
		}
		if _, err := tx.Exec(`INSERT INTO source_balances
			(run_id, source_id, currency, original, rate, converted, period_end)
			VALUES (?,?,?,?,?,?,?)`,
			evt.RunID, b.SourceID, b.Currency,
			b.Original.String(), b.Rate.String(), b.Converted.String(), periodEnd,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordFailure(evt *FailureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO runs (run_id, timestamp, group_id, status, stage, error)
		VALUES (?,?,?,?,?,?)`,
		evt.RunID, time.Now().Unix(), evt.GroupID, "FAILED", evt.Stage, evt.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordPayment(evt *PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO payments (timestamp, group_id, paid_on, amount) VALUES (?,?,?,?)`,
		time.Now().Unix(), evt.GroupID, evt.Date.Format(time.DateOnly), evt.Amount,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, timestamp, status,
			COALESCE(gregorian_date, ''), COALESCE(hijri_year, 0), COALESCE(hijri_month, 0),
			COALESCE(total_balance, ''), COALESCE(threshold, ''),
			COALESCE(streak, 0), COALESCE(levy_due, 0)
		FROM runs ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var ts int64
		if err := rows.Scan(&row.RunID, &ts, &row.Status, &row.GregorianDate, &row.HijriYear, &row.HijriMonth,
			&row.TotalBalance, &row.Threshold, &row.Streak, &row.LevyDue); err != nil {
			return nil, err
		}
		row.Timestamp = time.Unix(ts, 0)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
