// Package history records per-policy run outcomes to an optional MySQL
// store (--history-dsn), supplementing the in-process counters with
// durable history across runs. It is read-only bookkeeping: there is no
// restore path (Non-goals, §1, still exclude restore).
package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// Store is a handle to the run-history table.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the history table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history store: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}
	return &Store{db: db}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS policy_run_history (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_started DATETIME NOT NULL,
	policy_name VARCHAR(255) NOT NULL,
	kind VARCHAR(64) NOT NULL,
	succeeded BIGINT NOT NULL,
	failed BIGINT NOT NULL,
	skipped BIGINT NOT NULL,
	terminal_error TEXT NULL
)`

// Row is one policy's recorded outcome.
type Row struct {
	RunStarted    string
	PolicyName    string
	Kind          string
	Succeeded     int64
	Failed        int64
	Skipped       int64
	TerminalError string // empty if the policy completed cleanly
}

// Record inserts one outcome row. Failures here are logged by the caller
// as a non-fatal supplement, never as a reason to fail the run itself.
func (s *Store) Record(ctx context.Context, r Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policy_run_history
			(run_started, policy_name, kind, succeeded, failed, skipped, terminal_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunStarted, r.PolicyName, r.Kind, r.Succeeded, r.Failed, r.Skipped, nullableString(r.TerminalError),
	)
	if err != nil {
		return fmt.Errorf("record policy outcome for %s: %w", r.PolicyName, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }
