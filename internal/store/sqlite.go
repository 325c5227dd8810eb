package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/qabot/internal/domain"
)

//go:embed schema.sql
var schema string

// SQLiteTables keeps every table in a single SQLite database file
type SQLiteTables struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (and initializes) the database at dbPath
func NewSQLite(dbPath string) (*SQLiteTables, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteTables{db: db, path: dbPath}, nil
}

// Close closes the database connection
func (s *SQLiteTables) Close() error {
	return s.db.Close()
}

// Path returns the database file for every table
func (s *SQLiteTables) Path(table string) string {
	return s.path
}

func (s *SQLiteTables) LoadManual(ctx context.Context) ([]domain.ManualEntry, error) {
	entries, err := s.loadEntries(ctx, TableManual)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: manual table is empty", ErrMissingResource)
	}
	return entries, nil
}

func (s *SQLiteTables) LoadFAQ(ctx context.Context) ([]domain.ManualEntry, error) {
	return s.loadEntries(ctx, TableFAQ)
}

// SaveManual replaces the manual table in one transaction
func (s *SQLiteTables) SaveManual(ctx context.Context, entries []domain.ManualEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manual"); err != nil {
		return fmt.Errorf("clear manual: %w", err)
	}
	for i, e := range entries {
		var priority sql.NullInt64
		if e.Priority != nil {
			priority = sql.NullInt64{Int64: int64(*e.Priority), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO manual (position, question, answer, priority) VALUES (?, ?, ?, ?)",
			i, e.Question, e.Answer, priority,
		)
		if err != nil {
			return fmt.Errorf("insert manual entry: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTables) LoadLedger(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, question, answer, source, feedback, created_at FROM ledger ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerRow
	for rows.Next() {
		var r domain.LedgerRow
		var source, feedback string
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &source, &feedback, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.Source = domain.Source(source)
		r.Feedback = domain.Feedback(feedback)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ledger: %v", ErrMalformedResource, err)
	}
	return out, nil
}

// SaveLedger replaces the ledger table in one transaction
func (s *SQLiteTables) SaveLedger(ctx context.Context, rows []domain.LedgerRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ledger"); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	for i, r := range rows {
		fb := r.Feedback
		if fb == "" {
			fb = domain.FeedbackNotRated
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ledger (id, position, question, answer, source, feedback, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			r.ID, i, r.Question, r.Answer, string(r.Source), string(fb), r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ledger row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTables) loadEntries(ctx context.Context, table string) ([]domain.ManualEntry, error) {
	// table is one of our constants, never user input
	rows, err := s.db.QueryContext(ctx,
		"SELECT question, answer, priority FROM "+table+" ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var entries []domain.ManualEntry
	for rows.Next() {
		var e domain.ManualEntry
		var priority sql.NullInt64
		if err := rows.Scan(&e.Question, &e.Answer, &priority); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", table, err)
		}
		if priority.Valid {
			p := int(priority.Int64)
			e.Priority = &p
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResource, table, err)
	}
	return entries, nil
}
