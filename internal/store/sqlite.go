package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pbaille/mushroom/internal/domain"
)

//go:embed schema.sql
var schema string

// PersistenceError wraps any failure of the backing database
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the append-only log of completed classifications
type Store struct {
	db *sql.DB
	// serializes writers so a clear is never observed half done
	mu sync.Mutex
}

// dsnPath escapes the characters SQLite's URI parser would treat as
// delimiters so they stay part of the file name.
var dsnPath = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// New opens the database at dbPath and ensures the schema
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dsnPath.Replace(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the logs table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &PersistenceError{Op: "init schema", Err: err}
	}
	return nil
}

// Append durably adds one record
func (s *Store) Append(ctx context.Context, rec domain.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin append", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO logs (odor, spore_print_color, gill_color, ring_type, stalk_surface_above_ring, result)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Odor, rec.SporePrintColor, rec.GillColor, rec.RingType, rec.StalkSurfaceAboveRing, rec.Result.String(),
	)
	if err != nil {
		return &PersistenceError{Op: "insert log", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit append", Err: err}
	}
	return nil
}

// ReadAll returns every record in insertion order
func (s *Store) ReadAll(ctx context.Context) ([]domain.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT odor, spore_print_color, gill_color, ring_type, stalk_surface_above_ring, result
		 FROM logs ORDER BY rowid`,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "read logs", Err: err}
	}
	defer rows.Close()

	var records []domain.LogRecord
	for rows.Next() {
		var rec domain.LogRecord
		var result string
		if err := rows.Scan(&rec.Odor, &rec.SporePrintColor, &rec.GillColor, &rec.RingType, &rec.StalkSurfaceAboveRing, &result); err != nil {
			return nil, &PersistenceError{Op: "scan log", Err: err}
		}
		if rec.Result, err = domain.ParseVerdict(result); err != nil {
			return nil, &PersistenceError{Op: "scan log", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "read logs", Err: err}
	}

	return records, nil
}

// Clear irrevocably removes every record
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin clear", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM logs"); err != nil {
		return &PersistenceError{Op: "clear logs", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit clear", Err: err}
	}
	return nil
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count logs", Err: err}
	}
	return n, nil
}
