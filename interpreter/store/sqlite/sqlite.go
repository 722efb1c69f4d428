// Package sqlite provides a SQLite implementation of the load ledger.
//
// The ledger records one row per device/object load that left
// artifacts pinned on bpffs, plus one row per pinned path. A load is
// saved in a single transaction so a reader never observes a load
// without its pins. Saving a load for a (sysname, object) pair that is
// already recorded replaces the previous record, matching the way a
// reload overwrites the pins on bpffs.
//
// The database is opened in WAL mode with foreign keys enabled; pin
// rows cascade when their load is deleted.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/frobware/go-hidbpf/interpreter"
)

// msec formats a duration as milliseconds with 3 decimal places.
func msec(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

//go:embed schema.sql
var schemaSQL string

type pragma struct {
	key   string
	value string
}

func querySep(i int) string {
	if i == 0 {
		return "?"
	}
	return "&"
}

// sqliteStore implements interpreter.Store using SQLite.
type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmtInsertLoad         *sql.Stmt
	stmtInsertPin          *sql.Stmt
	stmtDeleteLoadByObject *sql.Stmt
	stmtDeleteBySysname    *sql.Stmt
	stmtGetLoad            *sql.Stmt
	stmtListLoads          *sql.Stmt
	stmtListBySysname      *sql.Stmt
	stmtListPins           *sql.Stmt
}

// New creates a SQLite ledger at the given path, creating the parent
// directory if needed.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (interpreter.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, []pragma{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened database")
	return s, nil
}

// NewInMemory creates an in-memory ledger for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (interpreter.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", []pragma{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every new connection to :memory: is a fresh, empty database.
	db.SetMaxOpenConns(1)

	return open(ctx, db, logger)
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*sqliteStore, error) {
	s := &sqliteStore{db: db, logger: logger}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

// Close closes all prepared statements and the database connection.
func (s *sqliteStore) Close() error {
	s.closeStatements()
	return s.db.Close()
}

func (s *sqliteStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{
		s.stmtInsertLoad,
		s.stmtInsertPin,
		s.stmtDeleteLoadByObject,
		s.stmtDeleteBySysname,
		s.stmtGetLoad,
		s.stmtListLoads,
		s.stmtListBySysname,
		s.stmtListPins,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// prepareStatements compiles every statement once; methods only bind
// arguments.
func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	const loadColumns = `id, sysname, device_id, object_path, object_name, strategy, pin_dir, created_at`

	stmts := []struct {
		name string
		dst  **sql.Stmt
		sql  string
	}{
		{"InsertLoad", &s.stmtInsertLoad,
			`INSERT INTO loads (` + loadColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`},
		{"InsertPin", &s.stmtInsertPin,
			`INSERT INTO load_pins (load_id, kind, position, path) VALUES (?, ?, ?, ?)`},
		{"DeleteLoadByObject", &s.stmtDeleteLoadByObject,
			`DELETE FROM loads WHERE sysname = ? AND object_name = ?`},
		{"DeleteBySysname", &s.stmtDeleteBySysname,
			`DELETE FROM loads WHERE sysname = ?`},
		{"GetLoad", &s.stmtGetLoad,
			`SELECT ` + loadColumns + ` FROM loads WHERE id = ?`},
		{"ListLoads", &s.stmtListLoads,
			`SELECT ` + loadColumns + ` FROM loads ORDER BY created_at DESC, id`},
		{"ListBySysname", &s.stmtListBySysname,
			`SELECT ` + loadColumns + ` FROM loads WHERE sysname = ? ORDER BY created_at DESC, id`},
		{"ListPins", &s.stmtListPins,
			`SELECT kind, path FROM load_pins WHERE load_id = ? ORDER BY kind, position`},
	}

	for _, st := range stmts {
		stmt, err := s.db.PrepareContext(ctx, st.sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", st.name, err)
		}
		*st.dst = stmt
	}
	return nil
}
