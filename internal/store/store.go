package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is one connection setting applied at open.
type pragma struct {
	name  string
	value string
}

var pragmas = []pragma{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Store is a SQLite database holding document collections, one table per
// collection, plus a catalog describing them.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applies the connection
// pragmas and creates the catalog tables. Opening an existing database
// again changes nothing.
func Open(path string) (*Store, error) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	for _, step := range []func(context.Context) error{s.configure, s.createCatalog} {
		if err := step(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IndexEntry is one catalogued collection index.
type IndexEntry struct {
	Collection string
	Attribute  string
	Unique     bool
}

func (e IndexEntry) String() string {
	if e.Unique {
		return e.Collection + "." + e.Attribute + " (unique)"
	}
	return e.Collection + "." + e.Attribute
}

// Indexes lists the catalogued indexes, unique ones first within each
// collection.
func (s *Store) Indexes(ctx context.Context) ([]IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, attribute, is_unique FROM collection_indexes
		ORDER BY collection ASC COLLATE BINARY, is_unique DESC, attribute ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.Collection, &e.Attribute, &e.Unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) configure(ctx context.Context) error {
	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) createCatalog(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	return nil
}

// pragmaValue reads the current value of a pragma.
func (s *Store) pragmaValue(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
