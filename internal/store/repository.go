package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querysql"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

var tableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Repository stores one entity class in a collection table.
type Repository struct {
	store    *Store
	table    string
	mapper   *mapper.Mapper
	compiler *querysql.SQLCompiler
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository opens the collection table, creating it, its indexes and
// its catalog entries when missing.
func NewRepository(ctx context.Context, s *Store, table string, m *mapper.Mapper, indexes ...repository.Index) (*Repository, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid collection name %q", table)
	}
	r := &Repository{
		store:    s,
		table:    table,
		mapper:   m,
		compiler: querysql.NewSQLCompiler(table, m.IdentityName()),
	}
	if err := r.ensure(ctx, indexes); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", table, err)
	}
	return r, nil
}

func (r *Repository) ensure(ctx context.Context, indexes []repository.Index) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, r.table)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (name, entity, identity, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, r.table, r.mapper.Class().Name(), r.mapper.IdentityName(), time.Now().UTC().Format(querysql.TimeLayout))
	if err != nil {
		return fmt.Errorf("catalog collection: %w", err)
	}

	for _, ix := range indexes {
		expr, err := querysql.Extract(ix.Name)
		if err != nil {
			return err
		}
		kind := "INDEX"
		if ix.Unique {
			kind = "UNIQUE INDEX"
		}
		stmt := fmt.Sprintf(`CREATE %s IF NOT EXISTS idx_%s_%s ON %s(%s)`, kind, r.table, ix.Name, r.table, expr)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collection_indexes (collection, attribute, is_unique)
			VALUES (?, ?, ?)
			ON CONFLICT(collection, attribute) DO UPDATE SET is_unique = excluded.is_unique
		`, r.table, ix.Name, ix.Unique)
		if err != nil {
			return fmt.Errorf("catalog index %s: %w", ix.Name, err)
		}
	}

	return tx.Commit()
}

func (r *Repository) Mapper() *mapper.Mapper { return r.mapper }

// Upsert merges every update in a single transaction.
func (r *Repository) Upsert(ctx context.Context, updates ...repository.Update) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Backend("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, doc) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = json_patch(doc, excluded.doc)
	`, r.table))
	if err != nil {
		return fault.Backend("prepare upsert", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if u.Key == "" {
			return fault.Argument("id", "upsert without an identity")
		}
		fields := make(mapper.Record, len(u.Fields)+1)
		for k, v := range u.Fields {
			fields[k] = v
		}
		fields[r.mapper.IdentityName()] = u.Key
		doc, err := encodeDoc(fields)
		if err != nil {
			return fault.Backend("encode document", err)
		}
		if _, err := stmt.ExecContext(ctx, u.Key, doc); err != nil {
			if isUniqueViolation(err) {
				return fault.Duplicate(r.mapper.Class().Name(), err)
			}
			return fault.Backend("upsert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fault.Backend("commit", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (r *Repository) Filter(ctx context.Context, q query.Query, req repository.PageRequest) (repository.Page, error) {
	if err := req.Validate(); err != nil {
		return repository.Page{}, err
	}
	total, err := r.Count(ctx, q)
	if err != nil {
		return repository.Page{}, err
	}

	sqlText, params, err := r.compiler.Compile(q, r.mapper, req.Sort, req.Size, req.Offset())
	if err != nil {
		return repository.Page{}, err
	}
	rows, err := r.store.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return repository.Page{}, fault.Backend("filter", err)
	}
	defer rows.Close()

	var records []mapper.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return repository.Page{}, fault.Backend("scan document", err)
		}
		rec, err := decodeDoc(doc)
		if err != nil {
			return repository.Page{}, fault.Backend("decode document", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return repository.Page{}, fault.Backend("filter", err)
	}
	return repository.NewPage(records, total, req), nil
}

func (r *Repository) Count(ctx context.Context, q query.Query) (int, error) {
	sqlText, params, err := r.compiler.Count(q, r.mapper)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, sqlText, params...)
}

func (r *Repository) Len(ctx context.Context) (int, error) {
	return r.scalar(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table))
}

func (r *Repository) scalar(ctx context.Context, sqlText string, params ...any) (int, error) {
	var n int
	if err := r.store.db.QueryRowContext(ctx, sqlText, params...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fault.Backend("count", err)
	}
	return n, nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	if _, err := r.store.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		return fault.Backend("delete all", err)
	}
	return nil
}

// encodeDoc writes a record as JSON with times in querysql.TimeLayout.
func encodeDoc(rec mapper.Record) (string, error) {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(querysql.TimeLayout)
			continue
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeDoc(doc string) (mapper.Record, error) {
	var rec mapper.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
