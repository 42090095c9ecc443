// Package sqlite implements a relation repository over SQLite. Every set is stored in a table of
// its own, named after the set, with one column per primitive attribute and the id as primary key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/l7mp/liverel/pkg/relation"
)

var _ relation.Repository = &Store{}

// Store is a SQLite-backed repository.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	tables map[*relation.Set]bool
	log    logr.Logger
}

// NewStore opens a database file, creating it if needed. An empty path or ":memory:" opens a
// private in-memory database.
func NewStore(path string, log logr.Logger) (*Store, error) {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" would see a database of its own.
	db.SetMaxOpenConns(1)

	return &Store{
		db:     db,
		path:   path,
		tables: map[*relation.Set]bool{},
		log:    log.WithName("sqlite"),
	}, nil
}

// EnsureTable creates the table of a set and adds the columns of attributes declared since the
// table was created.
func (s *Store) EnsureTable(ctx context.Context, set *relation.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureTable(ctx, set)
}

func (s *Store) ensureTable(ctx context.Context, set *relation.Set) error {
	if s.tables[set] {
		return nil
	}

	cols := []string{}
	for _, attr := range set.PrimitiveAttributes() {
		col := quote(attr.Name()) + " " + columnType(attr.Type())
		if attr == set.IDAttribute() {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(set.Name()), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", set.Name(), err)
	}

	existing, err := s.columns(ctx, set.Name())
	if err != nil {
		return err
	}
	for _, attr := range set.PrimitiveAttributes() {
		if existing[attr.Name()] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(set.Name()), quote(attr.Name()),
			columnType(attr.Type()))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", set.Name(), attr.Name(), err)
		}
		s.log.V(1).Info("column added", "set", set.Name(), "column", attr.Name())
	}

	s.tables[set] = true
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	ret := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ret[name] = true
	}
	return ret, rows.Err()
}

// Fetch returns the rows matching a relation. Sets, selections and orderings are supported.
func (s *Store) Fetch(ctx context.Context, r relation.Relation) ([]relation.Row, error) {
	plan, err := relation.Compile(r)
	if err != nil {
		return nil, err
	}
	q, err := compile(plan)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx, q.set); err != nil {
		return nil, err
	}

	stmt, args := q.String(), q.args
	s.log.V(4).Info("fetch", "relation", r.String(), "sql", stmt, "args", args)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.set.Name(), err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	ret := []relation.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := relation.Row{}
		for i, col := range cols {
			if values[i] != nil {
				row[col] = values[i]
			}
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Push upserts the tuples of a primitive relation in a single transaction.
func (s *Store) Push(ctx context.Context, r relation.Relation) (retErr error) {
	if r.IsCompound() {
		return fmt.Errorf("%w: cannot push compound relation %s", relation.ErrUnsupportedOperation, r)
	}
	set, err := r.BaseSet()
	if err != nil {
		return err
	}
	tuples, err := r.Tuples()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx, set); err != nil {
		return err
	}

	attrs := set.PrimitiveAttributes()
	cols, marks, updates := []string{}, []string{}, []string{}
	for _, attr := range attrs {
		cols = append(cols, quote(attr.Name()))
		marks = append(marks, "?")
		if attr != set.IDAttribute() {
			updates = append(updates, fmt.Sprintf("%s=excluded.%s", quote(attr.Name()), quote(attr.Name())))
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) ON CONFLICT(%s) DO ", quote(set.Name()),
		strings.Join(cols, ","), strings.Join(marks, ","), quote(relation.IDAttribute))
	if len(updates) > 0 {
		stmt += "UPDATE SET " + strings.Join(updates, ",")
	} else {
		stmt += "NOTHING"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range tuples {
		p, ok := t.(*relation.PrimitiveTuple)
		if !ok {
			return fmt.Errorf("%w: unexpected tuple %s", relation.ErrUnsupportedOperation, t)
		}
		fields := p.Fields()
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			v, err := encode(fields[attr.Name()])
			if err != nil {
				return fmt.Errorf("encode %s of %s: %w", attr, p.Key(), err)
			}
			args[i] = v
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.V(2).Info("pushed", "relation", r.String(), "tuples", len(tuples))
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
