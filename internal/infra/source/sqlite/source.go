// Package sqlite provides a schema source backed by a SQLite file holding
// the form-definition tables as real relational rows. Snapshot reads every
// table inside one transaction so the copy is consistent.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// Source reads and seeds form-definition tables in a SQLite database.
type Source struct {
	db    *sql.DB
	model *schema.Model
	path  string
}

// New opens (and if needed creates) the database at path and ensures the
// model's tables exist. A nil model selects the built-in one.
func New(path string, model *schema.Model) (*Source, error) {
	if path == "" {
		path = "formsentry.db"
	}
	if model == nil {
		model = schema.Builtin()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Source{db: db, model: model, path: path}
	if err := s.ensureTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Source) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *Source) Path() string { return s.path }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Source) DB() *sql.DB { return s.db }

// Snapshot reads every table within one transaction.
func (s *Source) Snapshot(ctx context.Context) (domain.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	state := domain.NewState()
	for _, name := range s.model.InsertOrder() {
		def, _ := s.model.Table(name)
		rows, err := readTable(ctx, tx, def)
		if err != nil {
			return nil, err
		}
		state[name] = rows
	}
	return state, nil
}

// Seed replaces every table's contents with the given state inside one
// transaction.
func (s *Source) Seed(ctx context.Context, state domain.State) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, name := range s.model.DeleteOrder() {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, string(name))); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	for _, name := range s.model.InsertOrder() {
		def, _ := s.model.Table(name)
		if err := writeTable(ctx, tx, def, state.Rows(name)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Source) ensureTables(ctx context.Context) error {
	for _, name := range s.model.InsertOrder() {
		def, _ := s.model.Table(name)
		if _, err := s.db.ExecContext(ctx, createTableDDL(def)); err != nil {
			return fmt.Errorf("ensure table %s: %w", name, err)
		}
	}
	return nil
}

func createTableDDL(def *schema.Table) string {
	cols := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		sqlType := "TEXT"
		switch c.Kind {
		case schema.KindInt, schema.KindBool:
			sqlType = "INTEGER"
		}
		col := fmt.Sprintf("%q %s", c.Name, sqlType)
		if c.Name == domain.IDColumn {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", string(def.Name), strings.Join(cols, ", "))
}

func readTable(ctx context.Context, tx *sql.Tx, def *schema.Table) (map[string]domain.Row, error) {
	names := columnNames(def)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %q", strings.Join(quoted, ", "), string(def.Name)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", def.Name, err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]domain.Row{}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", def.Name, err)
		}
		row := domain.Row{}
		for i, n := range names {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if v != nil {
				row[n] = v
			}
		}
		id, _ := row[domain.IDColumn].(string)
		if id == "" {
			return nil, fmt.Errorf("table %s holds a row without id", def.Name)
		}
		out[id] = row
	}
	return out, rows.Err()
}

func writeTable(ctx context.Context, tx *sql.Tx, def *schema.Table, rows map[string]domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	names := columnNames(def)
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		string(def.Name), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", def.Name, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		args := make([]any, len(names))
		for i, n := range names {
			args[i] = row[n]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", def.Name, err)
		}
	}
	return nil
}

func columnNames(def *schema.Table) []string {
	names := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		names = append(names, c.Name)
	}
	return names
}

var (
	_ domain.SchemaSource = (*Source)(nil)
	_ domain.Seeder       = (*Source)(nil)
)
