// Package postgres provides a schema source reading the form-definition
// tables from Postgres. The table layout mirrors the sqlite driver; DDL is
// applied on startup so a fresh database works out of the box.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/formsentry?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Source reads and seeds form-definition tables in Postgres.
type Source struct {
	db    *sql.DB
	model *schema.Model
}

// New opens a connection with the given DSN (falling back to a local
// default), pings it, and ensures the model's tables exist. A nil model
// selects the built-in one.
func New(ctx context.Context, dsn string, model *schema.Model) (*Source, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if model == nil {
		model = schema.Builtin()
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Source{db: db, model: model}
	if err := s.ensureTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Source) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Source) DB() *sql.DB { return s.db }

// Snapshot reads every table within one REPEATABLE READ transaction, so all
// five reads share a single MVCC snapshot and a concurrent writer cannot
// tear the captured state across tables.
func (s *Source) Snapshot(ctx context.Context) (domain.State, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
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
		case schema.KindInt:
			sqlType = "BIGINT"
		case schema.KindBool:
			sqlType = "BOOLEAN"
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
		marks[i] = fmt.Sprintf("$%d", i+1)
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

var (
	_ domain.SchemaSource = (*Source)(nil)
	_ domain.Seeder       = (*Source)(nil)
)
