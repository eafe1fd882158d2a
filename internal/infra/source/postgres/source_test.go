package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestNewPropagatesOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver {
			t.Fatalf("unexpected driver %q", driver)
		}
		return nil, errors.New("boom")
	})
	defer restore()

	if _, err := New(context.Background(), "postgres://example/db", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("want open error, got %v", err)
	}
}

func TestNewDefaultsDSN(t *testing.T) {
	var seen string
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		seen = dsn
		return nil, errors.New("stop here")
	})
	defer restore()

	_, _ = New(context.Background(), "", nil)
	if seen != defaultDSN {
		t.Fatalf("want default dsn, got %q", seen)
	}
}

func TestSnapshotUsesRepeatableReadReadOnly(t *testing.T) {
	conn := &recordingConn{}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.OpenDB(recordingConnector{conn: conn}), nil
	})
	defer restore()

	src, err := New(context.Background(), "postgres://example/db", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = src.Close() }()

	if _, err := src.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(conn.txOpts) != 1 {
		t.Fatalf("want one snapshot transaction, got %d", len(conn.txOpts))
	}
	got := conn.txOpts[0]
	if got.Isolation != driver.IsolationLevel(sql.LevelRepeatableRead) {
		t.Fatalf("snapshot must read at repeatable read, got isolation %v", got.Isolation)
	}
	if !got.ReadOnly {
		t.Fatalf("snapshot transaction must be read only")
	}
}

// recordingConn is a minimal database/sql driver connection that records the
// transaction options it is asked to begin with and answers every query with
// an empty result set.
type recordingConn struct {
	txOpts []driver.TxOptions
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

func (c *recordingConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.txOpts = append(c.txOpts, opts)
	return noopTx{}, nil
}

func (c *recordingConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return driver.ResultNoRows, nil
}

func (c *recordingConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return emptyRows{}, nil
}

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

type recordingConnector struct {
	conn *recordingConn
}

func (c recordingConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c recordingConnector) Driver() driver.Driver                        { return recordingDriver{} }

type recordingDriver struct{}

func (recordingDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through the connector")
}

var (
	_ driver.ConnBeginTx    = (*recordingConn)(nil)
	_ driver.ExecerContext  = (*recordingConn)(nil)
	_ driver.QueryerContext = (*recordingConn)(nil)
)
