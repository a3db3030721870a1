package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = []byte(r.values[i].(string))
		case *bool:
			*p = r.values[i].(bool)
		default:
			return errors.New("unexpected scan destination")
		}
	}
	return nil
}

type fakeRows struct {
	rows []fakeRow
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos-1].values, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.pos-1].Scan(dest...) }

type fakeDB struct {
	row   fakeRow
	rows  *fakeRows
	query string
	args  []any
}

func (db *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.query, db.args = sql, args
	return db.rows, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.query, db.args = sql, args
	return db.row
}

func TestGetIntegration(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{values: []any{int64(7), "Main ERP", "onec", "1.2.0", `{"url":"https://erp","max_attempts":2}`, true}}}
	rec, err := New(db).GetIntegration(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetIntegration() error = %v", err)
	}
	if rec.ID != 7 || rec.DriverID != "onec" || !rec.IsActive {
		t.Fatalf("GetIntegration() = %+v", rec)
	}
	if rec.Config["url"] != "https://erp" {
		t.Fatalf("Config = %v", rec.Config)
	}
	if len(db.args) != 1 || db.args[0] != int64(7) {
		t.Fatalf("args = %v", db.args)
	}
	if !strings.Contains(db.query, "WHERE id = $1") {
		t.Fatalf("query = %q", db.query)
	}
}

func TestGetIntegrationNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	if _, err := New(db).GetIntegration(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIntegration() error = %v, want ErrNotFound", err)
	}
}

func TestGetIntegrationBadConfig(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{values: []any{int64(1), "x", "onec", "", `[1]`, true}}}
	if _, err := New(db).GetIntegration(context.Background(), 1); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIntegration() error = %v, want decode error", err)
	}
}

func TestListActive(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rows: &fakeRows{rows: []fakeRow{
		{values: []any{int64(1), "a", "onec", "", `{}`, true}},
		{values: []any{int64(2), "b", "restjson", "", ``, true}},
	}}}
	got, err := New(db).ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 2 || got[1].DriverID != "restjson" || got[1].Config == nil {
		t.Fatalf("ListActive() = %+v", got)
	}

	db.rows = &fakeRows{err: errors.New("conn reset")}
	if _, err := New(db).ListActive(context.Background()); err == nil {
		t.Fatal("expected rows error")
	}
}
