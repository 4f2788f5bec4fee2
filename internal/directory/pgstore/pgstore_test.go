package pgstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

// mockRows implements pgx.Rows over string pairs.
type mockRows struct {
	data   [][2]string
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if len(dest) != 2 {
		return fmt.Errorf("scan: expected 2 destinations, got %d", len(dest))
	}
	row := r.data[r.idx-1]
	*dest[0].(*string) = row[0]
	*dest[1].(*string) = row[1]
	return nil
}

type execCall struct {
	sql  string
	args []any
}

// mockTx overrides the pgx.Tx methods the store uses. Unused methods panic
// through the nil embedded interface.
type mockTx struct {
	pgx.Tx
	execs      []execCall
	failOn     string
	committed  bool
	rolledBack bool
}

func (tx *mockTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, execCall{sql, args})
	if tx.failOn != "" && strings.Contains(sql, tx.failOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	return pgconn.CommandTag{}, nil
}

func (tx *mockTx) Commit(context.Context) error   { tx.committed = true; return nil }
func (tx *mockTx) Rollback(context.Context) error { tx.rolledBack = true; return nil }

type mockDB struct {
	rows    *mockRows
	execs   []execCall
	execErr error
	tx      *mockTx
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if m.rows == nil {
		return &mockRows{}, nil
	}
	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql, args})
	return pgconn.CommandTag{}, m.execErr
}

func (m *mockDB) Begin(context.Context) (pgx.Tx, error) {
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	return m.tx, nil
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	if err := New(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].sql != Schema {
		t.Errorf("execs = %+v", db.execs)
	}

	db = &mockDB{execErr: errors.New("permission denied")}
	if err := New(db).Migrate(context.Background()); err == nil {
		t.Error("expected migrate error")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	rows := &mockRows{data: [][2]string{{"alice", "alice@x.com"}, {"bob", "bob@x.com"}}}
	got, err := New(&mockDB{rows: rows}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []types.Contact{{Name: "alice", Address: "alice@x.com"}, {Name: "bob", Address: "bob@x.com"}}
	if !slices.Equal(got, want) {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}

	failing := &mockRows{err: errors.New("connection reset")}
	if _, err := New(&mockDB{rows: failing}).Load(context.Background()); err == nil {
		t.Error("expected error from rows.Err")
	}
}

func TestAppend(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	c := types.Contact{Name: "alice", Address: "alice@x.com"}
	if err := New(db).Append(context.Background(), c); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].args[0] != "alice" || db.execs[0].args[1] != "alice@x.com" {
		t.Errorf("execs = %+v", db.execs)
	}

	dup := &mockDB{execErr: &pgconn.PgError{Code: "23505"}}
	if err := New(dup).Append(context.Background(), c); !errors.Is(err, directory.ErrDuplicate) {
		t.Errorf("Append duplicate err = %v, want ErrDuplicate", err)
	}
}

func TestRewrite(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	contacts := []types.Contact{{Name: "alice", Address: "a@x.com"}, {Name: "carol", Address: "c@x.com"}}
	if err := New(db).Rewrite(context.Background(), contacts); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	tx := db.tx
	if !tx.committed || tx.rolledBack {
		t.Errorf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
	if len(tx.execs) != 3 || !strings.HasPrefix(tx.execs[0].sql, "DELETE") {
		t.Fatalf("tx execs = %+v", tx.execs)
	}
	if tx.execs[2].args[0] != "carol" {
		t.Errorf("second insert args = %v", tx.execs[2].args)
	}
}

func TestRewrite_RollsBackOnFailure(t *testing.T) {
	t.Parallel()

	db := &mockDB{tx: &mockTx{failOn: "INSERT"}}
	err := New(db).Rewrite(context.Background(), []types.Contact{{Name: "alice", Address: "a@x.com"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if db.tx.committed || !db.tx.rolledBack {
		t.Errorf("committed=%v rolledBack=%v, want rollback", db.tx.committed, db.tx.rolledBack)
	}
}

func TestStore_WithDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := &mockDB{rows: &mockRows{data: [][2]string{{"alice", "alice@x.com"}}}}
	d, err := directory.Load(ctx, New(db))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := d.Remove(ctx, "Alice"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if db.tx == nil || !db.tx.committed || len(db.tx.execs) != 1 {
		t.Errorf("Remove should rewrite an empty table, tx = %+v", db.tx)
	}
}
