package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_AppendLoadRewrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, path := openTemp(t)

	if got, err := s.Load(ctx); err != nil || len(got) != 0 {
		t.Fatalf("Load on fresh database = %v, %v", got, err)
	}
	all := []types.Contact{
		{Name: "carol", Address: "carol@x.com"},
		{Name: "alice", Address: "alice@x.com"},
		{Name: "bob", Address: "bob@x.com"},
	}
	for _, c := range all {
		if err := s.Append(ctx, c); err != nil {
			t.Fatalf("Append(%s): %v", c.Name, err)
		}
	}
	if err := s.Append(ctx, all[0]); !errors.Is(err, directory.ErrDuplicate) {
		t.Errorf("duplicate Append err = %v, want ErrDuplicate", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(got, all) {
		t.Errorf("Load = %+v, want insertion order %+v", got, all)
	}

	if err := s.Rewrite(ctx, []types.Contact{all[2], all[0]}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	_ = s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, _ = reopened.Load(ctx)
	if !slices.Equal(got, []types.Contact{all[2], all[0]}) {
		t.Errorf("after reopen Load = %+v", got)
	}
}

func TestStore_WithDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := openTemp(t)

	d, err := directory.Load(ctx, s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := d.Add(ctx, "Alice", "alice@x.com"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := d.Add(ctx, "Bob", "bob@x.com"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Remove(ctx, "alice"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	stored, _ := s.Load(ctx)
	if len(stored) != 1 || stored[0].Name != "bob" {
		t.Errorf("stored = %+v", stored)
	}
}
