package directory

import (
	"context"
	"sync"

	"github.com/MrWong99/voxmail/pkg/types"
)

var _ Storage = (*MemStorage)(nil)

// MemStorage is a [Storage] that keeps records in memory. It backs the
// directory when no durable backend is configured and in tests.
type MemStorage struct {
	mu      sync.Mutex
	records []types.Contact
}

// NewMemStorage returns a MemStorage preloaded with records.
func NewMemStorage(records ...types.Contact) *MemStorage {
	return &MemStorage{records: append([]types.Contact(nil), records...)}
}

func (s *MemStorage) Load(context.Context) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Contact(nil), s.records...), nil
}

func (s *MemStorage) Append(_ context.Context, c types.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, c)
	return nil
}

func (s *MemStorage) Rewrite(_ context.Context, contacts []types.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]types.Contact(nil), contacts...)
	return nil
}
