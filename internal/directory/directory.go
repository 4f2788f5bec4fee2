// Package directory keeps the contact directory: a normalized name to email
// address mapping that is loaded once at startup and written through to its
// [Storage] on every mutation.
//
// Names are normalized by trimming, collapsing inner whitespace and
// lowercasing. Lookup is exact on the normalized name; fuzzy matching is the
// resolver's job.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/voxmail/internal/observe"
	"github.com/MrWong99/voxmail/internal/phonetic"
	"github.com/MrWong99/voxmail/pkg/types"
)

var (
	// ErrValidation reports an empty name or address.
	ErrValidation = errors.New("directory: name and address must not be empty")

	// ErrDuplicate reports an Add whose normalized name already exists.
	ErrDuplicate = errors.New("directory: contact already exists")

	// ErrNotFound reports a Remove of an unknown name.
	ErrNotFound = errors.New("directory: contact not found")

	// ErrMalformed is wrapped by storage backends whose persisted data cannot
	// be decoded.
	ErrMalformed = errors.New("directory: malformed storage")
)

// Storage is a durable contact record store.
type Storage interface {
	// Load returns every stored record in insertion order. Missing storage
	// is not an error and yields no records.
	Load(ctx context.Context) ([]types.Contact, error)

	// Append durably adds one record.
	Append(ctx context.Context, c types.Contact) error

	// Rewrite durably replaces all records.
	Rewrite(ctx context.Context, contacts []types.Contact) error
}

// Option configures a [Directory].
type Option func(*Directory)

// WithMatcher enables warnings when a new contact sounds like an existing
// one.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(d *Directory) { d.matcher = m }
}

// WithMetrics reports the contact count on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Directory) { d.metrics = m }
}

// Directory is safe for concurrent use. Mutations hold the lock across the
// storage write so the in-memory state never runs ahead of storage.
type Directory struct {
	store   Storage
	matcher *phonetic.Matcher
	metrics *observe.Metrics

	mu       sync.RWMutex
	contacts []types.Contact
	index    map[string]int

	// stale is set when storage holds something other than contacts: it
	// could not be read, or Load skipped records. The next mutation rewrites
	// storage from contacts instead of appending to it.
	stale bool
}

// New returns an empty Directory backed by store.
func New(store Storage, opts ...Option) *Directory {
	d := &Directory{store: store, index: make(map[string]int)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Load reads every record from store. The returned Directory is always
// usable: when storage cannot be read it is empty and the error is returned
// alongside it, so callers can report the problem and keep running. Records
// with empty fields or duplicate names are skipped with a warning. In both
// cases the first Add or Remove replaces the stored records with the
// Directory's own.
func Load(ctx context.Context, store Storage, opts ...Option) (*Directory, error) {
	d := New(store, opts...)

	records, err := store.Load(ctx)
	if err != nil {
		d.stale = true
		return d, fmt.Errorf("directory: load: %w", err)
	}
	for _, r := range records {
		c, err := normalizeContact(r.Name, r.Address)
		if err != nil {
			slog.Warn("directory: skipping invalid record", "name", r.Name, "address", r.Address)
			d.stale = true
			continue
		}
		if _, dup := d.index[c.Name]; dup {
			slog.Warn("directory: skipping duplicate record", "name", c.Name)
			d.stale = true
			continue
		}
		d.index[c.Name] = len(d.contacts)
		d.contacts = append(d.contacts, c)
	}
	d.report(ctx, int64(len(d.contacts)))
	return d, nil
}

// Normalize returns the lookup key for name.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func normalizeContact(name, address string) (types.Contact, error) {
	c := types.Contact{Name: Normalize(name), Address: strings.TrimSpace(address)}
	if c.Name == "" || c.Address == "" {
		return types.Contact{}, ErrValidation
	}
	return c, nil
}

// Add stores a new contact and returns it in normalized form.
func (d *Directory) Add(ctx context.Context, name, address string) (types.Contact, error) {
	c, err := normalizeContact(name, address)
	if err != nil {
		return types.Contact{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[c.Name]; ok {
		return types.Contact{}, fmt.Errorf("%w: %q", ErrDuplicate, c.Name)
	}
	if d.matcher != nil {
		if similar := d.matcher.Similar(c.Name, d.namesLocked()); len(similar) > 0 {
			observe.Logger(ctx).Warn("directory: new contact sounds like an existing one",
				"name", c.Name, "similar", similar[0].Name, "score", similar[0].Score)
		}
	}
	if err := d.persistAdd(ctx, c); err != nil {
		return types.Contact{}, fmt.Errorf("directory: persist %q: %w", c.Name, err)
	}

	d.index[c.Name] = len(d.contacts)
	d.contacts = append(d.contacts, c)
	d.report(ctx, 1)
	return c, nil
}

// Remove deletes the contact with the given name.
func (d *Directory) Remove(ctx context.Context, name string) error {
	key := Normalize(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.index[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	remaining := make([]types.Contact, 0, len(d.contacts)-1)
	remaining = append(remaining, d.contacts[:i]...)
	remaining = append(remaining, d.contacts[i+1:]...)

	if err := d.store.Rewrite(ctx, remaining); err != nil {
		return fmt.Errorf("directory: persist removal of %q: %w", key, err)
	}
	d.stale = false

	d.contacts = remaining
	d.index = make(map[string]int, len(remaining))
	for j, c := range remaining {
		d.index[c.Name] = j
	}
	d.report(ctx, -1)
	return nil
}

// persistAdd appends c to storage, or rewrites storage with every contact
// plus c when it is stale. Callers hold d.mu.
func (d *Directory) persistAdd(ctx context.Context, c types.Contact) error {
	if !d.stale {
		return d.store.Append(ctx, c)
	}
	all := make([]types.Contact, 0, len(d.contacts)+1)
	all = append(all, d.contacts...)
	all = append(all, c)
	if err := d.store.Rewrite(ctx, all); err != nil {
		return err
	}
	d.stale = false
	return nil
}

// Lookup returns the address stored under the normalized name.
func (d *Directory) Lookup(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[Normalize(name)]
	if !ok {
		return "", false
	}
	return d.contacts[i].Address, true
}

// List returns a copy of all contacts in insertion order.
func (d *Directory) List() []types.Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Contact, len(d.contacts))
	copy(out, d.contacts)
	return out
}

// Names returns all normalized names in insertion order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.namesLocked()
}

// Len returns the number of contacts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.contacts)
}

func (d *Directory) namesLocked() []string {
	names := make([]string, len(d.contacts))
	for i, c := range d.contacts {
		names[i] = c.Name
	}
	return names
}

func (d *Directory) report(ctx context.Context, delta int64) {
	if d.metrics != nil && delta != 0 {
		d.metrics.DirectoryContacts.Add(ctx, delta)
	}
}
