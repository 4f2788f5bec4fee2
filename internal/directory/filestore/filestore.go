// Package filestore persists the contact directory in a single local file.
// The encoding follows the file extension:
//
//   - .yaml, .yml: a "contacts" sequence of {name, address} mappings
//   - .toml: a [[contacts]] array of tables
//   - .json: {"contacts": [{"name": ..., "address": ...}]}
//   - .csv: a "name,address" header followed by one record per line
//
// Every write goes to a temporary file in the same directory that is then
// renamed over the original, so a crash never leaves a half-written file.
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// Format is a supported file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var _ directory.Storage = (*Store)(nil)

// document is the top-level layout of the structured formats.
type document struct {
	Contacts []types.Contact `yaml:"contacts" toml:"contacts" json:"contacts"`
}

// Store is safe for concurrent use.
type Store struct {
	path   string
	format Format
	mu     sync.Mutex
}

// New returns a Store for path, choosing the format from its extension.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: path must not be empty")
	}
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, format: format}, nil
}

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("filestore: unsupported file extension %q", filepath.Ext(path))
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load implements directory.Storage. A missing file yields no records.
func (s *Store) Load(ctx context.Context) ([]types.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append implements directory.Storage. CSV files are appended in place; the
// structured formats are rewritten.
func (s *Store) Append(ctx context.Context, c types.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatCSV {
		return s.appendCSV(c)
	}
	records, err := s.read()
	if err != nil {
		return err
	}
	return s.write(append(records, c))
}

// Rewrite implements directory.Storage.
func (s *Store) Rewrite(ctx context.Context, contacts []types.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(contacts)
}

func (s *Store) read() ([]types.Contact, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	records, err := decode(s.format, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", directory.ErrMalformed, s.path, err)
	}
	return records, nil
}

func decode(format Format, data []byte) ([]types.Contact, error) {
	var doc document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case FormatCSV:
		return decodeCSV(data)
	}
	return doc.Contacts, nil
}

func decodeCSV(data []byte) ([]types.Contact, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(header[0], "name") || !strings.EqualFold(header[1], "address") {
		return nil, fmt.Errorf("unexpected header %q, want name,address", strings.Join(header, ","))
	}

	var out []types.Contact
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, types.Contact{Name: rec[0], Address: rec[1]})
	}
}

func encode(format Format, contacts []types.Contact) ([]byte, error) {
	if contacts == nil {
		contacts = []types.Contact{}
	}
	doc := document{Contacts: contacts}
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		return toml.Marshal(doc)
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	default:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"name", "address"})
		for _, c := range contacts {
			_ = w.Write([]string{c.Name, c.Address})
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}
}

// write replaces the file atomically.
func (s *Store) write(contacts []types.Contact) error {
	data, err := encode(s.format, contacts)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("filestore: create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: sync temp file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("filestore: replace %s: %w", s.path, err)
	}
	return nil
}

// appendCSV adds one line to a well-formed CSV file. A missing or empty file
// is created with its header, and a malformed one is left untouched.
func (s *Store) appendCSV(c types.Contact) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return s.write([]types.Contact{c})
	}
	if err != nil {
		return fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if _, err := decodeCSV(data); err != nil {
		return fmt.Errorf("%w: %s: %w", directory.ErrMalformed, s.path, err)
	}

	var buf bytes.Buffer
	if data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{c.Name, c.Address})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("filestore: append: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("filestore: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("filestore: sync: %w", err)
	}
	return f.Close()
}
