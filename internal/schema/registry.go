package schema

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Errors returned by the registry.
var (
	ErrUnreadable    = errors.New("schema source unreadable")
	ErrEmptySource   = errors.New("schema source is empty")
	ErrNoFields      = errors.New("schema has no fields")
	ErrUnknownSchema = errors.New("unknown schema")
)

const byteOrderMark = "\ufeff"

// Registry stores named, ordered field lists.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string][]string),
	}
}

// Load reads the first line of r and stores its comma-separated field names
// under id. On failure the registry is left untouched.
func (r *Registry) Load(id string, src io.Reader) error {
	fields, err := parseHeader(src)
	if err != nil {
		return fmt.Errorf("load schema %q: %w", id, err)
	}

	r.mu.Lock()
	r.schemas[id] = fields
	r.mu.Unlock()

	return nil
}

// LoadFile opens path and loads its header line under id.
func (r *Registry) LoadFile(id, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load schema %q: %w: %v", id, ErrUnreadable, err)
	}
	defer f.Close()

	return r.Load(id, f)
}

// Fields returns a copy of the field list stored under id.
func (r *Registry) Fields(id string) ([]string, error) {
	r.mu.RLock()
	fields, ok := r.schemas[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, id)
	}

	out := make([]string, len(fields))
	copy(out, fields)
	return out, nil
}

// IDs returns the loaded schema ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// parseHeader splits the first line of src into trimmed field names.
func parseHeader(src io.Reader) ([]string, error) {
	if src == nil {
		return nil, ErrUnreadable
	}

	reader := bufio.NewReader(src)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if line == "" {
		return nil, ErrEmptySource
	}

	tokens := strings.Split(line, ",")
	tokens[0] = strings.TrimPrefix(strings.TrimSpace(tokens[0]), byteOrderMark)

	nonEmpty := 0
	for i, tok := range tokens {
		tokens[i] = strings.TrimSpace(tok)
		if tokens[i] != "" {
			nonEmpty++
		}
	}

	// A bare trailing comma in the header is not a column.
	if len(tokens) > 1 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	if nonEmpty == 0 {
		return nil, ErrNoFields
	}
	return tokens, nil
}
