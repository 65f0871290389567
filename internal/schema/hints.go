package schema

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind classifies the value carried by a field.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Default numeric field names as they appear in the DTN header files.
var (
	DefaultIntegerFields = []string{
		"Order Size", "Total Volume", "Bid Size", "Ask Size",
		"Order Priority", "Level Size", "Order Count",
		"Most Recent Trade Size", "Market Maker Count",
	}
	DefaultFloatFields = []string{
		"Price", "Most Recent Trade", "Open", "High", "Low", "Close",
		"Bid", "Ask", "Last", "Change",
	}
)

// Canonical folds a field name to its lookup form: trimmed, lower case,
// spaces replaced by hyphens.
func Canonical(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Hints maps canonical field names to value kinds. The zero value and a nil
// *Hints classify every field as a string.
type Hints struct {
	kinds map[string]Kind
}

// HintsFile is the YAML shape of an external hint table.
type HintsFile struct {
	Integer []string `yaml:"integer"`
	Float   []string `yaml:"float"`
}

// NewHints builds a table from raw field names. A name listed in both sets
// is treated as a float.
func NewHints(integers, floats []string) *Hints {
	h := &Hints{kinds: make(map[string]Kind, len(integers)+len(floats))}
	for _, name := range integers {
		h.kinds[Canonical(name)] = KindInteger
	}
	for _, name := range floats {
		h.kinds[Canonical(name)] = KindFloat
	}
	return h
}

// DefaultHints returns the built-in table for the L1 and L2 feeds.
func DefaultHints() *Hints {
	return NewHints(DefaultIntegerFields, DefaultFloatFields)
}

// LoadHints decodes a YAML hint table.
func LoadHints(r io.Reader) (*Hints, error) {
	var f HintsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("parse hints yaml: %w", err)
	}
	return NewHints(f.Integer, f.Float), nil
}

// Kind returns the kind for a field name; unknown names are strings.
func (h *Hints) Kind(name string) Kind {
	if h == nil || h.kinds == nil {
		return KindString
	}
	return h.kinds[Canonical(name)]
}

// Len returns the number of hinted fields.
func (h *Hints) Len() int {
	if h == nil {
		return 0
	}
	return len(h.kinds)
}
