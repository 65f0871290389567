package decoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rickgao/dtn-gateway/internal/schema"
)

// Decode failures.
var (
	ErrEmptySchema = errors.New("empty schema")
	ErrNoTokens    = errors.New("no tokens in line")
)

// Field names merged into the synthetic timestamp.
const (
	DateField      = "Date"
	TimeField      = "Time"
	TimestampField = "timestamp"
)

// DecodeError carries the rejected line alongside the reason.
type DecodeError struct {
	Reason error
	Line   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %v", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// Decoder converts CSV lines into Records. It holds no per-call state and is
// safe for concurrent use.
type Decoder struct {
	hints  *schema.Hints
	policy Policy
}

// New creates a Decoder. A nil hints table decodes every field as a string;
// a nil policy disables realignment.
func New(hints *schema.Hints, policy Policy) *Decoder {
	return &Decoder{
		hints:  hints,
		policy: policy,
	}
}

// Decode maps line onto fields. schemaID selects the realignment rules and
// may be empty.
func (d *Decoder) Decode(schemaID string, fields []string, line string) (*Record, error) {
	if len(fields) == 0 {
		return nil, &DecodeError{Reason: ErrEmptySchema, Line: line}
	}
	if strings.TrimSpace(line) == "" {
		return nil, &DecodeError{Reason: ErrNoTokens, Line: line}
	}

	tokens := strings.Split(line, ",")
	if rule, ok := d.policy.match(schemaID, strings.TrimSpace(tokens[0])); ok {
		tokens = rule.apply(tokens)
	}

	rec := NewRecord(len(fields) + 1)

	var dateStr, timeStr string
	for i, name := range fields {
		var tok string
		if i < len(tokens) {
			tok = strings.TrimSpace(tokens[i])
		}

		switch name {
		case DateField:
			dateStr = tok
		case TimeField:
			timeStr = tok
		}

		rec.Set(name, d.coerce(name, tok))
	}

	if dateStr != "" && timeStr != "" {
		rec.Set(TimestampField, dateStr+"T"+timeStr+"Z")
		rec.Delete(DateField)
		rec.Delete(TimeField)
	}

	return rec, nil
}

// coerce converts a trimmed token according to the field's hint. Parse
// failures keep the raw string.
func (d *Decoder) coerce(name, tok string) any {
	if tok == "" {
		return nil
	}

	switch d.hints.Kind(name) {
	case schema.KindInteger:
		if v, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return v
		}
	case schema.KindFloat:
		// NaN and Inf have no JSON form; keep them as text.
		if v, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return tok
}
