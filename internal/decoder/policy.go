package decoder

import "sort"

// RemoveMessageType is the L2 message type whose lines omit the price and
// size columns.
const RemoveMessageType = "5"

// Rule re-inserts empty tokens at Offsets when the first token of a line
// equals MessageType.
type Rule struct {
	MessageType string `yaml:"message_type"`
	Offsets     []int  `yaml:"offsets"`
}

// Policy maps a schema id to its realignment rules.
type Policy map[string][]Rule

// DefaultPolicy returns the realignment rules for the DTN feeds.
func DefaultPolicy() Policy {
	return Policy{
		"L2": {
			{MessageType: RemoveMessageType, Offsets: []int{3, 5, 6, 7, 8, 9, 10}},
		},
	}
}

// match returns the first rule of schemaID that applies to msgType.
func (p Policy) match(schemaID, msgType string) (Rule, bool) {
	for _, rule := range p[schemaID] {
		if rule.MessageType == msgType {
			return rule, true
		}
	}
	return Rule{}, false
}

// apply inserts an empty token at every offset, lowest first, so each later
// offset is measured against the already shifted slice.
func (rule Rule) apply(tokens []string) []string {
	offsets := make([]int, len(rule.Offsets))
	copy(offsets, rule.Offsets)
	sort.Ints(offsets)

	for _, off := range offsets {
		if off < 0 {
			continue
		}
		for len(tokens) < off {
			tokens = append(tokens, "")
		}
		tokens = append(tokens, "")
		copy(tokens[off+1:], tokens[off:])
		tokens[off] = ""
	}
	return tokens
}
