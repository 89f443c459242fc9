// Package filter evaluates metadata predicate trees against the string
// key-value metadata attached to vectors. Evaluation is pure and
// deterministic; a filter never errors, it only matches or not.
package filter

import (
	"strconv"
	"strings"
)

// Operator combines the conditions of a Spec.
type Operator string

const (
	// And matches when every condition matches. Short-circuits on the
	// first failing condition.
	And Operator = "and"
	// Or matches when at least one condition matches. Short-circuits on
	// the first passing condition.
	Or Operator = "or"
)

// Operation is the comparison applied by a single condition.
type Operation string

const (
	Equals     Operation = "eq"
	NotEquals  Operation = "neq"
	Contains   Operation = "contains"
	StartsWith Operation = "starts_with"
	EndsWith   Operation = "ends_with"
	// GreaterThan and LessThan compare both sides as numbers. A value that
	// does not parse as a number never matches.
	GreaterThan Operation = "gt"
	LessThan    Operation = "lt"
)

// Condition compares the metadata value under Key against Value.
type Condition struct {
	Key       string    `json:"key" yaml:"key"`
	Value     string    `json:"value" yaml:"value"`
	Operation Operation `json:"operation" yaml:"operation"`
}

// Spec is a flat predicate tree: a list of conditions combined with a single
// And/Or operator.
type Spec struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Operator   Operator    `json:"operator" yaml:"operator"`
}

// Single builds a one-condition And filter, the most common case.
func Single(key, value string, op Operation) Spec {
	return Spec{
		Conditions: []Condition{{Key: key, Value: value, Operation: op}},
		Operator:   And,
	}
}

// Matches evaluates the spec against a metadata map. An empty condition list
// matches everything. A condition referencing a missing key does not match;
// it is never an error.
func (s Spec) Matches(metadata map[string]string) bool {
	if len(s.Conditions) == 0 {
		return true
	}
	if s.Operator == Or {
		for _, c := range s.Conditions {
			if c.matches(metadata) {
				return true
			}
		}
		return false
	}
	// Everything that is not Or is treated as And, including the zero value.
	for _, c := range s.Conditions {
		if !c.matches(metadata) {
			return false
		}
	}
	return true
}

func (c Condition) matches(metadata map[string]string) bool {
	value, ok := metadata[c.Key]
	if !ok {
		return false
	}

	switch c.Operation {
	case Equals:
		return value == c.Value
	case NotEquals:
		return value != c.Value
	case Contains:
		return strings.Contains(value, c.Value)
	case StartsWith:
		return strings.HasPrefix(value, c.Value)
	case EndsWith:
		return strings.HasSuffix(value, c.Value)
	case GreaterThan, LessThan:
		have, err1 := strconv.ParseFloat(value, 64)
		want, err2 := strconv.ParseFloat(c.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if c.Operation == GreaterThan {
			return have > want
		}
		return have < want
	default:
		return false
	}
}
