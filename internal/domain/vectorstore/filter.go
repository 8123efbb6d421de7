package vectorstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Filter operators.
const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpAnd = "and"
	OpOr  = "or"
)

// Filter is a tagged attribute filter tree: either a comparison leaf
// (eq/ne/gt/gte/lt/lte on one key) or an and/or compound node.
type Filter struct {
	Type    string    `json:"type"`
	Key     string    `json:"key,omitempty"`
	Value   any       `json:"value,omitempty"`
	Filters []*Filter `json:"filters,omitempty"`
}

// Comparison builds a comparison leaf.
func Comparison(op, key string, value any) *Filter {
	return &Filter{Type: op, Key: key, Value: value}
}

// And builds a conjunction.
func And(children ...*Filter) *Filter {
	return &Filter{Type: OpAnd, Filters: children}
}

// Or builds a disjunction.
func Or(children ...*Filter) *Filter {
	return &Filter{Type: OpOr, Filters: children}
}

// Validate checks operator names and node shapes recursively.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	switch f.Type {
	case OpAnd, OpOr:
		if len(f.Filters) == 0 {
			return fmt.Errorf("%s filter requires at least one child", f.Type)
		}
		for _, child := range f.Filters {
			if child == nil {
				return fmt.Errorf("%s filter has a null child", f.Type)
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("%s filter requires a key", f.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown filter type %q", f.Type)
	}
}

// Matches evaluates the filter against a chunk's merged attributes.
// A comparison on a missing key never matches.
func (f *Filter) Matches(attrs map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.Type {
	case OpAnd:
		for _, child := range f.Filters {
			if !child.Matches(attrs) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range f.Filters {
			if child.Matches(attrs) {
				return true
			}
		}
		return false
	default:
		actual, ok := attrs[f.Key]
		if !ok {
			return false
		}
		return compare(f.Type, actual, f.Value)
	}
}

func compare(op string, actual, expected any) bool {
	if af, aok := toFloat(actual); aok {
		if ef, eok := toFloat(expected); eok {
			return compareOrdered(op, af, ef)
		}
		return false
	}
	if as, aok := actual.(string); aok {
		if es, eok := expected.(string); eok {
			return compareOrdered(op, as, es)
		}
		return false
	}
	if ab, aok := actual.(bool); aok {
		eb, eok := expected.(bool)
		if !eok {
			return false
		}
		switch op {
		case OpEq:
			return ab == eb
		case OpNe:
			return ab != eb
		default:
			return false
		}
	}
	return false
}

func compareOrdered[T float64 | string](op string, a, b T) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// MergeAttributes lays file-level attributes over chunk-level ones.
// File-level values win on key collisions.
func MergeAttributes(chunkAttrs, fileAttrs map[string]any) map[string]any {
	if len(chunkAttrs) == 0 && len(fileAttrs) == 0 {
		return nil
	}
	merged := make(map[string]any, len(chunkAttrs)+len(fileAttrs))
	for k, v := range chunkAttrs {
		merged[k] = v
	}
	for k, v := range fileAttrs {
		merged[k] = v
	}
	return merged
}
