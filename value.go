package config

import (
	"fmt"
	"sort"
	"strconv"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	// KindScalar is a leaf with no further structure.
	KindScalar ValueKind = iota
	// KindMapping is a nested key->Value structure evaluated lazily.
	KindMapping
	// KindList is an ordered sequence of Values.
	KindList
	// KindComputed is an unevaluated expression that must be forced through
	// the resolver before use.
	KindComputed
	// KindThunk is an unevaluated Go computation reading through a Reader.
	KindThunk
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindList:
		return "list"
	case KindComputed:
		return "computed"
	case KindThunk:
		return "thunk"
	default:
		return "unknown"
	}
}

// ThunkFunc is a deferred computation. It receives a Reader bound to the
// visibility window of the assignment that owns it.
type ThunkFunc func(reader Reader) (any, error)

// Value is the tagged union stored against a path. Values are immutable once
// constructed; nested payloads are copied on normalisation.
type Value struct {
	kind    ValueKind
	scalar  any
	mapping map[string]Value
	list    []Value
	expr    string
	fn      ThunkFunc
}

// Scalar wraps a leaf value.
func Scalar(value any) Value {
	return Value{kind: KindScalar, scalar: value}
}

// Computed wraps an expression source evaluated lazily by the configured
// expression engine, e.g. Computed("0.01 * batch_size").
func Computed(expression string) Value {
	return Value{kind: KindComputed, expr: expression}
}

// Thunk wraps a deferred Go computation.
func Thunk(fn ThunkFunc) Value {
	return Value{kind: KindThunk, fn: fn}
}

// Mapping wraps a nested structure, normalising nested maps, slices, Values
// and thunk functions recursively.
func Mapping(entries map[string]any) Value {
	mapping := make(map[string]Value, len(entries))
	for key, value := range entries {
		mapping[key] = Normalize(value)
	}
	return Value{kind: KindMapping, mapping: mapping}
}

// List wraps an ordered sequence.
func List(items []any) Value {
	list := make([]Value, len(items))
	for i, item := range items {
		list[i] = Normalize(item)
	}
	return Value{kind: KindList, list: list}
}

// Normalize converts an arbitrary Go value into a Value: maps become
// mappings, slices become lists, Values and ThunkFuncs pass through, and
// everything else is a scalar leaf.
func Normalize(value any) Value {
	switch v := value.(type) {
	case Value:
		return v
	case map[string]any:
		return Mapping(v)
	case map[string]Value:
		mapping := make(map[string]Value, len(v))
		for key, item := range v {
			mapping[key] = item
		}
		return Value{kind: KindMapping, mapping: mapping}
	case []any:
		return List(v)
	case ThunkFunc:
		return Thunk(v)
	case func(Reader) (any, error):
		return Thunk(v)
	default:
		return Scalar(v)
	}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// Expression returns the expression source for computed values.
func (v Value) Expression() string { return v.expr }

// ScalarValue returns the wrapped leaf for scalar values.
func (v Value) ScalarValue() any { return v.scalar }

// MappingKeys returns the sorted keys of a mapping value.
func (v Value) MappingKeys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.mapping))
	for key := range v.mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the element count for list values.
func (v Value) Len() int {
	if v.kind != KindList {
		return 0
	}
	return len(v.list)
}

// child looks up the Value one segment below v. Integer segments address
// list elements when v is a list and digit keys when v is a mapping.
func (v Value) child(segment Segment) (Value, bool) {
	switch v.kind {
	case KindMapping:
		key := segment.key
		if segment.kind == SegmentIndex {
			key = strconv.Itoa(segment.index)
		}
		if segment.kind == SegmentWildcard {
			return Value{}, false
		}
		child, ok := v.mapping[key]
		return child, ok
	case KindList:
		index := segment.index
		switch segment.kind {
		case SegmentIndex:
		case SegmentKey:
			parsed, err := strconv.Atoi(segment.key)
			if err != nil {
				return Value{}, false
			}
			index = parsed
		default:
			return Value{}, false
		}
		if index < 0 || index >= len(v.list) {
			return Value{}, false
		}
		return v.list[index], true
	default:
		return Value{}, false
	}
}

// dig follows suffix into a structured value, returning the value at the end
// of the walk. Reports false when any step is missing.
func (v Value) dig(suffix Path) (Value, bool) {
	current := v
	for i := 0; i < suffix.Len(); i++ {
		child, ok := current.child(suffix.Segment(i))
		if !ok {
			return Value{}, false
		}
		current = child
	}
	return current, true
}

// leafPaths enumerates the concrete paths of every leaf reachable inside a
// structured value, each prefixed with prefix. Scalars, computed values and
// thunks are leaves; empty mappings and lists are leaves too so they survive
// into the resolved tree.
func (v Value) leafPaths(prefix Path) []Path {
	switch v.kind {
	case KindMapping:
		if len(v.mapping) == 0 {
			return []Path{prefix}
		}
		var out []Path
		for _, key := range v.MappingKeys() {
			out = append(out, v.mapping[key].leafPaths(prefix.Child(Key(key)))...)
		}
		return out
	case KindList:
		if len(v.list) == 0 {
			return []Path{prefix}
		}
		var out []Path
		for i, item := range v.list {
			out = append(out, item.leafPaths(prefix.Child(Index(i)))...)
		}
		return out
	default:
		return []Path{prefix}
	}
}

// isStructured reports whether the value carries nested children.
func (v Value) isStructured() bool {
	return v.kind == KindMapping || v.kind == KindList
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return fmt.Sprintf("%v", v.scalar)
	case KindComputed:
		return fmt.Sprintf("computed(%s)", v.expr)
	case KindThunk:
		return "thunk"
	case KindMapping:
		return fmt.Sprintf("mapping(%d keys)", len(v.mapping))
	case KindList:
		return fmt.Sprintf("list(%d items)", len(v.list))
	default:
		return "unknown"
	}
}
