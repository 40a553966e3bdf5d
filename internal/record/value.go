package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the value types a record field may hold.
// There is no float and no null: both break deterministic hashing.
type Value interface {
	recordValue()
}

// String is a string field value.
type String string

func (String) recordValue() {}

// Int is an integer field value.
type Int int64

func (Int) recordValue() {}

// Bool is a boolean field value.
type Bool bool

func (Bool) recordValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) recordValue() {}

// Object maps field names to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) recordValue() {}

// SortedKeys returns keys in canonical order (UTF-16 code units).
// Go's native string ordering is UTF-8 and differs for astral characters.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Merge returns a new object holding the fields of o overlaid with other.
func (o Object) Merge(other Object) Object {
	out := make(Object, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Without returns a copy of o with the named keys removed.
func (o Object) Without(keys ...string) Object {
	out := make(Object, len(o))
	for k, v := range o {
		if !slices.Contains(keys, k) {
			out[k] = v
		}
	}
	return out
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// field accessors used by the kind decoders

func (o Object) str(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("field %q: want string, got %T", key, v)
	}
	return string(s), nil
}

func (o Object) optStr(key string) (string, error) {
	if _, ok := o[key]; !ok {
		return "", nil
	}
	return o.str(key)
}

func (o Object) integer(key string) (int64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("field %q: want integer, got %T", key, v)
	}
	return int64(n), nil
}

func (o Object) boolean(key string) (bool, error) {
	v, ok := o[key]
	if !ok {
		return false, fmt.Errorf("missing field %q", key)
	}
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("field %q: want bool, got %T", key, v)
	}
	return bool(b), nil
}

// ParseObject decodes JSON into an Object, rejecting floats and nulls.
func ParseObject(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	v, err := toValue(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("want JSON object, got %T", v)
	}
	return obj, nil
}

func toValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden")
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
