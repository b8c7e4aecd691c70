// Package metadata models the nested string-keyed value trees the
// proxy attaches to routes and upstream clusters. The tree is a closed
// tagged variant so traversal is total: every lookup on every shape
// returns a Value, with Null standing in for anything absent.
package metadata

import (
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Type identifies the variant a Value holds.
type Type int

const (
	TypeNull Type = iota
	TypeString
	TypeNumber
	TypeBool
	TypeList
	TypeStruct
)

// Value is one node of a metadata tree.
type Value struct {
	t      Type
	str    string
	num    float64
	b      bool
	list   []Value
	fields map[string]Value
}

// Null returns the absent value.
func Null() Value { return Value{} }

// String creates a string value.
func String(s string) Value { return Value{t: TypeString, str: s} }

// Number creates a numeric value.
func Number(n float64) Value { return Value{t: TypeNumber, num: n} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{t: TypeBool, b: b} }

// List creates a list value.
func List(elems ...Value) Value { return Value{t: TypeList, list: elems} }

// Struct creates a string-keyed struct value.
func Struct(fields map[string]Value) Value {
	return Value{t: TypeStruct, fields: fields}
}

// FromYAML parses a YAML document into a Value. Hosts use this to load
// static route or cluster metadata from configuration files.
func FromYAML(data []byte) (Value, error) {
	var tree interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return Null(), err
	}
	return FromInterface(tree), nil
}

// FromInterface converts a decoded YAML/JSON tree into a Value.
// Unsupported node types collapse to Null.
func FromInterface(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case []interface{}:
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, FromInterface(e))
		}
		return Value{t: TypeList, list: elems}
	case map[string]interface{}:
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			fields[k] = FromInterface(e)
		}
		return Value{t: TypeStruct, fields: fields}
	case map[interface{}]interface{}:
		// YAML decoders may produce interface keys.
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			if ks, ok := k.(string); ok {
				fields[ks] = FromInterface(e)
			}
		}
		return Value{t: TypeStruct, fields: fields}
	}
	return Null()
}

// Type returns the variant tag.
func (v Value) Type() Type { return v.t }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.t == TypeNull }

// Field returns the named struct field, or Null for non-structs and
// missing keys.
func (v Value) Field(name string) Value {
	if v.t != TypeStruct {
		return Null()
	}
	return v.fields[name]
}

// FilterValue performs the two-level filter-namespace lookup used for
// route and cluster metadata: tree[filterNS][key].
func (v Value) FilterValue(filterNS, key string) Value {
	return v.Field(filterNS).Field(key)
}

// StringValue returns the string payload, reporting whether the value
// actually is a string.
func (v Value) StringValue() (string, bool) {
	if v.t != TypeString {
		return "", false
	}
	return v.str, true
}

// List returns the list elements, or nil for non-lists.
func (v Value) List() []Value {
	if v.t != TypeList {
		return nil
	}
	return v.list
}

// ScalarString renders the value for template output: strings as-is,
// numbers in shortest decimal form, booleans as "true"/"false", lists
// as their scalar elements joined with ",". Structs and Null render "".
func (v Value) ScalarString() string {
	switch v.t {
	case TypeString:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeBool:
		if v.b {
			return "true"
		}
		return "false"
	case TypeList:
		var sb strings.Builder
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			switch e.t {
			case TypeString, TypeNumber, TypeBool:
				sb.WriteString(e.ScalarString())
			}
		}
		return sb.String()
	}
	return ""
}
