// Package value models untyped JSON values as an explicit tagged union so that
// tool arguments can be validated and read without reflection.
package value

// file: internal/value/value.go

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Kind identifies which variant a Value holds.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Object is a JSON object.
type Object map[string]Value

// Value is one JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a JSON number literal. The literal is kept verbatim so that
// integers beyond float64 precision survive a round trip.
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int wraps an integer.
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float wraps a float.
func Float(f float64) Value {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// Array wraps a list of values.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// FromObject wraps an object.
func FromObject(o Object) Value {
	if o == nil {
		o = Object{}
	}
	return Value{kind: KindObject, obj: o}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number literal and whether v is a number.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

// AsFloat returns the number as float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// AsInt returns the number as int64 when it is integral.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := v.num.Int64(); err == nil {
		return i, true
	}
	f, err := v.num.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// IsInteger reports whether v is a number without a fractional part. The
// literal is checked exactly, so values beyond the int64 range still count.
func (v Value) IsInteger() bool {
	if v.kind != KindNumber {
		return false
	}
	r, ok := new(big.Rat).SetString(string(v.num))
	return ok && r.IsInt()
}

// AsArray returns the items and whether v is an array.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the object and whether v is an object.
func (v Value) AsObject() (Object, bool) { return v.obj, v.kind == KindObject }

// Get returns a property of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	item, ok := v.obj[key]
	return item, ok
}

// Keys returns the object's keys sorted.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the named property when it is a string.
func (o Object) String(key string) (string, bool) {
	item, ok := o[key]
	if !ok {
		return "", false
	}
	return item.AsString()
}

// Interface converts v into the plain Go representation used by encoding/json
// with UseNumber: nil, bool, json.Number, string, []any, map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		return v.obj.Interface()
	default:
		return nil
	}
}

// Interface converts the object to map[string]any.
func (o Object) Interface() map[string]any {
	out := make(map[string]any, len(o))
	for k, item := range o {
		out[k] = item.Interface()
	}
	return out
}

// FromInterface converts a decoded Go value back into a Value.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			conv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = conv
		}
		return Array(items...), nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, item := range t {
			conv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = conv
		}
		return FromObject(obj), nil
	default:
		return Value{}, errors.Newf("unsupported value type %T", x)
	}
}

// Parse decodes JSON text into a Value.
func Parse(data []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return errors.Wrap(err, "decode JSON value")
	}
	conv, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		return json.Marshal(map[string]Value(v.obj))
	default:
		return json.Marshal(v.Interface())
	}
}
