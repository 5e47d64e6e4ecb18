package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is the sealed set of property values: IRNull, IRString, IRInt,
// IRBool, IRArray, IRObject, IRRef and IRRefs. There is no float type.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull is an absent value.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is text.
type IRString string

func (IRString) irValue() {}

// IRInt is the scalar kind.
type IRInt int64

func (IRInt) irValue() {}

type IRBool bool

func (IRBool) irValue() {}

// IRArray is a list of values. Harness fixtures and snapshots use it.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps keys to values. Iterate with SortedKeys.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRRef is a single entity reference (reference-atomic kind).
// The zero IRRef means "no target".
type IRRef EntityRef

func (IRRef) irValue() {}

// Ref returns the underlying EntityRef.
func (r IRRef) Ref() EntityRef { return EntityRef(r) }

// IRRefs is an ordered list of entity references (collection and sequence kinds).
type IRRefs []EntityRef

func (IRRefs) irValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units, which
// differs from byte order for characters outside the BMP).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalIRValue decodes JSON, rejecting floats. Unlike UnmarshalIRValue
// it reads null as IRNull.
func unmarshalIRValue(data []byte) (IRValue, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil

	case 'n':
		return IRNull{}, nil

	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}

		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats not allowed in IR: %s", string(data))
		}
		return IRInt(i), nil
	}
}

// MarshalJSON writes keys in SortedKeys order. It is not canonical; use
// MarshalCanonical for snapshots.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := obj.SortedKeys()
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON. References use their text form.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		return marshalIRArray(val)
	case IRObject:
		return val.MarshalJSON()
	case IRRef:
		return json.Marshal(EntityRef(val).String())
	case IRRefs:
		strs := make([]string, len(val))
		for i, r := range val {
			strs[i] = r.String()
		}
		return json.Marshal(strs)
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// marshalIRArray marshals an IRArray to JSON bytes.
func marshalIRArray(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalIRValue strictly decodes stored JSON: floats and null are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return convertToIRValue(raw)
}

// convertToIRValue converts a decoded Go value, rejecting null and floats.
func convertToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in IR: only string, int, bool, array, object allowed")
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		s := string(val)
		if strings.Contains(s, ".") || strings.Contains(s, "e") || strings.Contains(s, "E") {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// FromAny converts a decoded YAML/JSON value into an IRValue.
// Unlike UnmarshalIRValue it accepts nil (as IRNull) and plain Go ints,
// and turns EntityRef values into IRRef.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case EntityRef:
		return IRRef(val), nil
	case []EntityRef:
		return IRRefs(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return convertToIRValue(v)
	}
}

// Equal reports whether two IR values are structurally identical.
// IRArray and IRRefs compare element-wise in order; IRObject compares by key.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRString, IRInt, IRBool, IRRef:
		return a == b
	case IRRefs:
		bv, ok := b.(IRRefs)
		return ok && slices.Equal(av, bv)
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Refs returns every entity reference contained in v, in encounter order.
func Refs(v IRValue) []EntityRef {
	var out []EntityRef
	walkRefs(v, func(r EntityRef) { out = append(out, r) })
	return out
}

// ContainsRef reports whether v holds target anywhere.
func ContainsRef(v IRValue, target EntityRef) bool {
	found := false
	walkRefs(v, func(r EntityRef) {
		if r == target {
			found = true
		}
	})
	return found
}

func walkRefs(v IRValue, fn func(EntityRef)) {
	switch val := v.(type) {
	case IRRef:
		if !EntityRef(val).IsZero() {
			fn(EntityRef(val))
		}
	case IRRefs:
		for _, r := range val {
			fn(r)
		}
	case IRArray:
		for _, elem := range val {
			walkRefs(elem, fn)
		}
	case IRObject:
		for _, k := range val.SortedKeys() {
			walkRefs(val[k], fn)
		}
	}
}

// ReplaceRef returns v with every occurrence of from replaced by to.
// The second result is false (and v is returned unchanged) when v does not
// contain from. Containers are copied, never mutated in place.
func ReplaceRef(v IRValue, from, to EntityRef) (IRValue, bool) {
	switch val := v.(type) {
	case IRRef:
		if EntityRef(val) == from {
			return IRRef(to), true
		}
	case IRRefs:
		idx := slices.Index(val, from)
		if idx < 0 {
			return v, false
		}
		out := slices.Clone(val)
		for i := idx; i < len(out); i++ {
			if out[i] == from {
				out[i] = to
			}
		}
		return out, true
	case IRArray:
		var out IRArray
		for i, elem := range val {
			replaced, ok := ReplaceRef(elem, from, to)
			if ok && out == nil {
				out = slices.Clone(val)
			}
			if out != nil {
				out[i] = replaced
			}
		}
		if out != nil {
			return out, true
		}
	case IRObject:
		var out IRObject
		for k, elem := range val {
			replaced, ok := ReplaceRef(elem, from, to)
			if !ok {
				continue
			}
			if out == nil {
				out = make(IRObject, len(val))
				for kk, vv := range val {
					out[kk] = vv
				}
			}
			out[k] = replaced
		}
		if out != nil {
			return out, true
		}
	}
	return v, false
}
