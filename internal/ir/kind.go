package ir

import "fmt"

// Kind is the value kind of a property. It determines which IRValue types
// a handler may produce for it.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindBoolean
	KindText
	KindMultiText
	KindRefAtomic
	KindRefCollection
	KindRefSequence
)

var kindNames = map[Kind]string{
	KindScalar:        "scalar",
	KindBoolean:       "boolean",
	KindText:          "text",
	KindMultiText:     "multi_text",
	KindRefAtomic:     "ref_atomic",
	KindRefCollection: "ref_collection",
	KindRefSequence:   "ref_sequence",
}

// String returns the schema spelling of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a schema spelling back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown property kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsReference reports whether values of k hold entity references.
func (k Kind) IsReference() bool {
	return k == KindRefAtomic || k == KindRefCollection || k == KindRefSequence
}

// UsesSubKey reports whether k distinguishes alternatives by SubKey.
func (k Kind) UsesSubKey() bool {
	return k == KindMultiText
}

// Accepts reports whether v is a legal value for a property of kind k.
// IRNull is legal for every kind and means "no value".
func (k Kind) Accepts(v IRValue) bool {
	if _, ok := v.(IRNull); ok {
		return true
	}
	switch k {
	case KindScalar:
		_, ok := v.(IRInt)
		return ok
	case KindBoolean:
		_, ok := v.(IRBool)
		return ok
	case KindText, KindMultiText:
		_, ok := v.(IRString)
		return ok
	case KindRefAtomic:
		_, ok := v.(IRRef)
		return ok
	case KindRefCollection, KindRefSequence:
		_, ok := v.(IRRefs)
		return ok
	default:
		return false
	}
}

// Zero returns the empty value for k.
func (k Kind) Zero() IRValue {
	switch k {
	case KindScalar:
		return IRInt(0)
	case KindBoolean:
		return IRBool(false)
	case KindText, KindMultiText:
		return IRString("")
	case KindRefAtomic:
		return IRRef{}
	case KindRefCollection, KindRefSequence:
		return IRRefs{}
	default:
		return IRNull{}
	}
}
