package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tag is the numeric identifier of a property, raw or computed.
type Tag int32

// NoTag is the zero Tag. No registered property uses it.
const NoTag Tag = 0

// ClassName names an entity class, e.g. "Paragraph".
type ClassName string

// SubKey selects one alternative of a multi-text property, normally a
// writing-system id such as "en" or "fr-x-ipa".
type SubKey string

// NoSubKey is the fixed sentinel used by every kind except multi-text.
const NoSubKey SubKey = ""

type refKind uint8

const (
	refNone refKind = iota
	refReal
	refPlaceholder
)

// EntityRef identifies an entity. It is either Real (durable) or
// Placeholder (provisional). The two variants never compare equal, even
// when their numeric payloads match, so EntityRef is safe as a map key.
//
// The zero EntityRef refers to nothing.
type EntityRef struct {
	kind refKind
	id   int64
}

// Real returns the reference to the durable entity with the given id.
func Real(id int64) EntityRef {
	return EntityRef{kind: refReal, id: id}
}

// Placeholder returns the reference to the provisional entity with the given id.
func Placeholder(id int64) EntityRef {
	return EntityRef{kind: refPlaceholder, id: id}
}

// IsReal reports whether r refers to a durable entity.
func (r EntityRef) IsReal() bool { return r.kind == refReal }

// IsPlaceholder reports whether r refers to a provisional entity.
func (r EntityRef) IsPlaceholder() bool { return r.kind == refPlaceholder }

// IsZero reports whether r refers to nothing.
func (r EntityRef) IsZero() bool { return r.kind == refNone }

// ID returns the numeric payload. It is only meaningful together with the
// variant; callers must not use it to compare refs.
func (r EntityRef) ID() int64 { return r.id }

// String renders r as "r:<id>", "p:<id>" or "nil".
func (r EntityRef) String() string {
	switch r.kind {
	case refReal:
		return "r:" + strconv.FormatInt(r.id, 10)
	case refPlaceholder:
		return "p:" + strconv.FormatInt(r.id, 10)
	default:
		return "nil"
	}
}

// ParseEntityRef parses the textual form produced by String.
func ParseEntityRef(s string) (EntityRef, error) {
	prefix, num, ok := strings.Cut(s, ":")
	if !ok {
		return EntityRef{}, fmt.Errorf("invalid entity ref %q: missing ':'", s)
	}
	id, err := strconv.ParseInt(num, 10, 64)
	if err != nil || id <= 0 {
		return EntityRef{}, fmt.Errorf("invalid entity ref %q: bad id", s)
	}
	switch prefix {
	case "r":
		return Real(id), nil
	case "p":
		return Placeholder(id), nil
	default:
		return EntityRef{}, fmt.Errorf("invalid entity ref %q: unknown variant %q", s, prefix)
	}
}

// MarshalJSON encodes r in its textual form.
func (r EntityRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the textual form.
func (r *EntityRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "nil" {
		*r = EntityRef{}
		return nil
	}
	parsed, err := ParseEntityRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
