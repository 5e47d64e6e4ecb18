package ir

import "fmt"

// PromotionState is the lifecycle state of a placeholder.
// It only moves forward: Provisional -> PromotionRequested -> Real.
type PromotionState uint8

const (
	StateProvisional PromotionState = iota
	StatePromotionRequested
	StateReal
)

// String returns the lowercase state name.
func (s PromotionState) String() string {
	switch s {
	case StateProvisional:
		return "provisional"
	case StatePromotionRequested:
		return "promotion_requested"
	case StateReal:
		return "real"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// CanAdvanceTo reports whether moving from s to next respects forward-only order.
func (s PromotionState) CanAdvanceTo(next PromotionState) bool {
	return next > s
}

// AttrKey addresses one provisional attribute of a placeholder.
type AttrKey struct {
	Tag Tag
	Sub SubKey
}

// PlaceholderRecord tracks a provisional entity.
// OwningEntity is the zero EntityRef when the placeholder was never attached.
type PlaceholderRecord struct {
	ID           int64
	Class        ClassName
	OwningEntity EntityRef
	OwningField  Tag
	State        PromotionState

	// Attrs holds provisional raw values that are copied onto the durable
	// entity when it is created.
	Attrs map[AttrKey]IRValue
}

// Ref returns the placeholder reference for the record.
func (r PlaceholderRecord) Ref() EntityRef {
	return Placeholder(r.ID)
}

// HasOwner reports whether the placeholder has been attached to an owner.
func (r PlaceholderRecord) HasOwner() bool {
	return !r.OwningEntity.IsZero()
}

// Clone returns a copy whose Attrs map is not shared.
func (r PlaceholderRecord) Clone() PlaceholderRecord {
	out := r
	if r.Attrs != nil {
		out.Attrs = make(map[AttrKey]IRValue, len(r.Attrs))
		for k, v := range r.Attrs {
			out.Attrs[k] = v
		}
	}
	return out
}

// PromotionRequest asks for a placeholder to be made durable.
type PromotionRequest struct {
	Placeholder EntityRef

	// Tag is the property whose computation needs a durable entity.
	Tag Tag

	// MustSucceedNow means the caller cannot proceed without a durable id.
	MustSucceedNow bool

	// OwningFieldHint optionally names the owning field when the record
	// does not know it yet.
	OwningFieldHint Tag
}
