package placeholder

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lexcache/internal/ir"
)

var (
	// ErrUnknownPlaceholder is returned for a placeholder id the manager
	// has never issued or has discarded.
	ErrUnknownPlaceholder = errors.New("unknown placeholder")

	// ErrPromotionFailed is returned when no resolver produced a durable
	// entity for a request that had to succeed, or a claiming resolver failed.
	ErrPromotionFailed = errors.New("promotion failed")

	// ErrOwnerDepth is returned when an ownership chain exceeds the
	// configured depth.
	ErrOwnerDepth = errors.New("ownership chain too deep")
)

// DefaultMaxOwnerDepth bounds ownership walks and nested promotions.
const DefaultMaxOwnerDepth = 64

// Resolver is one entry of a promotion chain.
type Resolver struct {
	Name    string
	Resolve func(ctx context.Context, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error)
}

// CommitFunc runs once the record is Real and retired. It rewrites
// references held outside the manager.
type CommitFunc func(from, to ir.EntityRef) error

// Manager owns the placeholder table.
// Not safe for concurrent use.
type Manager struct {
	nextID   int64
	records  map[int64]*ir.PlaceholderRecord
	retired  map[int64]ir.EntityRef
	inFlight map[int64]bool
	maxDepth int
}

// NewManager returns an empty manager. maxDepth <= 0 selects DefaultMaxOwnerDepth.
func NewManager(maxDepth int) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxOwnerDepth
	}
	return &Manager{
		records:  make(map[int64]*ir.PlaceholderRecord),
		retired:  make(map[int64]ir.EntityRef),
		inFlight: make(map[int64]bool),
		maxDepth: maxDepth,
	}
}

// Create issues a new placeholder. owner may be the zero ref; a
// placeholder owner must be tracked.
func (m *Manager) Create(class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error) {
	if class == "" {
		return ir.EntityRef{}, fmt.Errorf("create placeholder: empty class")
	}
	if owner.IsPlaceholder() {
		if _, ok := m.records[owner.ID()]; !ok {
			return ir.EntityRef{}, fmt.Errorf("create placeholder: owner %s: %w", owner, ErrUnknownPlaceholder)
		}
	}
	if owner.IsZero() {
		field = ir.NoTag
	}
	m.nextID++
	rec := &ir.PlaceholderRecord{
		ID:           m.nextID,
		Class:        class,
		OwningEntity: owner,
		OwningField:  field,
		State:        ir.StateProvisional,
		Attrs:        make(map[ir.AttrKey]ir.IRValue),
	}
	m.records[rec.ID] = rec
	return rec.Ref(), nil
}

// Record returns a copy of the record for e.
func (m *Manager) Record(e ir.EntityRef) (ir.PlaceholderRecord, bool) {
	if !e.IsPlaceholder() {
		return ir.PlaceholderRecord{}, false
	}
	rec, ok := m.records[e.ID()]
	if !ok {
		return ir.PlaceholderRecord{}, false
	}
	return rec.Clone(), true
}

// IsTracked reports whether e is a live placeholder.
func (m *Manager) IsTracked(e ir.EntityRef) bool {
	_, ok := m.Record(e)
	return ok
}

// Retired returns the durable entity a promoted placeholder became.
func (m *Manager) Retired(e ir.EntityRef) (ir.EntityRef, bool) {
	if !e.IsPlaceholder() {
		return ir.EntityRef{}, false
	}
	r, ok := m.retired[e.ID()]
	return r, ok
}

// Len returns the number of live placeholders.
func (m *Manager) Len() int {
	return len(m.records)
}

// Records returns copies of every live record ordered by id.
func (m *Manager) Records() []ir.PlaceholderRecord {
	out := make([]ir.PlaceholderRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b ir.PlaceholderRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// SetAttr stores a provisional attribute value.
func (m *Manager) SetAttr(e ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) error {
	rec, err := m.live(e)
	if err != nil {
		return err
	}
	key := ir.AttrKey{Tag: tag, Sub: sub}
	if _, isNull := v.(ir.IRNull); isNull || v == nil {
		delete(rec.Attrs, key)
		return nil
	}
	rec.Attrs[key] = v
	return nil
}

// Attr returns a provisional attribute value.
func (m *Manager) Attr(e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (ir.IRValue, bool) {
	rec, err := m.live(e)
	if err != nil {
		return nil, false
	}
	v, ok := rec.Attrs[ir.AttrKey{Tag: tag, Sub: sub}]
	return v, ok
}

// Owned returns placeholders owned by owner through field, ordered by id.
// field NoTag matches any field.
func (m *Manager) Owned(owner ir.EntityRef, field ir.Tag) []ir.EntityRef {
	var out []ir.EntityRef
	for _, rec := range m.Records() {
		if rec.OwningEntity == owner && (field == ir.NoTag || rec.OwningField == field) {
			out = append(out, rec.Ref())
		}
	}
	return out
}

// Referrers returns placeholders whose provisional attribute tag holds target.
func (m *Manager) Referrers(target ir.EntityRef, tag ir.Tag) []ir.EntityRef {
	var out []ir.EntityRef
	for _, rec := range m.Records() {
		for key, v := range rec.Attrs {
			if key.Tag == tag && ir.ContainsRef(v, target) {
				out = append(out, rec.Ref())
				break
			}
		}
	}
	return out
}

// Remove discards a placeholder without promoting it. Its id is not reused.
func (m *Manager) Remove(e ir.EntityRef) error {
	if _, err := m.live(e); err != nil {
		return err
	}
	delete(m.records, e.ID())
	return nil
}

// OwnerChain returns the owners of e from nearest to farthest, stopping at
// the first real or unowned entity.
func (m *Manager) OwnerChain(e ir.EntityRef) ([]ir.EntityRef, error) {
	var chain []ir.EntityRef
	cur := e
	for depth := 0; ; depth++ {
		if depth >= m.maxDepth {
			return nil, fmt.Errorf("owner chain of %s: %w", e, ErrOwnerDepth)
		}
		rec, ok := m.Record(cur)
		if !ok || !rec.HasOwner() {
			return chain, nil
		}
		chain = append(chain, rec.OwningEntity)
		cur = rec.OwningEntity
	}
}

func (m *Manager) live(e ir.EntityRef) (*ir.PlaceholderRecord, error) {
	if !e.IsPlaceholder() {
		return nil, fmt.Errorf("%s is not a placeholder: %w", e, ErrUnknownPlaceholder)
	}
	rec, ok := m.records[e.ID()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", e, ErrUnknownPlaceholder)
	}
	return rec, nil
}
