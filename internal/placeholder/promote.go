package placeholder

import (
	"context"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// Promote offers req to each resolver in chain until one handles it.
//
// A resolver that declines returns handled=false and leaves the record
// untouched. The first resolver to claim the request moves the record to
// PromotionRequested; on success the record becomes Real, its id is
// retired, and then commit runs. A commit error is returned alongside the
// durable entity; the promotion itself stands.
//
// When nobody handles the request the result depends on MustSucceedNow:
// ErrPromotionFailed if set, otherwise the placeholder itself with a nil
// error, leaving the record Provisional.
//
// A placeholder that was already promoted resolves to its durable entity
// without consulting the chain.
func (m *Manager) Promote(ctx context.Context, req ir.PromotionRequest, chain []Resolver, commit CommitFunc) (ir.EntityRef, error) {
	if real, ok := m.Retired(req.Placeholder); ok {
		return real, nil
	}
	rec, err := m.live(req.Placeholder)
	if err != nil {
		return ir.EntityRef{}, fmt.Errorf("promote: %w", err)
	}
	id := rec.ID
	if m.inFlight[id] {
		return ir.EntityRef{}, fmt.Errorf("promote %s: already in progress: %w", req.Placeholder, ErrPromotionFailed)
	}
	if len(m.inFlight) >= m.maxDepth {
		return ir.EntityRef{}, fmt.Errorf("promote %s: %w", req.Placeholder, ErrOwnerDepth)
	}
	if rec.OwningField == ir.NoTag && req.OwningFieldHint != ir.NoTag && rec.HasOwner() {
		rec.OwningField = req.OwningFieldHint
	}

	m.inFlight[id] = true
	defer delete(m.inFlight, id)

	for _, r := range chain {
		real, handled, err := r.Resolve(ctx, req, rec.Clone())
		if !handled && err == nil {
			continue
		}
		m.advance(rec, ir.StatePromotionRequested)
		if err != nil {
			return ir.EntityRef{}, fmt.Errorf("promote %s via %s: %w: %w", req.Placeholder, r.Name, ErrPromotionFailed, err)
		}
		if !real.IsReal() {
			return ir.EntityRef{}, fmt.Errorf("promote %s via %s: resolver returned %s: %w", req.Placeholder, r.Name, real, ErrPromotionFailed)
		}
		m.retire(rec, real)
		if commit != nil {
			if err := commit(req.Placeholder, real); err != nil {
				return real, fmt.Errorf("promote %s: commit: %w", req.Placeholder, err)
			}
		}
		return real, nil
	}

	if req.MustSucceedNow {
		return ir.EntityRef{}, fmt.Errorf("promote %s: no resolver produced a durable entity: %w", req.Placeholder, ErrPromotionFailed)
	}
	return rec.Ref(), nil
}

func (m *Manager) advance(rec *ir.PlaceholderRecord, next ir.PromotionState) {
	if rec.State.CanAdvanceTo(next) {
		rec.State = next
	}
}

// retire marks rec Real, forgets it, and points every other placeholder
// that referenced or was owned by it at the durable entity.
func (m *Manager) retire(rec *ir.PlaceholderRecord, real ir.EntityRef) {
	from := rec.Ref()
	m.advance(rec, ir.StateReal)
	delete(m.records, rec.ID)
	m.retired[rec.ID] = real

	for _, other := range m.records {
		if other.OwningEntity == from {
			other.OwningEntity = real
		}
		for key, v := range other.Attrs {
			if nv, changed := ir.ReplaceRef(v, from, real); changed {
				other.Attrs[key] = nv
			}
		}
	}
}
