package placeholder

import "github.com/roach88/lexcache/internal/ir"

// RefsFunc reports the references an in-scope entity currently holds
// through any reference-typed property or vector slot.
type RefsFunc func(e ir.EntityRef) ([]ir.EntityRef, error)

// Collect removes provisional placeholders that nothing in scope references
// and returns them ordered by id.
//
// Scope is the caller's working set plus every placeholder that survives
// collection, together with the owners of those placeholders. Only placeholders that are unowned or owned by a working-set
// entity are candidates; anything owned outside the working set cannot be
// proven unreferenced.
func (m *Manager) Collect(working []ir.EntityRef, refsOf RefsFunc) ([]ir.EntityRef, error) {
	inScope := make(map[ir.EntityRef]bool, len(working))
	for _, e := range working {
		inScope[e] = true
	}

	candidates := make(map[ir.EntityRef]bool)
	for _, rec := range m.Records() {
		if rec.State != ir.StateProvisional || m.inFlight[rec.ID] {
			continue
		}
		if !rec.HasOwner() || inScope[rec.OwningEntity] {
			candidates[rec.Ref()] = true
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, e := range working {
		if candidates[e] {
			// The caller is still holding it.
			delete(candidates, e)
		}
	}
	for _, e := range working {
		refs, err := refsOf(e)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			delete(candidates, r)
		}
	}

	// Surviving placeholders keep their owner and whatever they reference
	// alive.
	for changed := true; changed; {
		changed = false
		for _, rec := range m.Records() {
			if candidates[rec.Ref()] {
				continue
			}
			if candidates[rec.OwningEntity] {
				delete(candidates, rec.OwningEntity)
				changed = true
			}
			refs, err := refsOf(rec.Ref())
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				if candidates[r] {
					delete(candidates, r)
					changed = true
				}
			}
		}
	}

	var removed []ir.EntityRef
	for _, rec := range m.Records() {
		if candidates[rec.Ref()] {
			delete(m.records, rec.ID)
			removed = append(removed, rec.Ref())
		}
	}
	return removed, nil
}
