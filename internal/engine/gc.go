package engine

import (
	"context"

	"github.com/roach88/lexcache/internal/ir"
)

// CollectPlaceholders removes provisional placeholders that no entity in
// working (or any surviving placeholder) references, and returns them.
//
// Only the working set is scanned, never the whole store. An entity
// references a placeholder through a cached reference value, a provisional
// attribute, or a raw owning field the placeholder is attached to.
func (e *Engine) CollectPlaceholders(ctx context.Context, working []ir.EntityRef) ([]ir.EntityRef, error) {
	resolved := make([]ir.EntityRef, len(working))
	for i, w := range working {
		resolved[i] = e.resolve(w)
	}

	removed, err := e.holders.Collect(resolved, func(x ir.EntityRef) ([]ir.EntityRef, error) {
		return e.heldRefs(ctx, x)
	})
	if err != nil {
		return nil, err
	}
	for _, p := range removed {
		e.values.ClearEntity(p)
	}
	if len(removed) > 0 {
		e.logger.Info("placeholders collected", "count", len(removed))
	}
	return removed, nil
}

func (e *Engine) heldRefs(ctx context.Context, x ir.EntityRef) ([]ir.EntityRef, error) {
	refs := e.values.RefsOf(x)
	if rec, ok := e.holders.Record(x); ok {
		for _, v := range rec.Attrs {
			refs = append(refs, ir.Refs(v)...)
		}
	}
	class, err := e.ClassOf(ctx, x)
	if err != nil {
		// Deleted or discarded entities hold nothing.
		return refs, nil
	}
	for _, raw := range e.reg.RawProperties(class) {
		if raw.Owning {
			refs = append(refs, e.holders.Owned(x, raw.Tag)...)
		}
	}
	return refs, nil
}
