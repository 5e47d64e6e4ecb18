package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// change is one property that changed on one entity. A zero entity means
// the property changed everywhere.
type change struct {
	entity ir.EntityRef
	tag    ir.Tag
}

// Invalidate records that property tag changed on ent and clears every
// cached value that could have been computed from it.
//
// For each binding whose dependency paths mention tag, the walk follows
// the path prefix before tag backward from ent and clears the binding's
// slot on every entity reached. A path that dead-ends contributes nothing.
// A binding whose handler reports DependsOn(tag) without a matching path
// is cleared everywhere. Each cleared slot is itself a change, so the walk
// continues through computed dependencies. Nothing is recomputed here.
func (e *Engine) Invalidate(ctx context.Context, ent ir.EntityRef, tag ir.Tag) error {
	return e.propagate(ctx, []change{{entity: e.resolve(ent), tag: tag}})
}

func (e *Engine) propagate(ctx context.Context, work []change) error {
	seen := make(map[change]bool)
	cleared := 0
	for len(work) > 0 {
		c := work[0]
		work = work[1:]
		if seen[c] {
			continue
		}
		seen[c] = true

		matched := make(map[*registry.Binding]bool)
		for _, b := range e.reg.Dependents(c.tag) {
			d := b.Descriptor
			matched[b] = true
			if c.entity.IsZero() {
				e.values.ClearTag(d.Tag)
				cleared++
				work = append(work, change{tag: d.Tag})
				continue
			}
			for _, path := range d.DependencyPaths {
				for k, t := range path {
					if t != c.tag {
						continue
					}
					targets, err := e.walkBack(ctx, c.entity, path[:k])
					if err != nil {
						return fmt.Errorf("invalidate %s via %s: %w", e.reg.TagName(c.tag), d.Key(), err)
					}
					for _, target := range targets {
						e.values.Clear(target, d.Tag)
						cleared++
						work = append(work, change{entity: target, tag: d.Tag})
					}
				}
			}
		}
		for _, b := range e.reg.Bindings() {
			if matched[b] || !b.Handler.DependsOn(c.tag) {
				continue
			}
			e.values.ClearTag(b.Descriptor.Tag)
			cleared++
			work = append(work, change{tag: b.Descriptor.Tag})
		}
	}
	if cleared > 0 {
		e.logger.Debug("invalidated", "changes", len(seen), "cleared", cleared)
	}
	return nil
}

// walkBack returns the entities that reach start by following prefix
// forward, deduplicated and in discovery order.
func (e *Engine) walkBack(ctx context.Context, start ir.EntityRef, prefix []ir.Tag) ([]ir.EntityRef, error) {
	current := []ir.EntityRef{start}
	for j := len(prefix) - 1; j >= 0 && len(current) > 0; j-- {
		var next []ir.EntityRef
		seen := make(map[ir.EntityRef]bool)
		for _, x := range current {
			preds, err := e.predecessors(ctx, x, prefix[j])
			if err != nil {
				return nil, err
			}
			for _, p := range preds {
				if !seen[p] {
					seen[p] = true
					next = append(next, p)
				}
			}
		}
		current = next
	}
	return current, nil
}

// predecessors returns entities whose property tag refers to x: durable
// vectors, provisional attributes, placeholder ownership and cached
// computed reference values.
func (e *Engine) predecessors(ctx context.Context, x ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	var out []ir.EntityRef
	if x.IsReal() {
		if _, isRaw := e.reg.RawTag(tag); isRaw {
			refs, err := e.repo.Referrers(ctx, x, tag)
			if err != nil {
				return nil, err
			}
			out = append(out, refs...)
		}
	}
	if rec, ok := e.holders.Record(x); ok && rec.HasOwner() && rec.OwningField == tag {
		out = append(out, rec.OwningEntity)
	}
	out = append(out, e.holders.Referrers(x, tag)...)
	for _, s := range e.values.Holding(x) {
		if s.Tag == tag && !slices.Contains(out, s.Entity) {
			out = append(out, s.Entity)
		}
	}
	return out, nil
}
