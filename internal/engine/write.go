package engine

import (
	"context"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// Set writes property tag of ent.
//
// For a computed property the handler's Write runs first. The cached value
// is then replaced by v when the property is write-through, or re-derived
// through Load otherwise, and invalidation propagates as if tag were a raw
// property that changed. Raw properties are written to the repository (or
// to provisional attributes for placeholders) and propagate the same way.
func (e *Engine) Set(ctx context.Context, ent ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) error {
	ent = e.resolve(ent)
	class, err := e.ClassOf(ctx, ent)
	if err != nil {
		return err
	}
	if v == nil {
		v = ir.IRNull{}
	}

	b, ok := e.reg.LookupTag(class, tag)
	if !ok {
		raw, ok := e.rawFor(class, tag)
		if !ok {
			return newError(CodeUnregisteredProperty, ent, e.reg.TagName(tag),
				fmt.Sprintf("no property bound for class %s", class), nil)
		}
		if ent.IsPlaceholder() {
			return e.SetProvisional(ctx, ent, tag, sub, v)
		}
		if err := e.writeRaw(ctx, ent, raw, sub, v); err != nil {
			return err
		}
		return e.Invalidate(ctx, ent, tag)
	}

	d := b.Descriptor
	if !d.Writable {
		return newError(CodeNotWritable, ent, d.Key(), "property is read-only", nil)
	}
	if !d.Kind.UsesSubKey() {
		sub = ir.NoSubKey
	}
	if v, err = e.check(ctx, ent, d, v); err != nil {
		return err
	}

	w := b.Handler.(registry.Writer)
	if err := w.Write(ctx, e, ent, sub, v); err != nil {
		return fmt.Errorf("write %s of %s: %w", d.Key(), ent, err)
	}
	e.logger.Debug("property written", "entity", ent, "property", d.Key(), "sub", sub)

	e.values.Clear(ent, d.Tag)
	if d.WriteThrough {
		e.values.Put(ent, d.Tag, sub, v)
	} else if _, err := e.load(ctx, ent, class, b, sub); err != nil {
		return err
	}
	return e.Invalidate(ctx, ent, d.Tag)
}

// SetProvisional stores a provisional attribute on a placeholder. The value
// is copied onto the durable entity if the placeholder is promoted by the
// default promoter.
func (e *Engine) SetProvisional(ctx context.Context, ent ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) error {
	rec, ok := e.holders.Record(ent)
	if !ok {
		return newError(CodeDanglingReference, ent, e.reg.TagName(tag), "placeholder is not tracked", nil)
	}
	if v == nil {
		v = ir.IRNull{}
	}

	var kind ir.Kind
	var property string
	if raw, ok := e.rawFor(rec.Class, tag); ok {
		kind, property = raw.Kind, string(raw.Class)+"."+raw.Field
	} else if b, ok := e.reg.LookupTag(rec.Class, tag); ok {
		kind, property = b.Descriptor.Kind, b.Descriptor.Key()
	} else {
		return newError(CodeUnregisteredProperty, ent, e.reg.TagName(tag),
			fmt.Sprintf("no property bound for class %s", rec.Class), nil)
	}
	if !kind.UsesSubKey() {
		sub = ir.NoSubKey
	}
	if !kind.Accepts(v) {
		return newError(CodeTypeMismatch, ent, property, fmt.Sprintf("cannot store %T in %s property", v, kind), nil)
	}
	v, err := e.checkRefs(ctx, ent, property, v)
	if err != nil {
		return err
	}
	if err := e.holders.SetAttr(ent, tag, sub, v); err != nil {
		return fmt.Errorf("set provisional %s: %w", property, err)
	}
	return e.Invalidate(ctx, ent, tag)
}

// CreatePlaceholder issues a provisional entity of class. owner may be the
// zero ref for an unattached placeholder; otherwise it must be a live real
// entity or a tracked placeholder, and field names the owning property.
func (e *Engine) CreatePlaceholder(ctx context.Context, class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error) {
	if !e.reg.HasClass(class) {
		return ir.EntityRef{}, newError(CodeUnregisteredProperty, ir.EntityRef{}, "", fmt.Sprintf("unknown class %s", class), nil)
	}
	owner = e.resolve(owner)
	if !owner.IsZero() {
		ownerClass, err := e.ClassOf(ctx, owner)
		if err != nil {
			return ir.EntityRef{}, err
		}
		if _, isRaw := e.rawFor(ownerClass, field); !isRaw {
			if _, ok := e.reg.LookupTag(ownerClass, field); !ok && field != ir.NoTag {
				return ir.EntityRef{}, newError(CodeUnregisteredProperty, owner, e.reg.TagName(field),
					fmt.Sprintf("no owning property bound for class %s", ownerClass), nil)
			}
		}
	}

	p, err := e.holders.Create(class, owner, field)
	if err != nil {
		return ir.EntityRef{}, fmt.Errorf("create placeholder: %w", err)
	}
	e.logger.Debug("placeholder created", "placeholder", p, "class", class, "owner", owner, "field", e.reg.TagName(field))

	// Attaching to a raw owning vector changes what that vector reads as.
	if !owner.IsZero() {
		ownerClass, _ := e.ClassOf(ctx, owner)
		if _, isRaw := e.rawFor(ownerClass, field); isRaw {
			if err := e.Invalidate(ctx, owner, field); err != nil {
				return ir.EntityRef{}, err
			}
		}
	}
	return p, nil
}

// DeleteEntity removes ent and everything it owns. Their cached values are
// cleared rather than marked stale, slots holding references to them are
// cleared, and the owner's owning field propagates as changed.
func (e *Engine) DeleteEntity(ctx context.Context, ent ir.EntityRef) error {
	ent = e.resolve(ent)
	removed, err := e.ownedClosure(ctx, ent)
	if err != nil {
		return err
	}

	var changes []change
	if ent.IsPlaceholder() {
		rec, ok := e.holders.Record(ent)
		if !ok {
			return newError(CodeDanglingReference, ent, "", "placeholder is not tracked", nil)
		}
		if rec.HasOwner() {
			changes = append(changes, change{entity: rec.OwningEntity, tag: rec.OwningField})
		}
	} else {
		owner, field, owned, err := e.repo.OwnerOf(ctx, ent)
		if err != nil {
			return fmt.Errorf("delete %s: %w", ent, err)
		}
		if owned {
			changes = append(changes, change{entity: owner, tag: field})
		}
		// Durable vectors pointing at removed entities lose those entries.
		for _, r := range removed {
			if !r.IsReal() {
				continue
			}
			for _, raw := range e.reg.RawReferenceProperties() {
				referrers, err := e.repo.Referrers(ctx, r, raw.Tag)
				if err != nil {
					return fmt.Errorf("delete %s: %w", ent, err)
				}
				for _, x := range referrers {
					changes = append(changes, change{entity: x, tag: raw.Tag})
				}
			}
		}
		if err := e.repo.DeleteEntity(ctx, ent); err != nil {
			return fmt.Errorf("delete %s: %w", ent, err)
		}
	}

	gone := make(map[ir.EntityRef]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}
	for _, r := range removed {
		if r.IsPlaceholder() {
			_ = e.holders.Remove(r)
		}
		e.values.ClearEntity(r)
	}
	for _, r := range removed {
		for _, s := range e.values.Holding(r) {
			if !gone[s.Entity] {
				e.values.Clear(s.Entity, s.Tag)
				changes = append(changes, change{entity: s.Entity, tag: s.Tag})
			}
		}
	}

	e.logger.Info("entity deleted", "entity", ent, "removed", len(removed))
	return e.propagate(ctx, changes)
}

// ownedClosure returns ent plus everything it owns, durable and
// provisional, depth first.
func (e *Engine) ownedClosure(ctx context.Context, ent ir.EntityRef) ([]ir.EntityRef, error) {
	var out []ir.EntityRef
	seen := make(map[ir.EntityRef]bool)
	var walk func(x ir.EntityRef, depth int) error
	walk = func(x ir.EntityRef, depth int) error {
		if seen[x] {
			return nil
		}
		if depth > e.maxOwnerDepth {
			return fmt.Errorf("delete %s: ownership deeper than %d", ent, e.maxOwnerDepth)
		}
		seen[x] = true
		out = append(out, x)
		if x.IsReal() {
			class, err := e.ClassOf(ctx, x)
			if err != nil {
				return err
			}
			for _, raw := range e.reg.RawProperties(class) {
				if !raw.Owning {
					continue
				}
				children, err := e.repo.ReadVector(ctx, x, raw.Tag)
				if err != nil {
					return fmt.Errorf("delete %s: %w", ent, err)
				}
				for _, c := range children {
					if err := walk(c, depth+1); err != nil {
						return err
					}
				}
			}
		}
		for _, c := range e.holders.Owned(x, ir.NoTag) {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(ent, 0); err != nil {
		return nil, err
	}
	return out, nil
}
