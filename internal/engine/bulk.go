package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/lexcache/internal/cache"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// SetBulkMode turns bulk loading of property tag on or off for class.
//
// Enabling is lazy: the first Get of the property on any entity of class,
// or of a class derived from it, runs one bulk pass over every such entity. Disabling drops the
// bulk table, so re-enabling starts a new epoch. Handlers that cannot bulk
// load are accepted and keep loading per entity.
func (e *Engine) SetBulkMode(ctx context.Context, class ir.ClassName, tag ir.Tag, enabled bool) error {
	b, ok := e.reg.LookupTag(class, tag)
	if !ok {
		return newError(CodeUnregisteredProperty, ir.EntityRef{}, e.reg.TagName(tag),
			fmt.Sprintf("no property bound for class %s", class), nil)
	}
	key := cache.BulkKey{Tag: tag, Class: class}
	if e.bulk[key] == enabled {
		return nil
	}

	if aware, ok := b.Handler.(registry.BulkModeAware); ok {
		aware.SetBulkMode(class, enabled)
	}
	if enabled {
		e.bulk[key] = true
	} else {
		delete(e.bulk, key)
		e.values.DropBulk(key)
	}
	e.logger.Info("bulk mode", "property", b.Descriptor.Key(), "class", class, "enabled", enabled)
	return nil
}

// BulkEnabled reports whether bulk mode is on for (class, tag).
func (e *Engine) BulkEnabled(class ir.ClassName, tag ir.Tag) bool {
	return e.bulk[cache.BulkKey{Tag: tag, Class: class}]
}

// BulkEpoch returns the epoch of the current bulk table, or 0 if none is filled.
func (e *Engine) BulkEpoch(class ir.ClassName, tag ir.Tag) int64 {
	if t := e.values.Bulk(cache.BulkKey{Tag: tag, Class: class}); t != nil {
		return t.Epoch
	}
	return 0
}

// bulkKey finds the nearest class on the base chain of class with bulk
// mode enabled for tag.
func (e *Engine) bulkKey(class ir.ClassName, tag ir.Tag) (cache.BulkKey, bool) {
	for c := class; c != ""; c = e.reg.Base(c) {
		key := cache.BulkKey{Tag: tag, Class: c}
		if e.bulk[key] {
			return key, true
		}
	}
	return cache.BulkKey{}, false
}

func (e *Engine) bulkApplies(ent ir.EntityRef, class ir.ClassName, d ir.PropertyDescriptor) bool {
	if !ent.IsReal() || d.ComputeEveryTime || d.Kind.UsesSubKey() {
		return false
	}
	_, ok := e.bulkKey(class, d.Tag)
	return ok
}

// fromBulk serves ent from the bulk table, running the bulk pass first if
// the table is empty. ok is false when the handler cannot bulk load or the
// table has no entry for ent (it was invalidated since the pass).
func (e *Engine) fromBulk(ctx context.Context, ent ir.EntityRef, class ir.ClassName, b *registry.Binding) (ir.IRValue, bool, error) {
	loader, ok := b.Handler.(registry.BulkLoader)
	if !ok {
		return nil, false, nil
	}
	key, ok := e.bulkKey(class, b.Descriptor.Tag)
	if !ok {
		return nil, false, nil
	}
	table := e.values.Bulk(key)
	if table == nil {
		var err error
		table, err = e.bulkPass(ctx, key, b, loader)
		if err != nil {
			return nil, false, err
		}
	}
	v, ok := table.Values[ent]
	return v, ok, nil
}

// bulkMembers lists every entity of class and its derived classes, in id
// order.
func (e *Engine) bulkMembers(ctx context.Context, class ir.ClassName) ([]ir.EntityRef, error) {
	out, err := e.repo.EntitiesOf(ctx, class)
	if err != nil {
		return nil, err
	}
	derived := false
	for _, c := range e.reg.Classes() {
		if c == class || !e.reg.IsA(c, class) {
			continue
		}
		refs, err := e.repo.EntitiesOf(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
		derived = true
	}
	if derived {
		slices.SortFunc(out, func(a, b ir.EntityRef) int { return cmp.Compare(a.ID(), b.ID()) })
	}
	return out, nil
}

func (e *Engine) bulkPass(ctx context.Context, key cache.BulkKey, b *registry.Binding, loader registry.BulkLoader) (*cache.BulkTable, error) {
	d := b.Descriptor
	ctx, span := e.tracer.Start(ctx, "lexcache.bulk_load", trace.WithAttributes(
		attribute.String("lexcache.session", e.session),
		attribute.String("lexcache.property", d.Key()),
		attribute.String("lexcache.class", string(key.Class)),
	))
	defer span.End()

	entities, err := e.bulkMembers(ctx, key.Class)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list entities")
		return nil, fmt.Errorf("bulk load %s: %w", d.Key(), err)
	}
	values, err := loader.LoadAll(ctx, e, key.Class, entities)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load all")
		return nil, fmt.Errorf("bulk load %s: %w", d.Key(), err)
	}
	for ent, v := range values {
		checked, err := e.check(ctx, ent, d, v)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid value")
			return nil, err
		}
		values[ent] = checked
	}

	epoch := e.clock.Next()
	span.SetAttributes(
		attribute.Int("lexcache.entities", len(entities)),
		attribute.Int64("lexcache.epoch", epoch),
	)
	e.logger.Info("bulk pass", "property", d.Key(), "class", key.Class, "entities", len(entities), "epoch", epoch)
	return e.values.SetBulk(key, epoch, values), nil
}
