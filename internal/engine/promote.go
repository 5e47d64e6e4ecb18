package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/placeholder"
	"github.com/roach88/lexcache/internal/registry"
)

// RequestPromotion asks for req.Placeholder to become durable.
//
// Resolvers run in order: promotion listeners, then the handler of the
// placeholder's owning field (skipped when that handler is the requester),
// then, only for MustSucceedNow requests, the default owner promoter. On
// success every cached value and provisional attribute holding the
// placeholder is rewritten to the durable entity before this returns.
//
// An unhandled request that need not succeed returns the placeholder
// itself. A real reference is returned unchanged.
func (e *Engine) RequestPromotion(ctx context.Context, req ir.PromotionRequest) (ir.EntityRef, error) {
	if req.Placeholder.IsReal() {
		return req.Placeholder, nil
	}

	ctx, span := e.tracer.Start(ctx, "lexcache.promote", trace.WithAttributes(
		attribute.String("lexcache.session", e.session),
		attribute.String("lexcache.placeholder", req.Placeholder.String()),
		attribute.String("lexcache.property", e.reg.TagName(req.Tag)),
		attribute.Bool("lexcache.must_succeed_now", req.MustSucceedNow),
	))
	defer span.End()

	var chain []placeholder.Resolver
	if rec, ok := e.holders.Record(req.Placeholder); ok {
		chain = e.resolvers(ctx, req, rec)
	}

	real, err := e.holders.Promote(ctx, req, chain, func(from, to ir.EntityRef) error {
		return e.commitPromotion(ctx, from, to)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "promotion failed")
		switch {
		case errors.Is(err, placeholder.ErrUnknownPlaceholder):
			return ir.EntityRef{}, newError(CodeDanglingReference, req.Placeholder, "", "placeholder is not tracked", err)
		case errors.Is(err, placeholder.ErrPromotionFailed), errors.Is(err, placeholder.ErrOwnerDepth):
			e.logger.Warn("promotion failed", "placeholder", req.Placeholder, "error", err)
			return ir.EntityRef{}, newError(CodePromotionFailed, req.Placeholder, e.reg.TagName(req.Tag), "no durable entity produced", err)
		}
		// A failed commit leaves the promotion in place; real is set.
		return real, err
	}
	span.SetAttributes(attribute.String("lexcache.real", real.String()))
	return real, nil
}

func (e *Engine) resolvers(ctx context.Context, req ir.PromotionRequest, rec ir.PlaceholderRecord) []placeholder.Resolver {
	var chain []placeholder.Resolver
	for i, l := range e.listeners {
		chain = append(chain, e.adapt(fmt.Sprintf("listener[%d]", i), l))
	}

	owningField := rec.OwningField
	if owningField == ir.NoTag {
		owningField = req.OwningFieldHint
	}
	if rec.HasOwner() && owningField != ir.NoTag && owningField != req.Tag {
		if ownerClass, err := e.ClassOf(ctx, rec.OwningEntity); err == nil {
			if b, ok := e.reg.LookupTag(ownerClass, owningField); ok {
				if p, ok := b.Handler.(registry.Promoter); ok {
					chain = append(chain, e.adapt("owner:"+b.Descriptor.Key(), p))
				}
			}
		}
	}

	if req.MustSucceedNow {
		chain = append(chain, placeholder.Resolver{Name: "default", Resolve: e.defaultPromote})
	}
	return chain
}

func (e *Engine) adapt(name string, p registry.Promoter) placeholder.Resolver {
	return placeholder.Resolver{
		Name: name,
		Resolve: func(ctx context.Context, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
			return p.Promote(ctx, e, req, rec)
		},
	}
}

// defaultPromote creates the durable entity inside the owner's raw owning
// field and copies provisional raw attributes across. A placeholder owner
// is promoted first; an owner chain deeper than the configured bound fails
// before anything is created. It declines unowned placeholders and owning fields
// that are not durable.
func (e *Engine) defaultPromote(ctx context.Context, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
	if !rec.HasOwner() || rec.OwningField == ir.NoTag {
		return ir.EntityRef{}, false, nil
	}

	if _, err := e.holders.OwnerChain(rec.Ref()); err != nil {
		return ir.EntityRef{}, true, err
	}
	owner := rec.OwningEntity
	if owner.IsPlaceholder() {
		real, err := e.RequestPromotion(ctx, ir.PromotionRequest{
			Placeholder:    owner,
			Tag:            rec.OwningField,
			MustSucceedNow: true,
		})
		if err != nil {
			if IsPromotionFailed(err) {
				e.logger.Debug("default promotion declined: owner not promotable", "placeholder", rec.Ref(), "owner", owner)
				return ir.EntityRef{}, false, nil
			}
			return ir.EntityRef{}, true, err
		}
		owner = real
	}

	ownerClass, err := e.ClassOf(ctx, owner)
	if err != nil {
		return ir.EntityRef{}, true, err
	}
	raw, ok := e.rawFor(ownerClass, rec.OwningField)
	if !ok || !raw.Owning {
		return ir.EntityRef{}, false, nil
	}

	real, err := e.repo.CreateOwned(ctx, rec.Class, owner, raw.Tag)
	if err != nil {
		return ir.EntityRef{}, true, fmt.Errorf("create %s in %s.%s: %w", rec.Class, raw.Class, raw.Field, err)
	}
	if err := e.CopyProvisional(ctx, real, rec); err != nil {
		return ir.EntityRef{}, true, err
	}
	e.logger.Info("default promotion", "placeholder", rec.Ref(), "real", real, "owner", owner)
	return real, true, e.Invalidate(ctx, owner, raw.Tag)
}

// CopyProvisional writes the raw provisional attributes of rec onto the
// durable entity real. Attributes of computed properties and references
// to placeholders that are still provisional are skipped.
func (e *Engine) CopyProvisional(ctx context.Context, real ir.EntityRef, rec ir.PlaceholderRecord) error {
	for key, v := range rec.Attrs {
		raw, ok := e.rawFor(rec.Class, key.Tag)
		if !ok {
			continue
		}
		for _, r := range ir.Refs(v) {
			if resolved := e.resolve(r); resolved != r {
				v, _ = ir.ReplaceRef(v, r, resolved)
			} else if r.IsPlaceholder() {
				e.logger.Debug("provisional reference not copied", "placeholder", rec.Ref(), "ref", r)
				v = nil
				break
			}
		}
		if v == nil {
			continue
		}
		if err := e.writeRaw(ctx, real, raw, key.Sub, v); err != nil {
			return fmt.Errorf("copy provisional %s.%s: %w", raw.Class, raw.Field, err)
		}
	}
	return nil
}

// commitPromotion rewrites every cached reference to from and drops the
// slots keyed by the placeholder itself.
func (e *Engine) commitPromotion(ctx context.Context, from, to ir.EntityRef) error {
	holders := e.values.Holding(from)
	n := e.values.RewriteRef(from, to)
	e.values.ClearEntity(from)
	e.logger.Info("placeholder promoted", "placeholder", from, "real", to, "rewritten", n)

	// Values that held the placeholder now hold a different entity;
	// anything derived from them is stale.
	changes := make([]change, 0, len(holders))
	for _, s := range holders {
		changes = append(changes, change{entity: s.Entity, tag: s.Tag})
	}
	if len(changes) == 0 {
		return nil
	}
	return e.propagate(ctx, changes)
}
