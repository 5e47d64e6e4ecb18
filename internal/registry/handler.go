package registry

import (
	"context"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/store"
)

// Env is what a handler sees of the engine while it computes a value.
//
// Get reads through the engine, so a handler that derives its value from
// another computed property shares that property's cache. Raw properties
// read through Get come from the repository for real entities and from
// provisional attributes for placeholders.
//
// Set on a raw property writes it and propagates invalidation; handlers
// that write raw data must use Set (or call Invalidate after writing to
// Repo directly) so dependents are cleared.
type Env interface {
	Repo() store.Repository
	Get(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (ir.IRValue, error)
	Set(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) error
	Invalidate(ctx context.Context, e ir.EntityRef, tag ir.Tag) error
	ClassOf(ctx context.Context, e ir.EntityRef) (ir.ClassName, error)
	Placeholder(e ir.EntityRef) (ir.PlaceholderRecord, bool)
	CreatePlaceholder(ctx context.Context, class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error)
	SetProvisional(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) error
	RequestPromotion(ctx context.Context, req ir.PromotionRequest) (ir.EntityRef, error)
}

// Handler computes one computed property.
//
// Load must be referentially consistent for a real entity at a fixed store
// version and must not have side effects beyond what Env allows. For a
// placeholder it may compute from provisional state or request promotion.
type Handler interface {
	Load(ctx context.Context, env Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error)

	// DependsOn reports whether a change to changed could affect this
	// property's value somewhere. Dependency paths describe where; a true
	// result with no matching path clears the property everywhere.
	DependsOn(changed ir.Tag) bool
}

// Writer is implemented by handlers of writable properties.
type Writer interface {
	Write(ctx context.Context, env Env, e ir.EntityRef, sub ir.SubKey, v ir.IRValue) error
}

// BulkLoader is implemented by handlers that can compute a property for a
// whole class in one pass. The returned map may omit entities; omitted
// entities fall back to Load.
type BulkLoader interface {
	LoadAll(ctx context.Context, env Env, class ir.ClassName, entities []ir.EntityRef) (map[ir.EntityRef]ir.IRValue, error)
}

// BulkModeAware is notified when bulk mode is toggled for its property.
type BulkModeAware interface {
	SetBulkMode(class ir.ClassName, enabled bool)
}

// Promoter is implemented by handlers (and promotion listeners) that can
// turn a placeholder into a durable entity. handled is false when the
// promoter declines the request.
type Promoter interface {
	Promote(ctx context.Context, env Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (real ir.EntityRef, handled bool, err error)
}

// PromoterFunc adapts a function to the Promoter interface.
type PromoterFunc func(ctx context.Context, env Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error)

// Promote calls f.
func (f PromoterFunc) Promote(ctx context.Context, env Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
	return f(ctx, env, req, rec)
}
