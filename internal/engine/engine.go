package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/lexcache/internal/cache"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/placeholder"
	"github.com/roach88/lexcache/internal/registry"
	"github.com/roach88/lexcache/internal/store"
)

const tracerName = "github.com/roach88/lexcache/internal/engine"

var _ registry.Env = (*Engine)(nil)

// Engine serves computed properties for one session.
//
// It owns the value store and the placeholder table; every mutation of
// either goes through Get, Set, Invalidate, RequestPromotion and the other
// entry points below.
//
// Thread-safety model: none. One goroutine drives one engine, and blocking
// repository calls are awaited synchronously from it.
type Engine struct {
	repo    store.Repository
	reg     *registry.Registry
	values  *cache.Store
	holders *placeholder.Manager
	clock   *Clock
	guard   *LoadGuard

	// bulk records which (tag, class) pairs have bulk mode enabled. The
	// table itself lives in values and is filled lazily.
	bulk map[cache.BulkKey]bool

	listeners []registry.Promoter

	session       string
	sessionGen    SessionIDGenerator
	maxOwnerDepth int
	maxLoadDepth  int
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracerProvider sets where spans go. Default: the global provider,
// which is a no-op unless the process installs one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// WithSessionIDs sets the session id generator. Default: UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(e *Engine) {
		e.sessionGen = g
	}
}

// WithMaxOwnerDepth bounds ownership walks and nested promotions.
// Default: placeholder.DefaultMaxOwnerDepth.
func WithMaxOwnerDepth(n int) Option {
	return func(e *Engine) {
		e.maxOwnerDepth = n
	}
}

// WithMaxLoadDepth bounds nested handler loads. Default: DefaultMaxLoadDepth.
func WithMaxLoadDepth(n int) Option {
	return func(e *Engine) {
		e.maxLoadDepth = n
	}
}

// WithClock sets the logical clock used for bulk epochs.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine over repo using the classes, raw properties and
// bindings already defined in reg. Further properties may be added with
// Register.
func New(repo store.Repository, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		repo:          repo,
		reg:           reg,
		values:        cache.New(),
		clock:         NewClock(),
		bulk:          make(map[cache.BulkKey]bool),
		sessionGen:    UUIDv7Generator{},
		maxOwnerDepth: placeholder.DefaultMaxOwnerDepth,
		maxLoadDepth:  DefaultMaxLoadDepth,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.holders = placeholder.NewManager(e.maxOwnerDepth)
	e.guard = NewLoadGuard(e.maxLoadDepth)
	e.session = e.sessionGen.Generate()
	e.logger = e.logger.With("session", e.session)
	return e
}

// Session returns the session id stamped on logs and spans.
func (e *Engine) Session() string {
	return e.session
}

// Registry returns the registry the engine dispatches through.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Repo returns the durable repository.
func (e *Engine) Repo() store.Repository {
	return e.repo
}

// Register binds a computed property at runtime.
func (e *Engine) Register(d ir.PropertyDescriptor, h registry.Handler) error {
	if err := e.reg.Register(d, h); err != nil {
		if errors.Is(err, registry.ErrDuplicateRegistration) {
			return newError(CodeDuplicateRegistration, ir.EntityRef{}, d.Key(), "property already bound", err)
		}
		return err
	}
	e.logger.Debug("property registered", "property", d.Key(), "tag", d.Tag)
	return nil
}

// AddPromotionListener appends a listener that gets first refusal on every
// promotion request. Listeners run in the order they were added.
func (e *Engine) AddPromotionListener(l registry.Promoter) {
	e.listeners = append(e.listeners, l)
}

// resolve maps a promoted placeholder to its durable entity.
func (e *Engine) resolve(ent ir.EntityRef) ir.EntityRef {
	if real, ok := e.holders.Retired(ent); ok {
		return real
	}
	return ent
}

// ClassOf returns the class of a real entity or a tracked placeholder.
func (e *Engine) ClassOf(ctx context.Context, ent ir.EntityRef) (ir.ClassName, error) {
	ent = e.resolve(ent)
	if ent.IsPlaceholder() {
		rec, ok := e.holders.Record(ent)
		if !ok {
			return "", newError(CodeDanglingReference, ent, "", "placeholder is not tracked", nil)
		}
		return rec.Class, nil
	}
	class, err := e.repo.ClassOf(ctx, ent)
	if err != nil {
		return "", fmt.Errorf("class of %s: %w", ent, err)
	}
	return class, nil
}

// Placeholder returns a copy of the record for a live placeholder.
func (e *Engine) Placeholder(ent ir.EntityRef) (ir.PlaceholderRecord, bool) {
	return e.holders.Record(ent)
}

// Placeholders returns every live placeholder record ordered by id.
func (e *Engine) Placeholders() []ir.PlaceholderRecord {
	return e.holders.Records()
}

// Retired returns the durable entity a promoted placeholder became.
func (e *Engine) Retired(ent ir.EntityRef) (ir.EntityRef, bool) {
	return e.holders.Retired(ent)
}

// Get returns property tag of ent.
//
// Computed properties are served from a populated slot unless flagged
// computeEveryTime; otherwise the bound handler computes the value (through
// the bulk table when bulk mode is on). Raw properties read through to the
// repository, or to provisional attributes for placeholders. Anything else
// is an unregistered property.
func (e *Engine) Get(ctx context.Context, ent ir.EntityRef, tag ir.Tag, sub ir.SubKey) (ir.IRValue, error) {
	ent = e.resolve(ent)
	class, err := e.ClassOf(ctx, ent)
	if err != nil {
		return nil, err
	}
	if b, ok := e.reg.LookupTag(class, tag); ok {
		return e.load(ctx, ent, class, b, sub)
	}
	if raw, ok := e.rawFor(class, tag); ok {
		return e.readRaw(ctx, ent, raw, sub)
	}
	return nil, newError(CodeUnregisteredProperty, ent, e.reg.TagName(tag),
		fmt.Sprintf("no property bound for class %s", class), nil)
}

// GetField resolves field by name on ent's class and calls Get.
func (e *Engine) GetField(ctx context.Context, ent ir.EntityRef, field string, sub ir.SubKey) (ir.IRValue, error) {
	class, err := e.ClassOf(ctx, ent)
	if err != nil {
		return nil, err
	}
	tag, ok := e.reg.FieldTag(class, field)
	if !ok {
		return nil, newError(CodeUnregisteredProperty, ent, string(class)+"."+field, "unknown field", nil)
	}
	return e.Get(ctx, ent, tag, sub)
}

func (e *Engine) load(ctx context.Context, ent ir.EntityRef, class ir.ClassName, b *registry.Binding, sub ir.SubKey) (ir.IRValue, error) {
	d := b.Descriptor
	if !d.Kind.UsesSubKey() {
		sub = ir.NoSubKey
	}
	if !d.ComputeEveryTime {
		if v, ok := e.values.Lookup(ent, d.Tag, sub); ok {
			return v, nil
		}
	}

	key := slotKey{entity: ent, tag: d.Tag, sub: sub}
	if err := e.guard.Enter(key); err != nil {
		return nil, newError(CodeLoadCycle, ent, d.Key(), "re-entrant load", err)
	}
	defer e.guard.Leave(key)

	if e.bulkApplies(ent, class, d) {
		v, ok, err := e.fromBulk(ctx, ent, class, b)
		if err != nil {
			return nil, err
		}
		if ok {
			e.values.Put(ent, d.Tag, sub, v)
			return v, nil
		}
	}

	e.logger.Debug("load", "entity", ent, "property", d.Key(), "sub", sub)
	v, err := b.Handler.Load(ctx, e, ent, sub)
	if err != nil {
		return nil, fmt.Errorf("load %s of %s: %w", d.Key(), ent, err)
	}
	v, err = e.check(ctx, ent, d, v)
	if err != nil {
		return nil, err
	}

	// A handler may have promoted ent while loading; the value now
	// belongs to the durable entity.
	if real, ok := e.holders.Retired(ent); ok {
		ent = real
	}
	e.values.Put(ent, d.Tag, sub, v)
	return v, nil
}

// check enforces the descriptor's kind and that every reference is live.
// References to promoted placeholders are rewritten to their durable ids.
func (e *Engine) check(ctx context.Context, ent ir.EntityRef, d ir.PropertyDescriptor, v ir.IRValue) (ir.IRValue, error) {
	if v == nil {
		v = ir.IRNull{}
	}
	if !d.Kind.Accepts(v) {
		return nil, newError(CodeTypeMismatch, ent, d.Key(),
			fmt.Sprintf("handler returned %T for %s property", v, d.Kind), nil)
	}
	return e.checkRefs(ctx, ent, d.Key(), v)
}

func (e *Engine) checkRefs(ctx context.Context, ent ir.EntityRef, property string, v ir.IRValue) (ir.IRValue, error) {
	for _, r := range ir.Refs(v) {
		if r.IsPlaceholder() {
			if e.holders.IsTracked(r) {
				continue
			}
			if real, ok := e.holders.Retired(r); ok {
				v, _ = ir.ReplaceRef(v, r, real)
				continue
			}
			return nil, newError(CodeDanglingReference, ent, property,
				fmt.Sprintf("%s is not a tracked placeholder", r), nil)
		}
		ok, err := e.repo.Exists(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("check reference %s: %w", r, err)
		}
		if !ok {
			return nil, newError(CodeDanglingReference, ent, property,
				fmt.Sprintf("%s does not exist", r), nil)
		}
	}
	return v, nil
}

// Clear drops the cached value of (ent, tag) across all sub keys without
// propagating. The next Get recomputes it.
func (e *Engine) Clear(ent ir.EntityRef, tag ir.Tag) {
	e.values.Clear(e.resolve(ent), tag)
}

// Reset drops every cached value and bulk table. Bulk modes stay enabled
// and refill in a new epoch on next access; placeholders are kept.
func (e *Engine) Reset() {
	e.values.Reset()
	e.logger.Info("cache reset")
}

// Cached returns the slot value of (ent, tag, sub) without computing it.
func (e *Engine) Cached(ent ir.EntityRef, tag ir.Tag, sub ir.SubKey) (ir.IRValue, bool) {
	return e.values.Lookup(e.resolve(ent), tag, sub)
}

// HoldsRef reports whether any cached value, bulk entry or provisional
// attribute still holds target.
func (e *Engine) HoldsRef(target ir.EntityRef) bool {
	if e.values.ContainsRef(target) {
		return true
	}
	for _, rec := range e.holders.Records() {
		if rec.OwningEntity == target {
			return true
		}
		for _, v := range rec.Attrs {
			if ir.ContainsRef(v, target) {
				return true
			}
		}
	}
	return false
}
