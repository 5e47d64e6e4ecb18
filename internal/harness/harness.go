package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/lexcache/internal/engine"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/model"
	"github.com/roach88/lexcache/internal/registry"
	"github.com/roach88/lexcache/internal/store"
)

// DefaultSession is the session id used when a scenario sets none.
const DefaultSession = "test-session"

// Harness is the test execution engine.
// It runs one scenario against a fresh store and engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	reg    *registry.Registry
	calls  *callCounter
	spans  *tracetest.SpanRecorder

	names  map[string]ir.EntityRef
	labels map[ir.EntityRef]string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and engine over the embedded model
// 2. Create entities, then write their values
// 3. Execute steps, checking expect and error clauses
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	schema, err := model.Schema()
	if err != nil {
		return nil, err
	}
	reg, err := model.Build(schema)
	if err != nil {
		return nil, err
	}

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}
	h := &Harness{
		store:  st,
		reg:    reg,
		calls:  newCallCounter(),
		spans:  tracetest.NewSpanRecorder(),
		names:  make(map[string]ir.EntityRef),
		labels: make(map[ir.EntityRef]string),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h.engine = engine.New(st, reg,
		engine.WithLogger(slog.New(h.calls)),
		engine.WithTracerProvider(tp),
		engine.WithSessionIDs(engine.NewFixedGenerator(session)),
	)

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Entities); err != nil {
		return nil, fmt.Errorf("failed to seed entities: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.step(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
	}

	maps.Copy(result.Calls, h.calls.loads)
	maps.Copy(result.BulkPasses, h.calls.bulk)
	for _, s := range h.spans.Ended() {
		result.Spans = append(result.Spans, s.Name())
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

// seed creates every entity, then writes values so references may point
// at entities declared later.
func (h *Harness) seed(ctx context.Context, entities []EntitySpec) error {
	for _, e := range entities {
		var ref ir.EntityRef
		var err error
		if e.Owner != "" {
			owner := h.names[e.Owner]
			tag, _, _, ferr := h.property(ctx, owner, e.Field)
			if ferr != nil {
				return fmt.Errorf("%s: %w", e.Name, ferr)
			}
			ref, err = h.store.CreateOwned(ctx, ir.ClassName(e.Class), owner, tag)
		} else {
			ref, err = h.store.CreateEntity(ctx, ir.ClassName(e.Class))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		h.bind(e.Name, ref)
	}
	for _, e := range entities {
		for _, field := range slices.Sorted(maps.Keys(e.Values)) {
			if err := h.writeRaw(ctx, h.names[e.Name], field, "", e.Values[field]); err != nil {
				return fmt.Errorf("%s.%s: %w", e.Name, field, err)
			}
		}
	}
	return nil
}

func (h *Harness) step(ctx context.Context, i int, s Step, result *Result) error {
	ev := TraceEvent{Op: s.Op, Entity: s.Entity, Field: s.Field, Sub: s.Sub}
	sub := ir.SubKey(s.Sub)

	var (
		got   ir.IRValue
		kind  ir.Kind
		opErr error
	)
	switch s.Op {
	case OpGet, OpSet, OpInvalidate, OpClear:
		ref, err := h.ref(s.Entity)
		if err != nil {
			return err
		}
		tag, k, _, err := h.property(ctx, ref, s.Field)
		if err != nil {
			// A deleted entity has no class; let the step expect that.
			if s.Error == "" {
				return err
			}
			opErr = err
			break
		}
		kind = k
		switch s.Op {
		case OpGet:
			got, opErr = h.engine.Get(ctx, ref, tag, sub)
			if opErr == nil {
				if err := h.bindAll(s.Bind, got); err != nil {
					return err
				}
			}
		case OpSet:
			if got, err = h.value(kind, s.Value); err != nil {
				return err
			}
			opErr = h.engine.Set(ctx, ref, tag, sub, got)
		case OpInvalidate:
			opErr = h.engine.Invalidate(ctx, ref, tag)
		case OpClear:
			h.engine.Clear(ref, tag)
		}

	case OpWrite:
		ref, err := h.ref(s.Entity)
		if err != nil {
			return err
		}
		if err := h.writeRaw(ctx, ref, s.Field, sub, s.Value); err != nil {
			return err
		}
		_, kind, _, _ = h.property(ctx, ref, s.Field)
		if kind.UsesSubKey() && s.Sub == "" {
			got = nil
		} else if got, err = h.value(kind, s.Value); err != nil {
			return err
		}

	case OpReset:
		h.engine.Reset()

	case OpBulk:
		class := ir.ClassName(s.Class)
		tag, ok := h.reg.FieldTag(class, s.Field)
		if !ok {
			return fmt.Errorf("%s has no field %q", class, s.Field)
		}
		kind, got = ir.KindBoolean, ir.IRBool(*s.Enabled)
		ev.Entity = s.Class
		opErr = h.engine.SetBulkMode(ctx, class, tag, *s.Enabled)

	case OpPlaceholder:
		var owner ir.EntityRef
		var field ir.Tag
		if s.Owner != "" {
			var err error
			if owner, err = h.ref(s.Owner); err != nil {
				return err
			}
			if field, _, _, err = h.property(ctx, owner, s.Field); err != nil {
				return err
			}
		}
		kind, ev.Entity = ir.KindRefAtomic, s.As
		var p ir.EntityRef
		p, opErr = h.engine.CreatePlaceholder(ctx, ir.ClassName(s.Class), owner, field)
		if opErr == nil {
			h.bind(s.As, p)
			got = ir.IRRef(p)
			opErr = h.provisional(ctx, p, s.Values)
		}

	case OpPromote:
		ref, err := h.ref(s.Entity)
		if err != nil {
			return err
		}
		req := ir.PromotionRequest{Placeholder: ref, MustSucceedNow: s.MustSucceed}
		if s.Field != "" {
			if req.Tag, _, _, err = h.property(ctx, ref, s.Field); err != nil {
				return err
			}
		}
		kind = ir.KindRefAtomic
		var real ir.EntityRef
		real, opErr = h.engine.RequestPromotion(ctx, req)
		if opErr == nil {
			if s.As != "" {
				h.bind(s.As, real)
			}
			got = ir.IRRef(real)
		}

	case OpDelete:
		ref, err := h.ref(s.Entity)
		if err != nil {
			return err
		}
		opErr = h.engine.DeleteEntity(ctx, ref)

	case OpCollect:
		working := make([]ir.EntityRef, 0, len(s.Working))
		for _, name := range s.Working {
			ref, err := h.ref(name)
			if err != nil {
				return err
			}
			working = append(working, ref)
		}
		kind = ir.KindScalar
		var removed []ir.EntityRef
		removed, opErr = h.engine.CollectPlaceholders(ctx, working)
		got = ir.IRInt(len(removed))

	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}

	if got != nil && opErr == nil {
		ev.Value = h.render(got)
	}
	ev.Error = errorCode(opErr)
	result.AddTrace(ev)

	switch {
	case s.Error != "" && ev.Error != s.Error:
		actual := ev.Error
		if actual == "" {
			actual = "no error"
		}
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", i, s.Op, s.Error, actual))
	case s.Error == "" && opErr != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, s.Op, opErr))
	case opErr == nil && s.Expect != nil:
		want, err := h.value(kind, s.Expect)
		if err != nil {
			return fmt.Errorf("expect: %w", err)
		}
		if !equalValues(want, got) {
			result.AddError(fmt.Sprintf("steps[%d] %s %s.%s: expected %v, got %v",
				i, s.Op, s.Entity, s.Field, h.render(want), h.render(got)))
		}
	}
	return nil
}

// provisional stores placeholder values, in field order.
func (h *Harness) provisional(ctx context.Context, p ir.EntityRef, values map[string]any) error {
	for _, field := range slices.Sorted(maps.Keys(values)) {
		tag, kind, _, err := h.property(ctx, p, field)
		if err != nil {
			return err
		}
		if alts, ok := values[field].(map[string]any); ok && kind.UsesSubKey() {
			for _, ws := range slices.Sorted(maps.Keys(alts)) {
				v, err := h.value(kind, alts[ws])
				if err != nil {
					return err
				}
				if err := h.engine.SetProvisional(ctx, p, tag, ir.SubKey(ws), v); err != nil {
					return err
				}
			}
			continue
		}
		v, err := h.value(kind, values[field])
		if err != nil {
			return err
		}
		if err := h.engine.SetProvisional(ctx, p, tag, ir.NoSubKey, v); err != nil {
			return err
		}
	}
	return nil
}

// writeRaw writes a raw field straight to the repository. The engine is
// not told.
func (h *Harness) writeRaw(ctx context.Context, ref ir.EntityRef, field string, sub ir.SubKey, raw any) error {
	tag, kind, isRaw, err := h.property(ctx, ref, field)
	if err != nil {
		return err
	}
	if !isRaw {
		return fmt.Errorf("%s is computed and cannot be written directly", field)
	}
	if alts, ok := raw.(map[string]any); ok && kind.UsesSubKey() {
		for _, ws := range slices.Sorted(maps.Keys(alts)) {
			if err := h.writeRaw(ctx, ref, field, ir.SubKey(ws), alts[ws]); err != nil {
				return err
			}
		}
		return nil
	}

	v, err := h.value(kind, raw)
	if err != nil {
		return err
	}
	switch kind {
	case ir.KindScalar, ir.KindBoolean:
		return h.store.WriteScalar(ctx, ref, tag, v)
	case ir.KindText, ir.KindMultiText:
		s, _ := v.(ir.IRString)
		return h.store.WriteText(ctx, ref, tag, sub, string(s))
	case ir.KindRefAtomic:
		var refs []ir.EntityRef
		if r, ok := v.(ir.IRRef); ok {
			refs = []ir.EntityRef{r.Ref()}
		}
		return h.store.WriteVector(ctx, ref, tag, refs)
	default:
		refs, _ := v.(ir.IRRefs)
		return h.store.WriteVector(ctx, ref, tag, refs)
	}
}

// property resolves field on ref's class to its tag and kind.
func (h *Harness) property(ctx context.Context, ref ir.EntityRef, field string) (ir.Tag, ir.Kind, bool, error) {
	class, err := h.engine.ClassOf(ctx, ref)
	if err != nil {
		return ir.NoTag, ir.KindInvalid, false, err
	}
	tag, ok := h.reg.FieldTag(class, field)
	if !ok {
		return ir.NoTag, ir.KindInvalid, false, fmt.Errorf("%s has no field %q", class, field)
	}
	if b, ok := h.reg.LookupTag(class, tag); ok {
		return tag, b.Descriptor.Kind, false, nil
	}
	raw, _ := h.reg.RawTag(tag)
	return tag, raw.Kind, true, nil
}

func (h *Harness) ref(name string) (ir.EntityRef, error) {
	ref, ok := h.names[name]
	if !ok {
		return ir.EntityRef{}, fmt.Errorf("unknown entity %q", name)
	}
	return ref, nil
}

func (h *Harness) bind(name string, ref ir.EntityRef) {
	h.names[name] = ref
	if _, ok := h.labels[ref]; !ok {
		h.labels[ref] = name
	}
}

// bindAll names the references in v, in order.
func (h *Harness) bindAll(names []string, v ir.IRValue) error {
	if len(names) == 0 {
		return nil
	}
	refs := ir.Refs(v)
	if len(refs) < len(names) {
		return fmt.Errorf("bind: %d names for %d references", len(names), len(refs))
	}
	for i, name := range names {
		h.bind(name, refs[i])
	}
	return nil
}

// value converts a YAML value to an IRValue of kind. References are
// entity names.
func (h *Harness) value(kind ir.Kind, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}
	switch kind {
	case ir.KindScalar:
		if n, ok := raw.(int); ok {
			return ir.IRInt(n), nil
		}
	case ir.KindBoolean:
		if b, ok := raw.(bool); ok {
			return ir.IRBool(b), nil
		}
	case ir.KindText, ir.KindMultiText:
		if s, ok := raw.(string); ok {
			return ir.IRString(s), nil
		}
	case ir.KindRefAtomic:
		if name, ok := raw.(string); ok {
			ref, err := h.ref(name)
			if err != nil {
				return nil, err
			}
			return ir.IRRef(ref), nil
		}
	case ir.KindRefCollection, ir.KindRefSequence:
		if list, ok := raw.([]any); ok {
			refs := make(ir.IRRefs, 0, len(list))
			for _, item := range list {
				name, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("reference list holds %T, want entity names", item)
				}
				ref, err := h.ref(name)
				if err != nil {
					return nil, err
				}
				refs = append(refs, ref)
			}
			return refs, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as a %s value", raw, kind)
}

// render turns v into plain values with references shown by name.
func (h *Harness) render(v ir.IRValue) any {
	switch x := v.(type) {
	case nil:
		return nil
	case ir.IRNull:
		return x
	case ir.IRString:
		return string(x)
	case ir.IRInt:
		return int64(x)
	case ir.IRBool:
		return bool(x)
	case ir.IRRef:
		return h.label(x.Ref())
	case ir.IRRefs:
		out := make([]any, len(x))
		for i, r := range x {
			out[i] = h.label(r)
		}
		return out
	}
	return fmt.Sprintf("%v", v)
}

func (h *Harness) label(ref ir.EntityRef) string {
	if name, ok := h.labels[ref]; ok {
		return name
	}
	return ref.String()
}

var valueOptions = []cmp.Option{
	cmp.Comparer(func(a, b ir.EntityRef) bool { return a == b }),
	cmp.Comparer(func(a, b ir.IRRef) bool { return a == b }),
	cmpopts.EquateEmpty(),
}

func equalValues(want, got ir.IRValue) bool {
	return cmp.Equal(want, got, valueOptions...)
}

// errorCode names err for traces: the engine code, NOT_FOUND for missing
// entities, ERROR for anything else.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return string(engErr.Code)
	}
	if errors.Is(err, store.ErrNotFound) {
		return "NOT_FOUND"
	}
	return "ERROR"
}

// callCounter is the engine's log handler. It counts handler loads and
// bulk passes per property from the engine's "load" and "bulk pass"
// records and discards everything else.
type callCounter struct {
	loads map[string]int
	bulk  map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{loads: make(map[string]int), bulk: make(map[string]int)}
}

func (c *callCounter) Enabled(context.Context, slog.Level) bool { return true }

func (c *callCounter) Handle(_ context.Context, r slog.Record) error {
	var counts map[string]int
	switch r.Message {
	case "load":
		counts = c.loads
	case "bulk pass":
		counts = c.bulk
	default:
		return nil
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "property" {
			counts[a.Value.String()]++
			return false
		}
		return true
	})
	return nil
}

func (c *callCounter) WithAttrs([]slog.Attr) slog.Handler { return c }

func (c *callCounter) WithGroup(string) slog.Handler { return c }
