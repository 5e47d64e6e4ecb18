package engine

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
	"github.com/roach88/lexcache/internal/store"
)

const (
	tagContents    ir.Tag = 1
	tagOccurrences ir.Tag = 2
	tagForm        ir.Tag = 3
	tagSenses      ir.Tag = 4
	tagComponents  ir.Tag = 5
	tagGloss       ir.Tag = 6

	tagWordCount ir.Tag = 100
	tagGlosses   ir.Tag = 101
	tagBackRefs  ir.Tag = 102
	tagPosition  ir.Tag = 103
	tagWordforms ir.Tag = 104
	tagBaseline  ir.Tag = 105
)

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *store.Memory
	reg  *registry.Registry
	eng  *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.DefineClass("CmObject", ""))
	for _, c := range []ir.ClassName{"Paragraph", "WordOccurrence", "LexEntry", "LexSense"} {
		require.NoError(t, reg.DefineClass(c, "CmObject"))
	}
	for _, raw := range []ir.RawProperty{
		{Class: "Paragraph", Field: "Contents", Tag: tagContents, Kind: ir.KindText},
		{Class: "Paragraph", Field: "Occurrences", Tag: tagOccurrences, Kind: ir.KindRefSequence, Owning: true, DestinationClass: "WordOccurrence"},
		{Class: "WordOccurrence", Field: "Form", Tag: tagForm, Kind: ir.KindText},
		{Class: "LexEntry", Field: "Senses", Tag: tagSenses, Kind: ir.KindRefSequence, Owning: true, DestinationClass: "LexSense"},
		{Class: "LexEntry", Field: "Components", Tag: tagComponents, Kind: ir.KindRefCollection, DestinationClass: "LexEntry"},
		{Class: "LexSense", Field: "Gloss", Tag: tagGloss, Kind: ir.KindMultiText},
	} {
		require.NoError(t, reg.DefineRaw(raw))
	}

	repo := store.NewMemory()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSessionIDs(NewFixedGenerator("test-session")),
	}
	eng := New(repo, reg, append(base, opts...)...)
	return &fixture{t: t, ctx: t.Context(), repo: repo, reg: reg, eng: eng}
}

func (f *fixture) register(d ir.PropertyDescriptor, h registry.Handler) {
	f.t.Helper()
	require.NoError(f.t, f.eng.Register(d, h))
}

func (f *fixture) create(class ir.ClassName) ir.EntityRef {
	f.t.Helper()
	ref, err := f.repo.CreateEntity(f.ctx, class)
	require.NoError(f.t, err)
	return ref
}

func (f *fixture) createOwned(class ir.ClassName, owner ir.EntityRef, field ir.Tag) ir.EntityRef {
	f.t.Helper()
	ref, err := f.repo.CreateOwned(f.ctx, class, owner, field)
	require.NoError(f.t, err)
	return ref
}

func (f *fixture) set(e ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) {
	f.t.Helper()
	require.NoError(f.t, f.eng.Set(f.ctx, e, tag, sub, v))
}

func (f *fixture) get(e ir.EntityRef, tag ir.Tag, sub ir.SubKey) ir.IRValue {
	f.t.Helper()
	v, err := f.eng.Get(f.ctx, e, tag, sub)
	require.NoError(f.t, err)
	return v
}

// funcHandler is a counting handler built from a load function.
type funcHandler struct {
	load  func(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error)
	deps  []ir.Tag
	loads int
}

func (h *funcHandler) Load(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error) {
	h.loads++
	return h.load(ctx, env, e, sub)
}

func (h *funcHandler) DependsOn(t ir.Tag) bool {
	return slices.Contains(h.deps, t)
}

func wordCountHandler() *funcHandler {
	return &funcHandler{load: func(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
		v, err := env.Get(ctx, e, tagContents, ir.NoSubKey)
		if err != nil {
			return nil, err
		}
		s, _ := v.(ir.IRString)
		return ir.IRInt(len(strings.Fields(string(s)))), nil
	}}
}

func wordCountDescriptor() ir.PropertyDescriptor {
	return ir.PropertyDescriptor{
		Class: "Paragraph", Field: "WordCount", Tag: tagWordCount, Kind: ir.KindScalar,
		DependencyPaths: [][]ir.Tag{{tagContents}},
	}
}

func glossesHandler() *funcHandler {
	return &funcHandler{load: func(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error) {
		v, err := env.Get(ctx, e, tagSenses, ir.NoSubKey)
		if err != nil {
			return nil, err
		}
		var parts []string
		for _, s := range v.(ir.IRRefs) {
			g, err := env.Get(ctx, s, tagGloss, sub)
			if err != nil {
				return nil, err
			}
			if text := string(g.(ir.IRString)); text != "" {
				parts = append(parts, text)
			}
		}
		return ir.IRString(strings.Join(parts, "; ")), nil
	}}
}

func glossesDescriptor() ir.PropertyDescriptor {
	return ir.PropertyDescriptor{
		Class: "LexEntry", Field: "AllGlosses", Tag: tagGlosses, Kind: ir.KindMultiText,
		DependencyPaths: [][]ir.Tag{{tagSenses}, {tagSenses, tagGloss}},
	}
}

// backRefsHandler finds entries whose Components include the entity.
type backRefsHandler struct {
	funcHandler
	bulkCalls int
	modes     []bool
}

func newBackRefsHandler() *backRefsHandler {
	h := &backRefsHandler{}
	h.deps = []ir.Tag{tagComponents}
	h.load = func(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
		entries, err := env.Repo().EntitiesOf(ctx, "LexEntry")
		if err != nil {
			return nil, err
		}
		out := ir.IRRefs{}
		for _, entry := range entries {
			comps, err := env.Repo().ReadVector(ctx, entry, tagComponents)
			if err != nil {
				return nil, err
			}
			if slices.Contains(comps, e) {
				out = append(out, entry)
			}
		}
		return out, nil
	}
	return h
}

func (h *backRefsHandler) LoadAll(ctx context.Context, env registry.Env, _ ir.ClassName, entities []ir.EntityRef) (map[ir.EntityRef]ir.IRValue, error) {
	h.bulkCalls++
	out := make(map[ir.EntityRef]ir.IRValue, len(entities))
	for _, e := range entities {
		out[e] = ir.IRRefs{}
	}
	for _, entry := range entities {
		comps, err := env.Repo().ReadVector(ctx, entry, tagComponents)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			refs, _ := out[c].(ir.IRRefs)
			if n := len(refs); n > 0 && refs[n-1] == entry {
				continue
			}
			out[c] = append(refs, entry)
		}
	}
	return out, nil
}

func (h *backRefsHandler) SetBulkMode(_ ir.ClassName, enabled bool) {
	h.modes = append(h.modes, enabled)
}

func backRefsDescriptor() ir.PropertyDescriptor {
	return ir.PropertyDescriptor{
		Class: "LexEntry", Field: "BackReferences", Tag: tagBackRefs, Kind: ir.KindRefCollection,
		DestinationClass: "LexEntry",
	}
}
