package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// snapshotHandler caches the paragraph's occurrences without declaring a
// dependency on them, so its slot only changes through reference rewrites.
func snapshotHandler() *funcHandler {
	return &funcHandler{load: func(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
		return env.Get(ctx, e, tagOccurrences, ir.NoSubKey)
	}}
}

func snapshotDescriptor() ir.PropertyDescriptor {
	return ir.PropertyDescriptor{
		Class: "Paragraph", Field: "Wordforms", Tag: tagWordforms, Kind: ir.KindRefSequence,
		DestinationClass: "WordOccurrence",
	}
}

func TestPromoteDefaultOwner(t *testing.T) {
	f := newFixture(t)
	f.register(snapshotDescriptor(), snapshotHandler())
	para := f.create("Paragraph")
	p, err := f.eng.CreatePlaceholder(f.ctx, "WordOccurrence", para, tagOccurrences)
	require.NoError(t, err)
	f.set(p, tagForm, ir.NoSubKey, ir.IRString("fox"))
	assert.Equal(t, ir.IRRefs{p}, f.get(para, tagWordforms, ir.NoSubKey))

	real, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{
		Placeholder: p, Tag: tagPosition, MustSucceedNow: true,
	})
	require.NoError(t, err)
	require.True(t, real.IsReal())

	assert.Equal(t, ir.IRRefs{real}, f.get(para, tagOccurrences, ir.NoSubKey))
	cached, ok := f.eng.Cached(para, tagWordforms, ir.NoSubKey)
	require.True(t, ok)
	assert.Equal(t, ir.IRRefs{real}, cached, "cached references are rewritten")
	assert.False(t, f.eng.HoldsRef(p))

	assert.Equal(t, ir.IRString("fox"), f.get(real, tagForm, ir.NoSubKey), "provisional attributes are copied")
	assert.Equal(t, ir.IRString("fox"), f.get(p, tagForm, ir.NoSubKey), "retired placeholder resolves")

	_, tracked := f.eng.Placeholder(p)
	assert.False(t, tracked)
	retired, ok := f.eng.Retired(p)
	require.True(t, ok)
	assert.Equal(t, real, retired)

	again, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p, MustSucceedNow: true})
	require.NoError(t, err)
	assert.Equal(t, real, again)
}

func TestPromoteUnownedFails(t *testing.T) {
	f := newFixture(t)
	p, err := f.eng.CreatePlaceholder(f.ctx, "LexEntry", ir.EntityRef{}, ir.NoTag)
	require.NoError(t, err)

	_, err = f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p, Tag: tagBackRefs, MustSucceedNow: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPromotionFailed)
	assert.True(t, IsPromotionFailed(err))
	assert.True(t, IsRecoverable(err))

	rec, ok := f.eng.Placeholder(p)
	require.True(t, ok)
	assert.Equal(t, ir.StateProvisional, rec.State)
}

func TestPromoteNotMandatory(t *testing.T) {
	f := newFixture(t)
	para := f.create("Paragraph")
	p, err := f.eng.CreatePlaceholder(f.ctx, "WordOccurrence", para, tagOccurrences)
	require.NoError(t, err)

	got, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p, Tag: tagPosition})
	require.NoError(t, err)
	assert.Equal(t, p, got, "unhandled request keeps the placeholder")

	rec, ok := f.eng.Placeholder(p)
	require.True(t, ok)
	assert.Equal(t, ir.StateProvisional, rec.State)
}

func TestPromoteRealPassesThrough(t *testing.T) {
	f := newFixture(t)
	para := f.create("Paragraph")
	got, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: para, MustSucceedNow: true})
	require.NoError(t, err)
	assert.Equal(t, para, got)
}

func TestPromoteUntracked(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: ir.Placeholder(5), MustSucceedNow: true})
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestPromoteListenerFirst(t *testing.T) {
	f := newFixture(t)
	para := f.create("Paragraph")
	p, err := f.eng.CreatePlaceholder(f.ctx, "WordOccurrence", para, tagOccurrences)
	require.NoError(t, err)

	var seen []ir.EntityRef
	f.eng.AddPromotionListener(registry.PromoterFunc(func(context.Context, registry.Env, ir.PromotionRequest, ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
		return ir.EntityRef{}, false, nil
	}))
	f.eng.AddPromotionListener(registry.PromoterFunc(func(ctx context.Context, env registry.Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
		seen = append(seen, req.Placeholder)
		real, err := env.Repo().CreateEntity(ctx, rec.Class)
		return real, true, err
	}))

	real, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p, MustSucceedNow: true})
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityRef{p}, seen)

	// The listener did not attach the entity, so the owner's vector no
	// longer lists it.
	assert.Equal(t, ir.IRRefs{}, f.get(para, tagOccurrences, ir.NoSubKey))
	class, err := f.eng.ClassOf(f.ctx, real)
	require.NoError(t, err)
	assert.Equal(t, ir.ClassName("WordOccurrence"), class)
}

// ownerPromoter is a computed reference property that can make its own
// placeholders durable.
type ownerPromoter struct {
	funcHandler
	promoted []ir.EntityRef
}

func (h *ownerPromoter) Promote(ctx context.Context, env registry.Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
	h.promoted = append(h.promoted, req.Placeholder)
	real, err := env.Repo().CreateEntity(ctx, rec.Class)
	return real, true, err
}

func TestPromoteOwnerFieldHandler(t *testing.T) {
	f := newFixture(t)
	h := &ownerPromoter{}
	h.load = func(context.Context, registry.Env, ir.EntityRef, ir.SubKey) (ir.IRValue, error) {
		return ir.IRRefs{}, nil
	}
	f.register(ir.PropertyDescriptor{
		Class: "Paragraph", Field: "Wordforms", Tag: tagWordforms, Kind: ir.KindRefSequence,
		DestinationClass: "LexEntry",
	}, h)
	para := f.create("Paragraph")

	p1, err := f.eng.CreatePlaceholder(f.ctx, "LexEntry", para, tagWordforms)
	require.NoError(t, err)
	real, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p1, Tag: tagBackRefs, MustSucceedNow: true})
	require.NoError(t, err)
	assert.True(t, real.IsReal())
	assert.Equal(t, []ir.EntityRef{p1}, h.promoted)

	// The owner handler is the requester here, so it is skipped and the
	// default promoter cannot place an entity in a computed field.
	p2, err := f.eng.CreatePlaceholder(f.ctx, "LexEntry", para, tagWordforms)
	require.NoError(t, err)
	_, err = f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p2, Tag: tagWordforms, MustSucceedNow: true})
	assert.ErrorIs(t, err, ErrPromotionFailed)
	assert.Equal(t, []ir.EntityRef{p1}, h.promoted)
}

func TestPromoteNestedOwner(t *testing.T) {
	f := newFixture(t)
	const tagSubsenses ir.Tag = 7
	require.NoError(t, f.reg.DefineRaw(ir.RawProperty{
		Class: "LexSense", Field: "Subsenses", Tag: tagSubsenses, Kind: ir.KindRefSequence,
		Owning: true, DestinationClass: "LexSense",
	}))
	entry := f.create("LexEntry")
	outer, err := f.eng.CreatePlaceholder(f.ctx, "LexSense", entry, tagSenses)
	require.NoError(t, err)
	inner, err := f.eng.CreatePlaceholder(f.ctx, "LexSense", outer, tagSubsenses)
	require.NoError(t, err)
	f.set(inner, tagGloss, "en", ir.IRString("puppy"))

	real, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: inner, MustSucceedNow: true})
	require.NoError(t, err)

	outerReal, ok := f.eng.Retired(outer)
	require.True(t, ok, "owner is promoted first")
	owner, field, owned, err := f.repo.OwnerOf(f.ctx, real)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, outerReal, owner)
	assert.Equal(t, tagSubsenses, field)

	assert.Equal(t, ir.IRRefs{outerReal}, f.get(entry, tagSenses, ir.NoSubKey))
	assert.Equal(t, ir.IRString("puppy"), f.get(real, tagGloss, "en"))
	assert.Empty(t, f.eng.Placeholders())
}

func TestPromoteOwnerChainTooDeep(t *testing.T) {
	f := newFixture(t, WithMaxOwnerDepth(2))
	const tagSubsenses ir.Tag = 7
	require.NoError(t, f.reg.DefineRaw(ir.RawProperty{
		Class: "LexSense", Field: "Subsenses", Tag: tagSubsenses, Kind: ir.KindRefSequence,
		Owning: true, DestinationClass: "LexSense",
	}))
	entry := f.create("LexEntry")
	s1, err := f.eng.CreatePlaceholder(f.ctx, "LexSense", entry, tagSenses)
	require.NoError(t, err)
	s2, err := f.eng.CreatePlaceholder(f.ctx, "LexSense", s1, tagSubsenses)
	require.NoError(t, err)
	s3, err := f.eng.CreatePlaceholder(f.ctx, "LexSense", s2, tagSubsenses)
	require.NoError(t, err)

	_, err = f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: s3, MustSucceedNow: true})
	assert.ErrorIs(t, err, ErrPromotionFailed)

	_, promoted := f.eng.Retired(s1)
	assert.False(t, promoted)
	durable, err := f.repo.ReadVector(f.ctx, entry, tagSenses)
	require.NoError(t, err)
	assert.Empty(t, durable, "nothing is created")
	assert.Len(t, f.eng.Placeholders(), 3)
}

func TestPromoteSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	f := newFixture(t, WithTracerProvider(tp))
	para := f.create("Paragraph")
	p, err := f.eng.CreatePlaceholder(f.ctx, "WordOccurrence", para, tagOccurrences)
	require.NoError(t, err)

	real, err := f.eng.RequestPromotion(f.ctx, ir.PromotionRequest{Placeholder: p, MustSucceedNow: true})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "lexcache.promote", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("lexcache.real", real.String()))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("lexcache.must_succeed_now", true))
}
