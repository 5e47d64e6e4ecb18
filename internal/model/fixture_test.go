package model

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/engine"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/store"
)

type domain struct {
	t    *testing.T
	ctx  context.Context
	repo store.Repository
	tags *Tags
	eng  *engine.Engine
}

// repositories runs fn over the model on both repository implementations.
func repositories(t *testing.T, fn func(t *testing.T, d *domain)) {
	t.Run("sqlite", func(t *testing.T) {
		st, err := store.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		fn(t, newDomain(t, st))
	})
	t.Run("memory", func(t *testing.T) { fn(t, newDomain(t, store.NewMemory())) })
}

func newDomain(t *testing.T, repo store.Repository) *domain {
	t.Helper()
	s, err := Schema()
	require.NoError(t, err)
	tags, err := ResolveTags(s)
	require.NoError(t, err)
	reg, err := Build(s)
	require.NoError(t, err)
	eng := engine.New(repo, reg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithSessionIDs(engine.NewFixedGenerator("model-test")),
	)
	return &domain{t: t, ctx: t.Context(), repo: repo, tags: tags, eng: eng}
}

func (d *domain) field(class ir.ClassName, field string) ir.Tag {
	d.t.Helper()
	tag, ok := d.eng.Registry().FieldTag(class, field)
	require.True(d.t, ok, "%s.%s", class, field)
	return tag
}

func (d *domain) create(class ir.ClassName) ir.EntityRef {
	d.t.Helper()
	e, err := d.repo.CreateEntity(d.ctx, class)
	require.NoError(d.t, err)
	return e
}

func (d *domain) createOwned(class ir.ClassName, owner ir.EntityRef, field ir.Tag) ir.EntityRef {
	d.t.Helper()
	e, err := d.repo.CreateOwned(d.ctx, class, owner, field)
	require.NoError(d.t, err)
	return e
}

func (d *domain) text(e ir.EntityRef, tag ir.Tag, sub ir.SubKey, s string) {
	d.t.Helper()
	require.NoError(d.t, d.repo.WriteText(d.ctx, e, tag, sub, s))
}

func (d *domain) get(e ir.EntityRef, class ir.ClassName, field string, sub ir.SubKey) ir.IRValue {
	d.t.Helper()
	v, err := d.eng.Get(d.ctx, e, d.field(class, field), sub)
	require.NoError(d.t, err)
	return v
}

func (d *domain) set(e ir.EntityRef, class ir.ClassName, field string, sub ir.SubKey, v ir.IRValue) {
	d.t.Helper()
	require.NoError(d.t, d.eng.Set(d.ctx, e, d.field(class, field), sub, v))
}

// paragraph creates a paragraph owned by a fresh text.
func (d *domain) paragraph(contents string) ir.EntityRef {
	d.t.Helper()
	txt := d.create("Text")
	para := d.createOwned("Paragraph", txt, d.field("Text", "Paragraphs"))
	d.text(para, d.tags.Contents, ir.NoSubKey, contents)
	return para
}

// occurrence appends a durable occurrence with form to para.
func (d *domain) occurrence(para ir.EntityRef, form string) ir.EntityRef {
	d.t.Helper()
	occ := d.createOwned("WordOccurrence", para, d.tags.Occurrences)
	d.text(occ, d.tags.Form, ir.NoSubKey, form)
	return occ
}

func (d *domain) entry(headword string) ir.EntityRef {
	d.t.Helper()
	e := d.create("LexEntry")
	d.text(e, d.tags.Headword, "en", headword)
	return e
}

func (d *domain) sense(entry ir.EntityRef, glosses map[ir.SubKey]string) ir.EntityRef {
	d.t.Helper()
	s := d.createOwned("LexSense", entry, d.tags.Senses)
	for ws, g := range glosses {
		d.text(s, d.tags.Gloss, ws, g)
	}
	return s
}
