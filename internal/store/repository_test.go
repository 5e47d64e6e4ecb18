package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

const (
	tagTitle      ir.Tag = 1
	tagParagraphs ir.Tag = 2
	tagCount      ir.Tag = 3
	tagLinks      ir.Tag = 4
)

// repositories runs fn against every Repository implementation so both
// stay behaviourally identical.
func repositories(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, createTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func TestRepositoryCreateAndClass(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		a, err := repo.CreateEntity(ctx, "Text")
		require.NoError(t, err)
		b, err := repo.CreateEntity(ctx, "Paragraph")
		require.NoError(t, err)

		assert.True(t, a.IsReal())
		assert.NotEqual(t, a, b)

		class, err := repo.ClassOf(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, ir.ClassName("Paragraph"), class)

		_, err = repo.CreateEntity(ctx, "")
		assert.Error(t, err)
	})
}

func TestRepositoryMissingEntity(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		missing := ir.Real(999)

		_, err := repo.ClassOf(ctx, missing)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.ReadScalar(ctx, missing, tagCount)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.ReadVector(ctx, missing, tagLinks)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.ReadText(ctx, missing, tagTitle, "en")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteEntity(ctx, missing), ErrNotFound)

		ok, err := repo.Exists(ctx, missing)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepositoryRejectsPlaceholders(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		p := ir.Placeholder(1)

		_, err := repo.ClassOf(ctx, p)
		assert.ErrorIs(t, err, ErrNotReal)

		ok, err := repo.Exists(ctx, p)
		require.NoError(t, err)
		assert.False(t, ok)

		owner, err := repo.CreateEntity(ctx, "Paragraph")
		require.NoError(t, err)
		err = repo.WriteVector(ctx, owner, tagLinks, []ir.EntityRef{p})
		assert.ErrorIs(t, err, ErrNotReal)
	})
}

func TestRepositoryScalars(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		e, err := repo.CreateEntity(ctx, "WordOccurrence")
		require.NoError(t, err)

		v, err := repo.ReadScalar(ctx, e, tagCount)
		require.NoError(t, err)
		assert.Equal(t, ir.IRNull{}, v)

		require.NoError(t, repo.WriteScalar(ctx, e, tagCount, ir.IRInt(42)))
		v, err = repo.ReadScalar(ctx, e, tagCount)
		require.NoError(t, err)
		assert.Equal(t, ir.IRInt(42), v)

		require.NoError(t, repo.WriteScalar(ctx, e, tagCount, ir.IRBool(true)))
		v, err = repo.ReadScalar(ctx, e, tagCount)
		require.NoError(t, err)
		assert.Equal(t, ir.IRBool(true), v)

		require.NoError(t, repo.WriteScalar(ctx, e, tagCount, ir.IRNull{}))
		v, err = repo.ReadScalar(ctx, e, tagCount)
		require.NoError(t, err)
		assert.Equal(t, ir.IRNull{}, v)

		assert.Error(t, repo.WriteScalar(ctx, e, tagCount, ir.IRString("nope")))
	})
}

func TestRepositoryTexts(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		e, err := repo.CreateEntity(ctx, "Text")
		require.NoError(t, err)

		require.NoError(t, repo.WriteText(ctx, e, tagTitle, "fr", "Bonjour"))
		require.NoError(t, repo.WriteText(ctx, e, tagTitle, "en", "Hello"))

		got, err := repo.ReadText(ctx, e, tagTitle, "en")
		require.NoError(t, err)
		assert.Equal(t, "Hello", got)

		got, err = repo.ReadText(ctx, e, tagTitle, "de")
		require.NoError(t, err)
		assert.Equal(t, "", got)

		subs, err := repo.TextAlternatives(ctx, e, tagTitle)
		require.NoError(t, err)
		assert.Equal(t, []ir.SubKey{"en", "fr"}, subs)

		require.NoError(t, repo.WriteText(ctx, e, tagTitle, "fr", ""))
		subs, err = repo.TextAlternatives(ctx, e, tagTitle)
		require.NoError(t, err)
		assert.Equal(t, []ir.SubKey{"en"}, subs)
	})
}

func TestRepositoryOwnership(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		text, err := repo.CreateEntity(ctx, "Text")
		require.NoError(t, err)

		p1, err := repo.CreateOwned(ctx, "Paragraph", text, tagParagraphs)
		require.NoError(t, err)
		p2, err := repo.CreateOwned(ctx, "Paragraph", text, tagParagraphs)
		require.NoError(t, err)

		paras, err := repo.ReadVector(ctx, text, tagParagraphs)
		require.NoError(t, err)
		assert.Equal(t, []ir.EntityRef{p1, p2}, paras)

		owner, field, ok, err := repo.OwnerOf(ctx, p2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, text, owner)
		assert.Equal(t, tagParagraphs, field)

		_, _, ok, err = repo.OwnerOf(ctx, text)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.CreateOwned(ctx, "Paragraph", ir.Real(999), tagParagraphs)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepositoryDeleteCascades(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		text, err := repo.CreateEntity(ctx, "Text")
		require.NoError(t, err)
		para, err := repo.CreateOwned(ctx, "Paragraph", text, tagParagraphs)
		require.NoError(t, err)
		occ, err := repo.CreateOwned(ctx, "WordOccurrence", para, tagParagraphs)
		require.NoError(t, err)

		other, err := repo.CreateEntity(ctx, "LexEntry")
		require.NoError(t, err)
		require.NoError(t, repo.WriteVector(ctx, other, tagLinks, []ir.EntityRef{occ, text}))

		require.NoError(t, repo.DeleteEntity(ctx, para))

		for _, gone := range []ir.EntityRef{para, occ} {
			ok, err := repo.Exists(ctx, gone)
			require.NoError(t, err)
			assert.False(t, ok, "%s should be deleted", gone)
		}

		paras, err := repo.ReadVector(ctx, text, tagParagraphs)
		require.NoError(t, err)
		assert.Empty(t, paras)

		links, err := repo.ReadVector(ctx, other, tagLinks)
		require.NoError(t, err)
		assert.Equal(t, []ir.EntityRef{text}, links)

		// ids are never reused
		fresh, err := repo.CreateEntity(ctx, "Paragraph")
		require.NoError(t, err)
		assert.Greater(t, fresh.ID(), occ.ID())
	})
}

func TestRepositoryReferrers(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := t.Context()
		target, err := repo.CreateEntity(ctx, "LexEntry")
		require.NoError(t, err)
		a, err := repo.CreateEntity(ctx, "LexEntry")
		require.NoError(t, err)
		b, err := repo.CreateEntity(ctx, "LexEntry")
		require.NoError(t, err)

		require.NoError(t, repo.WriteVector(ctx, b, tagLinks, []ir.EntityRef{target, target}))
		require.NoError(t, repo.WriteVector(ctx, a, tagLinks, []ir.EntityRef{target}))
		require.NoError(t, repo.WriteVector(ctx, a, tagParagraphs, []ir.EntityRef{b}))

		refs, err := repo.Referrers(ctx, target, tagLinks)
		require.NoError(t, err)
		assert.Equal(t, []ir.EntityRef{a, b}, refs)

		refs, err = repo.Referrers(ctx, target, tagParagraphs)
		require.NoError(t, err)
		assert.Empty(t, refs)

		entries, err := repo.EntitiesOf(ctx, "LexEntry")
		require.NoError(t, err)
		assert.Equal(t, []ir.EntityRef{target, a, b}, entries)
	})
}
