package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []token
	}{
		{"empty", "", nil},
		{"punctuation", "Hello, world!", []token{{"Hello", 0}, {"world", 7}}},
		{"apostrophe", "don't stop", []token{{"don't", 0}, {"stop", 6}}},
		{"rune offsets", "naïve café au lait", []token{{"naïve", 0}, {"café", 6}, {"au", 11}, {"lait", 14}}},
		{"digits", "  42 apples\t", []token{{"42", 2}, {"apples", 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestWordCountAndBaseline(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("  the  quick brown\tfox ")

		assert.Equal(t, ir.IRInt(4), d.get(para, "Paragraph", "WordCount", ir.NoSubKey))
		assert.Equal(t, ir.IRString("the quick brown fox"), d.get(para, "Paragraph", "Baseline", ir.NoSubKey))

		d.set(para, "Paragraph", "Baseline", ir.NoSubKey, ir.IRString("a  b"))

		contents, err := d.repo.ReadText(d.ctx, para, d.tags.Contents, ir.NoSubKey)
		require.NoError(t, err)
		assert.Equal(t, "a  b", contents)
		assert.Equal(t, ir.IRString("a b"), d.get(para, "Paragraph", "Baseline", ir.NoSubKey))
		assert.Equal(t, ir.IRInt(2), d.get(para, "Paragraph", "WordCount", ir.NoSubKey))
	})
}

func TestWordformsIssuesPlaceholders(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("one two one")

		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		require.Len(t, wf, 3)
		for i, form := range []string{"one", "two", "one"} {
			rec, ok := d.eng.Placeholder(wf[i])
			require.True(t, ok)
			assert.Equal(t, para, rec.OwningEntity)
			assert.Equal(t, d.tags.Wordforms, rec.OwningField)
			assert.Equal(t, ir.IRString(form), rec.Attrs[ir.AttrKey{Tag: d.tags.Form}])
		}
		assert.NotEqual(t, wf[0], wf[2], "each token gets its own occurrence")
		assert.Equal(t, ir.IRInt(8), d.get(wf[2], "WordOccurrence", "BeginOffset", ir.NoSubKey))

		d.eng.Clear(para, d.tags.Wordforms)
		again := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		assert.Equal(t, wf, again)

		d.set(para, "Paragraph", "Contents", ir.NoSubKey, ir.IRString("one three"))
		changed := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		require.Len(t, changed, 2)
		assert.Equal(t, wf[0], changed[0])
		assert.NotContains(t, wf, changed[1])
	})
}

func TestWordformsReusesDurable(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("one two")
		two := d.occurrence(para, "two")

		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		require.Len(t, wf, 2)
		assert.True(t, wf[0].IsPlaceholder())
		assert.Equal(t, two, wf[1])
	})
}

func TestWordformsFollowsOccurrenceForm(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("one two")
		two := d.occurrence(para, "two")

		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		require.Equal(t, two, wf[1])

		d.set(two, "WordOccurrence", "Form", ir.NoSubKey, ir.IRString("zzz"))

		after := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		require.Len(t, after, 2)
		assert.NotContains(t, after, two)
		assert.True(t, after[1].IsPlaceholder())
	})
}

func TestWordformsPromote(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("one two")
		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		p := wf[0]

		real, err := d.eng.RequestPromotion(d.ctx, ir.PromotionRequest{Placeholder: p, MustSucceedNow: true})
		require.NoError(t, err)
		require.True(t, real.IsReal())

		occs, err := d.repo.ReadVector(d.ctx, para, d.tags.Occurrences)
		require.NoError(t, err)
		assert.Equal(t, []ir.EntityRef{real}, occs)

		form, err := d.repo.ReadText(d.ctx, real, d.tags.Form, ir.NoSubKey)
		require.NoError(t, err)
		assert.Equal(t, "one", form)
		offset, err := d.repo.ReadScalar(d.ctx, real, d.tags.BeginOffset)
		require.NoError(t, err)
		assert.Equal(t, ir.IRInt(0), offset)

		_, live := d.eng.Placeholder(p)
		assert.False(t, live)
		assert.False(t, d.eng.HoldsRef(p))

		after := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		assert.Equal(t, ir.IRRefs{real, wf[1]}, after)
	})
}

func TestAnnotations(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("alpha")
		occ := d.occurrence(para, "alpha")

		assert.Equal(t, ir.IRRefs{}, d.get(occ, "WordOccurrence", "Annotations", ir.NoSubKey))

		note := d.create("Annotation")
		d.set(note, "Annotation", "Target", ir.NoSubKey, ir.IRRef(occ))

		assert.Equal(t, ir.IRRefs{note}, d.get(occ, "WordOccurrence", "Annotations", ir.NoSubKey))
	})
}

func TestAnnotationsOnPlaceholder(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		para := d.paragraph("alpha beta")
		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)

		assert.Equal(t, ir.IRRefs{}, d.get(wf[1], "WordOccurrence", "Annotations", ir.NoSubKey))

		rec, ok := d.eng.Placeholder(wf[1])
		require.True(t, ok, "an optional request leaves the placeholder alone")
		assert.Equal(t, ir.StateProvisional, rec.State)
	})
}

func TestReference(t *testing.T) {
	repositories(t, func(t *testing.T, d *domain) {
		txt := d.create("Text")
		paragraphs := d.field("Text", "Paragraphs")
		d.createOwned("Paragraph", txt, paragraphs)
		second := d.createOwned("Paragraph", txt, paragraphs)
		d.occurrence(second, "a")
		b := d.occurrence(second, "b")

		assert.Equal(t, ir.IRString("2:2"), d.get(b, "WordOccurrence", "Reference", ir.NoSubKey))

		para := d.paragraph("alpha beta")
		wf := d.get(para, "Paragraph", "Wordforms", ir.NoSubKey).(ir.IRRefs)
		assert.Equal(t, ir.IRString("1:2"), d.get(wf[1], "WordOccurrence", "Reference", ir.NoSubKey))

		loose := d.create("WordOccurrence")
		assert.Equal(t, ir.IRString("0:0"), d.get(loose, "WordOccurrence", "Reference", ir.NoSubKey))
	})
}
