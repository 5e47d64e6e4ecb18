package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

type stubHandler struct {
	deps []ir.Tag
}

func (stubHandler) Load(context.Context, Env, ir.EntityRef, ir.SubKey) (ir.IRValue, error) {
	return ir.IRInt(0), nil
}

func (h stubHandler) DependsOn(t ir.Tag) bool {
	for _, d := range h.deps {
		if d == t {
			return true
		}
	}
	return false
}

type stubWriter struct{ stubHandler }

func (stubWriter) Write(context.Context, Env, ir.EntityRef, ir.SubKey, ir.IRValue) error {
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.DefineClass("CmObject", ""))
	require.NoError(t, r.DefineClass("Paragraph", "CmObject"))
	require.NoError(t, r.DefineClass("StyledParagraph", "Paragraph"))
	require.NoError(t, r.DefineClass("LexEntry", "CmObject"))
	require.NoError(t, r.DefineRaw(ir.RawProperty{Class: "Paragraph", Field: "Contents", Tag: 10, Kind: ir.KindText}))
	return r
}

func descriptor(class ir.ClassName, field string, tag ir.Tag) ir.PropertyDescriptor {
	return ir.PropertyDescriptor{Class: class, Field: field, Tag: tag, Kind: ir.KindScalar}
}

func TestDefineClass(t *testing.T) {
	r := newTestRegistry(t)

	assert.ErrorIs(t, r.DefineClass("Paragraph", "CmObject"), ErrDuplicateRegistration)
	assert.ErrorIs(t, r.DefineClass("Orphan", "Missing"), ErrUnknownClass)
	assert.Error(t, r.DefineClass("", ""))

	assert.True(t, r.IsA("StyledParagraph", "CmObject"))
	assert.True(t, r.IsA("Paragraph", "Paragraph"))
	assert.False(t, r.IsA("Paragraph", "StyledParagraph"))
	assert.False(t, r.IsA("Unknown", "CmObject"))
	assert.Equal(t, []ir.ClassName{"CmObject", "Paragraph", "StyledParagraph", "LexEntry"}, r.Classes())
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(descriptor("Paragraph", "WordCount", 100), stubHandler{}))

	err := r.Register(descriptor("Paragraph", "WordCount", 101), stubHandler{})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	err = r.Register(descriptor("LexEntry", "SenseCount", 100), stubHandler{})
	assert.ErrorIs(t, err, ErrDuplicateRegistration, "tag already used")

	err = r.Register(descriptor("Paragraph", "Other", 10), stubHandler{})
	assert.ErrorIs(t, err, ErrDuplicateRegistration, "tag used by raw property")

	err = r.Register(descriptor("Paragraph", "Contents", 102), stubHandler{})
	assert.ErrorIs(t, err, ErrDuplicateRegistration, "field is raw")
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(descriptor("Missing", "X", 100), stubHandler{})
	assert.ErrorIs(t, err, ErrUnknownClass)

	err = r.Register(descriptor("Paragraph", "X", 0), stubHandler{})
	assert.Error(t, err)

	err = r.Register(descriptor("Paragraph", "X", 100), nil)
	assert.Error(t, err)

	d := descriptor("Paragraph", "Baseline", 101)
	d.Writable = true
	err = r.Register(d, stubHandler{})
	assert.ErrorContains(t, err, "does not implement Write")
	require.NoError(t, r.Register(d, stubWriter{}))
}

func TestLookupInheritance(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(descriptor("CmObject", "Owner", 100), stubHandler{}))
	require.NoError(t, r.Register(descriptor("Paragraph", "WordCount", 101), stubHandler{}))
	require.NoError(t, r.Register(descriptor("StyledParagraph", "WordCount", 102), stubHandler{}))

	b, ok := r.Lookup("StyledParagraph", "Owner")
	require.True(t, ok)
	assert.Equal(t, ir.Tag(100), b.Descriptor.Tag)

	b, ok = r.Lookup("StyledParagraph", "WordCount")
	require.True(t, ok)
	assert.Equal(t, ir.Tag(102), b.Descriptor.Tag, "subclass override wins")

	b, ok = r.Lookup("Paragraph", "WordCount")
	require.True(t, ok)
	assert.Equal(t, ir.Tag(101), b.Descriptor.Tag)

	_, ok = r.Lookup("LexEntry", "WordCount")
	assert.False(t, ok)

	_, ok = r.LookupTag("StyledParagraph", 101)
	assert.False(t, ok, "overridden tag does not apply to subclass")
	_, ok = r.LookupTag("LexEntry", 101)
	assert.False(t, ok)
	b, ok = r.LookupTag("Paragraph", 101)
	require.True(t, ok)
	assert.Equal(t, "Paragraph.WordCount", b.Descriptor.Key())
}

func TestDescriptorIsCopied(t *testing.T) {
	r := newTestRegistry(t)
	d := descriptor("Paragraph", "WordCount", 100)
	d.DependencyPaths = [][]ir.Tag{{10}}
	require.NoError(t, r.Register(d, stubHandler{}))

	d.DependencyPaths[0][0] = 99

	b, _ := r.Lookup("Paragraph", "WordCount")
	assert.Equal(t, [][]ir.Tag{{10}}, b.Descriptor.DependencyPaths)
}

func TestDependents(t *testing.T) {
	r := newTestRegistry(t)
	a := descriptor("Paragraph", "WordCount", 100)
	a.DependencyPaths = [][]ir.Tag{{10}}
	b := descriptor("Paragraph", "Unrelated", 101)
	c := descriptor("LexEntry", "Mentions", 102)
	c.DependencyPaths = [][]ir.Tag{{20, 10}, {10}}
	require.NoError(t, r.Register(a, stubHandler{}))
	require.NoError(t, r.Register(b, stubHandler{}))
	require.NoError(t, r.Register(c, stubHandler{}))

	deps := r.Dependents(10)
	require.Len(t, deps, 2)
	assert.Equal(t, "Paragraph.WordCount", deps[0].Descriptor.Key())
	assert.Equal(t, "LexEntry.Mentions", deps[1].Descriptor.Key())
	assert.Empty(t, r.Dependents(55))
}

func TestRawLookup(t *testing.T) {
	r := newTestRegistry(t)

	p, ok := r.Raw("StyledParagraph", "Contents")
	require.True(t, ok)
	assert.Equal(t, ir.Tag(10), p.Tag)

	tag, ok := r.FieldTag("StyledParagraph", "Contents")
	require.True(t, ok)
	assert.Equal(t, ir.Tag(10), tag)

	_, ok = r.FieldTag("LexEntry", "Contents")
	assert.False(t, ok)

	assert.Equal(t, "Paragraph.Contents", r.TagName(10))
	assert.Equal(t, "tag(77)", r.TagName(77))

	err := r.DefineRaw(ir.RawProperty{Class: "LexEntry", Field: "Headword", Tag: 10, Kind: ir.KindMultiText})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
	err = r.DefineRaw(ir.RawProperty{Class: "Nope", Field: "X", Tag: 11, Kind: ir.KindText})
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestPromoterFunc(t *testing.T) {
	var called bool
	var p Promoter = PromoterFunc(func(context.Context, Env, ir.PromotionRequest, ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
		called = true
		return ir.Real(7), true, nil
	})
	ref, handled, err := p.Promote(t.Context(), nil, ir.PromotionRequest{}, ir.PlaceholderRecord{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, handled)
	assert.Equal(t, ir.Real(7), ref)
}
