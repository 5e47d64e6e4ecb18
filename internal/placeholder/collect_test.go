package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

func refsTable(table map[ir.EntityRef][]ir.EntityRef) RefsFunc {
	return func(e ir.EntityRef) ([]ir.EntityRef, error) {
		return table[e], nil
	}
}

func TestCollectUnreferenced(t *testing.T) {
	m := NewManager(0)
	para := ir.Real(1)
	kept, _ := m.Create("WordOccurrence", para, tagOccurrences)
	dropped, _ := m.Create("WordOccurrence", para, tagOccurrences)
	orphan, _ := m.Create("Annotation", ir.EntityRef{}, ir.NoTag)
	elsewhere, _ := m.Create("WordOccurrence", ir.Real(2), tagOccurrences)

	removed, err := m.Collect([]ir.EntityRef{para}, refsTable(map[ir.EntityRef][]ir.EntityRef{
		para: {kept},
	}))
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityRef{dropped, orphan}, removed)

	assert.True(t, m.IsTracked(kept))
	assert.True(t, m.IsTracked(elsewhere), "owner outside the working set")
	assert.False(t, m.IsTracked(dropped))
}

func TestCollectKeepsTransitivelyReferenced(t *testing.T) {
	m := NewManager(0)
	para := ir.Real(1)
	occ, _ := m.Create("WordOccurrence", para, tagOccurrences)
	ann, _ := m.Create("Annotation", ir.EntityRef{}, ir.NoTag)
	note, _ := m.Create("Annotation", ir.EntityRef{}, ir.NoTag)

	// para holds occ; the caller holds ann, which references note.
	removed, err := m.Collect([]ir.EntityRef{para, ann}, refsTable(map[ir.EntityRef][]ir.EntityRef{
		para: {occ},
		ann:  {note},
	}))
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 3, m.Len())
}

func TestCollectSkipsClaimedPlaceholders(t *testing.T) {
	m := NewManager(0)
	p, _ := m.Create("WordOccurrence", ir.EntityRef{}, ir.NoTag)
	m.records[p.ID()].State = ir.StatePromotionRequested

	removed, err := m.Collect(nil, refsTable(nil))
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, m.IsTracked(p))
}

func TestCollectKeepsOwnerOfSurvivor(t *testing.T) {
	m := NewManager(0)
	outer, _ := m.Create("LexSense", ir.EntityRef{}, ir.NoTag)
	// inner is owned outside the working set, so it is never collected and
	// keeps its owner alive.
	inner, _ := m.Create("LexSense", outer, tagOccurrences)

	removed, err := m.Collect([]ir.EntityRef{ir.Real(1)}, refsTable(nil))
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, m.IsTracked(outer))
	assert.True(t, m.IsTracked(inner))
}
