package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

func TestInheritanceCycles_Empty(t *testing.T) {
	assert.Empty(t, InheritanceCycles(nil))
	assert.NoError(t, CheckInheritance(nil))
}

func TestInheritanceCycles_Forest(t *testing.T) {
	classes := []ir.ClassSpec{
		{Name: "CmObject"},
		{Name: "Paragraph", Base: "CmObject"},
		{Name: "StTxtPara", Base: "Paragraph"},
		{Name: "Standalone"},
	}
	assert.Empty(t, InheritanceCycles(classes))
	assert.NoError(t, CheckInheritance(classes))
}

func TestInheritanceCycles_SelfLoop(t *testing.T) {
	cycles := InheritanceCycles([]ir.ClassSpec{{Name: "Loop", Base: "Loop"}})
	require.Len(t, cycles, 1)
	assert.Equal(t, []ir.ClassName{"Loop", "Loop"}, cycles[0].Path)
}

func TestInheritanceCycles_ThreeNodes(t *testing.T) {
	classes := []ir.ClassSpec{
		{Name: "C", Base: "A"},
		{Name: "B", Base: "C"},
		{Name: "A", Base: "B"},
		{Name: "D", Base: "A"},
	}
	cycles := InheritanceCycles(classes)
	require.Len(t, cycles, 1)
	assert.Equal(t, []ir.ClassName{"A", "B", "C", "A"}, cycles[0].Path)

	err := CheckInheritance(classes)
	require.Error(t, err)
	assert.Equal(t, "class: inheritance cycle: A → B → C → A", err.Error())
}

func TestInheritanceCycles_Deterministic(t *testing.T) {
	classes := []ir.ClassSpec{
		{Name: "Y", Base: "Z"},
		{Name: "Z", Base: "Y"},
		{Name: "B", Base: "A"},
		{Name: "A", Base: "B"},
	}
	for range 10 {
		cycles := InheritanceCycles(classes)
		require.Len(t, cycles, 2)
		assert.Equal(t, []ir.ClassName{"A", "B", "A"}, cycles[0].Path)
		assert.Equal(t, []ir.ClassName{"Y", "Z", "Y"}, cycles[1].Path)
	}
}
