package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/ir"
)

func compile(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

const lexiconSchema = `
class: {
	LexSense: base: "CmObject"
	CmObject: {}
	LexEntry: base: "CmObject"
}

raw: {
	LexEntry: {
		Senses:     {tag: 1, kind: "ref_sequence", owning: true, destination: "LexSense"}
		Components: {tag: 2, kind: "ref_collection", destination: "LexEntry"}
	}
	LexSense: Gloss: {tag: 3, kind: "multi_text"}
}

property: {
	LexEntry: {
		AllGlosses: {
			tag:        100
			kind:       "multi_text"
			handler:    "all_glosses"
			depends_on: [["Senses"], ["Senses", "Gloss"]]
		}
		LexemeForm: {
			tag:           101
			kind:          "multi_text"
			handler:       "lexeme_form"
			writable:      true
			write_through: true
		}
		BackReferences: {
			tag:         102
			kind:        "ref_collection"
			destination: "LexEntry"
			handler:     "back_references"
		}
	}
	LexSense: Outline: {
		tag:                103
		kind:               "text"
		handler:            "outline_number"
		compute_every_time: true
	}
}
`

func TestCompileSchema(t *testing.T) {
	schema, err := CompileSchema(compile(t, lexiconSchema))
	require.NoError(t, err)

	want := &ir.Schema{
		Classes: []ir.ClassSpec{
			{Name: "CmObject"},
			{Name: "LexEntry", Base: "CmObject"},
			{Name: "LexSense", Base: "CmObject"},
		},
		Raw: []ir.RawProperty{
			{Class: "LexEntry", Field: "Senses", Tag: 1, Kind: ir.KindRefSequence, Owning: true, DestinationClass: "LexSense"},
			{Class: "LexEntry", Field: "Components", Tag: 2, Kind: ir.KindRefCollection, DestinationClass: "LexEntry"},
			{Class: "LexSense", Field: "Gloss", Tag: 3, Kind: ir.KindMultiText},
		},
		Properties: []ir.PropertySpec{
			{Handler: "all_glosses", Descriptor: ir.PropertyDescriptor{
				Class: "LexEntry", Field: "AllGlosses", Tag: 100, Kind: ir.KindMultiText,
				DependencyPaths: [][]ir.Tag{{1}, {1, 3}},
			}},
			{Handler: "lexeme_form", Descriptor: ir.PropertyDescriptor{
				Class: "LexEntry", Field: "LexemeForm", Tag: 101, Kind: ir.KindMultiText,
				Writable: true, WriteThrough: true,
			}},
			{Handler: "back_references", Descriptor: ir.PropertyDescriptor{
				Class: "LexEntry", Field: "BackReferences", Tag: 102, Kind: ir.KindRefCollection,
				DestinationClass: "LexEntry",
			}},
			{Handler: "outline_number", Descriptor: ir.PropertyDescriptor{
				Class: "LexSense", Field: "Outline", Tag: 103, Kind: ir.KindText, ComputeEveryTime: true,
			}},
		},
	}
	if diff := cmp.Diff(want, schema); diff != "" {
		t.Errorf("CompileSchema mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileSchemaInheritedPathSegment(t *testing.T) {
	schema, err := CompileSchema(compile(t, `
		class: {
			CmObject: {}
			Annotation: base: "CmObject"
		}
		raw: CmObject: Owner: {tag: 1, kind: "ref_atomic", destination: "Annotation"}
		raw: Annotation: Comment: {tag: 2, kind: "text"}
		property: Annotation: OwnerComment: {
			tag: 10, kind: "text", handler: "x"
			depends_on: [["Owner", "Comment"]]
		}
	`))
	require.NoError(t, err)
	assert.Equal(t, [][]ir.Tag{{1, 2}}, schema.Properties[0].Descriptor.DependencyPaths)
}

func TestCompileSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		contain string
	}{
		{
			name:    "no classes",
			src:     `raw: {}`,
			contain: "at least one class",
		},
		{
			name: "missing tag",
			src: `class: A: {}
				raw: A: X: {kind: "text"}`,
			contain: "raw.A.X.tag: tag is required",
		},
		{
			name: "float tag",
			src: `class: A: {}
				raw: A: X: {tag: 1.5, kind: "text"}`,
			contain: "tag must be an int",
		},
		{
			name: "unknown kind",
			src: `class: A: {}
				raw: A: X: {tag: 1, kind: "decimal"}`,
			contain: `unknown property kind "decimal"`,
		},
		{
			name: "missing handler",
			src: `class: A: {}
				property: A: X: {tag: 1, kind: "text"}`,
			contain: "handler is required",
		},
		{
			name: "unresolvable path",
			src: `class: A: {}
				property: A: X: {tag: 1, kind: "text", handler: "h", depends_on: [["Nope"]]}`,
			contain: `A has no field "Nope"`,
		},
		{
			name: "non-reference intermediate segment",
			src: `class: A: {}
				raw: A: T: {tag: 1, kind: "text"}
				property: A: X: {tag: 2, kind: "text", handler: "h", depends_on: [["T", "T"]]}`,
			contain: "A.T is not a reference",
		},
		{
			name: "duplicate tag",
			src: `class: A: {}
				raw: A: {
					T: {tag: 1, kind: "text"}
					U: {tag: 1, kind: "text"}
				}`,
			contain: "[E103]",
		},
		{
			name:    "unknown base",
			src:     `class: A: base: "Missing"`,
			contain: "[E102]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSchema(compile(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contain)
		})
	}
}

func TestCompileSchemaInheritanceCycle(t *testing.T) {
	_, err := CompileSchema(compile(t, `class: {
		A: base: "B"
		B: base: "A"
	}`))
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []ir.ClassName{"A", "B", "A"}, cycle.Path)
}

func TestCompileErrorPosition(t *testing.T) {
	v := cuecontext.New().CompileString(`
class: A: {}
raw: A: X: {kind: "text"}
`, cue.Filename("schema.cue"))
	require.NoError(t, v.Err())

	_, err := CompileSchema(v)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "raw.A.X.tag", ce.Field)
	assert.Contains(t, err.Error(), "schema.cue:3:")
}
