package model

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/lexcache/internal/compiler"
	"github.com/roach88/lexcache/internal/ir"
)

//go:embed schema.cue
var schemaSource []byte

// SchemaSource returns the embedded CUE schema.
func SchemaSource() []byte {
	return schemaSource
}

// Schema compiles the embedded schema.
func Schema() (*ir.Schema, error) {
	v := cuecontext.New().CompileBytes(schemaSource, cue.Filename("schema.cue"))
	s, err := compiler.CompileSchema(v)
	if err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}
	return s, nil
}

// Tags holds the tags handlers need, resolved from a schema by name so a
// schema may renumber them.
type Tags struct {
	Contents    ir.Tag
	Occurrences ir.Tag
	Form        ir.Tag
	BeginOffset ir.Tag
	Target      ir.Tag
	Headword    ir.Tag
	Senses      ir.Tag
	Components  ir.Tag
	Gloss       ir.Tag

	Baseline    ir.Tag
	Wordforms   ir.Tag
	Annotations ir.Tag
}

type tagField struct {
	class ir.ClassName
	field string
	dst   *ir.Tag
}

func (t *Tags) fields() []tagField {
	return []tagField{
		{"Paragraph", "Contents", &t.Contents},
		{"Paragraph", "Occurrences", &t.Occurrences},
		{"WordOccurrence", "Form", &t.Form},
		{"WordOccurrence", "BeginOffset", &t.BeginOffset},
		{"Annotation", "Target", &t.Target},
		{"LexEntry", "Headword", &t.Headword},
		{"LexEntry", "Senses", &t.Senses},
		{"LexEntry", "Components", &t.Components},
		{"LexSense", "Gloss", &t.Gloss},
		{"Paragraph", "Baseline", &t.Baseline},
		{"Paragraph", "Wordforms", &t.Wordforms},
		{"WordOccurrence", "Annotations", &t.Annotations},
	}
}

// ResolveTags looks up every field in Tags.
func ResolveTags(s *ir.Schema) (*Tags, error) {
	t, missing := lookupTags(s)
	if len(missing) > 0 {
		return nil, fmt.Errorf("schema has no field %s", missing[0])
	}
	return t, nil
}

// lookupTags resolves what s declares and returns the Class.Field names it
// lacks, leaving those tags unset.
func lookupTags(s *ir.Schema) (*Tags, []string) {
	t := &Tags{}
	var missing []string
	for _, f := range t.fields() {
		tag, ok := fieldTag(s, f.class, f.field)
		if !ok {
			missing = append(missing, string(f.class)+"."+f.field)
			continue
		}
		*f.dst = tag
	}
	return t, missing
}

func fieldTag(s *ir.Schema, class ir.ClassName, field string) (ir.Tag, bool) {
	if raw, ok := s.RawByField(class, field); ok {
		return raw.Tag, true
	}
	for _, p := range s.Properties {
		if p.Descriptor.Class == class && p.Descriptor.Field == field {
			return p.Descriptor.Tag, true
		}
	}
	return ir.NoTag, false
}
