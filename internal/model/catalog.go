package model

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// Constructor builds the handler for one property.
type Constructor func(t *Tags) registry.Handler

// Catalog maps handler names used in schema declarations to constructors.
var Catalog = map[string]Constructor{
	"word_count":        func(t *Tags) registry.Handler { return &WordCount{Contents: t.Contents} },
	"baseline":          func(t *Tags) registry.Handler { return &Baseline{Contents: t.Contents} },
	"wordforms":         newWordforms,
	"annotations":       func(t *Tags) registry.Handler { return &Annotations{Target: t.Target, Self: t.Annotations} },
	"reference":         func(t *Tags) registry.Handler { return &Reference{} },
	"back_references":   func(t *Tags) registry.Handler { return &BackReferences{Components: t.Components} },
	"headword_sort_key": func(t *Tags) registry.Handler { return NewHeadwordSortKey(t.Headword) },
	"all_glosses":       func(t *Tags) registry.Handler { return &AllGlosses{Senses: t.Senses, Gloss: t.Gloss} },
	"lexeme_form":       func(t *Tags) registry.Handler { return &LexemeForm{Headword: t.Headword} },
	"outline_number":    func(t *Tags) registry.Handler { return &OutlineNumber{} },
	"sense_count":       func(t *Tags) registry.Handler { return &SenseCount{Senses: t.Senses} },
}

// requires lists the schema fields each constructor reads from Tags.
var requires = map[string][]string{
	"word_count":        {"Paragraph.Contents"},
	"baseline":          {"Paragraph.Contents"},
	"wordforms":         {"Paragraph.Wordforms", "Paragraph.Contents", "Paragraph.Occurrences", "WordOccurrence.Form", "WordOccurrence.BeginOffset"},
	"annotations":       {"Annotation.Target", "WordOccurrence.Annotations"},
	"back_references":   {"LexEntry.Components"},
	"headword_sort_key": {"LexEntry.Headword"},
	"all_glosses":       {"LexEntry.Senses", "LexSense.Gloss"},
	"lexeme_form":       {"LexEntry.Headword"},
	"sense_count":       {"LexEntry.Senses"},
}

// HandlerNames returns the catalog's handler names, sorted.
func HandlerNames() []string {
	return slices.Sorted(maps.Keys(Catalog))
}

// Build defines the classes and raw fields of s in a fresh registry and
// binds every property to its catalog handler. Only the fields the bound
// handlers read must exist, so a schema may declare a subset of the model.
func Build(s *ir.Schema) (*registry.Registry, error) {
	for _, p := range s.Properties {
		if _, ok := Catalog[p.Handler]; !ok {
			return nil, fmt.Errorf("build registry: %s: unknown handler %q", p.Descriptor.Key(), p.Handler)
		}
	}
	tags, missing := lookupTags(s)
	for _, p := range s.Properties {
		for _, need := range requires[p.Handler] {
			if slices.Contains(missing, need) {
				return nil, fmt.Errorf("build registry: %s: handler %q needs field %s", p.Descriptor.Key(), p.Handler, need)
			}
		}
	}

	reg := registry.New()
	for _, c := range s.Classes {
		if err := reg.DefineClass(c.Name, c.Base); err != nil {
			return nil, fmt.Errorf("build registry: %w", err)
		}
	}
	for _, raw := range s.Raw {
		if err := reg.DefineRaw(raw); err != nil {
			return nil, fmt.Errorf("build registry: %w", err)
		}
	}
	for _, p := range s.Properties {
		if err := reg.Register(p.Descriptor, Catalog[p.Handler](tags)); err != nil {
			return nil, fmt.Errorf("build registry: %w", err)
		}
	}
	return reg, nil
}
