package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lexcache/internal/ir"
)

// CompileSchema parses a CUE value holding class, raw and property
// declarations into an ir.Schema.
//
// The value is the root of a schema package:
//
//	class: {
//		CmObject: {}
//		Paragraph: base: "CmObject"
//	}
//	raw: Paragraph: Contents: {tag: 3, kind: "text"}
//	property: Paragraph: WordCount: {
//		tag:        101
//		kind:       "scalar"
//		handler:    "word_count"
//		depends_on: [["Contents"]]
//	}
//
// Dependency paths are written as field names and resolved to tags here:
// the first name is looked up on the property's class (inherited fields
// included), every following name on the destination class of the
// previous reference. Classes come out ordered so every base precedes
// its subclasses.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	classes, err := parseClasses(v)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, &CompileError{
			Field:   "class",
			Message: "at least one class is required",
			Pos:     v.Pos(),
		}
	}
	if err := CheckInheritance(classes); err != nil {
		return nil, err
	}
	classes = orderClasses(classes)

	schema := &ir.Schema{Classes: classes}
	schema.Raw, err = parseRaw(v)
	if err != nil {
		return nil, err
	}

	props, paths, err := parseProperties(v)
	if err != nil {
		return nil, err
	}
	schema.Properties = props

	// Paths may name any raw or computed field, so they resolve only once
	// every declaration is known.
	res := newResolver(schema)
	for i := range schema.Properties {
		d := &schema.Properties[i].Descriptor
		for _, p := range paths[i] {
			tags, err := res.resolve(d.Class, p.names)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("property.%s.%s.depends_on", d.Class, d.Field),
					Message: err.Error(),
					Pos:     p.pos,
				}
			}
			d.DependencyPaths = append(d.DependencyPaths, tags)
		}
	}

	if errs := Validate(schema); len(errs) > 0 {
		return nil, errs[0]
	}
	return schema, nil
}

// parseClasses reads the class block in declaration order.
func parseClasses(v cue.Value) ([]ir.ClassSpec, error) {
	classVal := v.LookupPath(cue.ParsePath("class"))
	if !classVal.Exists() {
		return nil, nil
	}
	iter, err := classVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var classes []ir.ClassSpec
	for iter.Next() {
		spec := ir.ClassSpec{Name: ir.ClassName(iter.Label())}
		baseVal := iter.Value().LookupPath(cue.ParsePath("base"))
		if baseVal.Exists() {
			base, err := baseVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.Base = ir.ClassName(base)
		}
		classes = append(classes, spec)
	}
	return classes, nil
}

// orderClasses returns classes with every base before its subclasses,
// otherwise keeping declaration order. Inheritance must be acyclic.
func orderClasses(classes []ir.ClassSpec) []ir.ClassSpec {
	out := make([]ir.ClassSpec, 0, len(classes))
	placed := make(map[ir.ClassName]bool, len(classes))
	for len(out) < len(classes) {
		progress := false
		for _, c := range classes {
			if placed[c.Name] || (c.Base != "" && !placed[c.Base]) {
				continue
			}
			out = append(out, c)
			placed[c.Name] = true
			progress = true
		}
		if !progress {
			// Unknown bases are reported by Validate; keep the rest in order.
			for _, c := range classes {
				if !placed[c.Name] {
					out = append(out, c)
					placed[c.Name] = true
				}
			}
		}
	}
	return out
}

// parseRaw reads raw: <Class>: <Field>: {...} declarations.
func parseRaw(v cue.Value) ([]ir.RawProperty, error) {
	var out []ir.RawProperty
	err := eachField(v, "raw", func(class, field string, fv cue.Value) error {
		raw := ir.RawProperty{Class: ir.ClassName(class), Field: field}
		var err error
		if raw.Tag, err = parseTag(fv, "raw", class, field); err != nil {
			return err
		}
		if raw.Kind, err = parseKind(fv, "raw", class, field); err != nil {
			return err
		}
		if raw.Owning, err = optionalBool(fv, "owning"); err != nil {
			return err
		}
		dest, err := optionalString(fv, "destination")
		if err != nil {
			return err
		}
		raw.DestinationClass = ir.ClassName(dest)
		out = append(out, raw)
		return nil
	})
	return out, err
}

type namedPath struct {
	names []string
	pos   token.Pos
}

// parseProperties reads property: <Class>: <Field>: {...} declarations.
// Dependency paths are returned by name, indexed like the properties.
func parseProperties(v cue.Value) ([]ir.PropertySpec, [][]namedPath, error) {
	var props []ir.PropertySpec
	var paths [][]namedPath
	err := eachField(v, "property", func(class, field string, fv cue.Value) error {
		d := ir.PropertyDescriptor{Class: ir.ClassName(class), Field: field}
		var err error
		if d.Tag, err = parseTag(fv, "property", class, field); err != nil {
			return err
		}
		if d.Kind, err = parseKind(fv, "property", class, field); err != nil {
			return err
		}
		if d.Writable, err = optionalBool(fv, "writable"); err != nil {
			return err
		}
		if d.ComputeEveryTime, err = optionalBool(fv, "compute_every_time"); err != nil {
			return err
		}
		if d.WriteThrough, err = optionalBool(fv, "write_through"); err != nil {
			return err
		}
		dest, err := optionalString(fv, "destination")
		if err != nil {
			return err
		}
		d.DestinationClass = ir.ClassName(dest)

		handlerVal := fv.LookupPath(cue.ParsePath("handler"))
		if !handlerVal.Exists() {
			return &CompileError{
				Field:   fmt.Sprintf("property.%s.%s.handler", class, field),
				Message: "handler is required",
				Pos:     fv.Pos(),
			}
		}
		handler, err := handlerVal.String()
		if err != nil {
			return formatCUEError(err)
		}

		named, err := parseDependsOn(fv)
		if err != nil {
			return err
		}

		props = append(props, ir.PropertySpec{Descriptor: d, Handler: handler})
		paths = append(paths, named)
		return nil
	})
	return props, paths, err
}

func parseDependsOn(fv cue.Value) ([]namedPath, error) {
	depsVal := fv.LookupPath(cue.ParsePath("depends_on"))
	if !depsVal.Exists() {
		return nil, nil
	}
	iter, err := depsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []namedPath
	for iter.Next() {
		pathVal := iter.Value()
		segIter, err := pathVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p := namedPath{pos: pathVal.Pos()}
		for segIter.Next() {
			name, err := segIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.names = append(p.names, name)
		}
		out = append(out, p)
	}
	return out, nil
}

// eachField walks <block>: <Class>: <Field>: value in declaration order.
func eachField(v cue.Value, block string, fn func(class, field string, fv cue.Value) error) error {
	blockVal := v.LookupPath(cue.ParsePath(block))
	if !blockVal.Exists() {
		return nil
	}
	classIter, err := blockVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for classIter.Next() {
		class := classIter.Label()
		fieldIter, err := classIter.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for fieldIter.Next() {
			if err := fn(class, fieldIter.Label(), fieldIter.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseTag(fv cue.Value, block, class, field string) (ir.Tag, error) {
	tagVal := fv.LookupPath(cue.ParsePath("tag"))
	if !tagVal.Exists() {
		return ir.NoTag, &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s.tag", block, class, field),
			Message: "tag is required",
			Pos:     fv.Pos(),
		}
	}
	if k := tagVal.IncompleteKind(); k != cue.IntKind {
		return ir.NoTag, &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s.tag", block, class, field),
			Message: fmt.Sprintf("tag must be an int, got %v", k),
			Pos:     tagVal.Pos(),
		}
	}
	n, err := tagVal.Int64()
	if err != nil {
		return ir.NoTag, formatCUEError(err)
	}
	if n <= 0 || n > 1<<31-1 {
		return ir.NoTag, &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s.tag", block, class, field),
			Message: fmt.Sprintf("tag %d out of range", n),
			Pos:     tagVal.Pos(),
		}
	}
	return ir.Tag(n), nil
}

func parseKind(fv cue.Value, block, class, field string) (ir.Kind, error) {
	kindVal := fv.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return ir.KindInvalid, &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s.kind", block, class, field),
			Message: "kind is required",
			Pos:     fv.Pos(),
		}
	}
	s, err := kindVal.String()
	if err != nil {
		return ir.KindInvalid, formatCUEError(err)
	}
	k, err := ir.ParseKind(s)
	if err != nil {
		return ir.KindInvalid, &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s.kind", block, class, field),
			Message: err.Error(),
			Pos:     kindVal.Pos(),
		}
	}
	return k, nil
}

func optionalBool(fv cue.Value, name string) (bool, error) {
	val := fv.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalString(fv cue.Value, name string) (string, error) {
	val := fv.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// resolver maps field names to tags along dependency paths.
type resolver struct {
	bases  map[ir.ClassName]ir.ClassName
	fields map[ir.ClassName]map[string]fieldInfo
}

type fieldInfo struct {
	tag  ir.Tag
	kind ir.Kind
	dest ir.ClassName
}

func newResolver(s *ir.Schema) *resolver {
	r := &resolver{
		bases:  make(map[ir.ClassName]ir.ClassName),
		fields: make(map[ir.ClassName]map[string]fieldInfo),
	}
	for _, c := range s.Classes {
		r.bases[c.Name] = c.Base
	}
	add := func(class ir.ClassName, field string, info fieldInfo) {
		if r.fields[class] == nil {
			r.fields[class] = make(map[string]fieldInfo)
		}
		r.fields[class][field] = info
	}
	for _, raw := range s.Raw {
		add(raw.Class, raw.Field, fieldInfo{tag: raw.Tag, kind: raw.Kind, dest: raw.DestinationClass})
	}
	for _, p := range s.Properties {
		d := p.Descriptor
		add(d.Class, d.Field, fieldInfo{tag: d.Tag, kind: d.Kind, dest: d.DestinationClass})
	}
	return r
}

func (r *resolver) lookup(class ir.ClassName, field string) (fieldInfo, bool) {
	seen := make(map[ir.ClassName]bool)
	for c := class; c != "" && !seen[c]; c = r.bases[c] {
		seen[c] = true
		if info, ok := r.fields[c][field]; ok {
			return info, true
		}
	}
	return fieldInfo{}, false
}

func (r *resolver) resolve(class ir.ClassName, names []string) ([]ir.Tag, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("dependency path is empty")
	}
	tags := make([]ir.Tag, 0, len(names))
	current := class
	for i, name := range names {
		info, ok := r.lookup(current, name)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", current, name)
		}
		tags = append(tags, info.tag)
		if i == len(names)-1 {
			break
		}
		if !info.kind.IsReference() || info.dest == "" {
			return nil, fmt.Errorf("%s.%s is not a reference and cannot be followed", current, name)
		}
		current = info.dest
	}
	return tags, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
