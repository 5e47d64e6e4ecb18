package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lexcache/internal/ir"
)

var (
	// ErrDuplicateRegistration is returned when a (class, field) pair or a
	// tag is bound twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrUnknownClass is returned when a class has not been defined.
	ErrUnknownClass = errors.New("unknown class")
)

// Binding is a registered computed property.
type Binding struct {
	Descriptor ir.PropertyDescriptor
	Handler    Handler
}

// Registry maps (class, field) to bindings.
// It is not safe for concurrent mutation; build it before serving reads.
type Registry struct {
	bases   map[ir.ClassName]ir.ClassName
	classes []ir.ClassName

	raw      map[ir.ClassName]map[string]ir.RawProperty
	rawByTag map[ir.Tag]ir.RawProperty

	byField  map[ir.ClassName]map[string]*Binding
	byTag    map[ir.Tag]*Binding
	bindings []*Binding
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		bases:    make(map[ir.ClassName]ir.ClassName),
		raw:      make(map[ir.ClassName]map[string]ir.RawProperty),
		rawByTag: make(map[ir.Tag]ir.RawProperty),
		byField:  make(map[ir.ClassName]map[string]*Binding),
		byTag:    make(map[ir.Tag]*Binding),
	}
}

// DefineClass adds a class. base must already be defined, or be empty for
// a root class.
func (r *Registry) DefineClass(name, base ir.ClassName) error {
	if name == "" {
		return fmt.Errorf("define class: empty name")
	}
	if _, exists := r.bases[name]; exists {
		return fmt.Errorf("define class %s: %w", name, ErrDuplicateRegistration)
	}
	if base != "" {
		if _, ok := r.bases[base]; !ok {
			return fmt.Errorf("define class %s: base %s: %w", name, base, ErrUnknownClass)
		}
	}
	r.bases[name] = base
	r.classes = append(r.classes, name)
	return nil
}

// HasClass reports whether name is defined.
func (r *Registry) HasClass(name ir.ClassName) bool {
	_, ok := r.bases[name]
	return ok
}

// Classes returns defined classes in definition order.
func (r *Registry) Classes() []ir.ClassName {
	return slices.Clone(r.classes)
}

// Base returns the base class of name ("" for a root or unknown class).
func (r *Registry) Base(name ir.ClassName) ir.ClassName {
	return r.bases[name]
}

// IsA reports whether class equals ancestor or derives from it.
func (r *Registry) IsA(class, ancestor ir.ClassName) bool {
	for c := class; c != ""; c = r.bases[c] {
		if c == ancestor {
			return true
		}
		if _, ok := r.bases[c]; !ok {
			return false
		}
	}
	return false
}

// DefineRaw declares a durable property.
func (r *Registry) DefineRaw(p ir.RawProperty) error {
	if !r.HasClass(p.Class) {
		return fmt.Errorf("define raw %s.%s: %w", p.Class, p.Field, ErrUnknownClass)
	}
	if p.Tag <= ir.NoTag {
		return fmt.Errorf("define raw %s.%s: tag must be positive", p.Class, p.Field)
	}
	if p.Kind == ir.KindInvalid {
		return fmt.Errorf("define raw %s.%s: kind is required", p.Class, p.Field)
	}
	if r.tagInUse(p.Tag) {
		return fmt.Errorf("define raw %s.%s: tag %d: %w", p.Class, p.Field, p.Tag, ErrDuplicateRegistration)
	}
	if _, ok := r.raw[p.Class][p.Field]; ok {
		return fmt.Errorf("define raw %s.%s: %w", p.Class, p.Field, ErrDuplicateRegistration)
	}
	if r.raw[p.Class] == nil {
		r.raw[p.Class] = make(map[string]ir.RawProperty)
	}
	r.raw[p.Class][p.Field] = p
	r.rawByTag[p.Tag] = p
	return nil
}

// Raw looks up a raw property by field, walking the class hierarchy.
func (r *Registry) Raw(class ir.ClassName, field string) (ir.RawProperty, bool) {
	for c := class; c != ""; c = r.bases[c] {
		if p, ok := r.raw[c][field]; ok {
			return p, true
		}
	}
	return ir.RawProperty{}, false
}

// RawTag returns the raw property declared with tag.
func (r *Registry) RawTag(tag ir.Tag) (ir.RawProperty, bool) {
	p, ok := r.rawByTag[tag]
	return p, ok
}

// RawProperties returns every raw property declared on class or its bases.
func (r *Registry) RawProperties(class ir.ClassName) []ir.RawProperty {
	var out []ir.RawProperty
	for c := class; c != ""; c = r.bases[c] {
		for _, p := range r.raw[c] {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b ir.RawProperty) int { return int(a.Tag - b.Tag) })
	return out
}

func (r *Registry) tagInUse(t ir.Tag) bool {
	if _, ok := r.rawByTag[t]; ok {
		return true
	}
	_, ok := r.byTag[t]
	return ok
}

// Register binds a computed property to its handler.
func (r *Registry) Register(d ir.PropertyDescriptor, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", d.Key())
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !r.HasClass(d.Class) {
		return fmt.Errorf("register %s: %w", d.Key(), ErrUnknownClass)
	}
	if _, ok := r.byField[d.Class][d.Field]; ok {
		return fmt.Errorf("register %s: %w", d.Key(), ErrDuplicateRegistration)
	}
	if _, ok := r.raw[d.Class][d.Field]; ok {
		return fmt.Errorf("register %s: field is raw: %w", d.Key(), ErrDuplicateRegistration)
	}
	if r.tagInUse(d.Tag) {
		return fmt.Errorf("register %s: tag %d: %w", d.Key(), d.Tag, ErrDuplicateRegistration)
	}
	if d.Writable {
		if _, ok := h.(Writer); !ok {
			return fmt.Errorf("register %s: writable property handler does not implement Write", d.Key())
		}
	}

	b := &Binding{Descriptor: d.Clone(), Handler: h}
	if r.byField[d.Class] == nil {
		r.byField[d.Class] = make(map[string]*Binding)
	}
	r.byField[d.Class][d.Field] = b
	r.byTag[d.Tag] = b
	r.bindings = append(r.bindings, b)
	return nil
}

// Lookup returns the binding for (class, field), walking the class
// hierarchy so the most derived registration wins.
func (r *Registry) Lookup(class ir.ClassName, field string) (*Binding, bool) {
	for c := class; c != ""; c = r.bases[c] {
		if b, ok := r.byField[c][field]; ok {
			return b, true
		}
	}
	return nil, false
}

// LookupTag returns the binding for tag if it applies to class.
func (r *Registry) LookupTag(class ir.ClassName, tag ir.Tag) (*Binding, bool) {
	b, ok := r.byTag[tag]
	if !ok {
		return nil, false
	}
	if !r.IsA(class, b.Descriptor.Class) {
		return nil, false
	}
	// A subclass may override the field with its own tag.
	if override, ok := r.Lookup(class, b.Descriptor.Field); ok && override != b {
		return nil, false
	}
	return b, true
}

// ByTag returns the binding registered with tag regardless of class.
func (r *Registry) ByTag(tag ir.Tag) (*Binding, bool) {
	b, ok := r.byTag[tag]
	return b, ok
}

// Bindings returns every binding in registration order.
func (r *Registry) Bindings() []*Binding {
	return slices.Clone(r.bindings)
}

// Dependents returns bindings with a dependency path that mentions tag,
// in registration order.
func (r *Registry) Dependents(tag ir.Tag) []*Binding {
	var out []*Binding
	for _, b := range r.bindings {
		if b.Descriptor.DependsOnTag(tag) {
			out = append(out, b)
		}
	}
	return out
}

// TagName renders a tag as Class.Field for logs and errors.
func (r *Registry) TagName(tag ir.Tag) string {
	if b, ok := r.byTag[tag]; ok {
		return b.Descriptor.Key()
	}
	if p, ok := r.rawByTag[tag]; ok {
		return string(p.Class) + "." + p.Field
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// FieldTag resolves a field name on class to its tag, raw or computed.
func (r *Registry) FieldTag(class ir.ClassName, field string) (ir.Tag, bool) {
	if b, ok := r.Lookup(class, field); ok {
		return b.Descriptor.Tag, true
	}
	if p, ok := r.Raw(class, field); ok {
		return p.Tag, true
	}
	return ir.NoTag, false
}

// RawReferenceProperties returns every raw property of a reference kind,
// ordered by tag.
func (r *Registry) RawReferenceProperties() []ir.RawProperty {
	var out []ir.RawProperty
	for _, p := range r.rawByTag {
		if p.Kind.IsReference() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b ir.RawProperty) int { return int(a.Tag - b.Tag) })
	return out
}
