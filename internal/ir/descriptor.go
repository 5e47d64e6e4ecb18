package ir

import (
	"fmt"
	"slices"
)

// PropertyDescriptor describes one computed property.
// It is immutable once registered; the registry hands out copies.
type PropertyDescriptor struct {
	Class ClassName `json:"class"`
	Field string    `json:"field"`
	Tag   Tag       `json:"tag"`
	Kind  Kind      `json:"kind"`

	// Writable properties accept Set; the handler must implement Writer.
	Writable bool `json:"writable"`

	// ComputeEveryTime properties are never served from a populated slot.
	ComputeEveryTime bool `json:"compute_every_time"`

	// WriteThrough means a successful write is trusted as the new cached
	// value instead of being re-derived through Load.
	WriteThrough bool `json:"write_through"`

	// DestinationClass is the target class of reference kinds.
	DestinationClass ClassName `json:"destination_class,omitempty"`

	// DependencyPaths lists chains of tags. In each path every tag but the
	// last is a reference property followed from the dependent entity; the
	// last tag is the raw property whose change invalidates this one.
	DependencyPaths [][]Tag `json:"dependency_paths,omitempty"`
}

// Key returns the (class, field) registration key.
func (d PropertyDescriptor) Key() string {
	return string(d.Class) + "." + d.Field
}

// DependsOnTag reports whether any dependency path mentions t.
func (d PropertyDescriptor) DependsOnTag(t Tag) bool {
	for _, path := range d.DependencyPaths {
		if slices.Contains(path, t) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot alias DependencyPaths.
func (d PropertyDescriptor) Clone() PropertyDescriptor {
	out := d
	if d.DependencyPaths != nil {
		out.DependencyPaths = make([][]Tag, len(d.DependencyPaths))
		for i, p := range d.DependencyPaths {
			out.DependencyPaths[i] = slices.Clone(p)
		}
	}
	return out
}

// Validate checks the descriptor for internal consistency.
func (d PropertyDescriptor) Validate() error {
	if d.Class == "" {
		return fmt.Errorf("descriptor %q: class is required", d.Field)
	}
	if d.Field == "" {
		return fmt.Errorf("descriptor on %s: field is required", d.Class)
	}
	if d.Tag <= NoTag {
		return fmt.Errorf("descriptor %s: tag must be positive, got %d", d.Key(), d.Tag)
	}
	if d.Kind == KindInvalid {
		return fmt.Errorf("descriptor %s: kind is required", d.Key())
	}
	if d.WriteThrough && !d.Writable {
		return fmt.Errorf("descriptor %s: write_through requires writable", d.Key())
	}
	for i, path := range d.DependencyPaths {
		if len(path) == 0 {
			return fmt.Errorf("descriptor %s: dependency path %d is empty", d.Key(), i)
		}
	}
	return nil
}

// RawProperty describes a durable field held by the entity store.
// Raw properties are never computed; they are declared so dependency
// paths can be written by name and resolved to tags.
type RawProperty struct {
	Class            ClassName `json:"class"`
	Field            string    `json:"field"`
	Tag              Tag       `json:"tag"`
	Kind             Kind      `json:"kind"`
	Owning           bool      `json:"owning,omitempty"`
	DestinationClass ClassName `json:"destination_class,omitempty"`
}

// ClassSpec declares an entity class and its base class.
// The root class has an empty Base.
type ClassSpec struct {
	Name ClassName `json:"name"`
	Base ClassName `json:"base,omitempty"`
}

// PropertySpec binds a descriptor to the name of the handler implementing it.
type PropertySpec struct {
	Descriptor PropertyDescriptor `json:"descriptor"`
	Handler    string             `json:"handler"`
}

// Schema is the compiled form of a schema declaration.
type Schema struct {
	Classes    []ClassSpec    `json:"classes"`
	Raw        []RawProperty  `json:"raw"`
	Properties []PropertySpec `json:"properties"`
}

// RawByField returns the raw property declared on exactly class with the given field.
func (s *Schema) RawByField(class ClassName, field string) (RawProperty, bool) {
	for _, r := range s.Raw {
		if r.Class == class && r.Field == field {
			return r, true
		}
	}
	return RawProperty{}, false
}

// TagName returns "Class.Field" for a raw or computed tag, or the number.
func (s *Schema) TagName(t Tag) string {
	for _, r := range s.Raw {
		if r.Tag == t {
			return string(r.Class) + "." + r.Field
		}
	}
	for _, p := range s.Properties {
		if p.Descriptor.Tag == t {
			return p.Descriptor.Key()
		}
	}
	return fmt.Sprintf("tag(%d)", t)
}
