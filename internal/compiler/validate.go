package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/lexcache/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateClass        = "E101" // class declared twice
	ErrUnknownBase           = "E102" // base class not declared
	ErrDuplicateTag          = "E103" // tag used by two fields
	ErrDuplicateField        = "E104" // field declared twice on one class
	ErrUnknownClass          = "E105" // field declared on an undeclared class
	ErrBadDestination        = "E106" // reference without (or with unknown) destination class
	ErrBadOwning             = "E107" // owning flag on a non-vector raw field
	ErrBadDescriptor         = "E108" // descriptor flags inconsistent
	ErrMissingHandler        = "E109" // property without a handler name
	ErrUnexpectedDestination = "E110" // destination on a non-reference kind
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema for consistency.
// Returns all errors found (does not fail-fast).
func Validate(s *ir.Schema) []ValidationError {
	var errs []ValidationError

	classes := make(map[ir.ClassName]bool, len(s.Classes))
	for i, c := range s.Classes {
		if classes[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("classes[%d]", i),
				Message: fmt.Sprintf("duplicate class %q", c.Name),
				Code:    ErrDuplicateClass,
			})
		}
		classes[c.Name] = true
	}
	for i, c := range s.Classes {
		if c.Base != "" && !classes[c.Base] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("classes[%d].base", i),
				Message: fmt.Sprintf("class %q extends unknown class %q", c.Name, c.Base),
				Code:    ErrUnknownBase,
			})
		}
	}

	tags := make(map[ir.Tag]string)
	fields := make(map[string]bool)
	claim := func(path string, class ir.ClassName, field string, tag ir.Tag) {
		key := string(class) + "." + field
		if !classes[class] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("%s is declared on unknown class %q", key, class),
				Code:    ErrUnknownClass,
			})
		}
		if fields[key] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("field %s declared twice", key),
				Code:    ErrDuplicateField,
			})
		}
		fields[key] = true
		if prev, ok := tags[tag]; ok {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("tag %d of %s already used by %s", tag, key, prev),
				Code:    ErrDuplicateTag,
			})
		} else {
			tags[tag] = key
		}
	}
	destination := func(path string, kind ir.Kind, dest ir.ClassName) {
		switch {
		case kind.IsReference() && dest == "":
			errs = append(errs, ValidationError{
				Field:   path + ".destination",
				Message: fmt.Sprintf("%s field requires a destination class", kind),
				Code:    ErrBadDestination,
			})
		case kind.IsReference() && !classes[dest]:
			errs = append(errs, ValidationError{
				Field:   path + ".destination",
				Message: fmt.Sprintf("unknown destination class %q", dest),
				Code:    ErrBadDestination,
			})
		case !kind.IsReference() && dest != "":
			errs = append(errs, ValidationError{
				Field:   path + ".destination",
				Message: fmt.Sprintf("%s field cannot have a destination class", kind),
				Code:    ErrUnexpectedDestination,
			})
		}
	}

	for i, raw := range s.Raw {
		path := fmt.Sprintf("raw[%d]", i)
		claim(path, raw.Class, raw.Field, raw.Tag)
		destination(path, raw.Kind, raw.DestinationClass)
		if raw.Owning && raw.Kind != ir.KindRefCollection && raw.Kind != ir.KindRefSequence {
			errs = append(errs, ValidationError{
				Field:   path + ".owning",
				Message: fmt.Sprintf("%s.%s: only collection and sequence fields can own", raw.Class, raw.Field),
				Code:    ErrBadOwning,
			})
		}
	}

	for i, p := range s.Properties {
		path := fmt.Sprintf("properties[%d]", i)
		d := p.Descriptor
		claim(path, d.Class, d.Field, d.Tag)
		destination(path, d.Kind, d.DestinationClass)
		if err := d.Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: err.Error(),
				Code:    ErrBadDescriptor,
			})
		}
		if strings.TrimSpace(p.Handler) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".handler",
				Message: fmt.Sprintf("%s has no handler", d.Key()),
				Code:    ErrMissingHandler,
			})
		}
	}

	return errs
}
