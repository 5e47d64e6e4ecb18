package store

import (
	"context"
	"errors"

	"github.com/roach88/lexcache/internal/ir"
)

// ErrNotFound is returned when an entity id does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrNotReal is returned when a placeholder reference reaches the durable
// store. Placeholders are tracked by the engine, never by the repository.
var ErrNotReal = errors.New("reference is not a real entity")

// Repository is the durable entity store collaborator.
//
// Every method that takes an EntityRef fails with ErrNotFound when the
// entity does not exist and with ErrNotReal when handed a placeholder.
// Calls are expected to be bounded and synchronous.
type Repository interface {
	// ClassOf returns the exact class of e.
	ClassOf(ctx context.Context, e ir.EntityRef) (ir.ClassName, error)

	// Exists reports whether e is a live durable entity.
	Exists(ctx context.Context, e ir.EntityRef) (bool, error)

	// ReadScalar returns a non-text atomic value (IRInt or IRBool), or
	// IRNull when the field was never written.
	ReadScalar(ctx context.Context, e ir.EntityRef, tag ir.Tag) (ir.IRValue, error)

	// ReadVector returns the ordered references stored in a vector field.
	// An unwritten vector is empty, not an error.
	ReadVector(ctx context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error)

	// ReadText returns one alternative of a text field ("" when unwritten).
	ReadText(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (string, error)

	// TextAlternatives returns the sub keys that hold a value for a text field.
	TextAlternatives(ctx context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.SubKey, error)

	// CreateEntity creates an unowned durable entity.
	CreateEntity(ctx context.Context, class ir.ClassName) (ir.EntityRef, error)

	// CreateOwned creates a durable entity and appends it to owner's
	// owning vector field.
	CreateOwned(ctx context.Context, class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error)

	// DeleteEntity removes e, everything it owns, and every vector entry
	// pointing at any removed entity.
	DeleteEntity(ctx context.Context, e ir.EntityRef) error

	// OwnerOf returns the owner and owning field of e. ok is false for
	// unowned entities.
	OwnerOf(ctx context.Context, e ir.EntityRef) (owner ir.EntityRef, field ir.Tag, ok bool, err error)

	WriteScalar(ctx context.Context, e ir.EntityRef, tag ir.Tag, v ir.IRValue) error
	WriteText(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey, text string) error
	WriteVector(ctx context.Context, e ir.EntityRef, tag ir.Tag, refs []ir.EntityRef) error

	// Referrers returns every entity whose vector field tag contains target.
	Referrers(ctx context.Context, target ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error)

	// EntitiesOf returns every entity whose exact class is class.
	EntitiesOf(ctx context.Context, class ir.ClassName) ([]ir.EntityRef, error)
}

// requireReal rejects placeholder and zero references.
func requireReal(e ir.EntityRef) error {
	if e.IsReal() {
		return nil
	}
	if e.IsPlaceholder() {
		return ErrNotReal
	}
	return ErrNotFound
}
