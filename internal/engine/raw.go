package engine

import (
	"context"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// rawFor returns the raw property tag if it applies to class.
func (e *Engine) rawFor(class ir.ClassName, tag ir.Tag) (ir.RawProperty, bool) {
	raw, ok := e.reg.RawTag(tag)
	if !ok || !e.reg.IsA(class, raw.Class) {
		return ir.RawProperty{}, false
	}
	return raw, true
}

// emptyRaw is what an unwritten raw property reads as.
func emptyRaw(k ir.Kind) ir.IRValue {
	switch k {
	case ir.KindText, ir.KindMultiText:
		return ir.IRString("")
	case ir.KindRefCollection, ir.KindRefSequence:
		return ir.IRRefs{}
	default:
		return ir.IRNull{}
	}
}

// readRaw reads a durable field. Owning vectors of real entities include
// the placeholders currently attached to them, after the durable members.
func (e *Engine) readRaw(ctx context.Context, ent ir.EntityRef, raw ir.RawProperty, sub ir.SubKey) (ir.IRValue, error) {
	if !raw.Kind.UsesSubKey() {
		sub = ir.NoSubKey
	}
	if ent.IsPlaceholder() {
		if v, ok := e.holders.Attr(ent, raw.Tag, sub); ok {
			return v, nil
		}
		if raw.Kind == ir.KindRefCollection || raw.Kind == ir.KindRefSequence {
			return ir.IRRefs(e.holders.Owned(ent, raw.Tag)), nil
		}
		return emptyRaw(raw.Kind), nil
	}

	switch raw.Kind {
	case ir.KindScalar, ir.KindBoolean:
		v, err := e.repo.ReadScalar(ctx, ent, raw.Tag)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", raw.Class, raw.Field, err)
		}
		return v, nil
	case ir.KindText, ir.KindMultiText:
		s, err := e.repo.ReadText(ctx, ent, raw.Tag, sub)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", raw.Class, raw.Field, err)
		}
		return ir.IRString(s), nil
	case ir.KindRefAtomic:
		refs, err := e.repo.ReadVector(ctx, ent, raw.Tag)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", raw.Class, raw.Field, err)
		}
		if len(refs) == 0 {
			return ir.IRNull{}, nil
		}
		return ir.IRRef(refs[0]), nil
	case ir.KindRefCollection, ir.KindRefSequence:
		refs, err := e.repo.ReadVector(ctx, ent, raw.Tag)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", raw.Class, raw.Field, err)
		}
		if raw.Owning {
			refs = append(refs, e.holders.Owned(ent, raw.Tag)...)
		}
		return ir.IRRefs(refs), nil
	}
	return nil, fmt.Errorf("read %s.%s: unsupported kind %s", raw.Class, raw.Field, raw.Kind)
}

// writeRaw stores a durable field of a real entity. Placeholder targets
// cannot be written to the durable store.
func (e *Engine) writeRaw(ctx context.Context, ent ir.EntityRef, raw ir.RawProperty, sub ir.SubKey, v ir.IRValue) error {
	property := string(raw.Class) + "." + raw.Field
	if !raw.Kind.Accepts(v) {
		return newError(CodeTypeMismatch, ent, property, fmt.Sprintf("cannot write %T to %s property", v, raw.Kind), nil)
	}
	v, err := e.checkRefs(ctx, ent, property, v)
	if err != nil {
		return err
	}
	for _, r := range ir.Refs(v) {
		if r.IsPlaceholder() {
			return newError(CodeDanglingReference, ent, property,
				fmt.Sprintf("%s must be promoted before it can be stored", r), nil)
		}
	}

	switch raw.Kind {
	case ir.KindScalar, ir.KindBoolean:
		err = e.repo.WriteScalar(ctx, ent, raw.Tag, v)
	case ir.KindText, ir.KindMultiText:
		if !raw.Kind.UsesSubKey() {
			sub = ir.NoSubKey
		}
		s, _ := v.(ir.IRString)
		err = e.repo.WriteText(ctx, ent, raw.Tag, sub, string(s))
	case ir.KindRefAtomic:
		var refs []ir.EntityRef
		if r, ok := v.(ir.IRRef); ok && !r.Ref().IsZero() {
			refs = []ir.EntityRef{r.Ref()}
		}
		err = e.repo.WriteVector(ctx, ent, raw.Tag, refs)
	case ir.KindRefCollection, ir.KindRefSequence:
		refs, _ := v.(ir.IRRefs)
		err = e.repo.WriteVector(ctx, ent, raw.Tag, refs)
	default:
		err = fmt.Errorf("unsupported kind %s", raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("write %s of %s: %w", property, ent, err)
	}
	return nil
}
