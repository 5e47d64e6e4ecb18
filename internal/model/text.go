package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// WordCount counts the words in a paragraph's contents.
type WordCount struct {
	Contents ir.Tag
}

func (h *WordCount) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	s, err := textValue(ctx, env, e, h.Contents, ir.NoSubKey)
	if err != nil {
		return nil, err
	}
	return ir.IRInt(len(tokenize(s))), nil
}

func (h *WordCount) DependsOn(ir.Tag) bool { return false }

// Baseline is a paragraph's contents with runs of whitespace collapsed to
// single spaces. Writing it replaces the contents.
type Baseline struct {
	Contents ir.Tag
}

func (h *Baseline) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	s, err := textValue(ctx, env, e, h.Contents, ir.NoSubKey)
	if err != nil {
		return nil, err
	}
	return ir.IRString(strings.Join(strings.Fields(s), " ")), nil
}

func (h *Baseline) DependsOn(ir.Tag) bool { return false }

func (h *Baseline) Write(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey, v ir.IRValue) error {
	return env.Set(ctx, e, h.Contents, ir.NoSubKey, v)
}

type issuedKey struct {
	para  ir.EntityRef
	index int
}

// Wordforms parses a paragraph into word occurrences.
//
// Durable occurrences already in the paragraph are reused, in order, for
// tokens with the same form. Remaining tokens get placeholders owned by
// (paragraph, Wordforms) with provisional Form and BeginOffset; the same
// placeholder is handed out again while the token at that index keeps its
// form. Wordforms promotes its own placeholders on demand by appending a
// durable occurrence to the paragraph's Occurrences.
type Wordforms struct {
	Self        ir.Tag
	Contents    ir.Tag
	Occurrences ir.Tag
	Form        ir.Tag
	BeginOffset ir.Tag

	issued map[issuedKey]ir.EntityRef
}

func newWordforms(t *Tags) registry.Handler {
	return &Wordforms{
		Self:        t.Wordforms,
		Contents:    t.Contents,
		Occurrences: t.Occurrences,
		Form:        t.Form,
		BeginOffset: t.BeginOffset,
		issued:      make(map[issuedKey]ir.EntityRef),
	}
}

func (h *Wordforms) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	contents, err := textValue(ctx, env, e, h.Contents, ir.NoSubKey)
	if err != nil {
		return nil, err
	}
	existing, err := refsValue(ctx, env, e, h.Occurrences)
	if err != nil {
		return nil, err
	}
	durable := make(map[string][]ir.EntityRef)
	for _, occ := range existing {
		form, err := textValue(ctx, env, occ, h.Form, ir.NoSubKey)
		if err != nil {
			return nil, err
		}
		durable[form] = append(durable[form], occ)
	}

	tokens := tokenize(contents)
	out := make(ir.IRRefs, 0, len(tokens))
	for i, tok := range tokens {
		if refs := durable[tok.form]; len(refs) > 0 {
			out = append(out, refs[0])
			durable[tok.form] = refs[1:]
			continue
		}
		p, err := h.placeholderFor(ctx, env, issuedKey{para: e, index: i}, tok)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *Wordforms) placeholderFor(ctx context.Context, env registry.Env, key issuedKey, tok token) (ir.EntityRef, error) {
	if p, ok := h.issued[key]; ok {
		if rec, live := env.Placeholder(p); live && rec.Attrs[ir.AttrKey{Tag: h.Form}] == ir.IRString(tok.form) {
			if rec.Attrs[ir.AttrKey{Tag: h.BeginOffset}] != ir.IRInt(tok.offset) {
				if err := env.SetProvisional(ctx, p, h.BeginOffset, ir.NoSubKey, ir.IRInt(tok.offset)); err != nil {
					return ir.EntityRef{}, err
				}
			}
			return p, nil
		}
		delete(h.issued, key)
	}

	p, err := env.CreatePlaceholder(ctx, "WordOccurrence", key.para, h.Self)
	if err != nil {
		return ir.EntityRef{}, err
	}
	if err := env.SetProvisional(ctx, p, h.Form, ir.NoSubKey, ir.IRString(tok.form)); err != nil {
		return ir.EntityRef{}, err
	}
	if err := env.SetProvisional(ctx, p, h.BeginOffset, ir.NoSubKey, ir.IRInt(tok.offset)); err != nil {
		return ir.EntityRef{}, err
	}
	h.issued[key] = p
	return p, nil
}

func (h *Wordforms) DependsOn(ir.Tag) bool { return false }

// Promote makes a placeholder issued by Wordforms durable. Only mandatory
// requests are honoured; a paragraph that is itself provisional declines.
func (h *Wordforms) Promote(ctx context.Context, env registry.Env, req ir.PromotionRequest, rec ir.PlaceholderRecord) (ir.EntityRef, bool, error) {
	if !req.MustSucceedNow || rec.OwningField != h.Self || !rec.OwningEntity.IsReal() {
		return ir.EntityRef{}, false, nil
	}
	para := rec.OwningEntity

	real, err := env.Repo().CreateOwned(ctx, rec.Class, para, h.Occurrences)
	if err != nil {
		return ir.EntityRef{}, true, fmt.Errorf("promote %s: %w", rec.Ref(), err)
	}
	for _, tag := range []ir.Tag{h.Form, h.BeginOffset} {
		v, ok := rec.Attrs[ir.AttrKey{Tag: tag}]
		if !ok {
			continue
		}
		if err := env.Set(ctx, real, tag, ir.NoSubKey, v); err != nil {
			return ir.EntityRef{}, true, fmt.Errorf("promote %s: %w", rec.Ref(), err)
		}
	}
	for key, p := range h.issued {
		if p == rec.Ref() {
			delete(h.issued, key)
		}
	}
	return real, true, env.Invalidate(ctx, para, h.Occurrences)
}

// Annotations lists the annotations targeting a word occurrence. A
// placeholder has none until it is promoted; loading asks for promotion
// but does not insist.
type Annotations struct {
	Self   ir.Tag
	Target ir.Tag
}

func (h *Annotations) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	if e.IsPlaceholder() {
		real, err := env.RequestPromotion(ctx, ir.PromotionRequest{Placeholder: e, Tag: h.Self})
		if err != nil {
			return nil, err
		}
		if real.IsPlaceholder() {
			return ir.IRRefs{}, nil
		}
		e = real
	}
	refs, err := env.Repo().Referrers(ctx, e, h.Target)
	if err != nil {
		return nil, fmt.Errorf("annotations of %s: %w", e, err)
	}
	return ir.IRRefs(refs), nil
}

// DependsOn reports Target: any retargeted annotation may add to or remove
// from any occurrence.
func (h *Annotations) DependsOn(changed ir.Tag) bool {
	return changed == h.Target
}

// Reference locates a word occurrence as "<paragraph>:<occurrence>", both
// 1-based. An unowned paragraph or occurrence numbers as 0.
type Reference struct{}

func (h *Reference) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	occ, err := position(ctx, env, e)
	if err != nil {
		return nil, err
	}
	para := 0
	if owner, _, ok, err := ownerOf(ctx, env, e); err != nil {
		return nil, err
	} else if ok {
		if para, err = position(ctx, env, owner); err != nil {
			return nil, err
		}
	}
	return ir.IRString(fmt.Sprintf("%d:%d", para, occ)), nil
}

func (h *Reference) DependsOn(ir.Tag) bool { return false }
