package model

import (
	"context"
	"fmt"
	"slices"
	"unicode"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// textValue reads a text property of e as a Go string.
func textValue(ctx context.Context, env registry.Env, e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (string, error) {
	v, err := env.Get(ctx, e, tag, sub)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case ir.IRString:
		return string(s), nil
	case ir.IRNull:
		return "", nil
	}
	return "", fmt.Errorf("%s: expected text, got %T", e, v)
}

// refsValue reads a reference vector of e.
func refsValue(ctx context.Context, env registry.Env, e ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	v, err := env.Get(ctx, e, tag, ir.NoSubKey)
	if err != nil {
		return nil, err
	}
	switch refs := v.(type) {
	case ir.IRRefs:
		return refs, nil
	case ir.IRNull:
		return nil, nil
	}
	return nil, fmt.Errorf("%s: expected references, got %T", e, v)
}

// ownerOf returns the owner of e and the field it is owned through, from
// the repository for durable entities and from the record for placeholders.
func ownerOf(ctx context.Context, env registry.Env, e ir.EntityRef) (ir.EntityRef, ir.Tag, bool, error) {
	if e.IsPlaceholder() {
		rec, ok := env.Placeholder(e)
		if !ok || !rec.HasOwner() {
			return ir.EntityRef{}, ir.NoTag, false, nil
		}
		return rec.OwningEntity, rec.OwningField, true, nil
	}
	return env.Repo().OwnerOf(ctx, e)
}

// position returns the 1-based index of e in the field it is owned
// through, or 0 when e is unowned.
func position(ctx context.Context, env registry.Env, e ir.EntityRef) (int, error) {
	owner, field, ok, err := ownerOf(ctx, env, e)
	if err != nil || !ok {
		return 0, err
	}
	siblings, err := refsValue(ctx, env, owner, field)
	if err != nil {
		return 0, err
	}
	return slices.Index(siblings, e) + 1, nil
}

type token struct {
	form   string
	offset int // in runes
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '\''
}

// tokenize splits s into words: maximal runs of letters, digits, combining
// marks and apostrophes.
func tokenize(s string) []token {
	var out []token
	var word []rune
	start := 0
	i := 0
	for _, r := range s {
		if isWordRune(r) {
			if len(word) == 0 {
				start = i
			}
			word = append(word, r)
		} else if len(word) > 0 {
			out = append(out, token{form: string(word), offset: start})
			word = word[:0]
		}
		i++
	}
	if len(word) > 0 {
		out = append(out, token{form: string(word), offset: start})
	}
	return out
}
