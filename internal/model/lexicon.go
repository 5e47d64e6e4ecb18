package model

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/registry"
)

// BackReferences lists the entries whose Components contain an entry.
type BackReferences struct {
	Components ir.Tag
}

func (h *BackReferences) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	refs, err := env.Repo().Referrers(ctx, e, h.Components)
	if err != nil {
		return nil, fmt.Errorf("back references of %s: %w", e, err)
	}
	return ir.IRRefs(refs), nil
}

// LoadAll inverts Components over every entry in one pass. entities
// arrive in id order, so each list comes out sorted.
func (h *BackReferences) LoadAll(ctx context.Context, env registry.Env, _ ir.ClassName, entities []ir.EntityRef) (map[ir.EntityRef]ir.IRValue, error) {
	inverted := make(map[ir.EntityRef]ir.IRRefs, len(entities))
	for _, x := range entities {
		inverted[x] = ir.IRRefs{}
	}
	for _, x := range entities {
		components, err := env.Repo().ReadVector(ctx, x, h.Components)
		if err != nil {
			return nil, fmt.Errorf("components of %s: %w", x, err)
		}
		for _, c := range components {
			refs, ok := inverted[c]
			if !ok {
				continue
			}
			if n := len(refs); n > 0 && refs[n-1] == x {
				continue
			}
			inverted[c] = append(refs, x)
		}
	}
	out := make(map[ir.EntityRef]ir.IRValue, len(inverted))
	for e, refs := range inverted {
		out[e] = refs
	}
	return out, nil
}

// DependsOn reports Components: a change anywhere can add or remove a
// back reference on any entry.
func (h *BackReferences) DependsOn(changed ir.Tag) bool {
	return changed == h.Components
}

// HeadwordSortKey is the collation key of an entry's headword in one
// writing system, hex encoded. The sub key names the writing system as a
// BCP 47 tag.
type HeadwordSortKey struct {
	Headword ir.Tag

	collators map[ir.SubKey]*collate.Collator
	buf       collate.Buffer
}

// NewHeadwordSortKey returns a sort key handler reading headword.
func NewHeadwordSortKey(headword ir.Tag) *HeadwordSortKey {
	return &HeadwordSortKey{
		Headword:  headword,
		collators: make(map[ir.SubKey]*collate.Collator),
	}
}

func (h *HeadwordSortKey) Load(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error) {
	hw, err := textValue(ctx, env, e, h.Headword, sub)
	if err != nil {
		return nil, err
	}
	return ir.IRString(h.Key(sub, hw)), nil
}

// Key returns the sort key of s in writing system ws.
func (h *HeadwordSortKey) Key(ws ir.SubKey, s string) string {
	tag := language.Make(string(ws))
	c, ok := h.collators[ws]
	if !ok {
		c = collate.New(tag)
		h.collators[ws] = c
	}
	h.buf.Reset()
	return hex.EncodeToString(c.KeyFromString(&h.buf, cases.Lower(tag).String(s)))
}

func (h *HeadwordSortKey) DependsOn(ir.Tag) bool { return false }

// AllGlosses joins the glosses of an entry's senses with "; ", per
// writing system. Senses without a gloss in that writing system are
// skipped.
type AllGlosses struct {
	Senses ir.Tag
	Gloss  ir.Tag
}

func (h *AllGlosses) Load(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error) {
	senses, err := refsValue(ctx, env, e, h.Senses)
	if err != nil {
		return nil, err
	}
	var glosses []string
	for _, s := range senses {
		g, err := textValue(ctx, env, s, h.Gloss, sub)
		if err != nil {
			return nil, err
		}
		if g != "" {
			glosses = append(glosses, g)
		}
	}
	return ir.IRString(strings.Join(glosses, "; ")), nil
}

func (h *AllGlosses) DependsOn(ir.Tag) bool { return false }

// LexemeForm is the headword seen through a writable property.
type LexemeForm struct {
	Headword ir.Tag
}

func (h *LexemeForm) Load(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey) (ir.IRValue, error) {
	return env.Get(ctx, e, h.Headword, sub)
}

func (h *LexemeForm) DependsOn(ir.Tag) bool { return false }

func (h *LexemeForm) Write(ctx context.Context, env registry.Env, e ir.EntityRef, sub ir.SubKey, v ir.IRValue) error {
	return env.Set(ctx, e, h.Headword, sub, v)
}

// OutlineNumber is a sense's 1-based position among its owner's senses.
type OutlineNumber struct{}

func (h *OutlineNumber) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	n, err := position(ctx, env, e)
	if err != nil {
		return nil, err
	}
	return ir.IRString(strconv.Itoa(n)), nil
}

func (h *OutlineNumber) DependsOn(ir.Tag) bool { return false }

// SenseCount counts an entry's senses, attached placeholders included.
type SenseCount struct {
	Senses ir.Tag
}

func (h *SenseCount) Load(ctx context.Context, env registry.Env, e ir.EntityRef, _ ir.SubKey) (ir.IRValue, error) {
	senses, err := refsValue(ctx, env, e, h.Senses)
	if err != nil {
		return nil, err
	}
	return ir.IRInt(len(senses)), nil
}

func (h *SenseCount) LoadAll(ctx context.Context, env registry.Env, _ ir.ClassName, entities []ir.EntityRef) (map[ir.EntityRef]ir.IRValue, error) {
	out := make(map[ir.EntityRef]ir.IRValue, len(entities))
	for _, e := range entities {
		v, err := h.Load(ctx, env, e, ir.NoSubKey)
		if err != nil {
			return nil, err
		}
		out[e] = v
	}
	return out, nil
}

func (h *SenseCount) DependsOn(ir.Tag) bool { return false }
