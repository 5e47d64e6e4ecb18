package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/lexcache/internal/ir"
)

type memEntity struct {
	class    ir.ClassName
	owner    ir.EntityRef
	ownerTag ir.Tag
	scalars  map[ir.Tag]ir.IRValue
	texts    map[ir.Tag]map[ir.SubKey]string
	vectors  map[ir.Tag][]ir.EntityRef
}

// Memory is an in-process Repository. It mirrors Store semantics,
// including owner cascades and never-reused ids.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	entities map[int64]*memEntity
}

var _ Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{entities: make(map[int64]*memEntity)}
}

func (m *Memory) lookup(e ir.EntityRef) (*memEntity, error) {
	if err := requireReal(e); err != nil {
		return nil, err
	}
	ent, ok := m.entities[e.ID()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", e, ErrNotFound)
	}
	return ent, nil
}

func (m *Memory) ClassOf(_ context.Context, e ir.EntityRef) (ir.ClassName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return "", fmt.Errorf("class of: %w", err)
	}
	return ent.class, nil
}

func (m *Memory) Exists(_ context.Context, e ir.EntityRef) (bool, error) {
	if !e.IsReal() {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[e.ID()]
	return ok, nil
}

func (m *Memory) ReadScalar(_ context.Context, e ir.EntityRef, tag ir.Tag) (ir.IRValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return nil, fmt.Errorf("read scalar: %w", err)
	}
	if v, ok := ent.scalars[tag]; ok {
		return v, nil
	}
	return ir.IRNull{}, nil
}

func (m *Memory) ReadVector(_ context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return nil, fmt.Errorf("read vector: %w", err)
	}
	out := make([]ir.EntityRef, len(ent.vectors[tag]))
	copy(out, ent.vectors[tag])
	return out, nil
}

func (m *Memory) ReadText(_ context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return ent.texts[tag][sub], nil
}

func (m *Memory) TextAlternatives(_ context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.SubKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return nil, fmt.Errorf("text alternatives: %w", err)
	}
	subs := make([]ir.SubKey, 0, len(ent.texts[tag]))
	for sub := range ent.texts[tag] {
		subs = append(subs, sub)
	}
	slices.Sort(subs)
	return subs, nil
}

func (m *Memory) CreateEntity(_ context.Context, class ir.ClassName) (ir.EntityRef, error) {
	if class == "" {
		return ir.EntityRef{}, fmt.Errorf("create entity: empty class")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(class, ir.EntityRef{}, ir.NoTag), nil
}

func (m *Memory) CreateOwned(_ context.Context, class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error) {
	if class == "" {
		return ir.EntityRef{}, fmt.Errorf("create owned: empty class")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, err := m.lookup(owner)
	if err != nil {
		return ir.EntityRef{}, fmt.Errorf("create owned: owner: %w", err)
	}
	ref := m.insert(class, owner, field)
	parent.vectors[field] = append(parent.vectors[field], ref)
	return ref, nil
}

func (m *Memory) insert(class ir.ClassName, owner ir.EntityRef, tag ir.Tag) ir.EntityRef {
	m.nextID++
	m.entities[m.nextID] = &memEntity{
		class:    class,
		owner:    owner,
		ownerTag: tag,
		scalars:  make(map[ir.Tag]ir.IRValue),
		texts:    make(map[ir.Tag]map[ir.SubKey]string),
		vectors:  make(map[ir.Tag][]ir.EntityRef),
	}
	return ir.Real(m.nextID)
}

func (m *Memory) DeleteEntity(_ context.Context, e ir.EntityRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(e); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}

	removed := map[int64]bool{e.ID(): true}
	// Owned closure: repeat until no entity's owner is newly removed.
	for changed := true; changed; {
		changed = false
		for id, ent := range m.entities {
			if !removed[id] && ent.owner.IsReal() && removed[ent.owner.ID()] {
				removed[id] = true
				changed = true
			}
		}
	}
	for id := range removed {
		delete(m.entities, id)
	}
	for _, ent := range m.entities {
		for tag, refs := range ent.vectors {
			ent.vectors[tag] = slices.DeleteFunc(refs, func(r ir.EntityRef) bool {
				return removed[r.ID()]
			})
		}
	}
	return nil
}

func (m *Memory) OwnerOf(_ context.Context, e ir.EntityRef) (ir.EntityRef, ir.Tag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.lookup(e)
	if err != nil {
		return ir.EntityRef{}, ir.NoTag, false, fmt.Errorf("owner of: %w", err)
	}
	if ent.owner.IsZero() {
		return ir.EntityRef{}, ir.NoTag, false, nil
	}
	return ent.owner, ent.ownerTag, true, nil
}

func (m *Memory) WriteScalar(_ context.Context, e ir.EntityRef, tag ir.Tag, v ir.IRValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, err := m.lookup(e)
	if err != nil {
		return fmt.Errorf("write scalar: %w", err)
	}
	switch v.(type) {
	case nil, ir.IRNull:
		delete(ent.scalars, tag)
	case ir.IRInt, ir.IRBool:
		ent.scalars[tag] = v
	default:
		return fmt.Errorf("write scalar: unsupported value %T", v)
	}
	return nil
}

func (m *Memory) WriteText(_ context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, err := m.lookup(e)
	if err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	if text == "" {
		delete(ent.texts[tag], sub)
		return nil
	}
	if ent.texts[tag] == nil {
		ent.texts[tag] = make(map[ir.SubKey]string)
	}
	ent.texts[tag][sub] = text
	return nil
}

func (m *Memory) WriteVector(_ context.Context, e ir.EntityRef, tag ir.Tag, refs []ir.EntityRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, err := m.lookup(e)
	if err != nil {
		return fmt.Errorf("write vector: %w", err)
	}
	for _, r := range refs {
		if _, err := m.lookup(r); err != nil {
			return fmt.Errorf("write vector: target: %w", err)
		}
	}
	ent.vectors[tag] = slices.Clone(refs)
	return nil
}

func (m *Memory) Referrers(_ context.Context, target ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ir.EntityRef{}
	if !target.IsReal() {
		return out, nil
	}
	for id, ent := range m.entities {
		if slices.Contains(ent.vectors[tag], target) {
			out = append(out, ir.Real(id))
		}
	}
	slices.SortFunc(out, compareRefs)
	return out, nil
}

func (m *Memory) EntitiesOf(_ context.Context, class ir.ClassName) ([]ir.EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ir.EntityRef{}
	for id, ent := range m.entities {
		if ent.class == class {
			out = append(out, ir.Real(id))
		}
	}
	slices.SortFunc(out, compareRefs)
	return out, nil
}

func compareRefs(a, b ir.EntityRef) int {
	switch {
	case a.ID() < b.ID():
		return -1
	case a.ID() > b.ID():
		return 1
	}
	return 0
}
