package cache

import (
	"maps"
	"slices"

	"github.com/roach88/lexcache/internal/ir"
)

// BulkKey identifies one bulk table.
type BulkKey struct {
	Tag   ir.Tag
	Class ir.ClassName
}

// BulkTable is the result of one bulk pass.
type BulkTable struct {
	Epoch  int64
	Values map[ir.EntityRef]ir.IRValue
}

// Store maps (entity, tag, subKey) to values.
type Store struct {
	slots map[ir.EntityRef]map[ir.Tag]map[ir.SubKey]ir.IRValue
	bulk  map[BulkKey]*BulkTable
}

// New returns an empty store.
func New() *Store {
	return &Store{
		slots: make(map[ir.EntityRef]map[ir.Tag]map[ir.SubKey]ir.IRValue),
		bulk:  make(map[BulkKey]*BulkTable),
	}
}

// Lookup returns the slot value and whether the slot is populated.
func (s *Store) Lookup(e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (ir.IRValue, bool) {
	v, ok := s.slots[e][tag][sub]
	return v, ok
}

// Put populates a slot, overwriting any previous value.
func (s *Store) Put(e ir.EntityRef, tag ir.Tag, sub ir.SubKey, v ir.IRValue) {
	byTag := s.slots[e]
	if byTag == nil {
		byTag = make(map[ir.Tag]map[ir.SubKey]ir.IRValue)
		s.slots[e] = byTag
	}
	bySub := byTag[tag]
	if bySub == nil {
		bySub = make(map[ir.SubKey]ir.IRValue)
		byTag[tag] = bySub
	}
	bySub[sub] = v
}

// Clear removes every slot of (e, tag) across sub keys and drops e from
// bulk tables for tag. It reports whether anything was removed.
func (s *Store) Clear(e ir.EntityRef, tag ir.Tag) bool {
	removed := false
	if byTag := s.slots[e]; byTag != nil {
		if _, ok := byTag[tag]; ok {
			delete(byTag, tag)
			removed = true
		}
		if len(byTag) == 0 {
			delete(s.slots, e)
		}
	}
	for key, table := range s.bulk {
		if key.Tag != tag {
			continue
		}
		if _, ok := table.Values[e]; ok {
			delete(table.Values, e)
			removed = true
		}
	}
	return removed
}

// ClearEntity removes every slot and bulk entry of e.
func (s *Store) ClearEntity(e ir.EntityRef) {
	delete(s.slots, e)
	for _, table := range s.bulk {
		delete(table.Values, e)
	}
}

// ClearTag removes every slot of tag and every bulk table for tag.
func (s *Store) ClearTag(tag ir.Tag) {
	for e, byTag := range s.slots {
		delete(byTag, tag)
		if len(byTag) == 0 {
			delete(s.slots, e)
		}
	}
	for key := range s.bulk {
		if key.Tag == tag {
			delete(s.bulk, key)
		}
	}
}

// Reset drops every slot and bulk table.
func (s *Store) Reset() {
	clear(s.slots)
	clear(s.bulk)
}

// Len returns the number of populated slots.
func (s *Store) Len() int {
	n := 0
	for _, byTag := range s.slots {
		for _, bySub := range byTag {
			n += len(bySub)
		}
	}
	return n
}

// Bulk returns the bulk table for key, or nil if none has been filled.
func (s *Store) Bulk(key BulkKey) *BulkTable {
	return s.bulk[key]
}

// SetBulk installs the result of a bulk pass.
func (s *Store) SetBulk(key BulkKey, epoch int64, values map[ir.EntityRef]ir.IRValue) *BulkTable {
	if values == nil {
		values = make(map[ir.EntityRef]ir.IRValue)
	}
	t := &BulkTable{Epoch: epoch, Values: values}
	s.bulk[key] = t
	return t
}

// DropBulk removes the bulk table for key.
func (s *Store) DropBulk(key BulkKey) {
	delete(s.bulk, key)
}

// BulkKeys returns the keys of every filled bulk table.
func (s *Store) BulkKeys() []BulkKey {
	keys := slices.Collect(maps.Keys(s.bulk))
	slices.SortFunc(keys, func(a, b BulkKey) int {
		if a.Tag != b.Tag {
			return int(a.Tag - b.Tag)
		}
		switch {
		case a.Class < b.Class:
			return -1
		case a.Class > b.Class:
			return 1
		}
		return 0
	})
	return keys
}

// RewriteRef replaces from with to in every slot and bulk entry, and
// returns how many values changed. Slots keyed by from itself are not
// moved; callers clear them.
func (s *Store) RewriteRef(from, to ir.EntityRef) int {
	n := 0
	for _, byTag := range s.slots {
		for _, bySub := range byTag {
			for sub, v := range bySub {
				if nv, changed := ir.ReplaceRef(v, from, to); changed {
					bySub[sub] = nv
					n++
				}
			}
		}
	}
	for _, table := range s.bulk {
		for e, v := range table.Values {
			if nv, changed := ir.ReplaceRef(v, from, to); changed {
				table.Values[e] = nv
				n++
			}
		}
	}
	return n
}

// ContainsRef reports whether any slot or bulk entry holds target.
func (s *Store) ContainsRef(target ir.EntityRef) bool {
	for _, byTag := range s.slots {
		for _, bySub := range byTag {
			for _, v := range bySub {
				if ir.ContainsRef(v, target) {
					return true
				}
			}
		}
	}
	for _, table := range s.bulk {
		for _, v := range table.Values {
			if ir.ContainsRef(v, target) {
				return true
			}
		}
	}
	return false
}

// RefsOf returns every reference held in e's slots.
func (s *Store) RefsOf(e ir.EntityRef) []ir.EntityRef {
	var out []ir.EntityRef
	for _, bySub := range s.slots[e] {
		for _, v := range bySub {
			out = append(out, ir.Refs(v)...)
		}
	}
	return out
}

// SlotRef names a cached (entity, tag) pair.
type SlotRef struct {
	Entity ir.EntityRef
	Tag    ir.Tag
}

// Holding returns every (entity, tag) whose slots or bulk entries hold
// target, ordered by tag then entity.
func (s *Store) Holding(target ir.EntityRef) []SlotRef {
	seen := make(map[SlotRef]bool)
	for e, byTag := range s.slots {
		for tag, bySub := range byTag {
			for _, v := range bySub {
				if ir.ContainsRef(v, target) {
					seen[SlotRef{Entity: e, Tag: tag}] = true
					break
				}
			}
		}
	}
	for key, table := range s.bulk {
		for e, v := range table.Values {
			if ir.ContainsRef(v, target) {
				seen[SlotRef{Entity: e, Tag: key.Tag}] = true
			}
		}
	}
	out := slices.Collect(maps.Keys(seen))
	slices.SortFunc(out, compareSlotRefs)
	return out
}

func compareSlotRefs(a, b SlotRef) int {
	if a.Tag != b.Tag {
		return int(a.Tag - b.Tag)
	}
	if a.Entity.IsPlaceholder() != b.Entity.IsPlaceholder() {
		if a.Entity.IsPlaceholder() {
			return 1
		}
		return -1
	}
	switch {
	case a.Entity.ID() < b.Entity.ID():
		return -1
	case a.Entity.ID() > b.Entity.ID():
		return 1
	}
	return 0
}
