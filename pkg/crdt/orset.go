package crdt

import "github.com/google/uuid"

// orTag is a unique add-witness for one element. An element is live
// iff at least one of its tags is still marked added.
type orTag struct {
	tag   string
	added bool
}

// ORSet is an observed-remove set: add() stamps a fresh unique tag per
// element instance, remove() marks every tag currently observed for
// that element as removed. Because remove only affects tags this
// replica has actually seen, a concurrent add on another replica
// (with a different tag) survives the merge — the defining property
// of an observed-remove set.
type ORSet[T comparable] struct {
	nodeID   string
	elements map[T][]orTag
}

// NewORSet creates an empty OR-Set owned by nodeID.
func NewORSet[T comparable](nodeID string) *ORSet[T] {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &ORSet[T]{nodeID: nodeID, elements: make(map[T][]orTag)}
}

// Value returns every element with at least one live (added) tag.
func (s *ORSet[T]) Value() []T {
	out := make([]T, 0, len(s.elements))
	for elem, tags := range s.elements {
		for _, t := range tags {
			if t.added {
				out = append(out, elem)
				break
			}
		}
	}
	return out
}

// Contains reports whether elem is currently live.
func (s *ORSet[T]) Contains(elem T) bool {
	for _, t := range s.elements[elem] {
		if t.added {
			return true
		}
	}
	return false
}

// Add stamps elem with a fresh unique tag marked added.
func (s *ORSet[T]) Add(elem T) {
	tag := s.nodeID + ":" + uuid.NewString()
	s.elements[elem] = append(s.elements[elem], orTag{tag: tag, added: true})
}

// Remove marks every tag this replica has observed for elem as
// removed. It does not invent a new tag, so it cannot suppress an
// add this replica hasn't seen yet.
func (s *ORSet[T]) Remove(elem T) {
	tags := s.elements[elem]
	for i := range tags {
		tags[i].added = false
	}
}

// Merge unions the tag sets per element. A tag present on both sides
// keeps the AND of its added flags — if either replica observed it as
// removed, it stays removed once merged ("remove wins per tag, once
// observed").
func (s *ORSet[T]) Merge(other *ORSet[T]) *ORSet[T] {
	out := NewORSet[T](s.nodeID)
	seen := make(map[T]map[string]orTag)

	add := func(elem T, t orTag) {
		if seen[elem] == nil {
			seen[elem] = make(map[string]orTag)
		}
		if existing, ok := seen[elem][t.tag]; ok {
			existing.added = existing.added && t.added
			seen[elem][t.tag] = existing
		} else {
			seen[elem][t.tag] = t
		}
	}

	for elem, tags := range s.elements {
		for _, t := range tags {
			add(elem, t)
		}
	}
	if other != nil {
		for elem, tags := range other.elements {
			for _, t := range tags {
				add(elem, t)
			}
		}
	}

	for elem, tags := range seen {
		list := make([]orTag, 0, len(tags))
		for _, t := range tags {
			list = append(list, t)
		}
		out.elements[elem] = list
	}
	return out
}
