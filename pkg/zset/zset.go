// Package zset implements Z-sets (multisets with signed integer multiplicities) over identity-keyed
// elements.
//
// A Z-set maps each element to an integer weight: positive weights denote membership (or
// insertion in a delta), negative weights denote deletion. Adding the current state of a relation
// with weight -1 and its new state with weight +1 yields the delta between the two: the positive
// part holds the elements to insert, the negative part the elements to delete.
//
// Elements are kept in first-seen order so that iteration is deterministic.
package zset

import (
	"fmt"
	"strings"
)

// Keyed is an element that knows its identity.
type Keyed interface {
	Key() string
}

// Weighted is an element with its multiplicity.
type Weighted[T Keyed] struct {
	Elem         T
	Multiplicity int
}

// ZSet is a Z-set of keyed elements.
type ZSet[T Keyed] struct {
	elems  map[string]T
	counts map[string]int
	order  []string
}

// New creates an empty Z-set.
func New[T Keyed]() *ZSet[T] {
	return &ZSet[T]{
		elems:  make(map[string]T),
		counts: make(map[string]int),
	}
}

// FromElems creates a Z-set holding each element with multiplicity 1.
func FromElems[T Keyed](elems ...T) *ZSet[T] {
	z := New[T]()
	for _, e := range elems {
		z.Insert(e, 1)
	}
	return z
}

// Insert adds an element with the given multiplicity in place and returns the multiplicity before
// and after the change. Elements whose multiplicity drops to zero are removed.
func (z *ZSet[T]) Insert(elem T, count int) (before, after int) {
	key := elem.Key()
	before = z.counts[key]
	if count == 0 {
		return before, before
	}

	if _, exists := z.counts[key]; !exists {
		z.elems[key] = elem
		z.order = append(z.order, key)
	}
	z.counts[key] += count
	after = z.counts[key]

	if after == 0 {
		delete(z.counts, key)
		delete(z.elems, key)
		z.compact()
	}

	return before, after
}

// Add performs Z-set addition and returns a new Z-set.
func (z *ZSet[T]) Add(other *ZSet[T]) *ZSet[T] {
	result := z.Copy()
	if other == nil {
		return result
	}
	for _, key := range other.order {
		result.Insert(other.elems[key], other.counts[key])
	}
	return result
}

// Subtract performs Z-set subtraction and returns a new Z-set.
func (z *ZSet[T]) Subtract(other *ZSet[T]) *ZSet[T] {
	result := z.Copy()
	if other == nil {
		return result
	}
	for _, key := range other.order {
		result.Insert(other.elems[key], -other.counts[key])
	}
	return result
}

// Copy creates a shallow copy: the elements themselves are shared.
func (z *ZSet[T]) Copy() *ZSet[T] {
	result := &ZSet[T]{
		elems:  make(map[string]T, len(z.elems)),
		counts: make(map[string]int, len(z.counts)),
		order:  make([]string, len(z.order)),
	}
	copy(result.order, z.order)
	for key, elem := range z.elems {
		result.elems[key] = elem
		result.counts[key] = z.counts[key]
	}
	return result
}

// Multiplicity returns the weight of an element, zero if absent.
func (z *ZSet[T]) Multiplicity(elem T) int { return z.counts[elem.Key()] }

// Contains reports whether an element has positive multiplicity.
func (z *ZSet[T]) Contains(elem T) bool { return z.counts[elem.Key()] > 0 }

// Entries returns all elements with their multiplicities, including negative ones.
func (z *ZSet[T]) Entries() []Weighted[T] {
	result := make([]Weighted[T], 0, len(z.order))
	for _, key := range z.order {
		result = append(result, Weighted[T]{Elem: z.elems[key], Multiplicity: z.counts[key]})
	}
	return result
}

// Positive returns the elements with positive multiplicity, ignoring the weights.
func (z *ZSet[T]) Positive() []T {
	result := []T{}
	for _, key := range z.order {
		if z.counts[key] > 0 {
			result = append(result, z.elems[key])
		}
	}
	return result
}

// Negative returns the elements with negative multiplicity, ignoring the weights.
func (z *ZSet[T]) Negative() []T {
	result := []T{}
	for _, key := range z.order {
		if z.counts[key] < 0 {
			result = append(result, z.elems[key])
		}
	}
	return result
}

// IsZero checks if the Z-set is empty.
func (z *ZSet[T]) IsZero() bool { return len(z.counts) == 0 }

// Size returns the total of the positive multiplicities.
func (z *ZSet[T]) Size() int {
	total := 0
	for _, count := range z.counts {
		if count > 0 {
			total += count
		}
	}
	return total
}

// UniqueCount returns the number of elements with positive multiplicity.
func (z *ZSet[T]) UniqueCount() int {
	n := 0
	for _, count := range z.counts {
		if count > 0 {
			n++
		}
	}
	return n
}

// String returns a string representation of the Z-set for debugging.
func (z *ZSet[T]) String() string {
	if z.IsZero() {
		return "∅"
	}
	parts := make([]string, 0, len(z.order))
	for _, key := range z.order {
		parts = append(parts, fmt.Sprintf("%s×%d", key, z.counts[key]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// compact drops the keys of removed elements from the order index.
func (z *ZSet[T]) compact() {
	kept := z.order[:0]
	for _, key := range z.order {
		if _, ok := z.counts[key]; ok {
			kept = append(kept, key)
		}
	}
	z.order = kept
}
