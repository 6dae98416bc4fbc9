package set

import (
	"cmp"
	"iter"
	"slices"
)

type Set[T comparable] map[T]struct{}

func New[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Add inserts item and reports whether it was absent.
func (s Set[T]) Add(item T) bool {
	if _, exists := s[item]; exists {
		return false
	}
	s[item] = struct{}{}
	return true
}

// Remove deletes item and reports whether it was present.
func (s Set[T]) Remove(item T) bool {
	if _, exists := s[item]; !exists {
		return false
	}
	delete(s, item)
	return true
}

func (s Set[T]) Contains(item T) bool {
	_, exists := s[item]
	return exists
}

func (s Set[T]) Size() int {
	return len(s)
}

func (s Set[T]) Clear() {
	clear(s)
}

// Items returns all items in the set as a sequence, in no particular order.
func (s Set[T]) Items() iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range s {
			if !yield(item) {
				return
			}
		}
	}
}

// Clone returns a shallow copy, safe to range over while s is mutated.
func (s Set[T]) Clone() Set[T] {
	result := make(Set[T], len(s))
	for item := range s {
		result[item] = struct{}{}
	}
	return result
}

// Union returns a new set containing all items from s and every other set.
func (s Set[T]) Union(others ...Set[T]) Set[T] {
	result := s.Clone()
	for _, other := range others {
		for item := range other {
			result[item] = struct{}{}
		}
	}
	return result
}

// Difference returns a new set containing items in s that are not in other
func (s Set[T]) Difference(other Set[T]) Set[T] {
	result := make(Set[T], len(s))
	for item := range s {
		if !other.Contains(item) {
			result[item] = struct{}{}
		}
	}
	return result
}

// Sorted returns the items of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(s.Items())
}

// Keys builds a set from the keys of m.
func Keys[K comparable, V any](m map[K]V) Set[K] {
	s := make(Set[K], len(m))
	for key := range m {
		s[key] = struct{}{}
	}
	return s
}
