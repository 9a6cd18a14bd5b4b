package memory

import (
	"sort"
	"sync"
)

// Versioned is a value a Store can hold: keyed, versioned and deep-copyable.
type Versioned[T any] interface {
	StoreKey() string
	StoreVersion() int64
	WithVersion(v int64) T
	Clone() T
}

// Store is a generic in-memory collection with compare-and-swap writes.
// Values are cloned on the way in and out. Safe for concurrent use.
type Store[T Versioned[T]] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewStore creates an empty store.
func NewStore[T Versioned[T]]() *Store[T] {
	return &Store[T]{items: make(map[string]T)}
}

// Insert adds v. It returns false if the key is taken.
func (s *Store[T]) Insert(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[v.StoreKey()]; exists {
		return false
	}
	s.items[v.StoreKey()] = v.Clone()
	return true
}

// Get returns a copy of the value under key.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	return v.Clone(), true
}

// CompareAndSwap stores v as version expected+1 if the current version is
// expected. found is false when no value exists under the key.
func (s *Store[T]) CompareAndSwap(v T, expected int64) (found, swapped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[v.StoreKey()]
	if !ok {
		return false, false
	}
	if cur.StoreVersion() != expected {
		return true, false
	}
	s.items[v.StoreKey()] = v.Clone().WithVersion(expected + 1)
	return true, true
}

// Select returns copies of the values accepted by match, ordered by less.
func (s *Store[T]) Select(match func(T) bool, less func(a, b T) bool) []T {
	s.mu.RLock()
	out := make([]T, 0, len(s.items))
	for _, v := range s.items {
		if match == nil || match(v) {
			out = append(out, v.Clone())
		}
	}
	s.mu.RUnlock()

	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

// Len returns the number of stored values.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
