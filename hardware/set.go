// Package hardware holds collections of discovered devices.
package hardware

// Keyed is implemented by anything with a stable identity. Two values with
// the same key are the same piece of hardware.
type Keyed interface {
	Key() string
}

// Set is an insertion-ordered set keyed by Key(). It is not safe for
// concurrent use.
type Set[T Keyed] struct {
	items map[string]T
	order []string
}

func NewSet[T Keyed](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[string]T, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

func (s *Set[T]) Contains(item T) bool {
	_, ok := s.items[item.Key()]
	return ok
}

// Get returns the stored member with the given key.
func (s *Set[T]) Get(key string) (T, bool) {
	item, ok := s.items[key]
	return item, ok
}

// Add inserts item and reports whether it was new.
func (s *Set[T]) Add(item T) bool {
	key := item.Key()
	if _, ok := s.items[key]; ok {
		return false
	}
	if s.items == nil {
		s.items = make(map[string]T)
	}
	s.items[key] = item
	s.order = append(s.order, key)
	return true
}

// Remove deletes item and reports whether it was present.
func (s *Set[T]) Remove(item T) bool {
	key := item.Key()
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set[T]) Clone() *Set[T] {
	c := &Set[T]{
		items: make(map[string]T, len(s.items)),
		order: make([]string, len(s.order)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	copy(c.order, s.order)
	return c
}

func (s *Set[T]) IsEmpty() bool {
	return len(s.items) == 0
}

func (s *Set[T]) Len() int {
	return len(s.items)
}

// Each calls fn for every member in insertion order. fn must not modify s.
func (s *Set[T]) Each(fn func(T)) {
	for _, key := range s.order {
		fn(s.items[key])
	}
}

// Items returns the members in insertion order.
func (s *Set[T]) Items() []T {
	items := make([]T, 0, len(s.order))
	s.Each(func(item T) { items = append(items, item) })
	return items
}

// Reconcile brings s in line with one scan result. Members not seen are
// removed and returned as lost. Seen items without a member are built with
// create, added and returned as detected, in scan order.
func Reconcile[T Keyed, S any](s *Set[T], seen []S, key func(S) string, create func(S) T) (detected, lost []T) {
	remaining := s.Clone()

	for _, item := range seen {
		if existing, ok := s.Get(key(item)); ok {
			remaining.Remove(existing)
			continue
		}
		member := create(item)
		s.Add(member)
		detected = append(detected, member)
	}

	lost = remaining.Items()
	for _, member := range lost {
		s.Remove(member)
	}
	return detected, lost
}
