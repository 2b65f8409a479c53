// Package pools holds helper objects scripts create at load time, owned per
// script source and torn down with it.
package pools

import (
	"sort"
)

type ID uint32

type entry[T any] struct {
	owner string
	value T
}

// Pool ids live in their own namespace and are never reused.
type Pool[T any] struct {
	name    string
	next    ID
	entries map[ID]entry[T]
	destroy func(T)
}

// New returns a pool calling destroy on every entry it releases. destroy may
// be nil.
func New[T any](name string, destroy func(T)) *Pool[T] {
	return &Pool[T]{
		name:    name,
		entries: map[ID]entry[T]{},
		destroy: destroy,
	}
}

func (p *Pool[T]) Name() string {
	return p.name
}

// Create records the value built by make against owner.
func (p *Pool[T]) Create(owner string, make func(ID) T) (ID, T) {
	p.next++
	id := p.next
	value := make(id)
	p.entries[id] = entry[T]{owner: owner, value: value}
	return id, value
}

func (p *Pool[T]) Lookup(id ID) (T, bool) {
	e, found := p.entries[id]
	return e.value, found
}

// ReleaseAll destroys every entry created by owner.
func (p *Pool[T]) ReleaseAll(owner string) int {
	ids := []ID{}
	for id, e := range p.entries {
		if e.owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		e := p.entries[id]
		delete(p.entries, id)
		if p.destroy != nil {
			p.destroy(e.value)
		}
	}
	return len(ids)
}

func (p *Pool[T]) Len() int {
	return len(p.entries)
}

// Owners counts entries per owner.
func (p *Pool[T]) Owners() map[string]int {
	result := map[string]int{}
	for _, e := range p.entries {
		result[e.owner]++
	}
	return result
}

type Releaser interface {
	Name() string
	ReleaseAll(owner string) int
	Len() int
	Owners() map[string]int
}

// Set groups the pools of a runtime.
type Set struct {
	pools []Releaser
}

func (s *Set) Add(p Releaser) {
	s.pools = append(s.pools, p)
}

func (s *Set) ReleaseAll(owner string) int {
	count := 0
	for _, p := range s.pools {
		count += p.ReleaseAll(owner)
	}
	return count
}

func (s *Set) Each(f func(Releaser)) {
	for _, p := range s.pools {
		f(p)
	}
}
