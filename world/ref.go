package world

import "fmt"

// Ref counts the holders of a host object. Releasing more than was acquired
// panics, so double frees show up in tests instead of corrupting state.
type Ref struct {
	refs    int
	removed bool
}

func (r *Ref) Acquire() {
	r.refs++
}

func (r *Ref) Release() {
	if r.refs <= 0 {
		panic(fmt.Sprintf("released %p more times than acquired", r))
	}
	r.refs--
}

func (r *Ref) Refs() int {
	return r.refs
}

// IsRemoved is true once the world destroyed the object, whoever still holds
// it.
func (r *Ref) IsRemoved() bool {
	return r.removed
}

func (r *Ref) remove() {
	r.removed = true
}
