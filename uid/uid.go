// Package uid hands out and resolves the numeric handles scripts use to
// address host objects.
package uid

import (
	"fmt"

	"github.com/zond/juicebridge/marshal"
)

type UID uint32

const (
	Invalid UID = 0
	// MaxDurable is the last handle stored with persisted objects.
	MaxDurable UID = 0xFFFF
	// FirstScratch is the first handle minted for a call context.
	FirstScratch UID = 0x10000
	// FirstEntity is the first handle of live mobile entities.
	FirstEntity UID = 0x10000000
)

type Range int

const (
	RangeInvalid Range = iota
	RangeDurable
	RangeScratch
	RangeEntity
)

func (r Range) String() string {
	switch r {
	case RangeDurable:
		return "durable"
	case RangeScratch:
		return "scratch"
	case RangeEntity:
		return "entity"
	}
	return "invalid"
}

func (u UID) Range() Range {
	switch {
	case u == Invalid:
		return RangeInvalid
	case u >= FirstEntity:
		return RangeEntity
	case u <= MaxDurable:
		return RangeDurable
	}
	return RangeScratch
}

func (u UID) String() string {
	return fmt.Sprintf("0x%x", uint32(u))
}

// Thing is a host object scripts can hold a handle to.
type Thing interface {
	marshal.Refcounted
	marshal.Removable
}

// Durable is implemented by things that may carry a persisted handle. Zero
// means the thing has none.
type Durable interface {
	UniqueID() UID
}

// Entity is implemented by live mobile entities.
type Entity interface {
	EntityID() UID
}

// World is the host side of handle resolution.
type World interface {
	Entity(id UID) (Thing, bool)
	Unique(id UID) (Thing, bool)
	RemoveUnique(id UID)
}

// Scratch holds the handles minted during one call context, and a host
// reference to each thing they point to.
type Scratch struct {
	next    UID
	byID    map[UID]Thing
	byThing map[Thing]UID
}

func NewScratch() *Scratch {
	return &Scratch{
		next:    FirstScratch,
		byID:    map[UID]Thing{},
		byThing: map[Thing]UID{},
	}
}

func (s *Scratch) Len() int {
	return len(s.byID)
}

func (s *Scratch) drop(id UID) {
	if t, found := s.byID[id]; found {
		delete(s.byID, id)
		delete(s.byThing, t)
		t.Release()
	}
}

// Reset releases every recorded thing and restarts minting.
func (s *Scratch) Reset() {
	for id := range s.byID {
		s.drop(id)
	}
	s.next = FirstScratch
}

type Registry struct {
	world World
}

func New(world World) *Registry {
	return &Registry{world: world}
}

// StableID returns the durable or entity handle of t, if it has one.
func StableID(t any) (UID, bool) {
	if e, ok := t.(Entity); ok {
		if id := e.EntityID(); id.Range() == RangeEntity {
			return id, true
		}
	}
	if d, ok := t.(Durable); ok {
		if id := d.UniqueID(); id.Range() == RangeDurable {
			return id, true
		}
	}
	return Invalid, false
}

// Resolve never crosses ranges: a durable or entity handle missing from the
// world does not fall back to the scratch map.
func (r *Registry) Resolve(s *Scratch, id UID) (Thing, bool) {
	var t Thing
	var found bool
	switch id.Range() {
	case RangeEntity:
		t, found = r.world.Entity(id)
	case RangeDurable:
		t, found = r.world.Unique(id)
	case RangeScratch:
		if s != nil {
			t, found = s.byID[id]
		}
	}
	if !found || t == nil || t.IsRemoved() {
		return nil, false
	}
	return t, true
}

// Assign returns the same handle for the same thing within one scratch map.
// It returns Invalid when the scratch range is exhausted.
func (r *Registry) Assign(s *Scratch, t Thing) UID {
	if t == nil {
		return Invalid
	}
	if id, found := StableID(t); found {
		return id
	}
	if s == nil {
		return Invalid
	}
	if id, found := s.byThing[t]; found {
		return id
	}
	if s.next >= FirstEntity {
		return Invalid
	}
	id := s.next
	s.next++
	t.Acquire()
	s.byID[id] = t
	s.byThing[t] = id
	return id
}

func (r *Registry) Release(s *Scratch, id UID) {
	switch id.Range() {
	case RangeDurable:
		r.world.RemoveUnique(id)
	case RangeScratch:
		if s != nil {
			s.drop(id)
		}
	}
}
