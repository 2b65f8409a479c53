package marshal

// Refcounted host objects are kept alive by owning script wrappers.
type Refcounted interface {
	Acquire()
	Release()
}

// Removable host objects can be destroyed while scripts still observe them.
type Removable interface {
	IsRemoved() bool
}

type handle interface {
	handleValue() any
	handleWeak() bool
}

// Owned marks a value whose script wrapper takes a reference on it, and
// releases the reference when finalized.
type Owned[T any] struct {
	Value T
}

func Own[T any](v T) Owned[T] {
	return Owned[T]{Value: v}
}

func (o Owned[T]) handleValue() any { return o.Value }
func (o Owned[T]) handleWeak() bool { return false }

// Observing marks a value whose script wrapper never affects its lifetime.
type Observing[T any] struct {
	Value T
}

func Observe[T any](v T) Observing[T] {
	return Observing[T]{Value: v}
}

func (o Observing[T]) handleValue() any { return o.Value }
func (o Observing[T]) handleWeak() bool { return true }

// Wrapper is the bridge side of a script object wrapping a host object.
type Wrapper struct {
	Slot  uint32
	Type  *TypeInfo
	class *Class
	// object is nil once the wrapper is finalized.
	object   any
	refs     int
	released func(*Wrapper)
}

func (w *Wrapper) Weak() bool {
	return w.class.Weak
}

func (w *Wrapper) Finalized() bool {
	return w.object == nil
}

// Object returns the wrapped host object, or nil if it was finalized or the
// host destroyed it.
func (w *Wrapper) Object() any {
	if r, ok := w.object.(Removable); ok && r.IsRemoved() {
		return nil
	}
	return w.object
}

// Retain keeps w alive past the reset of the scope that created it.
func (w *Wrapper) Retain() {
	if w.object != nil {
		w.refs++
	}
}

// Drop undoes one Retain, or the initial reference held by the scope.
func (w *Wrapper) Drop() {
	if w.object == nil {
		return
	}
	if w.refs--; w.refs > 0 {
		return
	}
	if w.class.Finalize != nil {
		w.class.Finalize(w.object)
	}
	w.object = nil
	if w.released != nil {
		w.released(w)
	}
}

// Scope holds the initial reference to every wrapper created while it was
// current.
type Scope struct {
	wrappers []*Wrapper
}

func (s *Scope) add(w *Wrapper) {
	s.wrappers = append(s.wrappers, w)
}

func (s *Scope) Len() int {
	return len(s.wrappers)
}

// Reset drops every wrapper in the scope.
func (s *Scope) Reset() {
	wrappers := s.wrappers
	s.wrappers = nil
	for _, w := range wrappers {
		w.Drop()
	}
}
