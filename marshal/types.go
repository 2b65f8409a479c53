//go:generate go run ../bin/errcodes -out errcodes_gen.go

// Package marshal converts values between the host and the script engine,
// and tracks the types scripts can downcast between.
package marshal

import (
	"fmt"
	"hash/fnv"
	"reflect"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
)

// TypeID is assigned to every declared type in declaration order. It never
// changes for the lifetime of a Types registry.
type TypeID uint16

const (
	NoType TypeID = 0
)

var (
	ErrDuplicateType = fmt.Errorf("type already declared")
	ErrUnknownType   = fmt.Errorf("unknown type")
	ErrAlreadyBound  = fmt.Errorf("type already bound to a Go type")
)

type TypeInfo struct {
	ID     TypeID
	Name   string
	Parent TypeID
	// Depth is the number of declared ancestors.
	Depth    int
	Hash     uint32
	unstable bool
	goType   reflect.Type
	up       func(any) any
}

func (t *TypeInfo) String() string {
	return fmt.Sprintf("%s#%d", t.Name, t.ID)
}

// Types is a closed registry of the types scripts can see. Downcasts walk
// parent ids, never names.
type Types struct {
	byID   []*TypeInfo
	byName map[string]*TypeInfo
	byGo   map[reflect.Type]*TypeInfo
}

func NewTypes() *Types {
	return &Types{
		byID:   []*TypeInfo{nil},
		byName: map[string]*TypeInfo{},
		byGo:   map[reflect.Type]*TypeInfo{},
	}
}

func identityHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Declare adds name to the registry, below base if base is non empty.
func (t *Types) Declare(name string, base string) (*TypeInfo, error) {
	if _, found := t.byName[name]; found {
		return nil, errors.Wrapf(ErrDuplicateType, "declaring %q", name)
	}
	info := &TypeInfo{
		ID:   TypeID(len(t.byID)),
		Name: name,
		Hash: identityHash(name),
	}
	if base != "" {
		parent, found := t.byName[base]
		if !found {
			return nil, errors.Wrapf(ErrUnknownType, "base %q of %q", base, name)
		}
		info.Parent = parent.ID
		info.Depth = parent.Depth + 1
	}
	t.byID = append(t.byID, info)
	t.byName[name] = info
	return info, nil
}

func (t *Types) Info(id TypeID) (*TypeInfo, bool) {
	if id == NoType || int(id) >= len(t.byID) {
		return nil, false
	}
	return t.byID[id], true
}

func (t *Types) Named(name string) (*TypeInfo, bool) {
	info, found := t.byName[name]
	return info, found
}

func (t *Types) Len() int {
	return len(t.byID) - 1
}

// Of returns the type bound to the dynamic Go type of obj.
func (t *Types) Of(obj any) (*TypeInfo, bool) {
	if obj == nil {
		return nil, false
	}
	info, found := t.byGo[reflect.TypeOf(obj)]
	return info, found
}

// IsA reports whether have is want or declares want as an ancestor.
func (t *Types) IsA(have TypeID, want TypeID) bool {
	h, found := t.Info(have)
	if !found {
		return false
	}
	w, found := t.Info(want)
	if !found {
		return false
	}
	steps := h.Depth - w.Depth
	if steps < 0 {
		return false
	}
	cur := h
	for ; steps > 0; steps-- {
		cur = t.byID[cur.Parent]
	}
	return cur.ID == w.ID && cur.Hash == w.Hash
}

// SetUnstable marks name (and all its descendants) as having no identity that
// survives a deferred callback delay.
func (t *Types) SetUnstable(name string, unstable bool) error {
	info, found := t.byName[name]
	if !found {
		return errors.Wrapf(ErrUnknownType, "marking %q", name)
	}
	info.unstable = unstable
	return nil
}

func (t *Types) Unstable(id TypeID) bool {
	for cur, found := t.Info(id); found; cur, found = t.Info(cur.Parent) {
		if cur.unstable {
			return true
		}
	}
	return false
}

func (t *Types) bind(name string, goType reflect.Type) (*TypeInfo, error) {
	info, found := t.byName[name]
	if !found {
		return nil, errors.Wrapf(ErrUnknownType, "binding %v to %q", goType, name)
	}
	if info.goType != nil {
		return nil, errors.Wrapf(ErrAlreadyBound, "binding %v to %q", goType, name)
	}
	if other, found := t.byGo[goType]; found {
		return nil, errors.Wrapf(ErrAlreadyBound, "%v is bound to %q", goType, other.Name)
	}
	info.goType = goType
	t.byGo[goType] = info
	return info, nil
}

// Bind attaches the Go type T to the declared type name.
func Bind[T any](t *Types, name string) error {
	_, err := t.bind(name, reflect.TypeFor[T]())
	return juicebridge.WithStack(err)
}

// BindBase attaches T to name and records how to reach the Go value of the
// declared base type B from a T.
func BindBase[T any, B any](t *Types, name string, up func(T) B) error {
	info, found := t.byName[name]
	if !found {
		return errors.Wrapf(ErrUnknownType, "binding %v to %q", reflect.TypeFor[T](), name)
	}
	parent, found := t.Info(info.Parent)
	if !found {
		return errors.Errorf("%q has no base type", name)
	}
	if parent.goType != reflect.TypeFor[B]() {
		return errors.Errorf("base %q of %q is bound to %v, not %v", parent.Name, name, parent.goType, reflect.TypeFor[B]())
	}
	if _, err := t.bind(name, reflect.TypeFor[T]()); err != nil {
		return juicebridge.WithStack(err)
	}
	info.up = func(v any) any {
		return up(v.(T))
	}
	return nil
}

// Downcast converts obj, of declared type have, to the Go type T if T is
// bound to have or one of its ancestors.
func Downcast[T any](t *Types, have TypeID, obj any) (T, bool) {
	var zero T
	want, found := t.byGo[reflect.TypeFor[T]()]
	if !found || obj == nil || !t.IsA(have, want.ID) {
		return zero, false
	}
	cur, _ := t.Info(have)
	for cur.ID != want.ID {
		if cur.up == nil {
			return zero, false
		}
		obj = cur.up(obj)
		cur = t.byID[cur.Parent]
	}
	typed, ok := obj.(T)
	return typed, ok
}

// As downcasts the host object behind w. It fails once w is finalized.
func As[T any](t *Types, w *Wrapper) (T, bool) {
	if w == nil {
		var zero T
		return zero, false
	}
	return Downcast[T](t, w.Type.ID, w.object)
}
