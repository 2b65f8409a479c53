// Package events moves script event handlers out of the global namespace and
// into per source tables.
package events

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/calls"
	"rogchap.com/v8go"
)

var (
	ErrNotFunction = fmt.Errorf("not a function")
	ErrNoOwner     = fmt.Errorf("no such global object")
)

type entry struct {
	source string
	name   string
	fn     *v8go.Function
}

type Registry struct {
	next    calls.CallbackID
	entries map[calls.CallbackID]*entry
}

func New() *Registry {
	return &Registry{
		entries: map[calls.CallbackID]*entry{},
	}
}

func (r *Registry) add(source string, name string, fn *v8go.Function) calls.CallbackID {
	r.next++
	r.entries[r.next] = &entry{
		source: source,
		name:   name,
		fn:     fn,
	}
	return r.next
}

// takeFunction removes obj[key] and returns it. Function declarations are
// non-configurable properties of the global object, so when the delete is
// refused the property is overwritten with undefined instead.
func takeFunction(vctx *v8go.Context, obj *v8go.Object, key string) (*v8go.Function, error) {
	val, err := obj.Get(key)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	if !val.IsFunction() {
		return nil, errors.Wrapf(ErrNotFunction, "%q", key)
	}
	fn, err := val.AsFunction()
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	if !obj.Delete(key) {
		if err := obj.Set(key, v8go.Undefined(vctx.Isolate())); err != nil {
			return nil, juicebridge.WithStack(err)
		}
	}
	return fn, nil
}

// RegisterFunction moves the global function named global into the table for
// source and clears the global.
func (r *Registry) RegisterFunction(vctx *v8go.Context, source string, global string) (calls.CallbackID, error) {
	fn, err := takeFunction(vctx, vctx.Global(), global)
	if err != nil {
		return calls.NoCallback, errors.Wrapf(err, "registering %s:%s", source, global)
	}
	return r.add(source, global, fn), nil
}

// RegisterMethodCallback moves owner[method] into the table for source and
// clears the field.
func (r *Registry) RegisterMethodCallback(vctx *v8go.Context, source string, owner string, method string) (calls.CallbackID, error) {
	ownerVal, err := vctx.Global().Get(owner)
	if err != nil {
		return calls.NoCallback, juicebridge.WithStack(err)
	}
	if !ownerVal.IsObject() {
		return calls.NoCallback, errors.Wrapf(ErrNoOwner, "registering %s:%s.%s", source, owner, method)
	}
	ownerObj, err := ownerVal.AsObject()
	if err != nil {
		return calls.NoCallback, juicebridge.WithStack(err)
	}
	fn, err := takeFunction(vctx, ownerObj, method)
	if err != nil {
		return calls.NoCallback, errors.Wrapf(err, "registering %s:%s.%s", source, owner, method)
	}
	return r.add(source, owner+"."+method, fn), nil
}

func (r *Registry) Function(id calls.CallbackID) (*v8go.Function, bool) {
	e, found := r.entries[id]
	if !found {
		return nil, false
	}
	return e.fn, true
}

func (r *Registry) Source(id calls.CallbackID) (string, bool) {
	e, found := r.entries[id]
	if !found {
		return "", false
	}
	return e.source, true
}

// Describe is only meant for error messages.
func (r *Registry) Describe(id calls.CallbackID) string {
	e, found := r.entries[id]
	if !found {
		return fmt.Sprintf("unknown callback %d", id)
	}
	return fmt.Sprintf("%s:%s", e.source, e.name)
}

// ReleaseSource drops every callback registered by source.
func (r *Registry) ReleaseSource(source string) int {
	count := 0
	for id, e := range r.entries {
		if e.source == source {
			delete(r.entries, id)
			count++
		}
	}
	return count
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Reset forgets every callback but keeps the id sequence, so ids are never
// reused by the same registry.
func (r *Registry) Reset() {
	r.entries = map[calls.CallbackID]*entry{}
}
