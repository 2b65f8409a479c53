package js

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/calls"
	"rogchap.com/v8go"
)

// Interface is one script source sharing the runtime.
type Interface struct {
	rt       *Runtime
	name     string
	code     string
	loaded   bool
	handlers map[string]calls.CallbackID
}

func (i *Interface) Name() string {
	return i.name
}

func (i *Interface) Loaded() bool {
	return i.loaded
}

// Load runs code as the source of i. The code is kept even if it fails,
// so a ReInit tries it again.
func (i *Interface) Load(code string) error {
	i.code = code
	_, err := i.rt.protect(invocation{source: i.name, owner: i}, func(*calls.Context) (*v8go.Value, error) {
		return i.rt.vctx.RunScript(code, i.name)
	})
	i.loaded = err == nil
	return err
}

// Reload releases everything the previous code created, then loads code.
func (i *Interface) Reload(code string) (int, error) {
	released := i.rt.OnReloadSource(i.name)
	return released, i.Load(code)
}

// Register moves the global function called global into the callbacks of
// i.
func (i *Interface) Register(global string) (calls.CallbackID, error) {
	if i.rt.iso == nil {
		return calls.NoCallback, juicebridge.WithStack(ErrNotInitialized)
	}
	id, err := i.rt.events.RegisterFunction(i.rt.vctx, i.name, global)
	if err != nil {
		return calls.NoCallback, err
	}
	i.handlers[global] = id
	return id, nil
}

// RegisterMethod moves owner[method] into the callbacks of i.
func (i *Interface) RegisterMethod(owner string, method string) (calls.CallbackID, error) {
	if i.rt.iso == nil {
		return calls.NoCallback, juicebridge.WithStack(ErrNotInitialized)
	}
	id, err := i.rt.events.RegisterMethodCallback(i.rt.vctx, i.name, owner, method)
	if err != nil {
		return calls.NoCallback, err
	}
	i.handlers[owner+"."+method] = id
	return id, nil
}

// Handler returns the callback registered under name, either a global
// function name or "owner.method".
func (i *Interface) Handler(name string) (calls.CallbackID, bool) {
	id, found := i.handlers[name]
	return id, found
}

// Handlers returns the registered names, sorted.
func (i *Interface) Handlers() []string {
	result := make([]string, 0, len(i.handlers))
	for name := range i.handlers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Call runs the callback id with args converted for the script. Wrappers
// in the result are finalized before Call returns.
func (i *Interface) Call(id calls.CallbackID, args ...any) (any, error) {
	if i.rt.iso == nil {
		return nil, juicebridge.WithStack(ErrNotInitialized)
	}
	fn, found := i.rt.events.Function(id)
	if !found {
		return nil, errors.Wrapf(ErrUnknownCallback, "%d in %s", id, i.name)
	}
	if source, _ := i.rt.events.Source(id); source != i.name {
		return nil, errors.Wrapf(ErrUnknownCallback, "%s called through %s", i.rt.events.Describe(id), i.name)
	}
	return i.rt.protect(invocation{source: i.name, owner: i, callback: id}, func(ctx *calls.Context) (*v8go.Value, error) {
		vals := make([]v8go.Valuer, len(args))
		for idx, arg := range args {
			val, err := i.rt.marshaler.ToJS(ctx.Scope, arg)
			if err != nil {
				return nil, err
			}
			vals[idx] = val
		}
		return fn.Call(i.rt.vctx.Global(), vals...)
	})
}

// Close releases what the code of i created and forgets i.
func (i *Interface) Close() {
	i.rt.OnReloadSource(i.name)
	i.loaded = false
	i.code = ""
	delete(i.rt.interfaces, i.name)
}
