package js

import (
	"fmt"
	"time"

	"github.com/zond/juicebridge/calls"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/timers"
	"github.com/zond/juicebridge/uid"
	"rogchap.com/v8go"
)

// Callback is a host function callable from script.
type Callback func(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value

// RunContext is what a host function sees of the script call it was
// called from.
type RunContext struct {
	rt   *Runtime
	ctx  *calls.Context
	name string
}

// function adapts cb to V8, giving it a RunContext for the innermost call.
func (r *Runtime) function(name string, cb Callback) v8go.FunctionCallback {
	return func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		rc := &RunContext{rt: r, name: name}
		ctx, found := r.stack.Current()
		if !found {
			return rc.Throw("%s called outside of a script call", name)
		}
		rc.ctx = ctx
		if ctx.Invalid() {
			return rc.Throw("%s called from %s after it was reloaded", name, ctx.Source)
		}
		return cb(rc, info)
	}
}

func (rc *RunContext) Context() *v8go.Context {
	return rc.rt.vctx
}

func (rc *RunContext) Runtime() *Runtime {
	return rc.rt
}

// Call returns the call context, or nil outside of script calls.
func (rc *RunContext) Call() *calls.Context {
	return rc.ctx
}

func (rc *RunContext) Source() string {
	if rc.ctx == nil {
		return ""
	}
	return rc.ctx.Source
}

func (rc *RunContext) invocation() invocation {
	inv := invocation{}
	if rc.ctx != nil {
		inv.source = rc.ctx.Source
		inv.owner = rc.ctx.Owner
		inv.callback = rc.ctx.CallbackID()
		inv.timer = rc.ctx.Timer
	}
	return inv
}

func (rc *RunContext) String(s string) *v8go.Value {
	if res, err := v8go.NewValue(rc.rt.iso, s); err == nil {
		return res
	}
	return v8go.Undefined(rc.rt.iso)
}

func (rc *RunContext) Bool(b bool) *v8go.Value {
	if res, err := v8go.NewValue(rc.rt.iso, b); err == nil {
		return res
	}
	return v8go.Undefined(rc.rt.iso)
}

func (rc *RunContext) Throw(format string, args ...any) *v8go.Value {
	return rc.rt.iso.ThrowException(rc.String(fmt.Sprintf(format, args...)))
}

// NotFound reports a resolution failure and returns false to the script.
func (rc *RunContext) NotFound(code marshal.ErrorCode) *v8go.Value {
	inv := rc.invocation()
	f := faults.Fault{
		Kind:    faults.KindResolution,
		Source:  inv.source,
		Message: fmt.Sprintf("%s: %s", rc.name, code),
	}
	if inv.callback != calls.NoCallback {
		f.Callback = rc.rt.events.Describe(inv.callback)
	}
	rc.rt.sink.Report(f)
	return rc.Bool(false)
}

// Value converts v for the script, throwing if it can't.
func (rc *RunContext) Value(v any) *v8go.Value {
	var scope *marshal.Scope
	if rc.ctx != nil {
		scope = rc.ctx.Scope
	}
	val, err := rc.rt.marshaler.ToJS(scope, v)
	if err != nil {
		return rc.Throw("%s: %v", rc.name, err)
	}
	return val
}

// Wrap pushes an owning wrapper of v.
func Wrap[T any](rc *RunContext, v T) *v8go.Value {
	return rc.Value(marshal.Own(v))
}

// WrapWeak pushes a wrapper of v that never keeps it alive.
func WrapWeak[T any](rc *RunContext, v T) *v8go.Value {
	return rc.Value(marshal.Observe(v))
}

func (rc *RunContext) Unwrap(val *v8go.Value) (*marshal.Wrapper, bool) {
	return rc.rt.marshaler.Unwrap(val)
}

// Object returns the host object behind val, which is either a wrapper or
// a handle. Removed objects are not returned.
func (rc *RunContext) Object(val *v8go.Value) (any, bool) {
	if w, found := rc.Unwrap(val); found {
		obj := w.Object()
		return obj, obj != nil
	}
	if val == nil || !val.IsUint32() {
		return nil, false
	}
	return rc.Resolve(uid.UID(val.Uint32()))
}

// Arg converts val, a wrapper or a handle, to T.
func Arg[T any](rc *RunContext, val *v8go.Value) (T, bool) {
	var zero T
	obj, found := rc.Object(val)
	if !found {
		return zero, false
	}
	info, found := rc.rt.types.Of(obj)
	if !found {
		return zero, false
	}
	return marshal.Downcast[T](rc.rt.types, info.ID, obj)
}

// Array builds a script array of vals.
func (rc *RunContext) Array(vals []*v8go.Value) *v8go.Value {
	ctor, err := rc.rt.vctx.Global().Get("Array")
	if err != nil {
		return rc.Throw("%v", err)
	}
	fn, err := ctor.AsFunction()
	if err != nil {
		return rc.Throw("%v", err)
	}
	arr, err := fn.Call(v8go.Undefined(rc.rt.iso))
	if err != nil {
		return rc.Throw("%v", err)
	}
	obj, err := arr.AsObject()
	if err != nil {
		return rc.Throw("%v", err)
	}
	for i, val := range vals {
		if err := obj.SetIdx(uint32(i), val); err != nil {
			return rc.Throw("%v", err)
		}
	}
	return arr
}

// Self converts the receiver of a method call to T.
func Self[T any](rc *RunContext, info *v8go.FunctionCallbackInfo) (T, bool) {
	return Arg[T](rc, info.This().Value)
}

func (rc *RunContext) Assign(t uid.Thing) uid.UID {
	var scratch *uid.Scratch
	if rc.ctx != nil {
		scratch = rc.ctx.Scratch
	}
	return rc.rt.registry.Assign(scratch, t)
}

func (rc *RunContext) Resolve(id uid.UID) (uid.Thing, bool) {
	var scratch *uid.Scratch
	if rc.ctx != nil {
		scratch = rc.ctx.Scratch
	}
	return rc.rt.registry.Resolve(scratch, id)
}

func (rc *RunContext) Release(id uid.UID) {
	var scratch *uid.Scratch
	if rc.ctx != nil {
		scratch = rc.ctx.Scratch
	}
	rc.rt.registry.Release(scratch, id)
}

// SetCallbackID reports a reentrancy fault when the context already runs a
// callback.
func (rc *RunContext) SetCallbackID(id calls.CallbackID) bool {
	if rc.ctx == nil {
		return false
	}
	if rc.ctx.SetCallbackID(id) {
		return true
	}
	rc.rt.report(faults.KindReentrancy, rc.invocation(), fmt.Errorf("%s: context already runs %s", rc.name, rc.rt.events.Describe(rc.ctx.CallbackID())))
	return false
}

// Reentrant reports a reentrancy fault and returns true when the context
// runs a callback or a timer. Handlers may only be registered while a source
// loads.
func (rc *RunContext) Reentrant() bool {
	if rc.ctx == nil {
		return false
	}
	running := "a timer"
	if id := rc.ctx.CallbackID(); id != calls.NoCallback {
		running = rc.rt.events.Describe(id)
	} else if !rc.ctx.Timer {
		return false
	}
	rc.rt.report(faults.KindReentrancy, rc.invocation(), fmt.Errorf("%s: context already runs %s", rc.name, running))
	return true
}

// Schedule runs fn with args after delay, on behalf of the current source.
func (rc *RunContext) Schedule(fn *v8go.Function, delay time.Duration, args []*v8go.Value) (timers.EventID, error) {
	return rc.rt.timers.Schedule(rc.Source(), fn, delay, args)
}

func (rc *RunContext) Cancel(id timers.EventID) bool {
	return rc.rt.timers.Cancel(id)
}
