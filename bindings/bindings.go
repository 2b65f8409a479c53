// Package bindings is the core script library: the host world, augments,
// combats and timers as scripts see them.
package bindings

import (
	"time"

	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/pools"
	"github.com/zond/juicebridge/timers"
	"github.com/zond/juicebridge/uid"
	"github.com/zond/juicebridge/world"
	"rogchap.com/v8go"
)

type Bindings struct {
	World    *world.World
	Augments *augments.Registry

	combats *pools.Pool[*world.Combat]
	areas   *pools.Pool[*world.Area]
}

func New(w *world.World, augs *augments.Registry) *Bindings {
	return &Bindings{
		World:    w,
		Augments: augs,
	}
}

type method struct {
	name string
	fn   js.Callback
}

func bindAll(reg *js.Registrar, typeName string, methods []method) error {
	for _, m := range methods {
		if err := reg.BindMethod(typeName, m.name, m.fn); err != nil {
			return err
		}
	}
	return nil
}

// on resolves the receiver of a method to T before calling f, and reports
// code if it is gone.
func on[T any](code marshal.ErrorCode, f func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, self T) *v8go.Value) js.Callback {
	return func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		self, ok := js.Self[T](rc, info)
		if !ok {
			return rc.NotFound(code)
		}
		return f(rc, info, self)
	}
}

func arg(info *v8go.FunctionCallbackInfo, i int) *v8go.Value {
	if args := info.Args(); i < len(args) {
		return args[i]
	}
	return nil
}

func intArg(info *v8go.FunctionCallbackInfo, i int, def int) int {
	if val := arg(info, i); val != nil && val.IsNumber() {
		return int(val.Integer())
	}
	return def
}

func stringArg(info *v8go.FunctionCallbackInfo, i int) string {
	if val := arg(info, i); val != nil && !val.IsNullOrUndefined() {
		return val.String()
	}
	return ""
}

func boolArg(info *v8go.FunctionCallbackInfo, i int) bool {
	if val := arg(info, i); val != nil {
		return val.Boolean()
	}
	return false
}

func positionArgs(info *v8go.FunctionCallbackInfo, i int) world.Position {
	return world.Position{
		X: intArg(info, i, 0),
		Y: intArg(info, i+1, 0),
		Z: uint8(intArg(info, i+2, 0)),
	}
}

func null(rc *js.RunContext) *v8go.Value {
	return v8go.Null(rc.Context().Isolate())
}

// Install is a js.Library.
func (b *Bindings) Install(reg *js.Registrar) error {
	for _, install := range []func(*js.Registrar) error{
		b.installThings,
		b.installCreatures,
		b.installAugments,
		b.installCombat,
		b.installGlobals,
	} {
		if err := install(reg); err != nil {
			return err
		}
	}
	for _, c := range augments.Constants() {
		if err := reg.DeclareConstant(c.Name, c.Value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bindings) installGlobals(reg *js.Registrar) error {
	for _, f := range []struct {
		name string
		fn   js.Callback
	}{
		{"setTimeout", setTimeout},
		{"stopEvent", stopEvent},
		{"isValidId", isValidID},
		{"releaseId", releaseID},
		{"registerEvent", registerEvent},
		{"registerMethod", registerMethod},
	} {
		if err := reg.BindFunction(f.name, f.fn); err != nil {
			return err
		}
	}
	if err := reg.DeclareNamespace("config"); err != nil {
		return err
	}
	return reg.DeclareVariable("config", "minTimerDelay", reg.Runtime().Timers().MinDelay().Milliseconds())
}

// setTimeout(fn, delay, ...args) runs fn with args after delay ms.
func setTimeout(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) < 2 || !args[0].IsFunction() || !args[1].IsNumber() {
		return rc.Throw("setTimeout takes [function, number, ...any] arguments")
	}
	fn, err := args[0].AsFunction()
	if err != nil {
		return rc.Throw("trying to cast %v to *v8go.Function: %v", args[0], err)
	}
	id, err := rc.Schedule(fn, time.Duration(args[1].Integer())*time.Millisecond, args[2:])
	if err != nil {
		return rc.Throw("setTimeout: %v", err)
	}
	return rc.Value(uint32(id))
}

func stopEvent(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	val := arg(info, 0)
	if val == nil || !val.IsUint32() {
		return rc.Throw("stopEvent takes [number] arguments")
	}
	return rc.Bool(rc.Cancel(timers.EventID(val.Uint32())))
}

func isValidID(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	val := arg(info, 0)
	if val == nil || !val.IsUint32() {
		return rc.Bool(false)
	}
	_, found := rc.Resolve(uid.UID(val.Uint32()))
	return rc.Bool(found)
}

func releaseID(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	val := arg(info, 0)
	if val == nil || !val.IsUint32() {
		return rc.Throw("releaseId takes [number] arguments")
	}
	rc.Release(uid.UID(val.Uint32()))
	return nil
}

// registerEvent(name) moves the global function name into the handlers of
// the calling source.
func registerEvent(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	name := stringArg(info, 0)
	if name == "" {
		return rc.Throw("registerEvent takes [string] arguments")
	}
	if rc.Reentrant() {
		return rc.Throw("registerEvent can only be called while loading")
	}
	id, err := rc.Runtime().Interface(rc.Source()).Register(name)
	if err != nil {
		return rc.Throw("registerEvent: %v", err)
	}
	return rc.Value(uint32(id))
}

// registerMethod(owner, method) moves owner[method] into the handlers of the
// calling source.
func registerMethod(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	owner, method := stringArg(info, 0), stringArg(info, 1)
	if owner == "" || method == "" {
		return rc.Throw("registerMethod takes [string, string] arguments")
	}
	if rc.Reentrant() {
		return rc.Throw("registerMethod can only be called while loading")
	}
	id, err := rc.Runtime().Interface(rc.Source()).RegisterMethod(owner, method)
	if err != nil {
		return rc.Throw("registerMethod: %v", err)
	}
	return rc.Value(uint32(id))
}
