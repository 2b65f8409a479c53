package js

import (
	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/pools"
	"rogchap.com/v8go"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrNoNamespace     = errors.New("no such namespace")
)

// operators maps operator names to the methods implementing them.
var operators = map[string]string{
	"eq":       "equals",
	"lt":       "lessThan",
	"le":       "lessEqual",
	"tostring": "toString",
	"concat":   "concat",
	"len":      "length",
}

// Registrar is how libraries expose host functionality to scripts.
type Registrar struct {
	rt *Runtime
}

func (reg *Registrar) Types() *marshal.Types {
	return reg.rt.types
}

func (reg *Registrar) Runtime() *Runtime {
	return reg.rt
}

// AddPool makes the pool part of what OnReloadSource releases.
func (reg *Registrar) AddPool(p pools.Releaser) {
	reg.rt.pools.Add(p)
}

func (reg *Registrar) setGlobal(name string, val any) error {
	return juicebridge.WithStack(reg.rt.vctx.Global().Set(name, val))
}

func (reg *Registrar) functionValue(name string, fn Callback) *v8go.Function {
	return v8go.NewFunctionTemplate(reg.rt.iso, reg.rt.function(name, fn)).GetFunction(reg.rt.vctx)
}

// DeclareType declares name with the base type base (empty for none) and
// exposes the global name, calling ctor when called. Without a ctor the
// global only carries variables.
func (reg *Registrar) DeclareType(name string, base string, ctor Callback) error {
	info, err := reg.rt.types.Declare(name, base)
	if err != nil {
		return err
	}
	if _, err := reg.rt.classes.Class(info.ID); err != nil {
		return err
	}
	if ctor == nil {
		ctor = func(rc *RunContext, _ *v8go.FunctionCallbackInfo) *v8go.Value {
			return rc.Throw("%s has no constructor", name)
		}
	}
	return reg.setGlobal(name, reg.functionValue(name, ctor))
}

// DeclareNamespace exposes an empty global object, unless name exists.
func (reg *Registrar) DeclareNamespace(name string) error {
	global := reg.rt.vctx.Global()
	if global.Has(name) {
		return nil
	}
	obj, err := v8go.NewObjectTemplate(reg.rt.iso).NewInstance(reg.rt.vctx)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	return reg.setGlobal(name, obj)
}

func (reg *Registrar) BindMethod(typeName string, method string, fn Callback) error {
	return reg.rt.classes.Bind(typeName, method, reg.rt.function(typeName+"."+method, fn))
}

// BindOperator binds fn as the method implementing op, such as "eq" or
// "tostring".
func (reg *Registrar) BindOperator(typeName string, op string, fn Callback) error {
	method, found := operators[op]
	if !found {
		return errors.Wrapf(ErrUnknownOperator, "%q on %q", op, typeName)
	}
	return reg.BindMethod(typeName, method, fn)
}

func (reg *Registrar) BindFunction(name string, fn Callback) error {
	return reg.setGlobal(name, reg.functionValue(name, fn))
}

// DeclareVariable sets name on the namespace or type called ns.
func (reg *Registrar) DeclareVariable(ns string, name string, value any) error {
	nsVal, err := reg.rt.vctx.Global().Get(ns)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	if !nsVal.IsObject() {
		return errors.Wrapf(ErrNoNamespace, "declaring %s.%s", ns, name)
	}
	nsObj, err := nsVal.AsObject()
	if err != nil {
		return juicebridge.WithStack(err)
	}
	val, err := reg.rt.marshaler.ToJS(nil, value)
	if err != nil {
		return err
	}
	return juicebridge.WithStack(nsObj.Set(name, val))
}

func (reg *Registrar) DeclareConstant(name string, value any) error {
	val, err := reg.rt.marshaler.ToJS(nil, value)
	if err != nil {
		return err
	}
	return reg.setGlobal(name, val)
}
