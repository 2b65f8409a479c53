package marshal

import (
	"math"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"rogchap.com/v8go"
)

const (
	slotField = iota
	typeField
	internalFields
)

// MaxSafeInteger is the largest integer a script Number holds exactly.
const MaxSafeInteger = 1<<53 - 1

var (
	ErrUnboundType   = errors.New("no declared type is bound to this Go type")
	ErrNoScope       = errors.New("wrapping an object requires a scope")
	ErrUnsafeInteger = errors.New("integer outside the safe range of script numbers")
)

// Marshaler moves values between Go and one V8 context, and owns the slot
// table of every wrapper created in that context.
type Marshaler struct {
	vctx      *v8go.Context
	types     *Types
	classes   *Classes
	templates map[*Class]*v8go.ObjectTemplate
	built     int
	slots     map[uint32]*Wrapper
	nextSlot  uint32
}

func NewMarshaler(vctx *v8go.Context, types *Types, classes *Classes) *Marshaler {
	return &Marshaler{
		vctx:      vctx,
		types:     types,
		classes:   classes,
		templates: map[*Class]*v8go.ObjectTemplate{},
		built:     classes.Generation(),
		slots:     map[uint32]*Wrapper{},
		nextSlot:  1,
	}
}

func (m *Marshaler) Context() *v8go.Context {
	return m.vctx
}

func (m *Marshaler) Types() *Types {
	return m.types
}

func (m *Marshaler) template(class *Class) (*v8go.ObjectTemplate, error) {
	if gen := m.classes.Generation(); gen != m.built {
		m.templates = map[*Class]*v8go.ObjectTemplate{}
		m.built = gen
	}
	if tmpl, found := m.templates[class]; found {
		return tmpl, nil
	}
	iso := m.vctx.Isolate()
	tmpl := v8go.NewObjectTemplate(iso)
	tmpl.SetInternalFieldCount(internalFields)
	for name, fn := range m.classes.Methods(class.Type.ID) {
		if err := tmpl.Set(name, v8go.NewFunctionTemplate(iso, fn)); err != nil {
			return nil, juicebridge.WithStack(err)
		}
	}
	m.templates[class] = tmpl
	return tmpl, nil
}

func (m *Marshaler) instance(w *Wrapper) (*v8go.Value, error) {
	tmpl, err := m.template(w.class)
	if err != nil {
		return nil, err
	}
	obj, err := tmpl.NewInstance(m.vctx)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	if err := obj.SetInternalField(slotField, w.Slot); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	if err := obj.SetInternalField(typeField, uint32(w.Type.ID)); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return obj.Value, nil
}

func (m *Marshaler) wrap(scope *Scope, obj any, weak bool) (*v8go.Value, error) {
	if scope == nil {
		return nil, juicebridge.WithStack(ErrNoScope)
	}
	info, found := m.types.Of(obj)
	if !found {
		return nil, errors.Wrapf(ErrUnboundType, "wrapping %T", obj)
	}
	var class *Class
	var err error
	if weak {
		class, err = m.classes.Weak(info.ID)
	} else {
		class, err = m.classes.Class(info.ID)
	}
	if err != nil {
		return nil, err
	}
	w := &Wrapper{
		Slot:     m.nextSlot,
		Type:     info,
		class:    class,
		object:   obj,
		refs:     1,
		released: m.release,
	}
	m.nextSlot++
	val, err := m.instance(w)
	if err != nil {
		return nil, err
	}
	if !weak {
		if r, ok := obj.(Refcounted); ok {
			r.Acquire()
		}
	}
	m.slots[w.Slot] = w
	scope.add(w)
	return val, nil
}

func (m *Marshaler) release(w *Wrapper) {
	delete(m.slots, w.Slot)
}

// Wrap pushes an owning wrapper of o.Value.
func Wrap[T any](m *Marshaler, scope *Scope, o Owned[T]) (*v8go.Value, error) {
	return m.wrap(scope, o.Value, false)
}

// WrapWeak pushes an observing wrapper of o.Value.
func WrapWeak[T any](m *Marshaler, scope *Scope, o Observing[T]) (*v8go.Value, error) {
	return m.wrap(scope, o.Value, true)
}

// Unwrap returns the live wrapper behind val, if any.
func (m *Marshaler) Unwrap(val *v8go.Value) (*Wrapper, bool) {
	if val == nil || !val.IsObject() {
		return nil, false
	}
	obj, err := val.AsObject()
	if err != nil || obj.InternalFieldCount() != internalFields {
		return nil, false
	}
	slotVal := obj.GetInternalField(slotField)
	typeVal := obj.GetInternalField(typeField)
	if slotVal == nil || typeVal == nil || !slotVal.IsUint32() || !typeVal.IsUint32() {
		return nil, false
	}
	w, found := m.slots[slotVal.Uint32()]
	if !found || w.Type.ID != TypeID(typeVal.Uint32()) {
		return nil, false
	}
	return w, true
}

// Live returns the number of wrappers not yet finalized.
func (m *Marshaler) Live() int {
	return len(m.slots)
}

// Close finalizes every remaining wrapper, as a dying context would.
func (m *Marshaler) Close() {
	for _, w := range m.slots {
		w.refs = 1
		w.Drop()
	}
}

func (m *Marshaler) number(f float64) (*v8go.Value, error) {
	iso := m.vctx.Isolate()
	switch {
	case f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32:
		return v8go.NewValue(iso, int32(f))
	case f == math.Trunc(f) && f >= 0 && f <= math.MaxUint32:
		return v8go.NewValue(iso, uint32(f))
	}
	return v8go.NewValue(iso, f)
}

// ToJS converts a Go value for the script. Owned and Observing values become
// wrappers registered in scope, numbers become Numbers (never BigInts) and
// everything else goes through JSON. Integers a Number can't hold exactly
// are refused with ErrUnsafeInteger.
func (m *Marshaler) ToJS(scope *Scope, v any) (*v8go.Value, error) {
	iso := m.vctx.Isolate()
	switch val := v.(type) {
	case nil:
		return v8go.Undefined(iso), nil
	case *v8go.Value:
		return val, nil
	case *v8go.Object:
		return val.Value, nil
	case *v8go.Function:
		return val.Value, nil
	case *Wrapper:
		if val.Finalized() {
			return v8go.Null(iso), nil
		}
		return m.instance(val)
	case handle:
		return m.wrap(scope, val.handleValue(), val.handleWeak())
	case bool:
		return v8go.NewValue(iso, val)
	case string:
		return v8go.NewValue(iso, val)
	case error:
		return v8go.NewValue(iso, val.Error())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i := rv.Int(); i > MaxSafeInteger || i < -MaxSafeInteger {
			return nil, errors.Wrapf(ErrUnsafeInteger, "%v", i)
		}
		return m.number(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u > MaxSafeInteger {
			return nil, errors.Wrapf(ErrUnsafeInteger, "%v", u)
		}
		return m.number(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return m.number(rv.Float())
	case reflect.String:
		return v8go.NewValue(iso, rv.String())
	case reflect.Bool:
		return v8go.NewValue(iso, rv.Bool())
	}
	if _, found := m.types.Of(v); found {
		return nil, errors.Errorf("%T must be pushed as Owned or Observing", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	result, err := v8go.JSONParse(m.vctx, string(b))
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return result, nil
}

// FromJS converts a script value to Go. Wrappers come back as *Wrapper and
// functions as *v8go.Function.
func (m *Marshaler) FromJS(val *v8go.Value) (any, error) {
	switch {
	case val == nil || val.IsNullOrUndefined():
		return nil, nil
	case val.IsBoolean():
		return val.Boolean(), nil
	case val.IsInt32():
		return int64(val.Int32()), nil
	case val.IsUint32():
		return int64(val.Uint32()), nil
	case val.IsNumber():
		return val.Number(), nil
	case val.IsString():
		return val.String(), nil
	case val.IsFunction():
		fn, err := val.AsFunction()
		if err != nil {
			return nil, juicebridge.WithStack(err)
		}
		return fn, nil
	}
	if w, found := m.Unwrap(val); found {
		return w, nil
	}
	if val.IsObject() && func() bool {
		obj, err := val.AsObject()
		return err == nil && obj.InternalFieldCount() == internalFields
	}() {
		// A wrapper whose slot was finalized.
		return nil, nil
	}
	s, err := v8go.JSONStringify(m.vctx, val)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	var result any
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return result, nil
}
