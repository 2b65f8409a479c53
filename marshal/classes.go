package marshal

import (
	"github.com/pkg/errors"
	"rogchap.com/v8go"
)

// Class is the tag table of a script visible type: the methods and the
// finalizer every wrapper of that type shares.
type Class struct {
	Type     *TypeInfo
	Methods  map[string]v8go.FunctionCallback
	Finalize func(any)
	Weak     bool
	weak     *Class
}

type Classes struct {
	types      *Types
	owning     map[TypeID]*Class
	generation int
}

func NewClasses(types *Types) *Classes {
	return &Classes{
		types:  types,
		owning: map[TypeID]*Class{},
	}
}

func releaseRefcounted(obj any) {
	if r, ok := obj.(Refcounted); ok {
		r.Release()
	}
}

// Class returns the owning tag table for id, creating it on first use.
func (c *Classes) Class(id TypeID) (*Class, error) {
	if class, found := c.owning[id]; found {
		return class, nil
	}
	info, found := c.types.Info(id)
	if !found {
		return nil, errors.Wrapf(ErrUnknownType, "class for %d", id)
	}
	class := &Class{
		Type:     info,
		Methods:  map[string]v8go.FunctionCallback{},
		Finalize: releaseRefcounted,
	}
	c.owning[id] = class
	return class, nil
}

// Weak returns the observing variant of the class for id. It is derived once,
// shares the method table of the owning class, and finalizes nothing.
func (c *Classes) Weak(id TypeID) (*Class, error) {
	owning, err := c.Class(id)
	if err != nil {
		return nil, err
	}
	if owning.weak == nil {
		owning.weak = &Class{
			Type:    owning.Type,
			Methods: owning.Methods,
			Weak:    true,
		}
	}
	return owning.weak, nil
}

// Bind registers fn as method name on the type called typeName.
func (c *Classes) Bind(typeName string, name string, fn v8go.FunctionCallback) error {
	info, found := c.types.Named(typeName)
	if !found {
		return errors.Wrapf(ErrUnknownType, "binding method %q", name)
	}
	class, err := c.Class(info.ID)
	if err != nil {
		return err
	}
	class.Methods[name] = fn
	c.generation++
	return nil
}

// Methods returns the methods visible on id, ancestors first so that
// descendants override.
func (c *Classes) Methods(id TypeID) map[string]v8go.FunctionCallback {
	chain := []TypeID{}
	for cur, found := c.types.Info(id); found; cur, found = c.types.Info(cur.Parent) {
		chain = append(chain, cur.ID)
	}
	result := map[string]v8go.FunctionCallback{}
	for i := len(chain) - 1; i >= 0; i-- {
		if class, found := c.owning[chain[i]]; found {
			for name, fn := range class.Methods {
				result[name] = fn
			}
		}
	}
	return result
}

func (c *Classes) Generation() int {
	return c.generation
}
