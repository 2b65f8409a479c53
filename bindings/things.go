package bindings

import (
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/uid"
	"github.com/zond/juicebridge/world"
	"rogchap.com/v8go"
)

// lookup builds a constructor resolving its argument to a live object
// declared as typeName or a descendant.
func lookup(typeName string, code marshal.ErrorCode) js.Callback {
	return func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		obj, found := rc.Object(arg(info, 0))
		if !found {
			return rc.NotFound(code)
		}
		types := rc.Runtime().Types()
		have, found := types.Of(obj)
		want, _ := types.Named(typeName)
		if !found || want == nil || !types.IsA(have.ID, want.ID) {
			return rc.NotFound(code)
		}
		return js.Wrap(rc, obj)
	}
}

// thing returns the receiver as the object it was wrapped as, not as the
// embedded base, so that handles stay the same however it is reached.
func thing(rc *js.RunContext, info *v8go.FunctionCallbackInfo) (uid.Thing, bool) {
	obj, found := rc.Object(info.This().Value)
	if !found {
		return nil, false
	}
	t, ok := obj.(uid.Thing)
	return t, ok
}

func holdable(rc *js.RunContext, val *v8go.Value) (world.Holdable, bool) {
	obj, found := rc.Object(val)
	if !found {
		return nil, false
	}
	h, ok := obj.(world.Holdable)
	return h, ok
}

func (b *Bindings) installThings(reg *js.Registrar) error {
	types := reg.Types()
	for _, decl := range [][2]string{
		{"Thing", ""},
		{"Item", "Thing"},
		{"Container", "Item"},
		{"Depot", "Container"},
		{"Teleport", "Item"},
	} {
		code := marshal.ItemNotFound
		switch decl[0] {
		case "Thing":
			code = marshal.ThingNotFound
		case "Container", "Depot":
			code = marshal.ContainerNotFound
		}
		if err := reg.DeclareType(decl[0], decl[1], lookup(decl[0], code)); err != nil {
			return err
		}
	}
	if err := marshal.Bind[uid.Thing](types, "Thing"); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Item", func(i *world.Item) uid.Thing { return i }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Container", func(c *world.Container) *world.Item { return &c.Item }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Depot", func(d *world.Depot) *world.Container { return &d.Container }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Teleport", func(t *world.Teleport) *world.Item { return &t.Item }); err != nil {
		return err
	}
	// Things can be destroyed while a deferred callback holds them.
	if err := types.SetUnstable("Thing", true); err != nil {
		return err
	}

	if err := bindAll(reg, "Thing", []method{
		{"getId", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			t, ok := thing(rc, info)
			if !ok {
				return rc.NotFound(marshal.ThingNotFound)
			}
			return rc.Value(uint32(rc.Assign(t)))
		}},
		{"exists", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			_, ok := thing(rc, info)
			return rc.Bool(ok)
		}},
		{"isItem", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			_, ok := js.Self[*world.Item](rc, info)
			return rc.Bool(ok)
		}},
		{"isCreature", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			_, ok := js.Self[*world.Creature](rc, info)
			return rc.Bool(ok)
		}},
		{"getPosition", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			t, ok := thing(rc, info)
			if !ok {
				return rc.NotFound(marshal.ThingNotFound)
			}
			switch v := t.(type) {
			case world.Holdable:
				return rc.Value(v.ItemBase().Position)
			case world.Fighter:
				return rc.Value(v.Base().Position)
			}
			return null(rc)
		}},
		{"equals", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			a, _ := thing(rc, info)
			other, _ := rc.Object(arg(info, 0))
			return rc.Bool(a != nil && any(a) == other)
		}},
	}); err != nil {
		return err
	}

	if err := bindAll(reg, "Item", []method{
		{"getName", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			return rc.Value(i.Name)
		})},
		{"getTypeId", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			return rc.Value(i.TypeID)
		})},
		{"getCount", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			return rc.Value(i.Count)
		})},
		{"setCount", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			i.Count = max(1, intArg(info, 0, i.Count))
			return rc.Bool(true)
		})},
		{"getUniqueId", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			return rc.Value(uint32(i.UniqueID()))
		})},
		{"setUniqueId", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			h, ok := holdable(rc, info.This().Value)
			if !ok {
				return rc.NotFound(marshal.ItemNotFound)
			}
			if err := b.World.MakeUnique(h, uid.UID(intArg(info, 0, 0))); err != nil {
				return rc.Throw("setUniqueId: %v", err)
			}
			return rc.Bool(true)
		}},
		{"getParent", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			if parent := i.Parent(); parent != nil {
				return js.Wrap(rc, parent)
			}
			return null(rc)
		})},
		{"getDescription", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			return rc.Value(i.String())
		})},
		{"moveTo", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i *world.Item) *v8go.Value {
			i.Position = positionArgs(info, 0)
			return rc.Bool(true)
		})},
		{"save", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			h, ok := holdable(rc, info.This().Value)
			if !ok {
				return rc.NotFound(marshal.ItemNotFound)
			}
			if err := b.World.SaveUnique(h); err != nil {
				return rc.Throw("save: %v", err)
			}
			return rc.Bool(true)
		}},
		{"remove", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			h, ok := holdable(rc, info.This().Value)
			if !ok {
				return rc.NotFound(marshal.ItemNotFound)
			}
			b.World.DestroyItem(h)
			return rc.Bool(true)
		}},
	}); err != nil {
		return err
	}

	if err := bindAll(reg, "Container", []method{
		{"getCapacity", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Container) *v8go.Value {
			return rc.Value(c.Capacity)
		})},
		{"getSize", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Container) *v8go.Value {
			return rc.Value(len(c.Items()))
		})},
		{"getItems", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Container) *v8go.Value {
			items := c.Items()
			vals := make([]*v8go.Value, len(items))
			for i, item := range items {
				vals[i] = js.Wrap(rc, item)
			}
			return rc.Array(vals)
		})},
		{"addItem", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Container) *v8go.Value {
			h, ok := holdable(rc, arg(info, 0))
			if !ok {
				return rc.NotFound(marshal.ItemNotFound)
			}
			if err := c.AddItem(h); err != nil {
				return rc.Bool(false)
			}
			return rc.Bool(true)
		})},
		{"removeItem", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Container) *v8go.Value {
			h, ok := holdable(rc, arg(info, 0))
			if !ok {
				return rc.NotFound(marshal.ItemNotFound)
			}
			return rc.Bool(c.RemoveItem(h))
		})},
	}); err != nil {
		return err
	}

	if err := reg.BindMethod("Depot", "getDepotId", on(marshal.ContainerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, d *world.Depot) *v8go.Value {
		return rc.Value(d.DepotID)
	})); err != nil {
		return err
	}

	if err := bindAll(reg, "Teleport", []method{
		{"getDestination", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, t *world.Teleport) *v8go.Value {
			return rc.Value(t.Destination)
		})},
		{"setDestination", on(marshal.ItemNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, t *world.Teleport) *v8go.Value {
			t.Destination = positionArgs(info, 0)
			return rc.Bool(true)
		})},
	}); err != nil {
		return err
	}

	for _, f := range []struct {
		name string
		fn   js.Callback
	}{
		{"createItem", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			return js.Wrap(rc, b.World.CreateItem(uint16(intArg(info, 0, 0)), stringArg(info, 1), intArg(info, 2, 1)))
		}},
		{"createContainer", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			return js.Wrap(rc, b.World.CreateContainer(uint16(intArg(info, 0, 0)), stringArg(info, 1), intArg(info, 2, 8)))
		}},
		{"createTeleport", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			return js.Wrap(rc, b.World.CreateTeleport(uint16(intArg(info, 0, 0)), stringArg(info, 1), positionArgs(info, 2)))
		}},
	} {
		if err := reg.BindFunction(f.name, f.fn); err != nil {
			return err
		}
	}
	return nil
}
