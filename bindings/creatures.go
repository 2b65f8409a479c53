package bindings

import (
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/uid"
	"github.com/zond/juicebridge/world"
	"rogchap.com/v8go"
)

func fighter(rc *js.RunContext, val *v8go.Value) (world.Fighter, bool) {
	obj, found := rc.Object(val)
	if !found {
		return nil, false
	}
	f, ok := obj.(world.Fighter)
	return f, ok
}

func (b *Bindings) installCreatures(reg *js.Registrar) error {
	types := reg.Types()
	if err := reg.DeclareType("Creature", "Thing", lookup("Creature", marshal.CreatureNotFound)); err != nil {
		return err
	}
	// Player(name) looks players up by name as well as by id.
	if err := reg.DeclareType("Player", "Creature", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		if val := arg(info, 0); val != nil && val.IsString() {
			p, found := b.World.Player(val.String())
			if !found {
				return rc.NotFound(marshal.PlayerNotFound)
			}
			return js.Wrap(rc, p)
		}
		return lookup("Player", marshal.PlayerNotFound)(rc, info)
	}); err != nil {
		return err
	}
	if err := reg.DeclareType("Monster", "Creature", lookup("Monster", marshal.CreatureNotFound)); err != nil {
		return err
	}
	if err := reg.DeclareType("Npc", "Creature", lookup("Npc", marshal.CreatureNotFound)); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Creature", func(c *world.Creature) uid.Thing { return c }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Player", func(p *world.Player) *world.Creature { return &p.Creature }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Monster", func(m *world.Monster) *world.Creature { return &m.Creature }); err != nil {
		return err
	}
	if err := marshal.BindBase(types, "Npc", func(n *world.Npc) *world.Creature { return &n.Creature }); err != nil {
		return err
	}

	if err := bindAll(reg, "Creature", []method{
		{"getName", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			return rc.Value(c.Name)
		})},
		{"getHealth", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			return rc.Value(c.Health)
		})},
		{"getMaxHealth", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			return rc.Value(c.MaxHealth)
		})},
		{"addHealth", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			c.Health = max(0, min(c.MaxHealth, c.Health+intArg(info, 0, 0)))
			return rc.Value(c.Health)
		})},
		{"isDead", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			return rc.Bool(c.IsDead())
		})},
		{"teleportTo", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			c.Position = positionArgs(info, 0)
			return rc.Bool(true)
		})},
		{"getAugments", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			augs := c.Augments()
			vals := make([]*v8go.Value, len(augs))
			for i, a := range augs {
				vals[i] = js.WrapWeak(rc, a)
			}
			return rc.Array(vals)
		})},
		{"hasAugment", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			name := stringArg(info, 0)
			for _, a := range c.Augments() {
				if a.Name == name {
					return rc.Bool(true)
				}
			}
			return rc.Bool(false)
		})},
		{"addAugment", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			a, err := b.Augments.Make(stringArg(info, 0))
			if err != nil {
				return rc.NotFound(marshal.AugmentNotFound)
			}
			c.AddAugment(a)
			return js.WrapWeak(rc, a)
		})},
		{"removeAugment", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, c *world.Creature) *v8go.Value {
			return rc.Bool(c.RemoveAugment(stringArg(info, 0)))
		})},
		{"despawn", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			f, ok := fighter(rc, info.This().Value)
			if !ok {
				return rc.NotFound(marshal.CreatureNotFound)
			}
			return rc.Bool(b.World.Despawn(f))
		}},
	}); err != nil {
		return err
	}

	if err := bindAll(reg, "Player", []method{
		{"getLevel", on(marshal.PlayerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, p *world.Player) *v8go.Value {
			return rc.Value(p.Level)
		})},
		{"getVocation", on(marshal.PlayerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, p *world.Player) *v8go.Value {
			return rc.Value(p.Vocation)
		})},
		{"setVocation", on(marshal.PlayerNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, p *world.Player) *v8go.Value {
			p.Vocation = stringArg(info, 0)
			return rc.Bool(true)
		})},
	}); err != nil {
		return err
	}

	if err := bindAll(reg, "Monster", []method{
		{"getRace", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *world.Monster) *v8go.Value {
			return rc.Value(m.Race)
		})},
		{"isBoss", on(marshal.CreatureNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *world.Monster) *v8go.Value {
			return rc.Bool(m.Boss)
		})},
	}); err != nil {
		return err
	}

	for _, f := range []struct {
		name string
		fn   js.Callback
	}{
		{"getPlayer", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			p, found := b.World.Player(stringArg(info, 0))
			if !found {
				return rc.NotFound(marshal.PlayerNotFound)
			}
			return js.Wrap(rc, p)
		}},
		{"getCreatures", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			creatures := b.World.Creatures()
			vals := make([]*v8go.Value, len(creatures))
			for i, c := range creatures {
				vals[i] = js.Wrap[any](rc, c)
			}
			return rc.Array(vals)
		}},
		{"spawnMonster", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			m := b.World.SpawnMonster(stringArg(info, 0), uint8(intArg(info, 1, 0)), boolArg(info, 2), intArg(info, 3, 100), positionArgs(info, 4))
			return js.Wrap(rc, m)
		}},
		{"spawnNpc", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			return js.Wrap(rc, b.World.SpawnNpc(stringArg(info, 0), positionArgs(info, 1)))
		}},
	} {
		if err := reg.BindFunction(f.name, f.fn); err != nil {
			return err
		}
	}
	return nil
}
