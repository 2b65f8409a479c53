package bindings

import (
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/pools"
	"github.com/zond/juicebridge/world"
	"rogchap.com/v8go"
)

// loading reports whether rc runs the top level code of a source, which is
// the only place combats and areas may be created.
func loading(rc *js.RunContext) bool {
	ctx := rc.Call()
	return ctx != nil && !ctx.Timer && ctx.CallbackID() == 0
}

func poolID(rc *js.RunContext, info *v8go.FunctionCallbackInfo, i int) (pools.ID, bool) {
	val := arg(info, i)
	if val == nil || !val.IsUint32() {
		return 0, false
	}
	return pools.ID(val.Uint32()), true
}

func (b *Bindings) installCombat(reg *js.Registrar) error {
	b.combats = pools.New("combat", (*world.Combat).Destroy)
	b.areas = pools.New("area", (*world.Area).Destroy)
	reg.AddPool(b.combats)
	reg.AddPool(b.areas)

	for _, f := range []struct {
		name string
		fn   js.Callback
	}{
		// createCombat(damageType, origin, min, max) returns a combat id.
		{"createCombat", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			if !loading(rc) {
				return rc.Throw("createCombat can only be called while loading")
			}
			id, _ := b.combats.Create(rc.Source(), func(id pools.ID) *world.Combat {
				return &world.Combat{
					ID:     uint32(id),
					Type:   augments.DamageType(intArg(info, 0, 0)),
					Origin: augments.Origin(intArg(info, 1, 0)),
					Min:    intArg(info, 2, 0),
					Max:    intArg(info, 3, 0),
				}
			})
			return rc.Value(uint32(id))
		}},
		// createArea(radius) returns an area id.
		{"createArea", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			if !loading(rc) {
				return rc.Throw("createArea can only be called while loading")
			}
			id, _ := b.areas.Create(rc.Source(), func(id pools.ID) *world.Area {
				return &world.Area{ID: uint32(id), Radius: max(0, intArg(info, 0, 0))}
			})
			return rc.Value(uint32(id))
		}},
		{"setCombatArea", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			combatID, _ := poolID(rc, info, 0)
			c, found := b.combats.Lookup(combatID)
			if !found {
				return rc.NotFound(marshal.CombatNotFound)
			}
			areaID, _ := poolID(rc, info, 1)
			a, found := b.areas.Lookup(areaID)
			if !found {
				return rc.NotFound(marshal.AreaNotFound)
			}
			c.Area = a
			return rc.Bool(true)
		}},
		// doCombat(combatId, attacker, target) returns the damage dealt to
		// target. attacker may be null.
		{"doCombat", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			combatID, _ := poolID(rc, info, 0)
			c, found := b.combats.Lookup(combatID)
			if !found {
				return rc.NotFound(marshal.CombatNotFound)
			}
			var attacker world.Fighter
			if val := arg(info, 1); val != nil && !val.IsNullOrUndefined() {
				if attacker, found = fighter(rc, val); !found {
					return rc.NotFound(marshal.CreatureNotFound)
				}
			}
			target, found := fighter(rc, arg(info, 2))
			if !found {
				return rc.NotFound(marshal.CreatureNotFound)
			}
			return rc.Value(b.World.Execute(c, attacker, target))
		}},
	} {
		if err := reg.BindFunction(f.name, f.fn); err != nil {
			return err
		}
	}
	return nil
}
