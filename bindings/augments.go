package bindings

import (
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"rogchap.com/v8go"
)

func modifiers(rc *js.RunContext, mods []*augments.Modifier) *v8go.Value {
	vals := make([]*v8go.Value, len(mods))
	for i, m := range mods {
		vals[i] = js.WrapWeak(rc, m)
	}
	return rc.Array(vals)
}

// Augments and modifiers belong to the registry. Scripts only ever observe
// them, and a registry reload removes them from under the script.
func (b *Bindings) installAugments(reg *js.Registrar) error {
	types := reg.Types()
	if err := reg.DeclareType("Augment", "", func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		a, found := b.Augments.Get(stringArg(info, 0))
		if !found {
			return rc.NotFound(marshal.AugmentNotFound)
		}
		return js.WrapWeak(rc, a)
	}); err != nil {
		return err
	}
	if err := reg.DeclareType("Modifier", "", nil); err != nil {
		return err
	}
	if err := marshal.Bind[*augments.Augment](types, "Augment"); err != nil {
		return err
	}
	if err := marshal.Bind[*augments.Modifier](types, "Modifier"); err != nil {
		return err
	}
	for _, name := range []string{"Augment", "Modifier"} {
		if err := types.SetUnstable(name, true); err != nil {
			return err
		}
	}

	if err := bindAll(reg, "Augment", []method{
		{"getName", on(marshal.AugmentNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, a *augments.Augment) *v8go.Value {
			return rc.Value(a.Name)
		})},
		{"getModifiers", on(marshal.AugmentNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, a *augments.Augment) *v8go.Value {
			return modifiers(rc, a.Modifiers())
		})},
		{"getAttackModifiers", on(marshal.AugmentNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, a *augments.Augment) *v8go.Value {
			return modifiers(rc, a.AttackModifiers(augments.AttackType(intArg(info, 0, 0))))
		})},
		{"getDefenseModifiers", on(marshal.AugmentNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, a *augments.Augment) *v8go.Value {
			return modifiers(rc, a.DefenseModifiers(augments.DefenseType(intArg(info, 0, 0))))
		})},
	}); err != nil {
		return err
	}

	flag := func(f func(*augments.Modifier) bool) js.Callback {
		return on(marshal.ModifierNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *augments.Modifier) *v8go.Value {
			return rc.Bool(f(m))
		})
	}
	number := func(f func(*augments.Modifier) any) js.Callback {
		return on(marshal.ModifierNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *augments.Modifier) *v8go.Value {
			return rc.Value(f(m))
		})
	}
	return bindAll(reg, "Modifier", []method{
		{"isPercent", flag((*augments.Modifier).IsPercent)},
		{"isFlatValue", flag((*augments.Modifier).IsFlatValue)},
		{"appliesToAllDamage", flag((*augments.Modifier).AppliesToAllDamage)},
		{"isOriginBased", flag((*augments.Modifier).IsOriginBased)},
		{"isAttackStance", flag((*augments.Modifier).IsAttackStance)},
		{"isDefenseStance", flag((*augments.Modifier).IsDefenseStance)},
		{"isMonsterBased", flag((*augments.Modifier).IsMonsterBased)},
		{"isRaceBased", flag((*augments.Modifier).IsRaceBased)},
		{"isBossBased", flag((*augments.Modifier).IsBossBased)},
		{"getType", number(func(m *augments.Modifier) any { return m.Type })},
		{"getValue", number(func(m *augments.Modifier) any { return m.Value })},
		{"getChance", number(func(m *augments.Modifier) any { return m.Chance })},
		{"getDamageType", number(func(m *augments.Modifier) any { return m.DamageType })},
		{"getOriginType", number(func(m *augments.Modifier) any { return m.Origin })},
		{"getConversionType", number(func(m *augments.Modifier) any { return m.ConversionType() })},
		{"getMonsterName", number(func(m *augments.Modifier) any { return m.MonsterName })},
		{"getRace", number(func(m *augments.Modifier) any { return m.Race })},
		{"increaseValue", on(marshal.ModifierNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *augments.Modifier) *v8go.Value {
			m.IncreaseValue(uint16(intArg(info, 0, 0)))
			return rc.Value(m.Value)
		})},
		{"decreaseValue", on(marshal.ModifierNotFound, func(rc *js.RunContext, info *v8go.FunctionCallbackInfo, m *augments.Modifier) *v8go.Value {
			m.DecreaseValue(uint16(intArg(info, 0, 0)))
			return rc.Value(m.Value)
		})},
	})
}
