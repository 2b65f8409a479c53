package world

import (
	"github.com/zond/juicebridge/augments"
)

// Combat describes a damage effect scripts set up at load time and execute
// later.
type Combat struct {
	ID     uint32
	Type   augments.DamageType
	Origin augments.Origin
	Min    int
	Max    int
	Area   *Area
	gone   bool
}

func (c *Combat) IsRemoved() bool {
	return c.gone
}

// Destroy detaches c from its area. Pools call it when the owning source
// is reloaded.
func (c *Combat) Destroy() {
	c.gone = true
	c.Area = nil
}

// Area is a square of tiles centered on the target, Radius tiles out.
type Area struct {
	ID     uint32
	Radius int
	gone   bool
}

func (a *Area) IsRemoved() bool {
	return a.gone
}

func (a *Area) Destroy() {
	a.gone = true
}

func (a *Area) Contains(center Position, p Position) bool {
	if a == nil {
		return center == p
	}
	dx, dy := p.X-center.X, p.Y-center.Y
	return p.Z == center.Z && dx >= -a.Radius && dx <= a.Radius && dy >= -a.Radius && dy <= a.Radius
}

func (w *World) chance(percent uint8) bool {
	return w.rand.IntN(100) < int(percent)
}

func (w *World) attack(amount int, damage augments.DamageType, c *Combat, attacker Fighter, target Fighter) (int, augments.DamageType) {
	monster, isMonster := target.(*Monster)
	for _, aug := range attacker.Base().Augments() {
		for _, m := range aug.Modifiers() {
			if !m.IsAttackStance() || !m.Applies(damage, c.Origin) || !w.chance(m.Chance) {
				continue
			}
			switch {
			case m.AttackType() == augments.AttackCritical:
				amount = m.Modify(amount)
			case m.AttackType() == augments.AttackConversion:
				damage = m.ConversionType()
			case m.IsMonsterBased():
				if isMonster && monster.Name == m.MonsterName {
					amount = m.Modify(amount)
				}
			case m.IsRaceBased():
				if isMonster && monster.Race == m.Race {
					amount = m.Modify(amount)
				}
			case m.IsBossBased():
				if isMonster && monster.Boss && (m.AttackType() == augments.AttackCull || monster.Name == m.MonsterName) {
					amount = m.Modify(amount)
				}
			}
		}
	}
	return amount, damage
}

func (w *World) defend(amount int, damage augments.DamageType, c *Combat, attacker Fighter, target Fighter) int {
	monster, isMonster := attacker.(*Monster)
	for _, aug := range target.Base().Augments() {
		for _, m := range aug.Modifiers() {
			if !m.IsDefenseStance() || !m.Applies(damage, c.Origin) || !w.chance(m.Chance) {
				continue
			}
			switch {
			case m.DefenseType() == augments.DefenseResist:
				amount = m.Modify(amount)
			case m.DefenseType() == augments.DefenseReform:
				damage = m.ConversionType()
			case m.IsMonsterBased():
				if isMonster && monster.Name == m.MonsterName {
					amount = m.Modify(amount)
				}
			case m.IsRaceBased():
				if isMonster && monster.Race == m.Race {
					amount = m.Modify(amount)
				}
			case m.IsBossBased():
				if isMonster && monster.Boss && (m.DefenseType() == augments.DefenseImmortal || monster.Name == m.MonsterName) {
					amount = m.Modify(amount)
				}
			}
		}
	}
	return amount
}

// Execute applies c from attacker (which may be nil) to target and every
// other live creature in its area, returning the damage dealt to target.
func (w *World) Execute(c *Combat, attacker Fighter, target Fighter) int {
	dealt := 0
	center := target.Base().Position
	for _, f := range w.Creatures() {
		if f.Base().IsDead() || !c.Area.Contains(center, f.Base().Position) {
			continue
		}
		amount := c.Min
		if c.Max > c.Min {
			amount += w.rand.IntN(c.Max - c.Min + 1)
		}
		damage := c.Type
		if attacker != nil {
			amount, damage = w.attack(amount, damage, c, attacker, f)
		}
		amount = w.defend(amount, damage, c, attacker, f)
		if damage == augments.DamageHealing {
			f.Base().Health = min(f.Base().MaxHealth, f.Base().Health+amount)
			amount = -amount
		} else {
			f.Base().Health = max(0, f.Base().Health-amount)
		}
		if f.Base() == target.Base() {
			dealt = amount
		}
	}
	return dealt
}
