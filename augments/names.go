package augments

import (
	"sort"
	"strings"
)

type Stance uint8

const (
	StanceNone Stance = iota
	StanceAttack
	StanceDefense
)

type AttackType uint8

const (
	AttackNone AttackType = iota
	AttackLifesteal
	AttackManasteal
	AttackStaminasteal
	AttackSoulsteal
	AttackCritical
	AttackPiercing
	AttackConversion
	AttackButcher
	AttackHunter
	AttackSlayer
	AttackCull
)

type DefenseType uint8

const (
	DefenseNone DefenseType = iota
	DefenseAbsorb
	DefenseRestore
	DefenseReplenish
	DefenseRevive
	DefenseReflect
	DefenseDeflect
	DefenseRicochet
	DefenseResist
	DefenseReform
	DefenseBeastArmor
	DefenseAegis
	DefenseImmortal
	DefenseSlayer
)

type DamageType uint8

const (
	DamageNone DamageType = iota
	DamagePhysical
	DamageEnergy
	DamageEarth
	DamageFire
	DamageLifeDrain
	DamageManaDrain
	DamageHealing
	DamageDrown
	DamageIce
	DamageHoly
	DamageDeath
)

type Origin uint8

const (
	OriginNone Origin = iota
	OriginCondition
	OriginSpell
	OriginMelee
	OriginRanged
	OriginReflect
	OriginDeflect
	OriginRicochet
	OriginModifier
	OriginAugment
	OriginImbuement
)

var (
	stanceNames = map[string]Stance{
		"none":    StanceNone,
		"attack":  StanceAttack,
		"defense": StanceDefense,
	}
	attackNames = map[string]AttackType{
		"none":         AttackNone,
		"lifesteal":    AttackLifesteal,
		"manasteal":    AttackManasteal,
		"staminasteal": AttackStaminasteal,
		"soulsteal":    AttackSoulsteal,
		"critical":     AttackCritical,
		"piercing":     AttackPiercing,
		"conversion":   AttackConversion,
		"butcher":      AttackButcher,
		"hunter":       AttackHunter,
		"slayer":       AttackSlayer,
		"cull":         AttackCull,
	}
	defenseNames = map[string]DefenseType{
		"none":       DefenseNone,
		"absorb":     DefenseAbsorb,
		"restore":    DefenseRestore,
		"replenish":  DefenseReplenish,
		"revive":     DefenseRevive,
		"reflect":    DefenseReflect,
		"deflect":    DefenseDeflect,
		"ricochet":   DefenseRicochet,
		"resist":     DefenseResist,
		"reform":     DefenseReform,
		"beastarmor": DefenseBeastArmor,
		"aegis":      DefenseAegis,
		"immortal":   DefenseImmortal,
		"slayer":     DefenseSlayer,
	}
	damageNames = map[string]DamageType{
		"none":      DamageNone,
		"physical":  DamagePhysical,
		"energy":    DamageEnergy,
		"earth":     DamageEarth,
		"fire":      DamageFire,
		"lifedrain": DamageLifeDrain,
		"manadrain": DamageManaDrain,
		"healing":   DamageHealing,
		"drown":     DamageDrown,
		"ice":       DamageIce,
		"holy":      DamageHoly,
		"death":     DamageDeath,
	}
	originNames = map[string]Origin{
		"none":      OriginNone,
		"condition": OriginCondition,
		"spell":     OriginSpell,
		"melee":     OriginMelee,
		"ranged":    OriginRanged,
		"reflect":   OriginReflect,
		"deflect":   OriginDeflect,
		"ricochet":  OriginRicochet,
		"modifier":  OriginModifier,
		"augment":   OriginAugment,
		"imbuement": OriginImbuement,
	}
)

// Unknown names parse as the none value of each table.

func ParseStance(s string) Stance           { return stanceNames[s] }
func ParseAttackType(s string) AttackType   { return attackNames[s] }
func ParseDefenseType(s string) DefenseType { return defenseNames[s] }
func ParseDamageType(s string) DamageType   { return damageNames[s] }
func ParseOrigin(s string) Origin           { return originNames[s] }

func nameOf[T comparable](names map[string]T, v T) string {
	for name, value := range names {
		if value == v {
			return name
		}
	}
	return "unknown"
}

func (s Stance) String() string      { return nameOf(stanceNames, s) }
func (a AttackType) String() string  { return nameOf(attackNames, a) }
func (d DefenseType) String() string { return nameOf(defenseNames, d) }
func (d DamageType) String() string  { return nameOf(damageNames, d) }
func (o Origin) String() string      { return nameOf(originNames, o) }

// Constant is a named value scripts see as a global.
type Constant struct {
	Name  string
	Value uint8
}

func constants[T ~uint8](prefix string, names map[string]T) []Constant {
	result := []Constant{}
	for name, value := range names {
		if name == "none" {
			continue
		}
		result = append(result, Constant{Name: prefix + strings.ToUpper(name), Value: uint8(value)})
	}
	return result
}

// Constants lists every named value, with the prefix scripts see it under,
// sorted by name.
func Constants() []Constant {
	result := []Constant{}
	result = append(result, constants("STANCE_", stanceNames)...)
	result = append(result, constants("ATTACK_", attackNames)...)
	result = append(result, constants("DEFENSE_", defenseNames)...)
	result = append(result, constants("COMBAT_", damageNames)...)
	result = append(result, constants("ORIGIN_", originNames)...)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
