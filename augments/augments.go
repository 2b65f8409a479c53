// Package augments loads damage modifier bundles from TOML files.
package augments

import (
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/zond/juicebridge"

	stderrors "errors"
)

var (
	ErrNoName = errors.New("augment has no name")
)

type Modifier struct {
	Stance      Stance
	Type        uint8
	Value       uint16
	Chance      uint8
	DamageType  DamageType
	Origin      Origin
	FlatRate    bool
	UseOnAll    bool
	UseOnOrigin bool
	// ToDamageType is the damage type conversion and reform modifiers turn
	// damage into.
	ToDamageType DamageType
	MonsterName  string
	Race         uint8
	removed      bool
}

func (m *Modifier) IsRemoved() bool          { return m.removed }
func (m *Modifier) IsPercent() bool          { return !m.FlatRate }
func (m *Modifier) IsFlatValue() bool        { return m.FlatRate }
func (m *Modifier) AppliesToAllDamage() bool { return m.UseOnAll }
func (m *Modifier) IsOriginBased() bool      { return m.UseOnOrigin }
func (m *Modifier) IsAttackStance() bool     { return m.Stance == StanceAttack }
func (m *Modifier) IsDefenseStance() bool    { return m.Stance == StanceDefense }
func (m *Modifier) AttackType() AttackType   { return AttackType(m.Type) }
func (m *Modifier) DefenseType() DefenseType { return DefenseType(m.Type) }

func (m *Modifier) IsMonsterBased() bool {
	switch m.Stance {
	case StanceAttack:
		return m.AttackType() == AttackButcher
	case StanceDefense:
		return m.DefenseType() == DefenseBeastArmor
	}
	return false
}

func (m *Modifier) IsRaceBased() bool {
	switch m.Stance {
	case StanceAttack:
		return m.AttackType() == AttackHunter
	case StanceDefense:
		return m.DefenseType() == DefenseAegis
	}
	return false
}

func (m *Modifier) IsBossBased() bool {
	switch m.Stance {
	case StanceAttack:
		return m.AttackType() == AttackSlayer || m.AttackType() == AttackCull
	case StanceDefense:
		return m.DefenseType() == DefenseImmortal || m.DefenseType() == DefenseSlayer
	}
	return false
}

// ConversionType is DamageNone unless m converts damage.
func (m *Modifier) ConversionType() DamageType {
	if (m.IsAttackStance() && m.AttackType() == AttackConversion) || (m.IsDefenseStance() && m.DefenseType() == DefenseReform) {
		return m.ToDamageType
	}
	return DamageNone
}

// Applies reports whether m modifies damage of the given type and origin.
func (m *Modifier) Applies(damage DamageType, origin Origin) bool {
	if !m.UseOnAll && m.DamageType != DamageNone && m.DamageType != damage {
		return false
	}
	if m.UseOnOrigin && m.Origin != origin {
		return false
	}
	return true
}

// Modify returns amount changed by m: raised for attack modifiers, lowered
// for defense modifiers, never below zero.
func (m *Modifier) Modify(amount int) int {
	delta := int(m.Value)
	if m.IsPercent() {
		delta = amount * int(m.Value) / 100
	}
	if m.IsDefenseStance() {
		return max(0, amount-delta)
	}
	return amount + delta
}

func (m *Modifier) IncreaseValue(amount uint16) {
	if int(m.Value)+int(amount) > math.MaxUint16 {
		m.Value = math.MaxUint16
		log.Printf("modifier value capped at %v", m.Value)
		return
	}
	m.Value += amount
}

func (m *Modifier) DecreaseValue(amount uint16) {
	if amount > m.Value {
		m.Value = 0
		log.Printf("modifier value floored at 0")
		return
	}
	m.Value -= amount
}

type modifierList struct {
	attack  []*Modifier
	defense []*Modifier
}

// Augment is a named bundle of modifiers. Clones made by Registry.Make share
// the modifier list of the original.
type Augment struct {
	Name    string
	mods    *modifierList
	removed bool
}

func New(name string) *Augment {
	return &Augment{Name: name, mods: &modifierList{}}
}

func (a *Augment) IsRemoved() bool {
	return a.removed
}

func (a *Augment) Add(m *Modifier) {
	switch m.Stance {
	case StanceAttack:
		a.mods.attack = append(a.mods.attack, m)
	case StanceDefense:
		a.mods.defense = append(a.mods.defense, m)
	}
}

func removeFrom(mods []*Modifier, m *Modifier) []*Modifier {
	for i, candidate := range mods {
		if candidate == m {
			return append(mods[:i], mods[i+1:]...)
		}
	}
	return mods
}

func (a *Augment) Remove(m *Modifier) {
	a.mods.attack = removeFrom(a.mods.attack, m)
	a.mods.defense = removeFrom(a.mods.defense, m)
}

func (a *Augment) Modifiers() []*Modifier {
	return append(append([]*Modifier{}, a.mods.attack...), a.mods.defense...)
}

func (a *Augment) AttackModifiers(t AttackType) []*Modifier {
	result := []*Modifier{}
	for _, m := range a.mods.attack {
		if m.AttackType() == t {
			result = append(result, m)
		}
	}
	return result
}

func (a *Augment) DefenseModifiers(t DefenseType) []*Modifier {
	result := []*Modifier{}
	for _, m := range a.mods.defense {
		if m.DefenseType() == t {
			result = append(result, m)
		}
	}
	return result
}

func (a *Augment) markRemoved() {
	a.removed = true
	for _, m := range a.Modifiers() {
		m.removed = true
	}
}

type modifierDef struct {
	Stance       string `toml:"stance"`
	Type         string `toml:"type"`
	Chance       *uint8 `toml:"chance"`
	Value        uint16 `toml:"value"`
	DamageType   string `toml:"damageType"`
	OriginType   string `toml:"originType"`
	UseOnAll     bool   `toml:"useOnAll"`
	FlatRate     bool   `toml:"flatRate"`
	UseOnOrigin  bool   `toml:"useOnOrigin"`
	ToDamageType string `toml:"toDamageType"`
	Monster      string `toml:"monster"`
	Race         uint8  `toml:"race"`
}

type augmentDef struct {
	Name      string        `toml:"name"`
	Modifiers []modifierDef `toml:"modifiers"`
}

func (d modifierDef) modifier() (*Modifier, bool) {
	m := &Modifier{
		Stance:       ParseStance(d.Stance),
		Value:        d.Value,
		Chance:       100,
		DamageType:   ParseDamageType(d.DamageType),
		Origin:       ParseOrigin(d.OriginType),
		FlatRate:     d.FlatRate,
		UseOnAll:     d.UseOnAll,
		UseOnOrigin:  d.UseOnOrigin,
		ToDamageType: ParseDamageType(d.ToDamageType),
		MonsterName:  d.Monster,
		Race:         d.Race,
	}
	if d.Chance != nil {
		m.Chance = *d.Chance
	}
	switch m.Stance {
	case StanceAttack:
		m.Type = uint8(ParseAttackType(d.Type))
	case StanceDefense:
		m.Type = uint8(ParseDefenseType(d.Type))
	default:
		return nil, false
	}
	return m, true
}

// Registry holds the augment definitions of a directory.
type Registry struct {
	dir      string
	augments map[string]*Augment
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:      dir,
		augments: map[string]*Augment{},
	}
}

// LoadFile adds every augment defined in path. Broken modifiers are logged
// and skipped.
func (r *Registry) LoadFile(path string) error {
	defs := map[string]augmentDef{}
	if _, err := toml.DecodeFile(path, &defs); err != nil {
		return errors.Wrapf(err, "parsing %q", path)
	}
	keys := make([]string, 0, len(defs))
	for key := range defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		def := defs[key]
		if def.Name == "" {
			return errors.Wrapf(ErrNoName, "%q in %q", key, path)
		}
		augment := New(def.Name)
		for i, modDef := range def.Modifiers {
			m, ok := modDef.modifier()
			if !ok {
				log.Printf("modifier %d of augment %q has unknown stance %q", i, def.Name, modDef.Stance)
				continue
			}
			augment.Add(m)
		}
		r.Add(augment)
	}
	return nil
}

// LoadAll loads every .toml file in the directory of r.
func (r *Registry) LoadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ".toml" {
			if err := r.LoadFile(filepath.Join(r.dir, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

// Clear forgets every augment and marks them removed, so observers of the old
// definitions see them as gone.
func (r *Registry) Clear() {
	for _, a := range r.augments {
		a.markRemoved()
	}
	r.augments = map[string]*Augment{}
}

func (r *Registry) Reload() error {
	r.Clear()
	return r.LoadAll()
}

// Add keeps the existing augment and warns if the name is taken.
func (r *Registry) Add(a *Augment) bool {
	if _, found := r.augments[a.Name]; found {
		log.Printf("augment %q already exists", a.Name)
		return false
	}
	r.augments[a.Name] = a
	return true
}

func (r *Registry) Remove(name string) bool {
	a, found := r.augments[name]
	if !found {
		return false
	}
	delete(r.augments, name)
	a.markRemoved()
	return true
}

func (r *Registry) Get(name string) (*Augment, bool) {
	a, found := r.augments[name]
	return a, found
}

// Make returns a clone of the named augment.
func (r *Registry) Make(name string) (*Augment, error) {
	a, found := r.augments[name]
	if !found {
		return nil, errors.Wrapf(os.ErrNotExist, "augment %q", name)
	}
	return &Augment{Name: a.Name, mods: a.mods}, nil
}

func (r *Registry) Names() []string {
	result := make([]string, 0, len(r.augments))
	for name := range r.augments {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
