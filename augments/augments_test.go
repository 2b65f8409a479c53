package augments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const vampiric = `
[vampiric]
name = "Vampiric"

[[vampiric.modifiers]]
stance = "attack"
type = "lifesteal"
value = 10
damageType = "physical"

[[vampiric.modifiers]]
stance = "defense"
type = "resist"
value = 25
chance = 50
damageType = "fire"
originType = "spell"
useOnOrigin = true

[[vampiric.modifiers]]
stance = "sideways"
type = "resist"

[frozen]
name = "Frozen"

[[frozen.modifiers]]
stance = "attack"
type = "conversion"
toDamageType = "ice"
useOnAll = true
`

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadAll(t *testing.T) {
	dir := writeDir(t, map[string]string{
		"vampiric.toml": vampiric,
		"readme.txt":    "not an augment",
	})
	r := NewRegistry(dir)
	if err := r.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Frozen", "Vampiric"}, r.Names()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	v, _ := r.Get("Vampiric")
	if got := len(v.Modifiers()); got != 2 {
		t.Fatalf("got %v modifiers, want 2", got)
	}
	steal := v.AttackModifiers(AttackLifesteal)
	if len(steal) != 1 || steal[0].Chance != 100 || steal[0].Value != 10 || !steal[0].IsPercent() {
		t.Errorf("got %+v", steal)
	}
	resist := v.DefenseModifiers(DefenseResist)[0]
	if resist.Chance != 50 || !resist.IsOriginBased() || resist.Origin != OriginSpell {
		t.Errorf("got %+v", resist)
	}
	if resist.Applies(DamageFire, OriginMelee) || !resist.Applies(DamageFire, OriginSpell) || resist.Applies(DamageIce, OriginSpell) {
		t.Errorf("resist applies to the wrong damage")
	}
	if got := resist.Modify(100); got != 75 {
		t.Errorf("got %v, want 75", got)
	}
	f, _ := r.Get("Frozen")
	conv := f.AttackModifiers(AttackConversion)[0]
	if conv.ConversionType() != DamageIce || !conv.Applies(DamageDeath, OriginNone) {
		t.Errorf("got %+v", conv)
	}
}

func TestLoadNameless(t *testing.T) {
	dir := writeDir(t, map[string]string{"bad.toml": "[nameless]\nmodifiers = []\n"})
	if err := NewRegistry(dir).LoadAll(); err == nil {
		t.Errorf("nameless augment accepted")
	}
}

func TestMakeAndReload(t *testing.T) {
	dir := writeDir(t, map[string]string{"vampiric.toml": vampiric})
	r := NewRegistry(dir)
	if err := r.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if r.Add(New("Vampiric")) {
		t.Errorf("duplicate augment added")
	}
	clone, err := r.Make("Vampiric")
	if err != nil {
		t.Fatal(err)
	}
	original, _ := r.Get("Vampiric")
	if clone == original {
		t.Errorf("Make returned the original")
	}
	clone.Add(&Modifier{Stance: StanceDefense, Type: uint8(DefenseAbsorb)})
	if len(original.DefenseModifiers(DefenseAbsorb)) != 1 {
		t.Errorf("clone does not share the modifier list")
	}
	if _, err := r.Make("Missing"); err == nil {
		t.Errorf("made a missing augment")
	}
	mod := original.Modifiers()[0]
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if !original.IsRemoved() || !mod.IsRemoved() {
		t.Errorf("reload did not mark old definitions removed")
	}
	fresh, found := r.Get("Vampiric")
	if !found || fresh == original || fresh.IsRemoved() {
		t.Errorf("reload did not load fresh definitions")
	}
	if !r.Remove("Frozen") || r.Remove("Frozen") {
		t.Errorf("Remove not idempotent")
	}
}

func TestPredicates(t *testing.T) {
	for _, tc := range []struct {
		m                      Modifier
		monster, race, boss bool
	}{
		{Modifier{Stance: StanceAttack, Type: uint8(AttackButcher)}, true, false, false},
		{Modifier{Stance: StanceDefense, Type: uint8(DefenseBeastArmor)}, true, false, false},
		{Modifier{Stance: StanceAttack, Type: uint8(AttackHunter)}, false, true, false},
		{Modifier{Stance: StanceDefense, Type: uint8(DefenseAegis)}, false, true, false},
		{Modifier{Stance: StanceAttack, Type: uint8(AttackCull)}, false, false, true},
		{Modifier{Stance: StanceDefense, Type: uint8(DefenseSlayer)}, false, false, true},
		{Modifier{Stance: StanceNone, Type: uint8(AttackButcher)}, false, false, false},
	} {
		got := [3]bool{tc.m.IsMonsterBased(), tc.m.IsRaceBased(), tc.m.IsBossBased()}
		if want := [3]bool{tc.monster, tc.race, tc.boss}; got != want {
			t.Errorf("%+v: got %v, want %v", tc.m, got, want)
		}
	}
}

func TestValueLimits(t *testing.T) {
	m := &Modifier{Value: 65000}
	m.IncreaseValue(1000)
	if m.Value != 65535 {
		t.Errorf("got %v", m.Value)
	}
	m.DecreaseValue(65535)
	m.DecreaseValue(1)
	if m.Value != 0 {
		t.Errorf("got %v", m.Value)
	}
	flat := &Modifier{Stance: StanceAttack, FlatRate: true, Value: 5}
	if got := flat.Modify(10); got != 15 {
		t.Errorf("got %v, want 15", got)
	}
}

func TestConstants(t *testing.T) {
	found := map[string]uint8{}
	for _, c := range Constants() {
		found[c.Name] = c.Value
	}
	for name, want := range map[string]uint8{
		"COMBAT_FIRE":    uint8(DamageFire),
		"ORIGIN_SPELL":   uint8(OriginSpell),
		"DEFENSE_RESIST": uint8(DefenseResist),
		"STANCE_ATTACK":  uint8(StanceAttack),
	} {
		if got, ok := found[name]; !ok || got != want {
			t.Errorf("%v = %v, %v; want %v", name, got, ok, want)
		}
	}
	if _, ok := found["COMBAT_NONE"]; ok {
		t.Errorf("none values exported")
	}
}
