package bindings

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/dispatcher"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/world"
)

const vampiric = `
[vampiric]
name = "Vampiric"

[[vampiric.modifiers]]
stance = "attack"
type = "lifesteal"
value = 10
damageType = "physical"
`

type sink struct {
	faults []faults.Fault
}

func (s *sink) Report(f faults.Fault) {
	s.faults = append(s.faults, f)
}

func (s *sink) kinds() []faults.Kind {
	result := []faults.Kind{}
	for _, f := range s.faults {
		result = append(result, f.Kind)
	}
	return result
}

type fixture struct {
	world    *world.World
	augments *augments.Registry
	bindings *Bindings
	sink     *sink
	rt       *js.Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vampiric.toml"), []byte(vampiric), 0644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		world:    world.New(nil, 1),
		augments: augments.NewRegistry(dir),
		sink:     &sink{},
	}
	if err := f.augments.LoadAll(); err != nil {
		t.Fatal(err)
	}
	f.bindings = New(f.world, f.augments)
	disp := dispatcher.New(dispatcher.NewManualClock(time.Unix(0, 0)))
	f.rt = js.NewRuntime(f.world, disp, f.sink, js.Options{Console: &bytes.Buffer{}})
	if err := f.rt.Install(f.bindings.Install); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		f.rt.Close()
		disp.Close()
	})
	return f
}

func (f *fixture) load(t *testing.T, source string, code string) *js.Interface {
	t.Helper()
	iface := f.rt.Interface(source)
	if err := iface.Load(code); err != nil {
		t.Fatal(err)
	}
	return iface
}

func (f *fixture) call(t *testing.T, iface *js.Interface, handler string, args ...any) any {
	t.Helper()
	id, found := iface.Handler(handler)
	if !found {
		t.Fatalf("no handler %q in %s", handler, iface.Name())
	}
	got, err := iface.Call(id, args...)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestContainers(t *testing.T) {
	f := newFixture(t)
	iface := f.load(t, "actions/bag.js", `
function onPack() {
	var bag = createContainer(1987, "bag", 2);
	var coin = createItem(3031, "gold coin", 5);
	var first = bag.addItem(coin);
	var again = bag.addItem(coin);
	var self = bag.addItem(bag);
	var ids = coin.getId() == Item(coin.getId()).getId();
	return [first, again, self, bag.getSize(), coin.getParent().getName(), coin.getDescription(), ids, bag.isItem(), bag.isCreature()];
}
registerEvent("onPack");
`)
	got := f.call(t, iface, "onPack")
	want := []any{true, false, false, float64(1), "bag", "5 gold coin", true, true, false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}

func TestUniqueItems(t *testing.T) {
	f := newFixture(t)
	iface := f.load(t, "actions/key.js", `
function onMint() {
	var key = createItem(2086, "key", 1);
	key.setUniqueId(1001);
	return key.getUniqueId();
}
function onLookup() {
	var key = Item(1001);
	var name = key.getName();
	key.remove();
	return [name, isValidId(1001)];
}
registerEvent("onMint");
registerEvent("onLookup");
`)
	if got := f.call(t, iface, "onMint"); got != int64(1001) {
		t.Errorf("got unique id %#v, want 1001", got)
	}
	if item, found := f.world.UniqueItem(1001); !found || item.ItemBase().Name != "key" {
		t.Errorf("got %v, %v, want the key", item, found)
	}
	got := f.call(t, iface, "onLookup")
	if diff := cmp.Diff([]any{"key", false}, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}

func TestCreatures(t *testing.T) {
	f := newFixture(t)
	f.world.SpawnPlayer("Alice", 8, world.Position{X: 100, Y: 100, Z: 7})
	iface := f.load(t, "creaturescripts/login.js", `
function onLogin(name) {
	var p = Player(name);
	if (!p) {
		return false;
	}
	var rat = spawnMonster("rat", 21, false, 20, 101, 100, 7);
	p.addHealth(-40);
	return [p.getName(), p.getLevel(), p.getHealth(), rat.getRace(), rat.isBoss(), getCreatures().length, Player(rat.getId()), Monster(rat.getId()).getName()];
}
registerEvent("onLogin");
`)
	got := f.call(t, iface, "onLogin", "Alice")
	want := []any{"Alice", float64(8), float64(100), float64(21), false, float64(2), false, "rat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
	if diff := cmp.Diff([]faults.Kind{faults.KindResolution}, f.sink.kinds()); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
	if got := f.call(t, iface, "onLogin", "Bob"); got != false {
		t.Errorf("got %#v for a missing player", got)
	}
}

func TestAugments(t *testing.T) {
	f := newFixture(t)
	p := f.world.SpawnPlayer("Alice", 1, world.Position{})
	iface := f.load(t, "lib/equip.js", `
var held = null;
function onEquip(player) {
	var a = player.addAugment("Vampiric");
	held = a;
	var m = a.getModifiers()[0];
	return [a.getName(), player.hasAugment("Vampiric"), player.getAugments().length, m.isAttackStance(), m.getValue(), m.getType() == ATTACK_LIFESTEAL];
}
function onInspect() {
	return held.getName();
}
registerEvent("onEquip");
registerEvent("onInspect");
`)
	got := f.call(t, iface, "onEquip", marshal.Own(p))
	want := []any{"Vampiric", true, float64(1), true, float64(10), true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
	if got := f.call(t, iface, "onInspect"); got != false {
		t.Errorf("got %#v, want false for an augment wrapper from an ended call", got)
	}
	if len(p.Augments()) != 1 {
		t.Errorf("got %d augments", len(p.Augments()))
	}
}

func TestAugmentReload(t *testing.T) {
	f := newFixture(t)
	iface := f.load(t, "lib/inspect.js", `
function onInspect() {
	var a = Augment("Vampiric");
	return a ? a.getModifiers().length : -1;
}
registerEvent("onInspect");
`)
	if got := f.call(t, iface, "onInspect"); got != int64(1) {
		t.Errorf("got %#v, want 1", got)
	}
	f.augments.Clear()
	if got := f.call(t, iface, "onInspect"); got != int64(-1) {
		t.Errorf("got %#v after clearing the registry", got)
	}
	if diff := cmp.Diff([]faults.Kind{faults.KindResolution}, f.sink.kinds()); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}

func TestCombat(t *testing.T) {
	f := newFixture(t)
	center := world.Position{X: 10, Y: 10, Z: 7}
	target := f.world.SpawnMonster("dragon", 3, true, 100, center)
	near := f.world.SpawnMonster("dragon", 3, false, 100, world.Position{X: 11, Y: 9, Z: 7})
	far := f.world.SpawnMonster("dragon", 3, false, 100, world.Position{X: 14, Y: 10, Z: 7})
	code := `
var fire = createCombat(COMBAT_FIRE, ORIGIN_SPELL, 10, 10);
setCombatArea(fire, createArea(1));
function onCast(target) {
	return doCombat(fire, null, target);
}
function onLate() {
	return createCombat(COMBAT_FIRE, ORIGIN_SPELL, 1, 1);
}
registerEvent("onCast");
registerEvent("onLate");
`
	iface := f.load(t, "spells/fire.js", code)
	if got := f.call(t, iface, "onCast", marshal.Own(target)); got != int64(10) {
		t.Errorf("got damage %#v, want 10", got)
	}
	for _, tc := range []struct {
		m    *world.Monster
		want int
	}{
		{target, 90},
		{near, 90},
		{far, 100},
	} {
		if tc.m.Health != tc.want {
			t.Errorf("got health %d at %v, want %d", tc.m.Health, tc.m.Position, tc.want)
		}
	}

	id, _ := iface.Handler("onLate")
	if _, err := iface.Call(id); err == nil {
		t.Errorf("creating a combat from a callback should fail")
	}
	if diff := cmp.Diff([]faults.Kind{faults.KindScript}, f.sink.kinds()); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}

	released, err := iface.Reload(code)
	if err != nil {
		t.Fatal(err)
	}
	// One combat, one area and two callbacks.
	if released != 4 {
		t.Errorf("got %d released, want 4", released)
	}
	if got := f.bindings.combats.Owners(); !cmp.Equal(got, map[string]int{"spells/fire.js": 1}) {
		t.Errorf("got combat owners %v", got)
	}
}

func TestMissingCombat(t *testing.T) {
	f := newFixture(t)
	m := f.world.SpawnMonster("rat", 1, false, 20, world.Position{})
	iface := f.load(t, "spells/broken.js", `
function onCast(target) {
	return doCombat(4711, null, target);
}
registerEvent("onCast");
`)
	if got := f.call(t, iface, "onCast", marshal.Own(m)); got != false {
		t.Errorf("got %#v, want false", got)
	}
	if len(f.sink.faults) != 1 || f.sink.faults[0].Kind != faults.KindResolution {
		t.Fatalf("got faults %+v", f.sink.faults)
	}
	if want := "doCombat: " + marshal.CombatNotFound.String(); f.sink.faults[0].Message != want {
		t.Errorf("got %q, want %q", f.sink.faults[0].Message, want)
	}
}

func TestRegisterFromCallback(t *testing.T) {
	f := newFixture(t)
	iface := f.load(t, "actions/lever.js", `
var lever = {
	onPull: function() {
		registerMethod("lever", "onPush");
		return true;
	},
	onPush: function() {},
};
function onUse() {
	registerEvent("onLate");
	return true;
}
function onLate() {}
registerEvent("onUse");
registerMethod("lever", "onPull");
`)
	for _, handler := range []string{"onUse", "lever.onPull"} {
		id, found := iface.Handler(handler)
		if !found {
			t.Fatalf("no handler %q", handler)
		}
		if _, err := iface.Call(id); err == nil {
			t.Errorf("registering from %s should fail", handler)
		}
	}
	for _, handler := range []string{"onLate", "lever.onPush"} {
		if _, found := iface.Handler(handler); found {
			t.Errorf("%s registered from a callback", handler)
		}
	}
	if diff := cmp.Diff([]faults.Kind{faults.KindReentrancy, faults.KindScript, faults.KindReentrancy, faults.KindScript}, f.sink.kinds()); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}
