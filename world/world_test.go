package world

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/uid"
)

type memStore struct {
	records map[uint16]UniqueRecord
}

func (m *memStore) Put(rec UniqueRecord) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memStore) Delete(id uint16) error {
	delete(m.records, id)
	return nil
}

func (m *memStore) All() ([]UniqueRecord, error) {
	result := []UniqueRecord{}
	for _, rec := range m.records {
		result = append(result, rec)
	}
	return result, nil
}

func TestRefOverRelease(t *testing.T) {
	r := &Ref{}
	r.Acquire()
	r.Release()
	defer func() {
		if recover() == nil {
			t.Errorf("over release did not panic")
		}
	}()
	r.Release()
}

func TestSpawnDespawn(t *testing.T) {
	w := New(nil, 1)
	p := w.SpawnPlayer("alice", 10, Position{})
	m := w.SpawnMonster("rat", 1, false, 20, Position{X: 1})
	if p.EntityID().Range() != uid.RangeEntity || p.EntityID() == m.EntityID() {
		t.Errorf("got entity ids %v and %v", p.EntityID(), m.EntityID())
	}
	if got, found := w.Entity(m.EntityID()); !found || got != uid.Thing(m) {
		t.Errorf("monster not resolvable")
	}
	if got, _ := w.Player("alice"); got != p {
		t.Errorf("player not found by name")
	}
	p.Acquire()
	if !w.Despawn(p) || w.Despawn(p) {
		t.Errorf("despawn not idempotent")
	}
	if !p.IsRemoved() || p.Refs() != 1 {
		t.Errorf("got removed %v, refs %v", p.IsRemoved(), p.Refs())
	}
	if _, found := w.Player("alice"); found {
		t.Errorf("despawned player still found")
	}
	if diff := cmp.Diff(Stats{Creatures: 1}, w.Stats()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestUniques(t *testing.T) {
	store := &memStore{records: map[uint16]UniqueRecord{}}
	w := New(store, 1)
	sword := w.CreateItem(100, "sword", 1)
	if err := w.MakeUnique(sword, 0x10000); err == nil {
		t.Errorf("accepted a non durable id")
	}
	if err := w.MakeUnique(sword, 5); err != nil {
		t.Fatal(err)
	}
	if err := w.MakeUnique(w.CreateItem(1, "rock", 1), 5); err == nil {
		t.Errorf("accepted a taken id")
	}
	if sword.UniqueID() != 5 || sword.Refs() != 1 {
		t.Errorf("got id %v, refs %v", sword.UniqueID(), sword.Refs())
	}
	restored := New(store, 1)
	if n, err := restored.LoadUniques(); err != nil || n != 1 {
		t.Fatalf("got %v, %v", n, err)
	}
	item, found := restored.UniqueItem(5)
	if !found || item.ItemBase().Name != "sword" {
		t.Errorf("got %+v", item)
	}
	w.DestroyItem(sword)
	if !sword.IsRemoved() || sword.Refs() != 0 || len(store.records) != 0 {
		t.Errorf("destroy left removed %v, refs %v, records %v", sword.IsRemoved(), sword.Refs(), len(store.records))
	}
}

func TestContainer(t *testing.T) {
	w := New(nil, 1)
	bag := w.CreateContainer(200, "bag", 1)
	coin := w.CreateItem(1, "coin", 3)
	if err := bag.AddItem(coin); err != nil {
		t.Fatal(err)
	}
	if err := bag.AddItem(w.CreateItem(1, "coin", 1)); err != ErrFull {
		t.Errorf("got %v, want ErrFull", err)
	}
	if err := bag.AddItem(coin); err != ErrContained {
		t.Errorf("got %v, want ErrContained", err)
	}
	if coin.Parent() != bag || coin.Refs() != 1 {
		t.Errorf("coin not held by bag")
	}
	w.DestroyItem(coin)
	if len(bag.Items()) != 0 || coin.Refs() != 0 {
		t.Errorf("destroyed item still in bag")
	}
}

func TestExecute(t *testing.T) {
	w := New(nil, 1)
	attacker := w.SpawnPlayer("alice", 1, Position{})
	target := w.SpawnMonster("dragon", 3, true, 100, Position{X: 5})
	bystander := w.SpawnMonster("rat", 1, false, 100, Position{X: 6})
	far := w.SpawnMonster("bat", 1, false, 100, Position{X: 9})

	slayer := augments.New("Slayer")
	slayer.Add(&augments.Modifier{Stance: augments.StanceAttack, Type: uint8(augments.AttackCull), Value: 50, Chance: 100, UseOnAll: true})
	attacker.AddAugment(slayer)
	scales := augments.New("Scales")
	scales.Add(&augments.Modifier{Stance: augments.StanceDefense, Type: uint8(augments.DefenseResist), Value: 5, FlatRate: true, Chance: 100, DamageType: augments.DamageFire})
	target.AddAugment(scales)

	c := &Combat{Type: augments.DamageFire, Min: 10, Max: 10, Area: &Area{Radius: 1}}
	if dealt := w.Execute(c, attacker, target); dealt != 10 {
		t.Errorf("got %v dealt, want 10", dealt)
	}
	got := []int{target.Health, bystander.Health, far.Health}
	if diff := cmp.Diff([]int{90, 90, 100}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	heal := &Combat{Type: augments.DamageHealing, Min: 50, Max: 50}
	w.Execute(heal, nil, target)
	if target.Health != 100 {
		t.Errorf("got %v health, want 100", target.Health)
	}
}
