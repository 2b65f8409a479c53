// Package world holds the live host objects scripts manipulate.
package world

import (
	"log"
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/uid"
)

var (
	ErrNotDurable = errors.New("unique ids must be in the durable range")
	ErrTaken      = errors.New("unique id already taken")
)

// UniqueRecord is the persisted state of a unique item.
type UniqueRecord struct {
	ID       uint16
	TypeID   uint16
	Name     string
	Count    int
	Position Position
}

type UniqueStore interface {
	Put(rec UniqueRecord) error
	Delete(id uint16) error
	All() ([]UniqueRecord, error)
}

// World owns a reference to every live creature and every unique item.
type World struct {
	store      UniqueStore
	rand       *rand.Rand
	entities   map[uid.UID]Fighter
	uniques    map[uid.UID]Holdable
	players    map[string]*Player
	nextEntity uid.UID
}

// New returns an empty world. store may be nil.
func New(store UniqueStore, seed uint64) *World {
	return &World{
		store:      store,
		rand:       rand.New(rand.NewPCG(seed, seed)),
		entities:   map[uid.UID]Fighter{},
		uniques:    map[uid.UID]Holdable{},
		players:    map[string]*Player{},
		nextEntity: uid.FirstEntity,
	}
}

func (w *World) Entity(id uid.UID) (uid.Thing, bool) {
	f, found := w.entities[id]
	if !found {
		return nil, false
	}
	return f.(uid.Thing), true
}

func (w *World) Unique(id uid.UID) (uid.Thing, bool) {
	h, found := w.uniques[id]
	if !found {
		return nil, false
	}
	return h, true
}

func (w *World) UniqueItem(id uid.UID) (Holdable, bool) {
	item, found := w.uniques[id]
	return item, found
}

func (w *World) spawn(f Fighter, name string, health int, pos Position) {
	c := f.Base()
	c.Name = name
	c.Health = health
	c.MaxHealth = health
	c.Position = pos
	c.entity = w.nextEntity
	w.nextEntity++
	c.Acquire()
	w.entities[c.entity] = f
}

func (w *World) SpawnPlayer(name string, level int, pos Position) *Player {
	p := &Player{Level: level}
	w.spawn(p, name, 100+level*5, pos)
	w.players[name] = p
	return p
}

func (w *World) SpawnMonster(name string, race uint8, boss bool, health int, pos Position) *Monster {
	m := &Monster{Race: race, Boss: boss}
	w.spawn(m, name, health, pos)
	return m
}

func (w *World) SpawnNpc(name string, pos Position) *Npc {
	n := &Npc{}
	w.spawn(n, name, 100, pos)
	return n
}

// Despawn removes f from the world. Holders of f see it as removed.
func (w *World) Despawn(f Fighter) bool {
	c := f.Base()
	if _, found := w.entities[c.entity]; !found {
		return false
	}
	delete(w.entities, c.entity)
	if p, ok := f.(*Player); ok {
		delete(w.players, p.Name)
	}
	c.remove()
	c.Release()
	return true
}

func (w *World) Player(name string) (*Player, bool) {
	p, found := w.players[name]
	return p, found
}

// Creatures returns live creatures ordered by entity id.
func (w *World) Creatures() []Fighter {
	result := make([]Fighter, 0, len(w.entities))
	for _, f := range w.entities {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Base().entity < result[j].Base().entity
	})
	return result
}

func (w *World) CreateItem(typeID uint16, name string, count int) *Item {
	return &Item{TypeID: typeID, Name: name, Count: max(1, count)}
}

func (w *World) CreateContainer(typeID uint16, name string, capacity int) *Container {
	return &Container{Item: Item{TypeID: typeID, Name: name, Count: 1}, Capacity: capacity}
}

func (w *World) CreateTeleport(typeID uint16, name string, dest Position) *Teleport {
	return &Teleport{Item: Item{TypeID: typeID, Name: name, Count: 1}, Destination: dest}
}

func (w *World) CreateDepot(typeID uint16, name string, depotID uint32, capacity int) *Depot {
	return &Depot{Container: Container{Item: Item{TypeID: typeID, Name: name, Count: 1}, Capacity: capacity}, DepotID: depotID}
}

func (w *World) record(item *Item) UniqueRecord {
	return UniqueRecord{
		ID:       uint16(item.unique),
		TypeID:   item.TypeID,
		Name:     item.Name,
		Count:    item.Count,
		Position: item.Position,
	}
}

// MakeUnique gives h a durable id and persists it.
func (w *World) MakeUnique(h Holdable, id uid.UID) error {
	item := h.ItemBase()
	if id.Range() != uid.RangeDurable {
		return errors.Wrapf(ErrNotDurable, "%v", id)
	}
	if _, found := w.uniques[id]; found {
		return errors.Wrapf(ErrTaken, "%v", id)
	}
	if item.unique != uid.Invalid {
		w.RemoveUnique(item.unique)
	}
	item.unique = id
	item.Acquire()
	w.uniques[id] = h
	if w.store != nil {
		if err := w.store.Put(w.record(item)); err != nil {
			return juicebridge.WithStack(err)
		}
	}
	return nil
}

func (w *World) RemoveUnique(id uid.UID) {
	h, found := w.uniques[id]
	if !found {
		return
	}
	item := h.ItemBase()
	delete(w.uniques, id)
	item.unique = uid.Invalid
	item.Release()
	if w.store != nil {
		if err := w.store.Delete(uint16(id)); err != nil {
			log.Printf("deleting unique %v: %v", id, err)
		}
	}
}

// SaveUnique persists the current state of a unique item.
func (w *World) SaveUnique(h Holdable) error {
	item := h.ItemBase()
	if item.unique == uid.Invalid || w.store == nil {
		return nil
	}
	return juicebridge.WithStack(w.store.Put(w.record(item)))
}

// DestroyItem removes h from its container and the unique table, and
// marks it removed.
func (w *World) DestroyItem(h Holdable) {
	item := h.ItemBase()
	if item.parent != nil {
		item.parent.RemoveItem(item)
	}
	if item.unique != uid.Invalid {
		w.RemoveUnique(item.unique)
	}
	item.remove()
}

// LoadUniques restores the unique items of the store.
func (w *World) LoadUniques() (int, error) {
	if w.store == nil {
		return 0, nil
	}
	records, err := w.store.All()
	if err != nil {
		return 0, juicebridge.WithStack(err)
	}
	for _, rec := range records {
		item := w.CreateItem(rec.TypeID, rec.Name, rec.Count)
		item.Position = rec.Position
		item.unique = uid.UID(rec.ID)
		item.Acquire()
		w.uniques[item.unique] = item
	}
	return len(records), nil
}

type Stats struct {
	Creatures int
	Players   int
	Uniques   int
}

func (w *World) Stats() Stats {
	return Stats{
		Creatures: len(w.entities),
		Players:   len(w.players),
		Uniques:   len(w.uniques),
	}
}
