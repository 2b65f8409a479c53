package world

import (
	"fmt"

	"github.com/zond/juicebridge/uid"
)

var (
	ErrFull      = fmt.Errorf("container is full")
	ErrContained = fmt.Errorf("item is already in a container")
	ErrSelf      = fmt.Errorf("container can't hold itself")
)

type Position struct {
	X int   `json:"x"`
	Y int   `json:"y"`
	Z uint8 `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}

type Item struct {
	Ref
	TypeID   uint16
	Name     string
	Count    int
	Position Position
	unique   uid.UID
	parent   *Container
}

// Holdable is any item flavor.
type Holdable interface {
	uid.Thing
	ItemBase() *Item
}

func (i *Item) ItemBase() *Item {
	return i
}

func (i *Item) UniqueID() uid.UID {
	return i.unique
}

func (i *Item) Parent() *Container {
	return i.parent
}

func (i *Item) String() string {
	if i.Count > 1 {
		return fmt.Sprintf("%d %s", i.Count, i.Name)
	}
	return i.Name
}

type Container struct {
	Item
	Capacity int
	items    []Holdable
}

func (c *Container) Items() []Holdable {
	return append([]Holdable{}, c.items...)
}

// AddItem takes a reference on h for as long as it is inside c.
func (c *Container) AddItem(h Holdable) error {
	item := h.ItemBase()
	if item.parent != nil {
		return ErrContained
	}
	if len(c.items) >= c.Capacity {
		return ErrFull
	}
	if item == &c.Item {
		return ErrSelf
	}
	item.Acquire()
	item.parent = c
	c.items = append(c.items, h)
	return nil
}

func (c *Container) RemoveItem(h Holdable) bool {
	item := h.ItemBase()
	for i, candidate := range c.items {
		if candidate.ItemBase() == item {
			c.items = append(c.items[:i], c.items[i+1:]...)
			item.parent = nil
			item.Release()
			return true
		}
	}
	return false
}

type Teleport struct {
	Item
	Destination Position
}

type Depot struct {
	Container
	DepotID uint32
}
