package world

import (
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/uid"
)

type Creature struct {
	Ref
	Name      string
	Health    int
	MaxHealth int
	Position  Position
	entity    uid.UID
	augments  []*augments.Augment
}

func (c *Creature) EntityID() uid.UID {
	return c.entity
}

func (c *Creature) Base() *Creature {
	return c
}

func (c *Creature) IsDead() bool {
	return c.Health <= 0
}

func (c *Creature) AddAugment(a *augments.Augment) {
	c.augments = append(c.augments, a)
}

func (c *Creature) RemoveAugment(name string) bool {
	for i, a := range c.augments {
		if a.Name == name {
			c.augments = append(c.augments[:i], c.augments[i+1:]...)
			return true
		}
	}
	return false
}

// Augments skips augments removed by a reload.
func (c *Creature) Augments() []*augments.Augment {
	result := []*augments.Augment{}
	for _, a := range c.augments {
		if !a.IsRemoved() {
			result = append(result, a)
		}
	}
	return result
}

// Fighter is any creature flavor.
type Fighter interface {
	Base() *Creature
}

type Player struct {
	Creature
	Level    int
	Vocation string
}

type Monster struct {
	Creature
	Race uint8
	Boss bool
}

type Npc struct {
	Creature
}
