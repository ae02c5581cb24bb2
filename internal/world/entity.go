package world

import (
	"sync"

	"github.com/talgya/npcsim/internal/geom"
)

// Entity is the concrete Object used for everything that is not an agent:
// food stations, beds, keys, landmarks. Capabilities are attached once at
// construction time.
type Entity struct {
	id           ObjectID
	name         string
	kind         string
	desirability float64
	perceivable  bool

	mu        sync.RWMutex
	position  geom.Vec3
	active    bool
	destroyed bool

	station *Station
	item    *Item
}

// NewEntity creates an active, perceivable entity with desirability 1.
func NewEntity(id ObjectID, name, kind string, pos geom.Vec3) *Entity {
	if id == "" {
		id = NewObjectID()
	}
	return &Entity{
		id:           id,
		name:         name,
		kind:         kind,
		desirability: 1,
		perceivable:  true,
		position:     pos,
		active:       true,
	}
}

// WithDesirability sets the planner's flat desirability bonus.
func (e *Entity) WithDesirability(d float64) *Entity {
	e.desirability = d
	return e
}

// Hidden makes the entity imperceptible to agents.
func (e *Entity) Hidden() *Entity {
	e.perceivable = false
	return e
}

// WithInteractable attaches an interaction station to the entity.
func (e *Entity) WithInteractable(s *Station) *Entity {
	s.owner = e
	e.station = s
	return e
}

// WithPickup attaches a pickup item to the entity.
func (e *Entity) WithPickup(it *Item) *Entity {
	it.owner = e
	e.item = it
	return e
}

func (e *Entity) ID() ObjectID          { return e.id }
func (e *Entity) Name() string          { return e.name }
func (e *Entity) Kind() string          { return e.kind }
func (e *Entity) Desirability() float64 { return e.desirability }
func (e *Entity) Perceivable() bool     { return e.perceivable }

func (e *Entity) Position() geom.Vec3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// SetPosition moves the entity.
func (e *Entity) SetPosition(p geom.Vec3) {
	e.mu.Lock()
	e.position = p
	e.mu.Unlock()
}

func (e *Entity) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active && !e.destroyed
}

// SetActive enables or disables the entity.
func (e *Entity) SetActive(active bool) {
	e.mu.Lock()
	e.active = active
	e.mu.Unlock()
}

func (e *Entity) Destroyed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.destroyed
}

// Destroy removes the entity from the world permanently.
func (e *Entity) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.active = false
	e.mu.Unlock()
}

func (e *Entity) Interactable() Interactable {
	if e.station == nil {
		return nil
	}
	return e.station
}

func (e *Entity) Pickup() Pickup {
	if e.item == nil {
		return nil
	}
	return e.item
}

// Actor always returns nil: entities are not agents.
func (e *Entity) Actor() Actor { return nil }

// Station returns the concrete interaction station, if any.
func (e *Entity) Station() *Station { return e.station }

// Item returns the concrete pickup item, if any.
func (e *Entity) Item() *Item { return e.item }
