package world

import (
	"strings"
	"sync"
)

// Item is a Pickup. Once picked up it stays picked up.
type Item struct {
	owner *Entity

	itemType        string
	usefulness      float64
	disableOnPickup bool

	mu       sync.Mutex
	pickedUp bool
	holder   ObjectID
}

// NewItem creates an item that disappears from the world when picked up.
// An empty item type becomes DefaultItemType.
func NewItem(itemType string, usefulness float64) *Item {
	itemType = strings.TrimSpace(itemType)
	if itemType == "" {
		itemType = DefaultItemType
	}
	if usefulness < 0 {
		usefulness = 0
	}
	return &Item{itemType: itemType, usefulness: usefulness, disableOnPickup: true}
}

// KeepVisible leaves the owning entity active after pickup.
func (it *Item) KeepVisible() *Item {
	it.disableOnPickup = false
	return it
}

func (it *Item) ItemType() string    { return it.itemType }
func (it *Item) Usefulness() float64 { return it.usefulness }

func (it *Item) PickedUp() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.pickedUp
}

// Holder returns the ID of the actor that picked the item up.
func (it *Item) Holder() ObjectID {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.holder
}

// TryPickUp transfers the item to a. Only the first caller succeeds.
func (it *Item) TryPickUp(a Actor) bool {
	if a == nil {
		return false
	}
	it.mu.Lock()
	if it.pickedUp {
		it.mu.Unlock()
		return false
	}
	it.pickedUp = true
	it.holder = a.ID()
	it.mu.Unlock()

	if it.disableOnPickup && it.owner != nil {
		it.owner.SetActive(false)
	}
	return true
}
