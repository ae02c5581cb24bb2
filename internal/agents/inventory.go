package agents

import (
	"strings"

	"github.com/talgya/npcsim/internal/world"
)

// heldItem is an inventory slot: the picked-up item and where it came from.
type heldItem struct {
	source world.ObjectID
	item   world.Pickup
}

// Inventory is an ordered list of held items, oldest first.
type Inventory struct {
	items []heldItem
}

// Add stores a picked-up item.
func (inv *Inventory) Add(source world.ObjectID, item world.Pickup) {
	if item == nil {
		return
	}
	for _, h := range inv.items {
		if h.source == source {
			return
		}
	}
	inv.items = append(inv.items, heldItem{source: source, item: item})
}

func matchesType(item world.Pickup, itemType string) bool {
	return strings.TrimSpace(itemType) == "" || world.SameItemType(item.ItemType(), itemType)
}

// Has reports whether any held item matches itemType; "" matches anything.
func (inv *Inventory) Has(itemType string) bool {
	for _, h := range inv.items {
		if matchesType(h.item, itemType) {
			return true
		}
	}
	return false
}

// Holds reports whether the item picked up from source is held.
func (inv *Inventory) Holds(source world.ObjectID) bool {
	for _, h := range inv.items {
		if h.source == source {
			return true
		}
	}
	return false
}

// Consume removes the first item matching itemType.
func (inv *Inventory) Consume(itemType string) bool {
	for i, h := range inv.items {
		if matchesType(h.item, itemType) {
			inv.items = append(inv.items[:i], inv.items[i+1:]...)
			return true
		}
	}
	return false
}

// Types lists held item types, oldest first.
func (inv *Inventory) Types() []string {
	out := make([]string, 0, len(inv.items))
	for _, h := range inv.items {
		out = append(out, h.item.ItemType())
	}
	return out
}

// Len returns the number of held items.
func (inv *Inventory) Len() int { return len(inv.items) }
