// Package world holds the shared, discoverable objects agents perceive and
// the spatial queries (visibility, ground probing) they rely on.
package world

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/npcsim/internal/geom"
)

// ObjectID uniquely identifies a world object.
type ObjectID string

// NewObjectID returns a random object ID.
func NewObjectID() ObjectID {
	return ObjectID(uuid.NewString())
}

// StableObjectID derives a deterministic ID from a namespace and a name, so a
// scenario loaded twice produces the same IDs.
func StableObjectID(namespace, name string) ObjectID {
	return ObjectID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+name)).String())
}

// NeedType identifies one of an agent's physiological needs.
type NeedType uint8

const (
	NeedHunger NeedType = iota
	NeedBoredom
	NeedTiredness
	NeedCount
)

// AllNeeds lists needs in evaluation order.
var AllNeeds = [NeedCount]NeedType{NeedHunger, NeedBoredom, NeedTiredness}

func (n NeedType) String() string {
	switch n {
	case NeedHunger:
		return "hunger"
	case NeedBoredom:
		return "boredom"
	case NeedTiredness:
		return "tiredness"
	}
	return fmt.Sprintf("need(%d)", uint8(n))
}

// ParseNeed maps a need name to its NeedType.
func ParseNeed(s string) (NeedType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hunger":
		return NeedHunger, nil
	case "boredom":
		return NeedBoredom, nil
	case "tiredness":
		return NeedTiredness, nil
	}
	return 0, fmt.Errorf("unknown need %q", s)
}

// Object is anything an agent can perceive and remember.
// Capability accessors return nil when the object lacks that capability.
type Object interface {
	ID() ObjectID
	Name() string
	Kind() string
	Position() geom.Vec3
	Desirability() float64
	// Perceivable is the object's own "visible to agents" flag.
	Perceivable() bool
	// Active is false while the object is disabled (e.g. a picked-up item).
	Active() bool
	// Destroyed is true once the object has left the world for good.
	Destroyed() bool

	Interactable() Interactable
	Pickup() Pickup
	Actor() Actor
}

// Actor is an agent-like participant: it holds items and has needs that
// interactions and socializing adjust.
type Actor interface {
	ID() ObjectID
	HasItem(itemType string) bool
	ConsumeItem(itemType string) bool
	AdjustNeed(need NeedType, delta float64)
}

// Interactable is an object that changes an actor's needs when used.
type Interactable interface {
	Available() bool
	CanInteract(a Actor) bool
	// NeedDelta is the signed change applied to a need (negative satisfies).
	NeedDelta(need NeedType) float64
	// NeedRelief is the positive amount by which a need is reduced.
	NeedRelief(need NeedType) float64
	Duration() time.Duration
	Apply(a Actor) bool
}

// Pickup is an object that can be taken into an actor's inventory.
type Pickup interface {
	ItemType() string
	Usefulness() float64
	PickedUp() bool
	TryPickUp(a Actor) bool
}

// SameItemType compares item types ignoring case and surrounding space.
func SameItemType(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
