package agents

import (
	"time"

	"github.com/talgya/npcsim/internal/world"
)

// unreachable counts failed approaches per target and blocks a target for
// a cooldown once too many attempts fail.
type unreachable struct {
	max      int
	cooldown time.Duration

	attempts map[world.ObjectID]int
	until    map[world.ObjectID]time.Duration
}

func newUnreachable(max int, cooldown time.Duration) *unreachable {
	if max < 1 {
		max = 1
	}
	return &unreachable{
		max:      max,
		cooldown: cooldown,
		attempts: make(map[world.ObjectID]int),
		until:    make(map[world.ObjectID]time.Duration),
	}
}

// register records one failed attempt and reports whether it tripped a block.
func (u *unreachable) register(id world.ObjectID, now time.Duration) bool {
	u.attempts[id]++
	if u.attempts[id] < u.max {
		return false
	}
	u.attempts[id] = 0
	u.until[id] = now + u.cooldown
	return true
}

// blocked reports whether id is under a cooldown; expired blocks are dropped.
func (u *unreachable) blocked(id world.ObjectID, now time.Duration) bool {
	until, ok := u.until[id]
	if !ok {
		return false
	}
	if now >= until {
		delete(u.until, id)
		return false
	}
	return true
}

func (u *unreachable) count(id world.ObjectID) int { return u.attempts[id] }

// reset forgets the attempt history for a target after a success.
func (u *unreachable) reset(id world.ObjectID) {
	delete(u.attempts, id)
}
