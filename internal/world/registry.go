package world

import (
	"fmt"
	"sync"
)

// Registry is the set of objects that exist in the world. Agents query it
// during perception; it is owned by the simulation, not global.
type Registry struct {
	mu      sync.RWMutex
	objects []Object
	index   map[ObjectID]Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[ObjectID]Object)}
}

// destroyer is implemented by objects that can be removed permanently.
type destroyer interface {
	Destroy()
}

// Add registers an object. IDs must be unique.
func (r *Registry) Add(obj Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[obj.ID()]; ok {
		return fmt.Errorf("object %s (%s) already registered", obj.ID(), obj.Name())
	}
	r.index[obj.ID()] = obj
	r.objects = append(r.objects, obj)
	return nil
}

// Remove unregisters an object and destroys it so memories of it get pruned.
func (r *Registry) Remove(id ObjectID) bool {
	r.mu.Lock()
	obj, ok := r.index[id]
	if ok {
		delete(r.index, id)
		for i, o := range r.objects {
			if o.ID() == id {
				r.objects = append(r.objects[:i], r.objects[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		if d, isD := obj.(destroyer); isD {
			d.Destroy()
		}
	}
	return ok
}

// Get looks up an object by ID, active or not.
func (r *Registry) Get(id ObjectID) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.index[id]
	return obj, ok
}

// All returns the active objects in registration order.
func (r *Registry) All() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Object, 0, len(r.objects))
	for _, o := range r.objects {
		if o.Active() {
			out = append(out, o)
		}
	}
	return out
}

// Len returns the number of registered objects, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
