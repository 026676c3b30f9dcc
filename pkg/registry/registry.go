// Package registry holds the LWM2M object, instance and resource table of a
// client and dispatches read, write and execute operations to the handlers
// bound to each resource.
//
// Objects are described by an ObjectDefinition. Instances are created from
// their definition, so every instance of an object exposes the same
// resources with the same access bits. Access checks always run before any
// handler is invoked.
package registry

import (
	"fmt"
	"sync"
)

type instanceKey struct {
	objectID   uint16
	instanceID uint16
}

type instance struct {
	key      instanceKey
	def      *ObjectDefinition
	handlers map[uint16]Handlers
}

// Registry is the resource table. It is safe for concurrent use; handlers
// run without the registry lock held.
type Registry struct {
	mu        sync.RWMutex
	defs      map[uint16]*ObjectDefinition
	instances map[instanceKey]*instance
	order     []instanceKey
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:      make(map[uint16]*ObjectDefinition),
		instances: make(map[instanceKey]*instance),
	}
}

// Define adds an object definition.
func (r *Registry) Define(def ObjectDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("%w: object %d", ErrDuplicateDefinition, def.ID)
	}
	d := def
	d.Resources = append([]ResourceDefinition(nil), def.Resources...)
	r.defs[def.ID] = &d
	return nil
}

// Definition returns the definition of objectID.
func (r *Registry) Definition(objectID uint16) (ObjectDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[objectID]
	if !ok {
		return ObjectDefinition{}, false
	}
	return *d, true
}

// Clear removes every instance. Definitions are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[instanceKey]*instance)
	r.order = nil
}

// AddInstance creates instance instanceID of objectID from the object's
// definition, binding the handlers its Factory supplies.
func (r *Registry) AddInstance(objectID, instanceID uint16) error {
	if instanceID == MaxID {
		return fmt.Errorf("%w: instance %d", ErrInvalidPath, instanceID)
	}

	r.mu.Lock()
	def, ok := r.defs[objectID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrObjectNotDefined, objectID)
	}
	key := instanceKey{objectID, instanceID}
	if _, ok := r.instances[key]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: /%d/%d", ErrDuplicateInstance, objectID, instanceID)
	}
	inst := &instance{key: key, def: def, handlers: make(map[uint16]Handlers)}
	r.instances[key] = inst
	r.order = append(r.order, key)
	factory := def.Factory
	r.mu.Unlock()

	if factory == nil {
		return nil
	}
	for resourceID, h := range factory(instanceID) {
		if err := r.Bind(objectID, instanceID, resourceID, h); err != nil {
			r.RemoveInstance(objectID, instanceID)
			return err
		}
	}
	return nil
}

// RemoveInstance deletes an instance.
func (r *Registry) RemoveInstance(objectID, instanceID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey{objectID, instanceID}
	if _, ok := r.instances[key]; !ok {
		return fmt.Errorf("%w: /%d/%d", ErrNotFound, objectID, instanceID)
	}
	delete(r.instances, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// HasInstance reports whether the instance exists.
func (r *Registry) HasInstance(objectID, instanceID uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[instanceKey{objectID, instanceID}]
	return ok
}

// InstanceIDs returns the instances of objectID in insertion order.
func (r *Registry) InstanceIDs(objectID uint16) []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uint16
	for _, k := range r.order {
		if k.objectID == objectID {
			ids = append(ids, k.instanceID)
		}
	}
	return ids
}

// Instances returns every instance path in insertion order.
func (r *Registry) Instances() []Path {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]Path, len(r.order))
	for i, k := range r.order {
		paths[i] = InstancePath(k.objectID, k.instanceID)
	}
	return paths
}

// SetReadHandler binds the read operation of a resource.
func (r *Registry) SetReadHandler(objectID, instanceID, resourceID uint16, h Reader) error {
	return r.update(objectID, instanceID, resourceID, func(hs *Handlers) { hs.Read = h })
}

// SetWriteHandler binds the write operation of a resource.
func (r *Registry) SetWriteHandler(objectID, instanceID, resourceID uint16, h Writer) error {
	return r.update(objectID, instanceID, resourceID, func(hs *Handlers) { hs.Write = h })
}

// SetExecuteHandler binds the execute operation of a resource.
func (r *Registry) SetExecuteHandler(objectID, instanceID, resourceID uint16, h Executor) error {
	return r.update(objectID, instanceID, resourceID, func(hs *Handlers) { hs.Execute = h })
}

// Bind binds every operation h implements: Reader, Writer, Executor, or a
// Handlers value. Operations h does not implement keep their binding.
func (r *Registry) Bind(objectID, instanceID, resourceID uint16, h any) error {
	bound, ok := handlersOf(h)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidHandler, h)
	}
	return r.update(objectID, instanceID, resourceID, func(hs *Handlers) {
		if bound.Read != nil {
			hs.Read = bound.Read
		}
		if bound.Write != nil {
			hs.Write = bound.Write
		}
		if bound.Execute != nil {
			hs.Execute = bound.Execute
		}
	})
}

func (r *Registry) update(objectID, instanceID, resourceID uint16, fn func(*Handlers)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceKey{objectID, instanceID}]
	if !ok {
		return fmt.Errorf("%w: /%d/%d", ErrNotFound, objectID, instanceID)
	}
	if _, ok := inst.def.Resource(resourceID); !ok {
		return fmt.Errorf("%w: /%d/%d/%d", ErrNotFound, objectID, instanceID, resourceID)
	}
	hs := inst.handlers[resourceID]
	fn(&hs)
	inst.handlers[resourceID] = hs
	return nil
}

// boundResource is a resource definition with its handlers, copied out of
// the registry so handlers can run unlocked.
type boundResource struct {
	def      ResourceDefinition
	handlers Handlers
}

func (r *Registry) resource(objectID, instanceID, resourceID uint16) (boundResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[instanceKey{objectID, instanceID}]
	if !ok {
		return boundResource{}, fmt.Errorf("%w: /%d/%d", ErrNotFound, objectID, instanceID)
	}
	def, ok := inst.def.Resource(resourceID)
	if !ok {
		return boundResource{}, fmt.Errorf("%w: /%d/%d/%d", ErrNotFound, objectID, instanceID, resourceID)
	}
	return boundResource{def: def, handlers: inst.handlers[resourceID]}, nil
}

// instanceResources returns every resource of an instance in definition
// order.
func (r *Registry) instanceResources(objectID, instanceID uint16) ([]boundResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[instanceKey{objectID, instanceID}]
	if !ok {
		return nil, fmt.Errorf("%w: /%d/%d", ErrNotFound, objectID, instanceID)
	}
	out := make([]boundResource, len(inst.def.Resources))
	for i, def := range inst.def.Resources {
		out[i] = boundResource{def: def, handlers: inst.handlers[def.ID]}
	}
	return out, nil
}
