// Package objects implements the standard LWM2M objects a client carries:
// Security (0), Server (1) and Device (3), plus the IPSO Temperature object
// (3303) used by the sensor example.
//
// Each object exposes its registry.ObjectDefinition. The definition's
// factory creates the instance state and binds its handlers whenever the
// registry adds an instance, including instances created by a bootstrap
// server.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Appendix E
package objects

import (
	"sort"
	"sync"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// Object IDs.
const (
	SecurityID    uint16 = 0
	ServerID      uint16 = 1
	DeviceID      uint16 = 3
	TemperatureID uint16 = 3303
)

// resourceHandler is implemented by every instance type in this package.
// Operations are keyed by resource ID in the style of a cluster's
// ReadAttribute/WriteAttribute switch.
type resourceHandler interface {
	readResource(id uint16, r *tlv.Record) error
	validateResource(id uint16, r *tlv.Record) error
	writeResource(id uint16, r *tlv.Record) error
	executeResource(id uint16, args *tlv.Record) error
}

// handlersFor binds h to every resource. Executable resources get an
// Executor; all others get a Reader and a validating Writer. Access bits are
// enforced by the registry, so read-only resources remain writable by a
// bootstrap server.
func handlersFor(resources []registry.ResourceDefinition, h resourceHandler) map[uint16]any {
	out := make(map[uint16]any, len(resources))
	for _, res := range resources {
		id := res.ID
		if res.Access.Has(registry.AccessExecute) {
			out[id] = registry.ExecuteFunc(func(args *tlv.Record) error {
				return h.executeResource(id, args)
			})
			continue
		}
		out[id] = registry.Handlers{
			Read: registry.ReadFunc(func(r *tlv.Record) error {
				return h.readResource(id, r)
			}),
			Write: registry.CheckedWriter{
				Check: func(r *tlv.Record) error { return h.validateResource(id, r) },
				Apply: func(r *tlv.Record) error { return h.writeResource(id, r) },
			},
		}
	}
	return out
}

// instances tracks the state objects a factory created, by instance ID.
type instances[T any] struct {
	mu sync.Mutex
	m  map[uint16]*T
}

func (s *instances[T]) put(id uint16, v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[uint16]*T)
	}
	s.m[id] = v
}

// live returns the tracked instances that still exist in reg, ordered by
// instance ID.
func (s *instances[T]) live(reg *registry.Registry, objectID uint16) []uint16 {
	ids := reg.InstanceIDs(objectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ids[:0]
	for _, id := range ids {
		if _, ok := s.m[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *instances[T]) get(id uint16) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	return v, ok
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
