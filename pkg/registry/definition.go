package registry

import (
	"strings"

	"github.com/backkem/lwm2m/pkg/tlv"
)

// Access is the set of operations a resource supports.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessExecute

	AccessReadWrite = AccessRead | AccessWrite
)

// String returns the access bits as in the LWM2M object registry: "R",
// "RW", "E" and so on.
func (a Access) String() string {
	var b strings.Builder
	if a&AccessRead != 0 {
		b.WriteByte('R')
	}
	if a&AccessWrite != 0 {
		b.WriteByte('W')
	}
	if a&AccessExecute != 0 {
		b.WriteByte('E')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Has returns true if every bit in op is set.
func (a Access) Has(op Access) bool {
	return a&op == op
}

// ResourceDefinition describes one resource of an object.
type ResourceDefinition struct {
	ID     uint16
	Name   string
	Access Access
	Type   tlv.ResourceType

	// Multiple marks a multiple-instance resource, carried in TLV as a
	// multiple-resource container.
	Multiple bool
}

// InstanceFactory returns the handlers for a new instance, keyed by
// resource ID. Each value is bound with Bind.
type InstanceFactory func(instanceID uint16) map[uint16]any

// ObjectDefinition is the template every instance of an object follows.
type ObjectDefinition struct {
	ID        uint16
	Name      string
	Resources []ResourceDefinition

	// Factory, if set, supplies handlers whenever an instance is added.
	Factory InstanceFactory
}

// Resource returns the definition of resource id.
func (d *ObjectDefinition) Resource(id uint16) (ResourceDefinition, bool) {
	for _, r := range d.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return ResourceDefinition{}, false
}
