package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxID is reserved by LWM2M and never addresses an object, instance or
// resource.
const MaxID = 65535

// Path addresses the root, an object, an instance or a resource. Depth is
// the number of IDs that are set.
type Path struct {
	ObjectID   uint16
	InstanceID uint16
	ResourceID uint16
	Depth      int
}

// ObjectPath returns /objectID.
func ObjectPath(objectID uint16) Path {
	return Path{ObjectID: objectID, Depth: 1}
}

// InstancePath returns /objectID/instanceID.
func InstancePath(objectID, instanceID uint16) Path {
	return Path{ObjectID: objectID, InstanceID: instanceID, Depth: 2}
}

// ResourcePath returns /objectID/instanceID/resourceID.
func ResourcePath(objectID, instanceID, resourceID uint16) Path {
	return Path{ObjectID: objectID, InstanceID: instanceID, ResourceID: resourceID, Depth: 3}
}

// ParsePath parses CoAP Uri-Path segments. No segments is the root path.
func ParsePath(segments []string) (Path, error) {
	if len(segments) > 3 {
		return Path{}, fmt.Errorf("%w: %d segments", ErrInvalidPath, len(segments))
	}
	var ids [3]uint16
	for i, seg := range segments {
		v, err := strconv.ParseUint(seg, 10, 16)
		if err != nil || v == MaxID {
			return Path{}, fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
		ids[i] = uint16(v)
	}
	return Path{ObjectID: ids[0], InstanceID: ids[1], ResourceID: ids[2], Depth: len(segments)}, nil
}

// IsRoot returns true for the empty path.
func (p Path) IsRoot() bool { return p.Depth == 0 }

// IsObject returns true for /o.
func (p Path) IsObject() bool { return p.Depth == 1 }

// IsInstance returns true for /o/i.
func (p Path) IsInstance() bool { return p.Depth == 2 }

// IsResource returns true for /o/i/r.
func (p Path) IsResource() bool { return p.Depth == 3 }

// Segments returns the path as Uri-Path segments.
func (p Path) Segments() []string {
	ids := [3]uint16{p.ObjectID, p.InstanceID, p.ResourceID}
	out := make([]string, p.Depth)
	for i := range out {
		out[i] = strconv.Itoa(int(ids[i]))
	}
	return out
}

// String returns the path as "/3/0/1", or "/" for the root.
func (p Path) String() string {
	return "/" + strings.Join(p.Segments(), "/")
}
