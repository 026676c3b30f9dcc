package registry

import (
	"fmt"
	"strings"
)

// SecurityObjectID is the LWM2M Security object, which is never advertised
// to a registration server.
const SecurityObjectID = 0

// RegisterContent returns the CoRE link format listing of every instance
// for a Register or Update request, e.g. "</1/0>,</3/0>". Instances appear
// in insertion order. The Security object is omitted.
func (r *Registry) RegisterContent() []byte {
	var b strings.Builder
	for _, p := range r.Instances() {
		if p.ObjectID == SecurityObjectID {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		writeLink(&b, p)
	}
	return []byte(b.String())
}

// Discover returns the link format description of p. An object path lists
// the object and its instances; an instance path lists the instance and its
// resources; the root lists every instance including Security.
func (r *Registry) Discover(p Path) ([]byte, error) {
	var links []Path
	switch p.Depth {
	case 0:
		links = r.Instances()
	case 1:
		if _, ok := r.Definition(p.ObjectID); !ok {
			return nil, fmt.Errorf("%w: object %d", ErrNotFound, p.ObjectID)
		}
		links = append(links, p)
		for _, id := range r.InstanceIDs(p.ObjectID) {
			links = append(links, InstancePath(p.ObjectID, id))
		}
	case 2:
		resources, err := r.instanceResources(p.ObjectID, p.InstanceID)
		if err != nil {
			return nil, err
		}
		links = append(links, p)
		for _, res := range resources {
			links = append(links, ResourcePath(p.ObjectID, p.InstanceID, res.def.ID))
		}
	default:
		if _, err := r.resource(p.ObjectID, p.InstanceID, p.ResourceID); err != nil {
			return nil, err
		}
		links = append(links, p)
	}

	var b strings.Builder
	for i, l := range links {
		if i > 0 {
			b.WriteByte(',')
		}
		writeLink(&b, l)
	}
	return []byte(b.String()), nil
}

func writeLink(b *strings.Builder, p Path) {
	b.WriteByte('<')
	b.WriteString(p.String())
	b.WriteByte('>')
}
