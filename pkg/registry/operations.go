package registry

import (
	"fmt"

	"github.com/backkem/lwm2m/pkg/tlv"
)

func newRecord(def ResourceDefinition) tlv.Record {
	kind := tlv.KindResource
	if def.Multiple {
		kind = tlv.KindMultipleResource
	}
	return tlv.Init(kind, def.Type, def.ID)
}

// ReadResource reads one resource.
func (r *Registry) ReadResource(objectID, instanceID, resourceID uint16) (tlv.Record, error) {
	res, err := r.resource(objectID, instanceID, resourceID)
	if err != nil {
		return tlv.Record{}, err
	}
	return res.read()
}

func (res *boundResource) read() (tlv.Record, error) {
	if !res.def.Access.Has(AccessRead) {
		return tlv.Record{}, fmt.Errorf("%w: read of resource %d", ErrMethodNotAllowed, res.def.ID)
	}
	if res.handlers.Read == nil {
		return tlv.Record{}, fmt.Errorf("%w: read of resource %d", ErrNoHandler, res.def.ID)
	}
	rec := newRecord(res.def)
	if err := res.handlers.Read.Read(&rec); err != nil {
		return tlv.Record{}, err
	}
	rec.ID = res.def.ID
	return rec, nil
}

// ReadInstance reads every readable resource of an instance that has a read
// handler, in definition order.
func (r *Registry) ReadInstance(objectID, instanceID uint16) ([]tlv.Record, error) {
	resources, err := r.instanceResources(objectID, instanceID)
	if err != nil {
		return nil, err
	}
	var out []tlv.Record
	for i := range resources {
		res := &resources[i]
		if !res.def.Access.Has(AccessRead) || res.handlers.Read == nil {
			continue
		}
		rec, err := res.read()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadObject reads every instance of an object, each wrapped in an
// object-instance record.
func (r *Registry) ReadObject(objectID uint16) ([]tlv.Record, error) {
	if _, ok := r.Definition(objectID); !ok {
		return nil, fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	var out []tlv.Record
	for _, id := range r.InstanceIDs(objectID) {
		recs, err := r.ReadInstance(objectID, id)
		if err != nil {
			return nil, err
		}
		inst, err := tlv.NewContainer(tlv.KindObjectInstance, id, recs)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Read reads an object, instance or resource path.
func (r *Registry) Read(p Path) ([]tlv.Record, error) {
	switch p.Depth {
	case 1:
		return r.ReadObject(p.ObjectID)
	case 2:
		return r.ReadInstance(p.ObjectID, p.InstanceID)
	case 3:
		rec, err := r.ReadResource(p.ObjectID, p.InstanceID, p.ResourceID)
		if err != nil {
			return nil, err
		}
		return []tlv.Record{rec}, nil
	default:
		return nil, fmt.Errorf("%w: read of %s", ErrMethodNotAllowed, p)
	}
}

// decodeAs checks that rec carries a value of the resource's declared type
// and converts its raw value.
func decodeAs(def ResourceDefinition, rec *tlv.Record) error {
	if rec.ID != def.ID {
		return fmt.Errorf("%w: record id %d for resource %d", ErrBadRequest, rec.ID, def.ID)
	}
	if !def.Multiple {
		if rec.Kind != tlv.KindResource {
			return fmt.Errorf("%w: %s record for resource %d", ErrBadRequest, rec.Kind, def.ID)
		}
		if err := rec.As(def.Type); err != nil {
			return fmt.Errorf("%w: resource %d: %v", ErrBadRequest, def.ID, err)
		}
		return nil
	}

	if rec.Kind != tlv.KindMultipleResource {
		return fmt.Errorf("%w: %s record for multiple resource %d", ErrBadRequest, rec.Kind, def.ID)
	}
	children, err := rec.Children()
	if err != nil {
		return fmt.Errorf("%w: resource %d: %v", ErrBadRequest, def.ID, err)
	}
	for i := range children {
		if children[i].Kind != tlv.KindResourceInstance {
			return fmt.Errorf("%w: %s inside multiple resource %d", ErrBadRequest, children[i].Kind, def.ID)
		}
		if err := children[i].As(def.Type); err != nil {
			return fmt.Errorf("%w: resource %d/%d: %v", ErrBadRequest, def.ID, children[i].ID, err)
		}
	}
	return nil
}

func decodeSingle(payload []byte) (tlv.Record, error) {
	recs, err := tlv.DecodeAll(payload)
	if err != nil {
		return tlv.Record{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(recs) != 1 {
		return tlv.Record{}, fmt.Errorf("%w: %d records, want 1", ErrBadRequest, len(recs))
	}
	return recs[0], nil
}

// WriteResource decodes a TLV payload holding exactly one record for the
// addressed resource and passes it to the write handler.
func (r *Registry) WriteResource(objectID, instanceID, resourceID uint16, payload []byte) error {
	res, err := r.resource(objectID, instanceID, resourceID)
	if err != nil {
		return err
	}
	if !res.def.Access.Has(AccessWrite) {
		return fmt.Errorf("%w: write of resource %d", ErrMethodNotAllowed, resourceID)
	}
	rec, err := decodeSingle(payload)
	if err != nil {
		return err
	}
	return res.write(&rec)
}

func (res *boundResource) write(rec *tlv.Record) error {
	if err := res.check(rec); err != nil {
		return err
	}
	return res.handlers.Write.Write(rec)
}

// check decodes rec and runs the writer's validation without applying it.
func (res *boundResource) check(rec *tlv.Record) error {
	if err := decodeAs(res.def, rec); err != nil {
		return err
	}
	if res.handlers.Write == nil {
		return fmt.Errorf("%w: write of resource %d", ErrNoHandler, res.def.ID)
	}
	if v, ok := res.handlers.Write.(Validator); ok {
		if err := v.Validate(rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteInstance writes several resources of one instance. The payload is a
// sequence of resource records or a single object-instance record for the
// instance. Every record is checked and validated before any handler runs.
func (r *Registry) WriteInstance(objectID, instanceID uint16, payload []byte) error {
	plan, err := r.planInstance(objectID, instanceID, payload, false)
	if err != nil {
		return err
	}
	return plan.apply()
}

// writePlan is a checked write: each record paired with its resource.
type writePlan struct {
	targets []*boundResource
	recs    []tlv.Record
}

func (p writePlan) apply() error {
	for i := range p.recs {
		if err := p.targets[i].handlers.Write.Write(&p.recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) planInstance(objectID, instanceID uint16, payload []byte, bootstrap bool) (writePlan, error) {
	resources, err := r.instanceResources(objectID, instanceID)
	if err != nil {
		return writePlan{}, err
	}
	recs, err := tlv.DecodeAll(payload)
	if err != nil {
		return writePlan{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(recs) == 1 && recs[0].Kind == tlv.KindObjectInstance {
		if recs[0].ID != instanceID {
			return writePlan{}, fmt.Errorf("%w: instance record %d at /%d/%d", ErrBadRequest, recs[0].ID, objectID, instanceID)
		}
		if recs, err = recs[0].Children(); err != nil {
			return writePlan{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	return planRecords(resources, recs, bootstrap)
}

func planRecords(resources []boundResource, recs []tlv.Record, bootstrap bool) (writePlan, error) {
	plan := writePlan{targets: make([]*boundResource, len(recs)), recs: recs}
	for i := range recs {
		for j := range resources {
			if resources[j].def.ID == recs[i].ID {
				plan.targets[i] = &resources[j]
				break
			}
		}
		res := plan.targets[i]
		if res == nil {
			return writePlan{}, fmt.Errorf("%w: resource %d", ErrNotFound, recs[i].ID)
		}
		if !bootstrap && !res.def.Access.Has(AccessWrite) {
			return writePlan{}, fmt.Errorf("%w: write of resource %d", ErrMethodNotAllowed, res.def.ID)
		}
		if err := res.check(&recs[i]); err != nil {
			return writePlan{}, err
		}
	}
	return plan, nil
}

// BootstrapWrite writes during bootstrap. Missing instances of defined
// objects are created and the writable bit is not enforced. p may address
// an object (payload of object-instance records), an instance or a
// resource.
//
// Every record is validated before any is applied. Instances created by a
// write that fails are removed again.
func (r *Registry) BootstrapWrite(p Path, payload []byte) (err error) {
	var created []Path
	defer func() {
		if err == nil {
			return
		}
		for _, c := range created {
			r.RemoveInstance(c.ObjectID, c.InstanceID)
		}
	}()
	ensure := func(objectID, instanceID uint16) error {
		added, err := r.ensureInstance(objectID, instanceID)
		if added {
			created = append(created, InstancePath(objectID, instanceID))
		}
		return err
	}

	var plans []writePlan
	switch p.Depth {
	case 1:
		recs, err := tlv.DecodeAll(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		for i := range recs {
			if recs[i].Kind != tlv.KindObjectInstance {
				return fmt.Errorf("%w: %s record at %s", ErrBadRequest, recs[i].Kind, p)
			}
		}
		for i := range recs {
			if err := ensure(p.ObjectID, recs[i].ID); err != nil {
				return err
			}
			plan, err := r.planInstance(p.ObjectID, recs[i].ID, recs[i].Bytes, true)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}
	case 2:
		if err := ensure(p.ObjectID, p.InstanceID); err != nil {
			return err
		}
		plan, err := r.planInstance(p.ObjectID, p.InstanceID, payload, true)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
	case 3:
		rec, err := decodeSingle(payload)
		if err != nil {
			return err
		}
		if rec.ID != p.ResourceID {
			return fmt.Errorf("%w: record id %d at %s", ErrBadRequest, rec.ID, p)
		}
		if err := ensure(p.ObjectID, p.InstanceID); err != nil {
			return err
		}
		resources, err := r.instanceResources(p.ObjectID, p.InstanceID)
		if err != nil {
			return err
		}
		plan, err := planRecords(resources, []tlv.Record{rec}, true)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
	default:
		return fmt.Errorf("%w: bootstrap write of %s", ErrMethodNotAllowed, p)
	}

	for _, plan := range plans {
		if err := plan.apply(); err != nil {
			return err
		}
	}
	return nil
}

// ensureInstance creates the instance if it does not exist and reports
// whether it did.
func (r *Registry) ensureInstance(objectID, instanceID uint16) (bool, error) {
	if r.HasInstance(objectID, instanceID) {
		return false, nil
	}
	if err := r.AddInstance(objectID, instanceID); err != nil {
		if _, ok := r.Definition(objectID); !ok {
			return false, fmt.Errorf("%w: object %d", ErrNotFound, objectID)
		}
		return false, err
	}
	return true, nil
}

// Delete removes the instances under p: one instance, every instance of an
// object, or every instance when p is the root.
func (r *Registry) Delete(p Path) error {
	switch p.Depth {
	case 0:
		r.Clear()
		return nil
	case 1:
		for _, id := range r.InstanceIDs(p.ObjectID) {
			if err := r.RemoveInstance(p.ObjectID, id); err != nil {
				return err
			}
		}
		return nil
	case 2:
		return r.RemoveInstance(p.ObjectID, p.InstanceID)
	default:
		return fmt.Errorf("%w: delete of %s", ErrMethodNotAllowed, p)
	}
}

// ExecuteResource runs a resource's execute handler with args as an opaque
// argument record.
func (r *Registry) ExecuteResource(objectID, instanceID, resourceID uint16, args []byte) error {
	res, err := r.resource(objectID, instanceID, resourceID)
	if err != nil {
		return err
	}
	if !res.def.Access.Has(AccessExecute) {
		return fmt.Errorf("%w: execute of resource %d", ErrMethodNotAllowed, resourceID)
	}
	if res.handlers.Execute == nil {
		return fmt.Errorf("%w: execute of resource %d", ErrNoHandler, resourceID)
	}
	if len(args) > tlv.MaxValueLen {
		return fmt.Errorf("%w: %d bytes of execute arguments", ErrBadRequest, len(args))
	}
	rec := tlv.Init(tlv.KindResource, tlv.TypeOpaque, resourceID)
	rec.SetOpaque(args)
	return res.handlers.Execute.Execute(&rec)
}
