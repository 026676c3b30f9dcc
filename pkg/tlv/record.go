// Package tlv implements the LWM2M TLV encoding of resource values
// (OMA-TS-LightweightM2M-V1_0 Section 6.4.3).
package tlv

import (
	"time"
)

// MaxValueLen bounds the value bytes of any record.
const MaxValueLen = 4096

// Kind is the identifier kind carried in bits 7-6 of the type byte.
type Kind uint8

const (
	KindObjectInstance   Kind = 0
	KindResourceInstance Kind = 1
	KindMultipleResource Kind = 2
	KindResource         Kind = 3
)

// String returns the string representation of the identifier kind.
func (k Kind) String() string {
	switch k {
	case KindObjectInstance:
		return "ObjectInstance"
	case KindResourceInstance:
		return "ResourceInstance"
	case KindMultipleResource:
		return "MultipleResource"
	case KindResource:
		return "Resource"
	default:
		return "Unknown"
	}
}

// IsValid reports whether k is one of the defined kinds.
func (k Kind) IsValid() bool {
	return k <= KindResource
}

// IsContainer reports whether records of this kind carry nested TLV.
func (k Kind) IsContainer() bool {
	return k == KindObjectInstance || k == KindMultipleResource
}

// ResourceType selects how a record's value bytes are interpreted.
type ResourceType uint8

const (
	TypeNone ResourceType = iota // raw value bytes, also used for containers
	TypeString
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeOpaque
	TypeTime
	TypeObjectLink
)

// String returns the string representation of the resource type.
func (t ResourceType) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	case TypeOpaque:
		return "Opaque"
	case TypeTime:
		return "Time"
	case TypeObjectLink:
		return "Objlnk"
	default:
		return "Unknown"
	}
}

// IsValid reports whether t is a defined resource type.
func (t ResourceType) IsValid() bool {
	return t <= TypeObjectLink
}

// ObjectLink references an object instance.
type ObjectLink struct {
	ObjectID   uint16
	InstanceID uint16
}

// Record is one TLV element. Which value field is meaningful depends on Type:
// Int for Integer and Time, Float, Bool, Link, and Bytes for String, Opaque
// and None.
type Record struct {
	Kind  Kind
	ID    uint16
	Type  ResourceType
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte
	Link  ObjectLink
}

// Init returns a record with the given identifier and zeroed value.
func Init(kind Kind, typ ResourceType, id uint16) Record {
	return Record{Kind: kind, ID: id, Type: typ}
}

// NewContainer builds an object-instance or multiple-resource record whose
// value is the encoding of children.
func NewContainer(kind Kind, id uint16, children []Record) (Record, error) {
	if !kind.IsContainer() {
		return Record{}, ErrInvalidKind
	}
	value, err := EncodeAll(children)
	if err != nil {
		return Record{}, err
	}
	if len(value) > MaxValueLen {
		return Record{}, ErrValueTooLarge
	}
	return Record{Kind: kind, ID: id, Type: TypeNone, Bytes: value}, nil
}

// Children decodes the nested records of a container.
func (r *Record) Children() ([]Record, error) {
	if !r.Kind.IsContainer() {
		return nil, ErrNotContainer
	}
	return DecodeAll(r.Bytes)
}

// SetString stores a string value.
func (r *Record) SetString(s string) {
	r.Type = TypeString
	r.Bytes = []byte(s)
}

// SetOpaque stores an opaque value. b is not copied.
func (r *Record) SetOpaque(b []byte) {
	r.Type = TypeOpaque
	r.Bytes = b
}

// SetInt stores an integer value.
func (r *Record) SetInt(v int64) {
	r.Type = TypeInteger
	r.Int = v
}

// SetTime stores a time value as Unix seconds.
func (r *Record) SetTime(t time.Time) {
	r.Type = TypeTime
	r.Int = t.Unix()
}

// SetFloat stores a float value.
func (r *Record) SetFloat(v float64) {
	r.Type = TypeFloat
	r.Float = v
}

// SetBool stores a boolean value.
func (r *Record) SetBool(v bool) {
	r.Type = TypeBoolean
	r.Bool = v
}

// SetObjectLink stores an object link value.
func (r *Record) SetObjectLink(objectID, instanceID uint16) {
	r.Type = TypeObjectLink
	r.Link = ObjectLink{ObjectID: objectID, InstanceID: instanceID}
}

// StringValue returns Bytes as a string.
func (r Record) StringValue() string {
	return string(r.Bytes)
}

// Time returns Int as a Unix time.
func (r Record) Time() time.Time {
	return time.Unix(r.Int, 0)
}
