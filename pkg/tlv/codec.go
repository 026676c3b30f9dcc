package tlv

import (
	"math"

	"github.com/backkem/lwm2m/pkg/wire"
)

// Type byte layout:
//
//	bits 7-6  identifier kind
//	bit  5    identifier is 16 bits wide
//	bits 4-3  number of length bytes that follow the identifier (0-3)
//	bits 2-0  value length when bits 4-3 are zero
const (
	kindShift      = 6
	wideIDBit      = 0x20
	lenSizeShift   = 3
	lenSizeMask    = 0x18
	inlineLenMask  = 0x07
	maxInlineLen   = 7
	maxHeaderBytes = 1 + 2 + 3
)

type header struct {
	kind     Kind
	id       uint16
	hdrLen   int
	valueLen int
}

func parseHeader(data []byte) (header, error) {
	var h header
	if len(data) < 2 {
		return h, ErrTruncated
	}
	t := data[0]
	h.kind = Kind(t >> kindShift)
	off := 1

	if t&wideIDBit != 0 {
		if len(data) < off+2 {
			return h, ErrTruncated
		}
		h.id = wire.Uint16(data[off:])
		off += 2
	} else {
		h.id = uint16(data[off])
		off++
	}

	lenSize := int(t&lenSizeMask) >> lenSizeShift
	if len(data) < off+lenSize {
		return h, ErrTruncated
	}
	switch lenSize {
	case 0:
		h.valueLen = int(t & inlineLenMask)
	case 1:
		h.valueLen = int(data[off])
	case 2:
		h.valueLen = int(wire.Uint16(data[off:]))
	case 3:
		h.valueLen = int(wire.Uint24(data[off:]))
	}
	off += lenSize
	h.hdrLen = off

	if h.valueLen > MaxValueLen {
		return h, ErrValueTooLarge
	}
	if len(data)-off < h.valueLen {
		return h, ErrTruncated
	}
	return h, nil
}

// PeekID returns the identifier of the record at the start of data without
// decoding its value.
func PeekID(data []byte) (uint16, error) {
	h, err := parseHeader(data)
	if err != nil {
		return 0, err
	}
	return h.id, nil
}

// Decode reads one record from data and returns it with Type None and the
// raw value in Bytes, plus the number of bytes consumed. Use As to interpret
// the value.
func Decode(data []byte) (Record, int, error) {
	h, err := parseHeader(data)
	if err != nil {
		return Record{}, 0, err
	}
	value := make([]byte, h.valueLen)
	copy(value, data[h.hdrLen:])
	return Record{Kind: h.kind, ID: h.id, Type: TypeNone, Bytes: value}, h.hdrLen + h.valueLen, nil
}

// Unmarshal decodes one record from data, interpreting the value according
// to r.Type as set by the caller. It returns the number of bytes consumed.
func (r *Record) Unmarshal(data []byte) (int, error) {
	typ := r.Type
	rec, n, err := Decode(data)
	if err != nil {
		return 0, err
	}
	if err := rec.As(typ); err != nil {
		return 0, err
	}
	*r = rec
	return n, nil
}

// As interprets the raw value bytes of a decoded record as typ.
func (r *Record) As(typ ResourceType) error {
	raw := r.Bytes
	switch typ {
	case TypeNone, TypeString, TypeOpaque:
		r.Type = typ
		return nil
	case TypeInteger, TypeTime:
		v, err := decodeInt(raw)
		if err != nil {
			return err
		}
		r.Int = v
	case TypeFloat:
		switch len(raw) {
		case 4:
			r.Float = float64(math.Float32frombits(wire.Uint32(raw)))
		case 8:
			r.Float = wire.Float64(raw)
		default:
			return ErrInvalidLength
		}
	case TypeBoolean:
		if len(raw) != 1 {
			return ErrInvalidLength
		}
		if raw[0] > 1 {
			return ErrInvalidBoolean
		}
		r.Bool = raw[0] == 1
	case TypeObjectLink:
		if len(raw) != 4 {
			return ErrInvalidLength
		}
		r.Link = ObjectLink{ObjectID: wire.Uint16(raw), InstanceID: wire.Uint16(raw[2:])}
	default:
		return ErrInvalidType
	}
	r.Type = typ
	r.Bytes = nil
	return nil
}

func decodeInt(raw []byte) (int64, error) {
	switch len(raw) {
	case 1:
		return int64(int8(raw[0])), nil
	case 2:
		return int64(int16(wire.Uint16(raw))), nil
	case 4:
		return int64(int32(wire.Uint32(raw))), nil
	case 8:
		return int64(wire.Uint64(raw)), nil
	}
	return 0, ErrInvalidLength
}

// appendInt encodes v in the narrowest of 1, 2, 4 or 8 bytes that keeps its sign.
func appendInt(dst []byte, v int64) []byte {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return append(dst, byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return wire.AppendUint16(dst, uint16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return wire.AppendUint32(dst, uint32(v))
	default:
		return wire.AppendUint64(dst, uint64(v))
	}
}

func (r *Record) appendValue(dst []byte) ([]byte, error) {
	switch r.Type {
	case TypeNone, TypeString, TypeOpaque:
		if len(r.Bytes) > MaxValueLen {
			return nil, ErrValueTooLarge
		}
		return append(dst, r.Bytes...), nil
	case TypeInteger, TypeTime:
		return appendInt(dst, r.Int), nil
	case TypeFloat:
		return wire.AppendFloat64(dst, r.Float), nil
	case TypeBoolean:
		if r.Bool {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case TypeObjectLink:
		dst = wire.AppendUint16(dst, r.Link.ObjectID)
		return wire.AppendUint16(dst, r.Link.InstanceID), nil
	}
	return nil, ErrInvalidType
}

// AppendTo appends the encoding of r to dst.
func (r *Record) AppendTo(dst []byte) ([]byte, error) {
	if !r.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	value, err := r.appendValue(make([]byte, 0, 8))
	if err != nil {
		return nil, err
	}

	t := byte(r.Kind) << kindShift
	if r.ID > 0xFF {
		t |= wideIDBit
	}
	n := len(value)
	var lenSize byte
	switch {
	case n <= maxInlineLen:
		t |= byte(n)
	case n <= 0xFF:
		lenSize = 1
	case n <= 0xFFFF:
		lenSize = 2
	default:
		lenSize = 3
	}
	t |= lenSize << lenSizeShift

	dst = append(dst, t)
	if r.ID > 0xFF {
		dst = wire.AppendUint16(dst, r.ID)
	} else {
		dst = append(dst, byte(r.ID))
	}
	switch lenSize {
	case 1:
		dst = append(dst, byte(n))
	case 2:
		dst = wire.AppendUint16(dst, uint16(n))
	case 3:
		dst = wire.AppendUint24(dst, uint32(n))
	}
	return append(dst, value...), nil
}

// Marshal returns the encoding of r.
func (r *Record) Marshal() ([]byte, error) {
	return r.AppendTo(make([]byte, 0, maxHeaderBytes+len(r.Bytes)+8))
}

// EncodeAll concatenates the encodings of records.
func EncodeAll(records []Record) ([]byte, error) {
	var out []byte
	for i := range records {
		var err error
		out, err = records[i].AppendTo(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeAll decodes a sequence of records filling data exactly. Values are
// left raw.
func DecodeAll(data []byte) ([]Record, error) {
	var records []Record
	for len(data) > 0 {
		rec, n, err := Decode(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		data = data[n:]
	}
	return records, nil
}
