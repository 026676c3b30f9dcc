// Package wire provides fixed-width big-endian integer and floating-point
// helpers shared by the TLV, CoAP and DTLS codecs.
//
// The 16, 32 and 64-bit helpers defer to encoding/binary. The 24 and 48-bit
// widths used by DTLS handshake lengths and record sequence numbers have no
// encoding/binary counterpart and are provided here.
package wire

import (
	"encoding/binary"
	"math"
)

// Widths in bytes of the fixed-size fields.
const (
	Uint16Size  = 2
	Uint24Size  = 3
	Uint32Size  = 4
	Uint48Size  = 6
	Uint64Size  = 8
	Float64Size = 8
)

// MaxUint24 and MaxUint48 are the largest values the odd widths can carry.
const (
	MaxUint24 = 1<<24 - 1
	MaxUint48 = 1<<48 - 1
)

// PutUint16 writes v to b and returns the number of bytes written.
func PutUint16(b []byte, v uint16) int {
	binary.BigEndian.PutUint16(b, v)
	return Uint16Size
}

// PutUint24 writes the low 24 bits of v to b.
func PutUint24(b []byte, v uint32) int {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
	return Uint24Size
}

// PutUint32 writes v to b and returns the number of bytes written.
func PutUint32(b []byte, v uint32) int {
	binary.BigEndian.PutUint32(b, v)
	return Uint32Size
}

// PutUint48 writes the low 48 bits of v to b.
func PutUint48(b []byte, v uint64) int {
	_ = b[5]
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
	return Uint48Size
}

// PutUint64 writes v to b and returns the number of bytes written.
func PutUint64(b []byte, v uint64) int {
	binary.BigEndian.PutUint64(b, v)
	return Uint64Size
}

// PutFloat64 writes the IEEE-754 binary64 representation of v.
func PutFloat64(b []byte, v float64) int {
	return PutUint64(b, math.Float64bits(v))
}

// Uint16 decodes a big-endian uint16.
func Uint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// Uint24 decodes a big-endian 24-bit value.
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32 decodes a big-endian uint32.
func Uint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// Uint48 decodes a big-endian 48-bit value.
func Uint48(b []byte) uint64 {
	_ = b[5]
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

// Uint64 decodes a big-endian uint64.
func Uint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// Float64 decodes an IEEE-754 binary64 value.
func Float64(b []byte) float64 { return math.Float64frombits(Uint64(b)) }

// AppendUint16 appends v to b.
func AppendUint16(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }

// AppendUint24 appends the low 24 bits of v to b.
func AppendUint24(b []byte, v uint32) []byte {
	return append(b, byte(v>>16), byte(v>>8), byte(v))
}

// AppendUint32 appends v to b.
func AppendUint32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

// AppendUint48 appends the low 48 bits of v to b.
func AppendUint48(b []byte, v uint64) []byte {
	return append(b, byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// AppendUint64 appends v to b.
func AppendUint64(b []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(b, v) }

// AppendFloat64 appends the binary64 representation of v to b.
func AppendFloat64(b []byte, v float64) []byte {
	return AppendUint64(b, math.Float64bits(v))
}

// ReverseUint32 swaps the byte order of v.
func ReverseUint32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
}

// ReverseUint64 swaps the byte order of v.
func ReverseUint64(v uint64) uint64 {
	return uint64(ReverseUint32(uint32(v)))<<32 | uint64(ReverseUint32(uint32(v>>32)))
}
