// Package coap implements the subset of CoAP (RFC 7252) framing used by an
// LWM2M client: the fixed header, tokens, the LWM2M-relevant options and the
// payload marker.
package coap

import (
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// Version is the only CoAP version defined.
const Version = 1

// HeaderSize is the size of the fixed header.
const HeaderSize = 4

// TokenSize is the length of tokens this package generates.
const TokenSize = 8

// PayloadMarker separates options from the payload.
const PayloadMarker = 0xFF

// Type is the CoAP message type.
type Type uint8

const (
	Confirmable     Type = 0
	NonConfirmable  Type = 1
	Acknowledgement Type = 2
	Reset           Type = 3
)

// String returns the string representation of the message type.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "Unknown"
	}
}

// Code is a CoAP method or response code, class in the top 3 bits and
// detail in the low 5.
type Code uint8

// Method and response codes used by LWM2M.
const (
	Empty  Code = 0x00
	GET    Code = 0x01
	POST   Code = 0x02
	PUT    Code = 0x03
	DELETE Code = 0x04

	Created  Code = 0x41 // 2.01
	Deleted  Code = 0x42 // 2.02
	Valid    Code = 0x43 // 2.03
	Changed  Code = 0x44 // 2.04
	Content  Code = 0x45 // 2.05
	Continue Code = 0x5F // 2.31

	BadRequest           Code = 0x80 // 4.00
	Unauthorized         Code = 0x81 // 4.01
	BadOption            Code = 0x82 // 4.02
	Forbidden            Code = 0x83 // 4.03
	NotFound             Code = 0x84 // 4.04
	MethodNotAllowed     Code = 0x85 // 4.05
	NotAcceptable        Code = 0x86 // 4.06
	RequestEntityTooBig  Code = 0x8D // 4.13
	UnsupportedMediaType Code = 0x8F // 4.15

	InternalServerError Code = 0xA0 // 5.00
	NotImplemented      Code = 0xA1 // 5.01
	ServiceUnavailable  Code = 0xA3 // 5.03
)

// NewCode builds a code from its class and detail.
func NewCode(class, detail uint8) Code {
	return Code(class<<5 | detail&0x1F)
}

// Class returns the code class (0 request, 2 success, 4 client error, 5 server error).
func (c Code) Class() uint8 { return uint8(c) >> 5 }

// Detail returns the code detail.
func (c Code) Detail() uint8 { return uint8(c) & 0x1F }

// IsRequest reports whether c is a method code.
func (c Code) IsRequest() bool { return c.Class() == 0 && c != Empty }

// IsSuccess reports whether c is a 2.xx response.
func (c Code) IsSuccess() bool { return c.Class() == 2 }

// String returns the code name, e.g. "GET" or "NotFound".
func (c Code) String() string {
	return codes.Code(c).String()
}

// ContentFormat is a CoAP Content-Format identifier.
type ContentFormat = message.MediaType

// Content formats used by LWM2M 1.0.
var (
	FormatTextPlain  = message.TextPlain
	FormatLinkFormat = message.AppLinkFormat
	FormatOpaque     = message.AppOctets
	FormatLWM2MTLV   = message.AppLwm2mTLV
	FormatLWM2MJSON  = message.AppLwm2mJSON
)
