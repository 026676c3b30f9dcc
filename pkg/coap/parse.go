package coap

import (
	"errors"
	"fmt"

	"github.com/backkem/lwm2m/pkg/wire"
)

// Message is a decoded CoAP message.
type Message struct {
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   Options
	Payload   []byte
}

// HeaderError reports a datagram whose header decoded but whose options or
// payload did not. Header carries only the header fields, so a confirmable
// request can still be answered with 4.02.
type HeaderError struct {
	Header Message
	Err    error
}

func (e *HeaderError) Error() string { return e.Err.Error() }

func (e *HeaderError) Unwrap() error { return e.Err }

// ErrorHeader returns the header fields decoded before err, if err came
// from a datagram whose header was valid.
func ErrorHeader(err error) (*Message, bool) {
	var herr *HeaderError
	if !errors.As(err, &herr) {
		return nil, false
	}
	h := herr.Header
	return &h, true
}

// ParseMessage decodes a datagram. Token and payload alias data. On error
// no message is returned; see ErrorHeader.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}
	if data[0]>>6 != Version {
		return nil, ErrInvalidVersion
	}
	tkl := int(data[0] & 0x0F)
	if tkl > TokenSize {
		return nil, ErrInvalidTokenLength
	}
	if len(data) < HeaderSize+tkl {
		return nil, ErrMessageTooShort
	}

	header := Message{
		Type:      Type(data[0] >> 4 & 0x3),
		Code:      Code(data[1]),
		MessageID: wire.Uint16(data[2:]),
		Token:     data[HeaderSize : HeaderSize+tkl],
	}
	m := header

	rest := data[HeaderSize+tkl:]
	n, err := m.Options.Unmarshal(rest)
	if err != nil {
		return nil, &HeaderError{Header: header, Err: err}
	}
	rest = rest[n:]
	if len(rest) > 0 {
		// rest[0] is the payload marker.
		if len(rest) == 1 {
			return nil, &HeaderError{Header: header, Err: ErrEmptyPayload}
		}
		m.Payload = rest[1:]
	}
	return &m, nil
}

// Marshal encodes m with its own header fields.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Token) > TokenSize {
		return nil, ErrInvalidTokenLength
	}
	out := appendHeader(make([]byte, 0, HeaderSize+len(m.Token)+32+len(m.Payload)), m.Type, m.Code, m.MessageID, m.Token)
	return m.appendBody(out)
}

func (m *Message) appendBody(out []byte) ([]byte, error) {
	out, err := m.Options.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(m.Payload) > 0 {
		out = append(out, PayloadMarker)
		out = append(out, m.Payload...)
	}
	return out, nil
}

// IsPath reports whether the Uri-Path equals segments.
func (m *Message) IsPath(segments ...string) bool {
	if len(m.Options.Paths) != len(segments) {
		return false
	}
	for i, s := range segments {
		if m.Options.Paths[i] != s {
			return false
		}
	}
	return true
}

// String summarizes m for logging.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s mid=%d path=%s payload=%dB", m.Type, m.Code, m.MessageID, m.Options.Path(), len(m.Payload))
}

// NewRequest builds a request with a fresh message ID and token from s.
func (s *Session) NewRequest(typ Type, code Code, opts *Options, payload []byte) ([]byte, *Message, error) {
	hdr, id, token, err := s.RequestHeader(nil, typ, code)
	if err != nil {
		return nil, nil, err
	}
	m := &Message{Type: typ, Code: code, MessageID: id, Token: token, Payload: payload}
	if opts != nil {
		m.Options = *opts
	}
	out, err := m.appendBody(hdr)
	if err != nil {
		return nil, nil, err
	}
	return out, m, nil
}

// NewResponse builds a response to the pending request recorded with Observe.
func (s *Session) NewResponse(typ Type, code Code, opts *Options, payload []byte) ([]byte, error) {
	hdr, err := s.ResponseHeader(nil, typ, code)
	if err != nil {
		return nil, err
	}
	m := &Message{Payload: payload}
	if opts != nil {
		m.Options = *opts
	}
	return m.appendBody(hdr)
}
