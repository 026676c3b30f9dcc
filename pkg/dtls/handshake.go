package dtls

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/backkem/lwm2m/pkg/crypto"
)

// HandshakeHeaderSize is the DTLS handshake message header:
//
//	msg_type(1) | length(3) | message_seq(2) | fragment_offset(3) | fragment_length(3)
const HandshakeHeaderSize = 12

// Protocol limits on variable-length handshake fields.
const (
	MaxSessionIDLen = 32
	MaxCookieLen    = 255
	MaxIdentityLen  = 128
	MaxPSKLen       = 64
)

// handshakeMessage is a parsed handshake header plus its body.
type handshakeMessage struct {
	typ      HandshakeType
	sequence uint16
	body     []byte
	raw      []byte // header and body, as hashed into the transcript
}

// marshalHandshake frames body as a single, unfragmented handshake message.
func marshalHandshake(typ HandshakeType, sequence uint16, body []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(typ))
	b.AddUint24(uint32(len(body)))
	b.AddUint16(sequence)
	b.AddUint24(0)
	b.AddUint24(uint32(len(body)))
	b.AddBytes(body)
	return b.Bytes()
}

// parseHandshakeMessages splits a handshake record payload into messages.
func parseHandshakeMessages(payload []byte) ([]handshakeMessage, error) {
	var out []handshakeMessage
	s := cryptobyte.String(payload)
	for !s.Empty() {
		start := len(payload) - len(s)
		var (
			typ                     uint8
			length, offset, fragLen uint32
			seq                     uint16
			body                    []byte
		)
		if !s.ReadUint8(&typ) || !s.ReadUint24(&length) || !s.ReadUint16(&seq) ||
			!s.ReadUint24(&offset) || !s.ReadUint24(&fragLen) {
			return nil, fmt.Errorf("%w: short header", ErrMalformedHandshake)
		}
		if offset != 0 || fragLen != length {
			return nil, fmt.Errorf("%w: %s offset %d length %d/%d",
				ErrFragmentedHandshake, HandshakeType(typ), offset, fragLen, length)
		}
		if !s.ReadBytes(&body, int(fragLen)) {
			return nil, fmt.Errorf("%w: %s body truncated", ErrMalformedHandshake, HandshakeType(typ))
		}
		end := len(payload) - len(s)
		out = append(out, handshakeMessage{
			typ:      HandshakeType(typ),
			sequence: seq,
			body:     body,
			raw:      payload[start:end],
		})
	}
	return out, nil
}

// clientHello carries no extensions and offers exactly one cipher suite.
type clientHello struct {
	random    []byte
	sessionID []byte
	cookie    []byte
}

func (m *clientHello) marshal() ([]byte, error) {
	if len(m.random) != crypto.RandomSize {
		return nil, fmt.Errorf("%w: client random of %d bytes", ErrMalformedHandshake, len(m.random))
	}
	var b cryptobyte.Builder
	b.AddUint16(ProtocolVersion)
	b.AddBytes(m.random)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(m.sessionID) })
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(m.cookie) })
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint16(CipherSuitePSKWithAES128CCM8) })
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint8(compressionNull) })
	return b.Bytes()
}

func (m *clientHello) unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var (
		version             uint16
		sessionID, cookie   cryptobyte.String
		suites, compression cryptobyte.String
	)
	if !s.ReadUint16(&version) || !s.ReadBytes(&m.random, crypto.RandomSize) ||
		!s.ReadUint8LengthPrefixed(&sessionID) || !s.ReadUint8LengthPrefixed(&cookie) ||
		!s.ReadUint16LengthPrefixed(&suites) || !s.ReadUint8LengthPrefixed(&compression) {
		return fmt.Errorf("%w: ClientHello", ErrMalformedHandshake)
	}
	m.sessionID = sessionID
	m.cookie = cookie
	return nil
}

type helloVerifyRequest struct {
	version uint16
	cookie  []byte
}

func (m *helloVerifyRequest) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(m.version)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(m.cookie) })
	return b.Bytes()
}

func (m *helloVerifyRequest) unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var cookie cryptobyte.String
	if !s.ReadUint16(&m.version) || !s.ReadUint8LengthPrefixed(&cookie) || !s.Empty() {
		return fmt.Errorf("%w: HelloVerifyRequest", ErrMalformedHandshake)
	}
	m.cookie = append([]byte(nil), cookie...)
	return nil
}

// serverHello extensions are tolerated and ignored.
type serverHello struct {
	version     uint16
	random      []byte
	sessionID   []byte
	cipherSuite uint16
	compression uint8
}

func (m *serverHello) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(m.version)
	b.AddBytes(m.random)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(m.sessionID) })
	b.AddUint16(m.cipherSuite)
	b.AddUint8(m.compression)
	return b.Bytes()
}

func (m *serverHello) unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var sessionID cryptobyte.String
	if !s.ReadUint16(&m.version) || !s.ReadBytes(&m.random, crypto.RandomSize) ||
		!s.ReadUint8LengthPrefixed(&sessionID) || !s.ReadUint16(&m.cipherSuite) ||
		!s.ReadUint8(&m.compression) {
		return fmt.Errorf("%w: ServerHello", ErrMalformedHandshake)
	}
	if len(sessionID) > MaxSessionIDLen {
		return fmt.Errorf("%w: session id of %d bytes", ErrMalformedHandshake, len(sessionID))
	}
	m.random = append([]byte(nil), m.random...)
	m.sessionID = append([]byte(nil), sessionID...)
	if !s.Empty() {
		var extensions cryptobyte.String
		if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
			return fmt.Errorf("%w: ServerHello extensions", ErrMalformedHandshake)
		}
	}
	return nil
}

// pskIdentity is the body of both the PSK ServerKeyExchange (identity hint)
// and ClientKeyExchange (identity): a uint16 length-prefixed opaque.
type pskIdentity struct {
	identity []byte
}

func (m *pskIdentity) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(m.identity) })
	return b.Bytes()
}

func (m *pskIdentity) unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var id cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&id) || !s.Empty() {
		return fmt.Errorf("%w: PSK identity", ErrMalformedHandshake)
	}
	m.identity = append([]byte(nil), id...)
	return nil
}

// changeCipherSpecPayload is the single-byte ChangeCipherSpec message.
var changeCipherSpecPayload = []byte{1}

func marshalAlert(level AlertLevel, desc AlertDescription) []byte {
	return []byte{byte(level), byte(desc)}
}

func parseAlert(payload []byte) (*AlertError, error) {
	if len(payload) != 2 {
		return nil, fmt.Errorf("%w: alert of %d bytes", ErrMalformedRecord, len(payload))
	}
	return &AlertError{Level: AlertLevel(payload[0]), Description: AlertDescription(payload[1])}, nil
}
