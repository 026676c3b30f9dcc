// Package dtls implements the client side of DTLS 1.2 (RFC 6347) restricted
// to pre-shared keys and the TLS_PSK_WITH_AES_128_CCM_8 cipher suite
// (RFC 4279, RFC 6655).
//
// A Session runs the full handshake over a transport.Conn, including a single
// HelloVerifyRequest cookie round-trip, and then protects application data
// with AES-128-CCM and an 8-byte tag. Handshake messages are expected to fit
// in one record each; fragment reassembly is not implemented.
package dtls

import "fmt"

// ProtocolVersion is the DTLS 1.2 wire version.
const ProtocolVersion uint16 = 0xFEFD

// protocolVersion10 is DTLS 1.0, which servers may use for HelloVerifyRequest.
const protocolVersion10 uint16 = 0xFEFF

// CipherSuitePSKWithAES128CCM8 is TLS_PSK_WITH_AES_128_CCM_8.
const CipherSuitePSKWithAES128CCM8 uint16 = 0xC0A8

const compressionNull uint8 = 0

// ContentType is the record layer content type.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// String returns the content type name.
func (t ContentType) String() string {
	switch t {
	case ContentTypeChangeCipherSpec:
		return "ChangeCipherSpec"
	case ContentTypeAlert:
		return "Alert"
	case ContentTypeHandshake:
		return "Handshake"
	case ContentTypeApplicationData:
		return "ApplicationData"
	default:
		return fmt.Sprintf("ContentType(%d)", uint8(t))
	}
}

// IsValid returns true for the four content types defined by DTLS 1.2.
func (t ContentType) IsValid() bool {
	return t >= ContentTypeChangeCipherSpec && t <= ContentTypeApplicationData
}

// HandshakeType identifies a handshake message.
type HandshakeType uint8

const (
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloVerifyRequest HandshakeType = 3
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
)

// String returns the handshake message name.
func (t HandshakeType) String() string {
	switch t {
	case HandshakeTypeClientHello:
		return "ClientHello"
	case HandshakeTypeServerHello:
		return "ServerHello"
	case HandshakeTypeHelloVerifyRequest:
		return "HelloVerifyRequest"
	case HandshakeTypeServerKeyExchange:
		return "ServerKeyExchange"
	case HandshakeTypeServerHelloDone:
		return "ServerHelloDone"
	case HandshakeTypeClientKeyExchange:
		return "ClientKeyExchange"
	case HandshakeTypeFinished:
		return "Finished"
	default:
		return fmt.Sprintf("HandshakeType(%d)", uint8(t))
	}
}

// State is the session lifecycle state.
type State int

const (
	// StateUninitialized is the state before Handshake and after a failed one.
	StateUninitialized State = iota

	// StateHandshakeInProgress is set while Handshake runs.
	StateHandshakeInProgress

	// StateEstablished means record protection is active in both directions.
	StateEstablished

	// StateClosed is entered after Close or a fatal alert from the peer.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateHandshakeInProgress:
		return "HandshakeInProgress"
	case StateEstablished:
		return "Established"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AlertLevel is the severity of an alert.
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// String returns the level name.
func (l AlertLevel) String() string {
	switch l {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("AlertLevel(%d)", uint8(l))
	}
}

// AlertDescription identifies an alert.
type AlertDescription uint8

const (
	AlertCloseNotify          AlertDescription = 0
	AlertUnexpectedMessage    AlertDescription = 10
	AlertBadRecordMAC         AlertDescription = 20
	AlertHandshakeFailure     AlertDescription = 40
	AlertIllegalParameter     AlertDescription = 47
	AlertDecodeError          AlertDescription = 50
	AlertDecryptError         AlertDescription = 51
	AlertProtocolVersion      AlertDescription = 70
	AlertInternalError        AlertDescription = 80
	AlertUnknownPSKIdentity   AlertDescription = 115
	AlertInsufficientSecurity AlertDescription = 71
)

// String returns the alert name.
func (d AlertDescription) String() string {
	switch d {
	case AlertCloseNotify:
		return "close_notify"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertDecodeError:
		return "decode_error"
	case AlertDecryptError:
		return "decrypt_error"
	case AlertProtocolVersion:
		return "protocol_version"
	case AlertInsufficientSecurity:
		return "insufficient_security"
	case AlertInternalError:
		return "internal_error"
	case AlertUnknownPSKIdentity:
		return "unknown_psk_identity"
	default:
		return fmt.Sprintf("AlertDescription(%d)", uint8(d))
	}
}
