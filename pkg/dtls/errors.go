package dtls

import (
	"errors"
	"fmt"
)

// DTLS package errors.
var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("dtls: invalid config")

	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current state, such as Send before the handshake completes.
	ErrInvalidState = errors.New("dtls: invalid session state")

	// ErrMalformedRecord is returned when a record header or payload cannot
	// be parsed.
	ErrMalformedRecord = errors.New("dtls: malformed record")

	// ErrMalformedHandshake is returned when a handshake message is truncated
	// or carries trailing data.
	ErrMalformedHandshake = errors.New("dtls: malformed handshake message")

	// ErrFragmentedHandshake is returned for handshake messages split across
	// records. Reassembly is not supported.
	ErrFragmentedHandshake = errors.New("dtls: fragmented handshake messages not supported")

	// ErrBadRecordMAC is returned when a protected record fails authentication.
	ErrBadRecordMAC = errors.New("dtls: bad record MAC")

	// ErrReplayedRecord is returned when a record's epoch and sequence number
	// are not strictly greater than the last accepted record.
	ErrReplayedRecord = errors.New("dtls: replayed record")

	// ErrSequenceOverflow is returned when the 48-bit write sequence number
	// would wrap. The session must be re-established.
	ErrSequenceOverflow = errors.New("dtls: sequence number exhausted")

	// ErrHandshakeTooLarge is returned when the handshake transcript exceeds
	// its configured bound.
	ErrHandshakeTooLarge = errors.New("dtls: handshake transcript too large")

	// ErrHandshakeTimeout is returned when the peer does not answer a flight
	// before the handshake deadline.
	ErrHandshakeTimeout = errors.New("dtls: handshake timeout")

	// ErrCookieRetryExhausted is returned when the server asks for a second
	// cookie exchange.
	ErrCookieRetryExhausted = errors.New("dtls: cookie retry exhausted")

	// ErrUnexpectedMessage is returned when the server sends a handshake
	// message or record type that does not fit the current flight.
	ErrUnexpectedMessage = errors.New("dtls: unexpected message")

	// ErrUnsupportedVersion is returned when the server selects a protocol
	// version other than DTLS 1.2.
	ErrUnsupportedVersion = errors.New("dtls: unsupported protocol version")

	// ErrUnsupportedCipherSuite is returned when the server selects anything
	// other than TLS_PSK_WITH_AES_128_CCM_8 with null compression.
	ErrUnsupportedCipherSuite = errors.New("dtls: unsupported cipher suite")

	// ErrFinishedMismatch is returned when the server's Finished verify_data
	// does not match the transcript.
	ErrFinishedMismatch = errors.New("dtls: finished verify_data mismatch")

	// ErrAlert is the base error for alerts received from the peer.
	ErrAlert = errors.New("dtls: alert received")
)

// AlertError reports an alert received from the peer.
type AlertError struct {
	Level       AlertLevel
	Description AlertDescription
}

func (e *AlertError) Error() string {
	return fmt.Sprintf("dtls: %s alert: %s", e.Level, e.Description)
}

// Is reports whether target is ErrAlert.
func (e *AlertError) Is(target error) bool {
	return target == ErrAlert
}

// IsRecordError reports whether err concerns a single inbound record that
// can be dropped without tearing the session down.
func IsRecordError(err error) bool {
	return errors.Is(err, ErrBadRecordMAC) ||
		errors.Is(err, ErrReplayedRecord) ||
		errors.Is(err, ErrMalformedRecord)
}
