package coap

import "errors"

var (
	// ErrMessageTooShort is returned when a datagram is shorter than its header and token.
	ErrMessageTooShort = errors.New("coap: message too short")

	// ErrInvalidVersion is returned for a version other than 1.
	ErrInvalidVersion = errors.New("coap: unsupported version")

	// ErrInvalidTokenLength is returned for a token length above 8.
	ErrInvalidTokenLength = errors.New("coap: invalid token length")

	// ErrMalformedOption is returned when an option header or value runs past
	// the input or uses the reserved nibble 15.
	ErrMalformedOption = errors.New("coap: malformed option")

	// ErrOptionOverflow is returned when an option exceeds its fixed capacity.
	ErrOptionOverflow = errors.New("coap: option exceeds capacity")

	// ErrUnknownCriticalOption is returned for an unrecognized critical option.
	ErrUnknownCriticalOption = errors.New("coap: unknown critical option")

	// ErrEmptyPayload is returned when a payload marker is followed by nothing.
	ErrEmptyPayload = errors.New("coap: payload marker without payload")

	// ErrNoPendingRequest is returned when a response header is built with no
	// request awaiting acknowledgement.
	ErrNoPendingRequest = errors.New("coap: no pending request to acknowledge")
)
