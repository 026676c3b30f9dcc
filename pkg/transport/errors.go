package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed connection.
	ErrClosed = errors.New("transport: closed")

	// ErrTimeout is returned by Receive when no datagram arrived in time.
	ErrTimeout = errors.New("transport: receive timeout")

	// ErrInvalidAddress is returned when a host or port cannot be dialed.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrMessageTooLarge is returned when a datagram exceeds MaxDatagramSize.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrNoRoute is returned by PipeDialer for an address without a route.
	ErrNoRoute = errors.New("transport: no route to address")
)
