package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrServiceNotFound is returned when no matching server is announced.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("discovery: operation timed out")

	// ErrInvalidRole is returned for an unknown role TXT value.
	ErrInvalidRole = errors.New("discovery: invalid role")

	// ErrInvalidTXTRecord is returned when a TXT record has invalid format.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")

	// ErrNoAddress is returned for an entry with neither an address nor a
	// host name.
	ErrNoAddress = errors.New("discovery: entry has no address")
)
