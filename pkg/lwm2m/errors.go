package lwm2m

import "errors"

// Package-level errors.
var (
	// ErrInvalidConfig is returned when Config validation fails.
	ErrInvalidConfig = errors.New("lwm2m: invalid configuration")

	// ErrNoServer is returned when no server address is known for the
	// requested operation.
	ErrNoServer = errors.New("lwm2m: no server configured")

	// ErrNoCredentials is returned when no PSK identity and key are
	// available for a server.
	ErrNoCredentials = errors.New("lwm2m: no security credentials")

	// ErrNotBootstrapped is returned by Prepare when the Security object
	// holds no registration server account.
	ErrNotBootstrapped = errors.New("lwm2m: no registration server account")

	// ErrBootstrapIncomplete is returned when the bootstrap server finished
	// without provisioning a usable registration server account.
	ErrBootstrapIncomplete = errors.New("lwm2m: bootstrap incomplete")

	// ErrBootstrapTimeout is returned when the bootstrap server does not
	// finish within BootstrapTimeout.
	ErrBootstrapTimeout = errors.New("lwm2m: bootstrap timed out")

	// ErrNotPrepared is returned when an operation needs the registration
	// server session and Prepare has not succeeded.
	ErrNotPrepared = errors.New("lwm2m: not connected to a registration server")

	// ErrNotRegistered is returned by Update and Deregister before Register
	// succeeded.
	ErrNotRegistered = errors.New("lwm2m: not registered")

	// ErrRegistrationRejected is returned when the server answers a
	// registration request with an error code.
	ErrRegistrationRejected = errors.New("lwm2m: registration rejected")

	// ErrRequestTimeout is returned when a request gets no response within
	// RequestTimeout.
	ErrRequestTimeout = errors.New("lwm2m: request timed out")

	// ErrRequestReset is returned when the server rejects a request with a
	// Reset message.
	ErrRequestReset = errors.New("lwm2m: request reset by server")

	// ErrUnsupportedSecurityMode is returned for server accounts that do not
	// use PSK security.
	ErrUnsupportedSecurityMode = errors.New("lwm2m: unsupported security mode")

	// ErrInvalidServerURI is returned for a server URI that is not a
	// coaps:// URI.
	ErrInvalidServerURI = errors.New("lwm2m: invalid server URI")

	// ErrServerDisabled is returned by CheckEvent after the server executed
	// Disable on its Server instance.
	ErrServerDisabled = errors.New("lwm2m: server disabled the client")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("lwm2m: client closed")
)

// errSecurityObject marks a management request addressing the Security
// object, which only a bootstrap server may access.
var errSecurityObject = errors.New("lwm2m: security object is not accessible")
