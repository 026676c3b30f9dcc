package lwm2m

// State is the lifecycle state of a Client.
type State int

const (
	// StateInitialized means the client is created and holds no server
	// session.
	StateInitialized State = iota

	// StateBootstrapping means Bootstrap is talking to the bootstrap server.
	StateBootstrapping

	// StateBootstrapped means a registration server account is provisioned
	// but no session to it is open.
	StateBootstrapped

	// StateConnected means Prepare opened a DTLS session to the
	// registration server.
	StateConnected

	// StateRegistered means the server accepted the registration.
	StateRegistered

	// StateDisabled means the server executed Disable; the client stays
	// offline until the disable timeout expires.
	StateDisabled

	// StateClosed means Close was called.
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateBootstrapping:
		return "Bootstrapping"
	case StateBootstrapped:
		return "Bootstrapped"
	case StateConnected:
		return "Connected"
	case StateRegistered:
		return "Registered"
	case StateDisabled:
		return "Disabled"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsConnected returns true if a registration server session is open.
func (s State) IsConnected() bool {
	return s == StateConnected || s == StateRegistered
}
