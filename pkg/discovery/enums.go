// Package discovery finds LWM2M servers announced over DNS-SD (mDNS).
//
// Bootstrap and registration servers are announced as _coaps._udp
// services. A TXT record "role" tells them apart: "bs" for a bootstrap
// server, "dm" for a device management (registration) server. Entries
// without a role match any lookup.
package discovery

import "time"

// DNS-SD service strings.
const (
	// ServiceCoAPS is the DNS-SD service type of CoAP over DTLS.
	ServiceCoAPS = "_coaps._udp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."

	// DefaultPort is the CoAPS port used when an entry carries none.
	DefaultPort = 5684
)

// Default timeouts.
const (
	DefaultBrowseTimeout = 10 * time.Second
	DefaultLookupTimeout = 5 * time.Second
)

// Role is the kind of LWM2M server an entry announces.
type Role int

const (
	// RoleAny matches every announced server.
	RoleAny Role = iota

	// RoleBootstrap is a bootstrap server.
	RoleBootstrap

	// RoleServer is a device management server accepting registrations.
	RoleServer
)

// String returns a human-readable string for the role.
func (r Role) String() string {
	switch r {
	case RoleAny:
		return "Any"
	case RoleBootstrap:
		return "Bootstrap"
	case RoleServer:
		return "Server"
	default:
		return "Unknown"
	}
}

// IsValid returns true if r is a defined role.
func (r Role) IsValid() bool {
	return r >= RoleAny && r <= RoleServer
}

// TXTValue returns the value of the role TXT key for r, or "" for RoleAny.
func (r Role) TXTValue() string {
	switch r {
	case RoleBootstrap:
		return "bs"
	case RoleServer:
		return "dm"
	default:
		return ""
	}
}

// ParseRole parses a role TXT value. An empty value is RoleAny.
func ParseRole(s string) (Role, error) {
	switch s {
	case "":
		return RoleAny, nil
	case "bs":
		return RoleBootstrap, nil
	case "dm":
		return RoleServer, nil
	default:
		return RoleAny, ErrInvalidRole
	}
}

// Matches reports whether an entry announcing r satisfies a lookup for want.
func (r Role) Matches(want Role) bool {
	return want == RoleAny || r == RoleAny || r == want
}
