package objects

import (
	"fmt"
	"sync"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// Security resource IDs (Appendix E.1).
const (
	SecurityServerURI       uint16 = 0
	SecurityBootstrapServer uint16 = 1
	SecurityMode            uint16 = 2
	SecurityIdentity        uint16 = 3
	SecurityServerPublicKey uint16 = 4
	SecuritySecretKey       uint16 = 5
	SecurityShortServerID   uint16 = 10
	SecurityClientHoldOff   uint16 = 11
	SecurityAccountTimeout  uint16 = 12
)

// Mode is the Security Mode resource value.
type Mode int64

const (
	ModePSK          Mode = 0
	ModeRawPublicKey Mode = 1
	ModeCertificate  Mode = 2
	ModeNoSec        Mode = 3
)

// String returns the name of the security mode.
func (m Mode) String() string {
	switch m {
	case ModePSK:
		return "PSK"
	case ModeRawPublicKey:
		return "RPK"
	case ModeCertificate:
		return "Certificate"
	case ModeNoSec:
		return "NoSec"
	default:
		return fmt.Sprintf("Mode(%d)", int64(m))
	}
}

// Security resources carry no access bits: they are invisible to
// registration servers and only a bootstrap server writes them.
var securityResources = []registry.ResourceDefinition{
	{ID: SecurityServerURI, Name: "LWM2M Server URI", Type: tlv.TypeString},
	{ID: SecurityBootstrapServer, Name: "Bootstrap-Server", Type: tlv.TypeBoolean},
	{ID: SecurityMode, Name: "Security Mode", Type: tlv.TypeInteger},
	{ID: SecurityIdentity, Name: "Public Key or Identity", Type: tlv.TypeOpaque},
	{ID: SecurityServerPublicKey, Name: "Server Public Key", Type: tlv.TypeOpaque},
	{ID: SecuritySecretKey, Name: "Secret Key", Type: tlv.TypeOpaque},
	{ID: SecurityShortServerID, Name: "Short Server ID", Type: tlv.TypeInteger},
	{ID: SecurityClientHoldOff, Name: "Client Hold Off Time", Type: tlv.TypeInteger},
	{ID: SecurityAccountTimeout, Name: "Bootstrap-Server Account Timeout", Type: tlv.TypeInteger},
}

// SecurityInfo is the content of one Security instance.
type SecurityInfo struct {
	ServerURI       string
	BootstrapServer bool
	Mode            Mode
	Identity        []byte
	ServerPublicKey []byte
	SecretKey       []byte
	ShortServerID   uint16

	// ClientHoldOff is in seconds.
	ClientHoldOff int64
	// BootstrapTimeout is in seconds; 0 means the account never expires.
	BootstrapTimeout int64
}

// Security is one instance of the Security object.
type Security struct {
	mu   sync.RWMutex
	info SecurityInfo
}

// Info returns a copy of the instance's content.
func (s *Security) Info() SecurityInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	info.Identity = cloneBytes(s.info.Identity)
	info.ServerPublicKey = cloneBytes(s.info.ServerPublicKey)
	info.SecretKey = cloneBytes(s.info.SecretKey)
	return info
}

// Set replaces the instance's content.
func (s *Security) Set(info SecurityInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.info.Identity = cloneBytes(info.Identity)
	s.info.ServerPublicKey = cloneBytes(info.ServerPublicKey)
	s.info.SecretKey = cloneBytes(info.SecretKey)
}

func (s *Security) readResource(id uint16, r *tlv.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch id {
	case SecurityServerURI:
		r.SetString(s.info.ServerURI)
	case SecurityBootstrapServer:
		r.SetBool(s.info.BootstrapServer)
	case SecurityMode:
		r.SetInt(int64(s.info.Mode))
	case SecurityIdentity:
		r.SetOpaque(cloneBytes(s.info.Identity))
	case SecurityServerPublicKey:
		r.SetOpaque(cloneBytes(s.info.ServerPublicKey))
	case SecuritySecretKey:
		r.SetOpaque(cloneBytes(s.info.SecretKey))
	case SecurityShortServerID:
		r.SetInt(int64(s.info.ShortServerID))
	case SecurityClientHoldOff:
		r.SetInt(s.info.ClientHoldOff)
	case SecurityAccountTimeout:
		r.SetInt(s.info.BootstrapTimeout)
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (s *Security) validateResource(id uint16, r *tlv.Record) error {
	switch id {
	case SecurityServerURI, SecurityBootstrapServer, SecurityIdentity,
		SecurityServerPublicKey, SecuritySecretKey:
	case SecurityMode:
		if r.Int < int64(ModePSK) || r.Int > int64(ModeNoSec) {
			return fmt.Errorf("%w: security mode %d", ErrInvalidValue, r.Int)
		}
	case SecurityShortServerID:
		if r.Int < 1 || r.Int > 65534 {
			return fmt.Errorf("%w: short server id %d", ErrInvalidValue, r.Int)
		}
	case SecurityClientHoldOff:
		if r.Int < 0 {
			return fmt.Errorf("%w: hold off %d", ErrInvalidValue, r.Int)
		}
	case SecurityAccountTimeout:
		if r.Int < 0 {
			return fmt.Errorf("%w: account timeout %d", ErrInvalidValue, r.Int)
		}
	default:
		return ErrUnsupportedResource
	}
	return nil
}

// writeResource applies a value that passed validateResource.
func (s *Security) writeResource(id uint16, r *tlv.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch id {
	case SecurityServerURI:
		s.info.ServerURI = r.StringValue()
	case SecurityBootstrapServer:
		s.info.BootstrapServer = r.Bool
	case SecurityMode:
		s.info.Mode = Mode(r.Int)
	case SecurityIdentity:
		s.info.Identity = cloneBytes(r.Bytes)
	case SecurityServerPublicKey:
		s.info.ServerPublicKey = cloneBytes(r.Bytes)
	case SecuritySecretKey:
		s.info.SecretKey = cloneBytes(r.Bytes)
	case SecurityShortServerID:
		s.info.ShortServerID = uint16(r.Int)
	case SecurityClientHoldOff:
		s.info.ClientHoldOff = r.Int
	case SecurityAccountTimeout:
		s.info.BootstrapTimeout = r.Int
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (s *Security) executeResource(uint16, *tlv.Record) error {
	return ErrUnsupportedResource
}

// SecurityObject is the Security object (0). It tracks the instances its
// definition's factory creates.
type SecurityObject struct {
	instances instances[Security]
}

// NewSecurityObject creates an empty Security object.
func NewSecurityObject() *SecurityObject {
	return &SecurityObject{}
}

// Definition returns the object definition to register.
func (o *SecurityObject) Definition() registry.ObjectDefinition {
	return registry.ObjectDefinition{
		ID:        SecurityID,
		Name:      "LWM2M Security",
		Resources: securityResources,
		Factory: func(instanceID uint16) map[uint16]any {
			s := &Security{}
			o.instances.put(instanceID, s)
			return handlersFor(securityResources, s)
		},
	}
}

// Instance returns the state of a Security instance.
func (o *SecurityObject) Instance(instanceID uint16) (*Security, bool) {
	return o.instances.get(instanceID)
}

// Add creates a Security instance in reg holding info.
func (o *SecurityObject) Add(reg *registry.Registry, instanceID uint16, info SecurityInfo) error {
	if err := reg.AddInstance(SecurityID, instanceID); err != nil {
		return err
	}
	s, _ := o.instances.get(instanceID)
	s.Set(info)
	return nil
}

// Server returns the first registration server account in reg: the lowest
// numbered instance that is not a bootstrap account and has a server URI.
func (o *SecurityObject) Server(reg *registry.Registry) (SecurityInfo, bool) {
	return o.find(reg, func(info SecurityInfo) bool {
		return !info.BootstrapServer && info.ServerURI != ""
	})
}

// Bootstrap returns the bootstrap server account in reg, if any.
func (o *SecurityObject) Bootstrap(reg *registry.Registry) (SecurityInfo, bool) {
	return o.find(reg, func(info SecurityInfo) bool {
		return info.BootstrapServer
	})
}

func (o *SecurityObject) find(reg *registry.Registry, match func(SecurityInfo) bool) (SecurityInfo, bool) {
	for _, id := range o.instances.live(reg, SecurityID) {
		s, _ := o.instances.get(id)
		if info := s.Info(); match(info) {
			return info, true
		}
	}
	return SecurityInfo{}, false
}
