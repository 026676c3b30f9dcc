package objects

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// Server resource IDs (Appendix E.2).
const (
	ServerShortServerID       uint16 = 0
	ServerLifetime            uint16 = 1
	ServerDefaultMinPeriod    uint16 = 2
	ServerDefaultMaxPeriod    uint16 = 3
	ServerDisable             uint16 = 4
	ServerDisableTimeout      uint16 = 5
	ServerNotificationStoring uint16 = 6
	ServerBinding             uint16 = 7
	ServerUpdateTrigger       uint16 = 8
)

// Defaults applied to Server instances created by a bootstrap server.
const (
	DefaultLifetime       = 86400
	DefaultDisableTimeout = 86400
	DefaultBinding        = "U"
)

var serverResources = []registry.ResourceDefinition{
	{ID: ServerShortServerID, Name: "Short Server ID", Access: registry.AccessRead, Type: tlv.TypeInteger},
	{ID: ServerLifetime, Name: "Lifetime", Access: registry.AccessReadWrite, Type: tlv.TypeInteger},
	{ID: ServerDefaultMinPeriod, Name: "Default Minimum Period", Access: registry.AccessReadWrite, Type: tlv.TypeInteger},
	{ID: ServerDefaultMaxPeriod, Name: "Default Maximum Period", Access: registry.AccessReadWrite, Type: tlv.TypeInteger},
	{ID: ServerDisable, Name: "Disable", Access: registry.AccessExecute},
	{ID: ServerDisableTimeout, Name: "Disable Timeout", Access: registry.AccessReadWrite, Type: tlv.TypeInteger},
	{ID: ServerNotificationStoring, Name: "Notification Storing When Disabled or Offline", Access: registry.AccessReadWrite, Type: tlv.TypeBoolean},
	{ID: ServerBinding, Name: "Binding", Access: registry.AccessReadWrite, Type: tlv.TypeString},
	{ID: ServerUpdateTrigger, Name: "Registration Update Trigger", Access: registry.AccessExecute},
}

// ServerInfo is the content of one Server instance. Periods are in seconds.
type ServerInfo struct {
	ShortServerID       uint16
	Lifetime            int64
	DefaultMinPeriod    int64
	DefaultMaxPeriod    int64
	DisableTimeout      int64
	NotificationStoring bool
	Binding             string
}

// LifetimeDuration returns Lifetime as a duration.
func (i ServerInfo) LifetimeDuration() time.Duration {
	return time.Duration(i.Lifetime) * time.Second
}

// ValidBinding reports whether b is a binding mode of LWM2M 1.0: U, UQ, S,
// SQ, US or UQS.
func ValidBinding(b string) bool {
	switch b {
	case "U", "UQ", "S", "SQ", "US", "UQS":
		return true
	}
	return false
}

// ServerEvents receives the actions a server triggers on a Server instance.
type ServerEvents interface {
	// UpdateTrigger is called when the server executes Registration Update
	// Trigger.
	UpdateTrigger(shortServerID uint16)

	// Disable is called when the server executes Disable. The client should
	// deregister and stay offline for timeout.
	Disable(shortServerID uint16, timeout time.Duration)
}

// Server is one instance of the Server object.
type Server struct {
	mu     sync.RWMutex
	info   ServerInfo
	events ServerEvents
}

// Info returns a copy of the instance's content.
func (s *Server) Info() ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Set replaces the instance's content.
func (s *Server) Set(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

func (s *Server) readResource(id uint16, r *tlv.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch id {
	case ServerShortServerID:
		r.SetInt(int64(s.info.ShortServerID))
	case ServerLifetime:
		r.SetInt(s.info.Lifetime)
	case ServerDefaultMinPeriod:
		r.SetInt(s.info.DefaultMinPeriod)
	case ServerDefaultMaxPeriod:
		r.SetInt(s.info.DefaultMaxPeriod)
	case ServerDisableTimeout:
		r.SetInt(s.info.DisableTimeout)
	case ServerNotificationStoring:
		r.SetBool(s.info.NotificationStoring)
	case ServerBinding:
		r.SetString(s.info.Binding)
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (s *Server) validateResource(id uint16, r *tlv.Record) error {
	switch id {
	case ServerShortServerID:
		if r.Int < 1 || r.Int > 65534 {
			return fmt.Errorf("%w: short server id %d", ErrInvalidValue, r.Int)
		}
	case ServerLifetime:
		if r.Int <= 0 {
			return fmt.Errorf("%w: lifetime %d", ErrInvalidValue, r.Int)
		}
	case ServerDefaultMinPeriod:
		if r.Int < 0 {
			return fmt.Errorf("%w: minimum period %d", ErrInvalidValue, r.Int)
		}
	case ServerDefaultMaxPeriod:
		if r.Int < 0 {
			return fmt.Errorf("%w: maximum period %d", ErrInvalidValue, r.Int)
		}
	case ServerDisableTimeout:
		if r.Int < 0 {
			return fmt.Errorf("%w: disable timeout %d", ErrInvalidValue, r.Int)
		}
	case ServerNotificationStoring:
	case ServerBinding:
		if !ValidBinding(strings.ToUpper(r.StringValue())) {
			return fmt.Errorf("%w: binding %q", ErrInvalidValue, r.StringValue())
		}
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (s *Server) writeResource(id uint16, r *tlv.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch id {
	case ServerShortServerID:
		s.info.ShortServerID = uint16(r.Int)
	case ServerLifetime:
		s.info.Lifetime = r.Int
	case ServerDefaultMinPeriod:
		s.info.DefaultMinPeriod = r.Int
	case ServerDefaultMaxPeriod:
		s.info.DefaultMaxPeriod = r.Int
	case ServerDisableTimeout:
		s.info.DisableTimeout = r.Int
	case ServerNotificationStoring:
		s.info.NotificationStoring = r.Bool
	case ServerBinding:
		s.info.Binding = strings.ToUpper(r.StringValue())
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (s *Server) executeResource(id uint16, _ *tlv.Record) error {
	s.mu.RLock()
	ssid := s.info.ShortServerID
	timeout := time.Duration(s.info.DisableTimeout) * time.Second
	events := s.events
	s.mu.RUnlock()

	switch id {
	case ServerUpdateTrigger:
		if events == nil {
			return ErrNotSupported
		}
		events.UpdateTrigger(ssid)
	case ServerDisable:
		if events == nil {
			return ErrNotSupported
		}
		events.Disable(ssid, timeout)
	default:
		return ErrUnsupportedResource
	}
	return nil
}

// ServerObject is the Server object (1).
type ServerObject struct {
	instances instances[Server]

	mu     sync.Mutex
	events ServerEvents
}

// NewServerObject creates a Server object whose instances report executed
// actions to events. events may be nil.
func NewServerObject(events ServerEvents) *ServerObject {
	return &ServerObject{events: events}
}

// SetEvents replaces the receiver of executed actions for instances
// created afterwards.
func (o *ServerObject) SetEvents(events ServerEvents) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = events
}

// Definition returns the object definition to register.
func (o *ServerObject) Definition() registry.ObjectDefinition {
	return registry.ObjectDefinition{
		ID:        ServerID,
		Name:      "LWM2M Server",
		Resources: serverResources,
		Factory: func(instanceID uint16) map[uint16]any {
			o.mu.Lock()
			events := o.events
			o.mu.Unlock()

			s := &Server{
				events: events,
				info: ServerInfo{
					Lifetime:       DefaultLifetime,
					DisableTimeout: DefaultDisableTimeout,
					Binding:        DefaultBinding,
				},
			}
			o.instances.put(instanceID, s)
			return handlersFor(serverResources, s)
		},
	}
}

// Instance returns the state of a Server instance.
func (o *ServerObject) Instance(instanceID uint16) (*Server, bool) {
	return o.instances.get(instanceID)
}

// Add creates a Server instance in reg holding info.
func (o *ServerObject) Add(reg *registry.Registry, instanceID uint16, info ServerInfo) error {
	if err := reg.AddInstance(ServerID, instanceID); err != nil {
		return err
	}
	s, _ := o.instances.get(instanceID)
	s.Set(info)
	return nil
}

// Lookup returns the Server instance in reg with the given short server ID.
func (o *ServerObject) Lookup(reg *registry.Registry, shortServerID uint16) (ServerInfo, bool) {
	for _, id := range o.instances.live(reg, ServerID) {
		s, _ := o.instances.get(id)
		if info := s.Info(); info.ShortServerID == shortServerID {
			return info, true
		}
	}
	return ServerInfo{}, false
}

// First returns the lowest numbered Server instance in reg.
func (o *ServerObject) First(reg *registry.Registry) (ServerInfo, bool) {
	ids := o.instances.live(reg, ServerID)
	if len(ids) == 0 {
		return ServerInfo{}, false
	}
	s, _ := o.instances.get(ids[0])
	return s.Info(), true
}
