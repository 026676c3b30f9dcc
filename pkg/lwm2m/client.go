// Package lwm2m implements an LWM2M 1.0 client: bootstrap, registration
// and the device management interface, over CoAP secured with DTLS in PSK
// mode.
//
// A Client owns a resource registry pre-populated with the Security,
// Server and Device objects. Applications define further objects on
// Registry() and then either drive the client themselves:
//
//	c.Bootstrap(ctx)  // optional when credentials are provisioned
//	c.Prepare(ctx)
//	for {
//	    if err := c.CheckEvent(ctx); err != nil {
//	        // restart from Prepare or Bootstrap
//	    }
//	}
//
// or call Run, which does the same with reconnect backoff.
//
// A Client is not safe for concurrent use. Only its Registry may be used
// from other goroutines.
package lwm2m

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lwm2m/pkg/objects"
	"github.com/backkem/lwm2m/pkg/registry"
)

// Client is an LWM2M client serving one registration.
type Client struct {
	config Config
	log    logging.LeveledLogger
	state  State

	registry *registry.Registry
	security *objects.SecurityObject
	servers  *objects.ServerObject
	device   *objects.Device

	identity []byte
	psk      []byte

	bootstrapped bool

	// Registration server session.
	ep            *endpoint
	server        objects.SecurityInfo
	location      []string
	lifetime      time.Duration
	lastUpdate    time.Time
	lastContent   string
	updatePending bool
	disabledUntil time.Time
}

// NewClient creates a client with the standard objects and a Device
// instance registered.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	c := &Client{
		config:   config,
		registry: registry.New(),
		security: objects.NewSecurityObject(),
		device:   objects.NewDevice(config.Device),
	}
	c.servers = objects.NewServerObject(serverEvents{c})
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("lwm2m")
	}

	for _, def := range []registry.ObjectDefinition{
		c.security.Definition(),
		c.servers.Definition(),
		c.device.Definition(),
	} {
		if err := c.registry.Define(def); err != nil {
			return nil, err
		}
	}
	if err := c.registry.AddInstance(objects.DeviceID, 0); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry returns the client's resource registry.
func (c *Client) Registry() *registry.Registry { return c.registry }

// Security returns the Security object.
func (c *Client) Security() *objects.SecurityObject { return c.security }

// Servers returns the Server object.
func (c *Client) Servers() *objects.ServerObject { return c.servers }

// Device returns the Device object.
func (c *Client) Device() *objects.Device { return c.device }

// Endpoint returns the endpoint client name.
func (c *Client) Endpoint() string { return c.config.Endpoint }

// State returns the lifecycle state.
func (c *Client) State() State { return c.state }

// Bootstrapped reports whether a bootstrap sequence completed.
func (c *Client) Bootstrapped() bool { return c.bootstrapped }

// Registered reports whether the client holds a registration.
func (c *Client) Registered() bool { return c.state == StateRegistered }

// Location returns the registration location path, e.g. "/rd/5a3f".
func (c *Client) Location() string {
	if len(c.location) == 0 {
		return ""
	}
	return "/" + strings.Join(c.location, "/")
}

// SetSecurityParams sets the PSK identity and key used for the bootstrap
// server, and for a registration server account that carries none.
func (c *Client) SetSecurityParams(identity string, psk []byte) {
	c.identity = []byte(identity)
	c.psk = append([]byte(nil), psk...)
}

// TriggerUpdate makes the next CheckEvent send a registration update.
func (c *Client) TriggerUpdate() {
	c.updatePending = true
}

// Close deregisters if registered, closes the server session and moves the
// client to StateClosed.
func (c *Client) Close() error {
	if c.state == StateClosed {
		return nil
	}
	var err error
	if c.state == StateRegistered {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
		err = c.Deregister(ctx)
		cancel()
	}
	c.disconnect()
	c.state = StateClosed
	return err
}

// disconnect drops the registration server session and the registration.
func (c *Client) disconnect() {
	if c.ep != nil {
		c.ep.close()
		c.ep = nil
	}
	c.location = nil
	if c.state != StateClosed && c.state != StateDisabled {
		c.state = c.idleState()
	}
}

func (c *Client) idleState() State {
	if c.bootstrapped {
		return StateBootstrapped
	}
	return StateInitialized
}

// credentials returns the PSK identity and key for a server account,
// falling back to SetSecurityParams.
func (c *Client) credentials(info objects.SecurityInfo) ([]byte, []byte, error) {
	if info.Mode != objects.ModePSK {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedSecurityMode, info.Mode)
	}
	identity, psk := info.Identity, info.SecretKey
	if len(identity) == 0 {
		identity = c.identity
	}
	if len(psk) == 0 {
		psk = c.psk
	}
	if len(identity) == 0 || len(psk) == 0 {
		return nil, nil, ErrNoCredentials
	}
	return identity, psk, nil
}

// serverEvents receives executes on Server instances.
type serverEvents struct{ c *Client }

func (e serverEvents) UpdateTrigger(uint16) {
	e.c.updatePending = true
}

func (e serverEvents) Disable(_ uint16, timeout time.Duration) {
	e.c.disabledUntil = e.c.config.Now().Add(timeout)
}
