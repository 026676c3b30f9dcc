package lwm2m

import (
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lwm2m/pkg/coap"
	"github.com/backkem/lwm2m/pkg/objects"
	"github.com/backkem/lwm2m/pkg/transport"
)

// Defaults for unset Config fields.
const (
	DefaultLifetime         = 300 * time.Second
	DefaultReceiveTimeout   = 1 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultBootstrapTimeout = 60 * time.Second
	DefaultPort             = transport.DefaultCoAPSPort

	// MinUpdateInterval bounds how often Update is sent.
	MinUpdateInterval = 1 * time.Second
)

// Config configures a Client.
type Config struct {
	// Endpoint is the LWM2M endpoint client name. Required; at most
	// coap.MaxQueryValueLen bytes so it fits the ep query.
	Endpoint string

	// Dialer opens datagram connections. Default: transport.UDPDialer.
	Dialer transport.Dialer

	// BootstrapHost and BootstrapPort address the bootstrap server. An
	// empty host disables Bootstrap. Port defaults to DefaultPort.
	BootstrapHost string
	BootstrapPort int

	// Lifetime is the registration lifetime used when no Server instance
	// sets one. Default: DefaultLifetime.
	Lifetime time.Duration

	// UpdateInterval is how often registration updates are sent.
	// Default: half the registration lifetime.
	UpdateInterval time.Duration

	// ReceiveTimeout bounds the wait for one datagram in CheckEvent.
	// Default: DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// RequestTimeout bounds the wait for the response to a client request.
	// Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ACKTimeout is the initial retransmission timeout of confirmable
	// requests. Default: coap.ACKTimeout.
	ACKTimeout time.Duration

	// BootstrapTimeout bounds a complete bootstrap sequence.
	// Default: DefaultBootstrapTimeout.
	BootstrapTimeout time.Duration

	// HandshakeTimeout bounds each DTLS handshake. Zero uses the dtls
	// package default.
	HandshakeTimeout time.Duration

	// Device describes the Device object instance the client exposes.
	Device objects.DeviceConfig

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Rand supplies DTLS randoms, CoAP tokens and message IDs.
	// Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint name is required", ErrInvalidConfig)
	}
	if len(c.Endpoint) > coap.MaxQueryValueLen {
		return fmt.Errorf("%w: endpoint name longer than %d bytes", ErrInvalidConfig, coap.MaxQueryValueLen)
	}
	if c.BootstrapPort < 0 || c.BootstrapPort > 65535 {
		return fmt.Errorf("%w: bootstrap port %d", ErrInvalidConfig, c.BootstrapPort)
	}
	if c.Lifetime < 0 || c.UpdateInterval < 0 || c.ReceiveTimeout < 0 ||
		c.RequestTimeout < 0 || c.BootstrapTimeout < 0 || c.HandshakeTimeout < 0 || c.ACKTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.Lifetime > 0 && c.Lifetime < time.Second {
		return fmt.Errorf("%w: lifetime below one second", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Dialer == nil {
		c.Dialer = &transport.UDPDialer{LoggerFactory: c.LoggerFactory}
	}
	if c.BootstrapPort == 0 {
		c.BootstrapPort = DefaultPort
	}
	if c.Lifetime == 0 {
		c.Lifetime = DefaultLifetime
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ACKTimeout == 0 {
		c.ACKTimeout = coap.ACKTimeout
	}
	if c.BootstrapTimeout == 0 {
		c.BootstrapTimeout = DefaultBootstrapTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Device.Now == nil {
		c.Device.Now = c.Now
	}
}

// updateInterval returns the update period for a registration lifetime.
func (c *Config) updateInterval(lifetime time.Duration) time.Duration {
	d := c.UpdateInterval
	if d == 0 {
		d = lifetime / 2
	}
	if d < MinUpdateInterval {
		d = MinUpdateInterval
	}
	return d
}
