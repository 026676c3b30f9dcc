package lwm2m

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/backkem/lwm2m/pkg/coap"
)

// Registration query parameters.
const (
	lwm2mVersion  = "1.0"
	bindingUDP    = "U"
	uriSchemeDTLS = "coaps"
)

// ParseServerURI splits a coaps://host[:port] server URI. The port
// defaults to DefaultPort.
func ParseServerURI(uri string) (string, int, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidServerURI, err)
	}
	if u.Scheme != uriSchemeDTLS {
		return "", 0, fmt.Errorf("%w: scheme %q", ErrInvalidServerURI, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("%w: no host in %q", ErrInvalidServerURI, uri)
	}
	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("%w: port %q", ErrInvalidServerURI, p)
		}
	}
	return host, port, nil
}

// Prepare opens the secured session to the registration server named by
// the Security object.
func (c *Client) Prepare(ctx context.Context) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	info, ok := c.security.Server(c.registry)
	if !ok {
		return ErrNotBootstrapped
	}
	host, port, err := ParseServerURI(info.ServerURI)
	if err != nil {
		return err
	}
	identity, psk, err := c.credentials(info)
	if err != nil {
		return err
	}

	c.disconnect()
	ep, err := c.dial(ctx, "registration", host, port, identity, psk)
	if err != nil {
		return err
	}
	c.ep = ep
	c.server = info
	c.state = StateConnected
	return nil
}

// Register sends a Register request with the object links of the registry
// and records the location the server assigned.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Section 5.3.1
func (c *Client) Register(ctx context.Context) error {
	if c.ep == nil || !c.state.IsConnected() {
		return ErrNotPrepared
	}
	lifetime := c.registrationLifetime()
	content := c.registry.RegisterContent()

	opts := coap.NewOptions()
	opts.SetPath("/rd")
	for _, q := range []coap.Query{
		{Key: "ep", Value: c.config.Endpoint},
		{Key: "lt", Value: strconv.FormatInt(int64(lifetime/time.Second), 10)},
		{Key: "lwm2m", Value: lwm2mVersion},
		{Key: "b", Value: bindingUDP},
	} {
		if err := opts.AddQuery(q.Key, q.Value); err != nil {
			return err
		}
	}
	opts.SetContentFormat(coap.FormatLinkFormat)

	resp, err := c.ep.request(ctx, coap.POST, opts, content, c.config.RequestTimeout)
	if err != nil {
		return err
	}
	if resp.Code != coap.Created {
		return fmt.Errorf("%w: register answered %s", ErrRegistrationRejected, resp.Code)
	}
	if len(resp.Options.Locations) == 0 {
		return fmt.Errorf("%w: register response without location", ErrRegistrationRejected)
	}

	c.location = append([]string(nil), resp.Options.Locations...)
	c.lifetime = lifetime
	c.lastContent = string(content)
	c.lastUpdate = c.config.Now()
	c.updatePending = false
	c.state = StateRegistered
	if c.log != nil {
		c.log.Infof("registered as %s at %s, lifetime %s", c.config.Endpoint, c.Location(), lifetime)
	}
	return nil
}

// Update refreshes the registration. The object links are included only
// when they changed since the last Register or Update. A 4.04 answer means
// the server dropped the registration; the client then needs to Register
// again.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Section 5.3.2
func (c *Client) Update(ctx context.Context) error {
	if c.state != StateRegistered {
		return ErrNotRegistered
	}
	content := c.registry.RegisterContent()
	lifetime := c.registrationLifetime()

	opts := coap.NewOptions()
	opts.SetPath(c.Location())
	if lifetime != c.lifetime {
		opts.AddQuery("lt", strconv.FormatInt(int64(lifetime/time.Second), 10))
	}
	var payload []byte
	if string(content) != c.lastContent {
		payload = content
		opts.SetContentFormat(coap.FormatLinkFormat)
	}

	resp, err := c.ep.request(ctx, coap.POST, opts, payload, c.config.RequestTimeout)
	if err != nil {
		return err
	}
	switch {
	case resp.Code == coap.Changed:
	case resp.Code == coap.NotFound:
		c.location = nil
		c.state = StateConnected
		return fmt.Errorf("%w: registration %s unknown to server", ErrNotRegistered, opts.Path())
	default:
		return fmt.Errorf("%w: update answered %s", ErrRegistrationRejected, resp.Code)
	}

	c.lifetime = lifetime
	c.lastContent = string(content)
	c.lastUpdate = c.config.Now()
	c.updatePending = false
	if c.log != nil {
		c.log.Debugf("registration %s updated", c.Location())
	}
	return nil
}

// Deregister removes the registration from the server. The session stays
// open.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Section 5.3.3
func (c *Client) Deregister(ctx context.Context) error {
	if c.state != StateRegistered {
		return ErrNotRegistered
	}
	opts := coap.NewOptions()
	opts.SetPath(c.Location())
	resp, err := c.ep.request(ctx, coap.DELETE, opts, nil, c.config.RequestTimeout)
	c.location = nil
	c.state = StateConnected
	if err != nil {
		return err
	}
	if resp.Code != coap.Deleted {
		return fmt.Errorf("%w: deregister answered %s", ErrRegistrationRejected, resp.Code)
	}
	if c.log != nil {
		c.log.Infof("deregistered from %s", c.ep.dtls.RemoteAddr())
	}
	return nil
}

// registrationLifetime is the Lifetime of the Server instance matching the
// registration server account, or Config.Lifetime.
func (c *Client) registrationLifetime() time.Duration {
	if info, ok := c.servers.Lookup(c.registry, c.server.ShortServerID); ok && info.Lifetime > 0 {
		return info.LifetimeDuration()
	}
	return c.config.Lifetime
}

// updateDue reports whether a registration update should be sent now.
func (c *Client) updateDue() bool {
	if c.updatePending {
		return true
	}
	return !c.config.Now().Before(c.lastUpdate.Add(c.config.updateInterval(c.lifetime)))
}
