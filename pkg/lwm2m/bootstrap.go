package lwm2m

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/lwm2m/pkg/coap"
	"github.com/backkem/lwm2m/pkg/objects"
	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/transport"
)

// Bootstrap connects to the bootstrap server, sends a Bootstrap-Request and
// serves the server's Write, Delete and Discover operations until it sends
// Bootstrap-Finish. Bootstrap succeeds only if a registration server
// account with a server URI and a secret key was provisioned.
//
// Credentials for the bootstrap server come from SetSecurityParams.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Section 5.2
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.config.BootstrapHost == "" {
		return fmt.Errorf("%w: no bootstrap host", ErrNoServer)
	}
	if len(c.identity) == 0 || len(c.psk) == 0 {
		return ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.BootstrapTimeout)
	defer cancel()

	c.disconnect()
	c.state = StateBootstrapping
	c.bootstrapped = false

	ep, err := c.dial(ctx, "bootstrap", c.config.BootstrapHost, c.config.BootstrapPort, c.identity, c.psk)
	if err != nil {
		c.state = StateInitialized
		return err
	}
	defer ep.close()

	err = c.bootstrap(ctx, ep)
	if err != nil {
		c.state = StateInitialized
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrBootstrapTimeout, err)
		}
		return err
	}
	c.bootstrapped = true
	c.state = StateBootstrapped
	if c.log != nil {
		c.log.Infof("bootstrap finished")
	}
	return nil
}

func (c *Client) bootstrap(ctx context.Context, ep *endpoint) error {
	opts := coap.NewOptions()
	opts.SetPath("/bs")
	if err := opts.AddQuery("ep", c.config.Endpoint); err != nil {
		return err
	}
	resp, err := ep.request(ctx, coap.POST, opts, nil, c.config.RequestTimeout)
	if err != nil {
		return err
	}
	if resp.Code != coap.Changed {
		return fmt.Errorf("%w: bootstrap request answered %s", ErrRegistrationRejected, resp.Code)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := c.config.ReceiveTimeout
		if d, ok := ctx.Deadline(); ok && time.Until(d) < timeout {
			timeout = time.Until(d)
		}
		m, err := ep.receive(timeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if h, ok := coap.ErrorHeader(err); ok && h.Type == coap.Confirmable {
				if err := ep.respond(h, coap.BadOption, nil, nil); err != nil {
					return err
				}
				continue
			}
			if isParseError(err) {
				continue
			}
			return err
		}
		if !m.Code.IsRequest() {
			if m.Type == coap.Confirmable && m.Code == coap.Empty {
				if err := ep.reset(m); err != nil {
					return err
				}
			}
			continue
		}
		if dup, err := ep.resendCached(m); dup || err != nil {
			if err != nil {
				return err
			}
			continue
		}

		done, err := c.handleBootstrap(ep, m)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// handleBootstrap serves one bootstrap server request. It returns true once
// Bootstrap-Finish was accepted.
func (c *Client) handleBootstrap(ep *endpoint, m *coap.Message) (bool, error) {
	if m.Code == coap.POST && m.IsPath("bs") {
		info, ok := c.security.Server(c.registry)
		if ok {
			_, _, err := c.credentials(info)
			ok = err == nil
		}
		if !ok {
			if c.log != nil {
				c.log.Warnf("bootstrap finish without a usable registration server account")
			}
			if err := ep.respond(m, coap.NotAcceptable, nil, nil); err != nil {
				return false, err
			}
			return false, ErrBootstrapIncomplete
		}
		return true, ep.respond(m, coap.Changed, nil, nil)
	}

	path, err := registry.ParsePath(m.Options.Paths)
	if err != nil {
		return false, ep.respond(m, coap.BadRequest, nil, nil)
	}

	var (
		code    coap.Code
		opts    *coap.Options
		payload []byte
	)
	switch m.Code {
	case coap.PUT:
		if !isTLV(m) {
			code = coap.UnsupportedMediaType
			break
		}
		code = coap.Changed
		if err := c.registry.BootstrapWrite(path, m.Payload); err != nil {
			code = CodeForError(err)
		}
	case coap.DELETE:
		code = coap.Deleted
		if err := c.bootstrapDelete(path); err != nil {
			code = CodeForError(err)
		}
	case coap.GET:
		if !m.Options.HasAccept || m.Options.Accept != coap.FormatLinkFormat {
			code = coap.MethodNotAllowed
			break
		}
		links, err := c.registry.Discover(path)
		if err != nil {
			code = CodeForError(err)
			break
		}
		code, payload = coap.Content, links
		opts = coap.NewOptions()
		opts.SetContentFormat(coap.FormatLinkFormat)
	default:
		code = coap.MethodNotAllowed
	}
	if c.log != nil {
		c.log.Debugf("bootstrap %s %s -> %s", m.Code, path, code)
	}
	return false, ep.respond(m, code, opts, payload)
}

// bootstrapDelete deletes instances for a bootstrap server. The Device
// object and the bootstrap account in the Security object are kept when
// the whole client or the Security object is cleared.
func (c *Client) bootstrapDelete(path registry.Path) error {
	if path.Depth > 2 {
		return fmt.Errorf("%w: delete of %s", registry.ErrMethodNotAllowed, path)
	}
	if path.Depth > 0 && path.ObjectID == objects.DeviceID {
		return fmt.Errorf("%w: device object cannot be deleted", registry.ErrBadRequest)
	}
	if path.Depth == 2 {
		return c.registry.Delete(path)
	}
	for _, p := range c.registry.Instances() {
		if path.Depth == 1 && p.ObjectID != path.ObjectID {
			continue
		}
		if p.ObjectID == objects.DeviceID || c.isBootstrapAccount(p) {
			continue
		}
		if err := c.registry.Delete(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) isBootstrapAccount(p registry.Path) bool {
	if p.ObjectID != objects.SecurityID {
		return false
	}
	s, ok := c.security.Instance(p.InstanceID)
	return ok && s.Info().BootstrapServer
}

func isTLV(m *coap.Message) bool {
	return m.Options.HasContentFormat && m.Options.ContentFormat == coap.FormatLWM2MTLV
}

func isParseError(err error) bool {
	return errors.Is(err, coap.ErrMessageTooShort) || errors.Is(err, coap.ErrInvalidVersion) ||
		errors.Is(err, coap.ErrInvalidTokenLength) || errors.Is(err, coap.ErrMalformedOption) ||
		errors.Is(err, coap.ErrOptionOverflow) || errors.Is(err, coap.ErrUnknownCriticalOption) ||
		errors.Is(err, coap.ErrEmptyPayload)
}
