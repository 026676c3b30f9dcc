package lwm2m

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/lwm2m/pkg/coap"
	"github.com/backkem/lwm2m/pkg/transport"
)

// CheckEvent runs one step of the registered client: it registers if
// needed, waits up to ReceiveTimeout for a server request and serves it,
// then sends a registration update when one is due.
//
// A receive timeout is not an error. Errors returned by CheckEvent mean
// the session is unusable and the caller should restart from Prepare, or
// from Bootstrap. ErrServerDisabled means the server disabled the client;
// the client deregistered and closed the session.
func (c *Client) CheckEvent(ctx context.Context) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.ep == nil {
		return ErrNotPrepared
	}
	if c.state != StateRegistered {
		if err := c.Register(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.receiveOne(); err != nil {
		return err
	}

	if !c.disabledUntil.IsZero() && c.config.Now().Before(c.disabledUntil) {
		return c.disable(ctx)
	}

	if c.updateDue() {
		if err := c.Update(ctx); err != nil {
			if errors.Is(err, ErrNotRegistered) {
				return c.Register(ctx)
			}
			return err
		}
	}
	return nil
}

// receiveOne waits for and serves at most one message from the
// registration server.
func (c *Client) receiveOne() error {
	m, err := c.ep.receive(c.config.ReceiveTimeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil
		}
		if h, ok := coap.ErrorHeader(err); ok {
			if h.Type == coap.Confirmable && h.Code.IsRequest() {
				return c.ep.respond(h, coap.BadOption, nil, nil)
			}
			return nil
		}
		if isParseError(err) {
			if c.log != nil {
				c.log.Debugf("dropping malformed message: %v", err)
			}
			return nil
		}
		return err
	}

	switch {
	case m.Code == coap.Empty && m.Type == coap.Confirmable:
		// CoAP ping.
		return c.ep.reset(m)
	case !m.Code.IsRequest():
		if c.log != nil {
			c.log.Tracef("ignoring unsolicited %s", m)
		}
		return nil
	}

	if dup, err := c.ep.resendCached(m); dup || err != nil {
		return err
	}
	return c.handleRequest(m)
}

// disable deregisters and closes the session after the server executed
// Disable. Run waits until the disable timeout passed before reconnecting.
func (c *Client) disable(ctx context.Context) error {
	until := c.disabledUntil
	if c.state == StateRegistered {
		if err := c.Deregister(ctx); err != nil && c.log != nil {
			c.log.Warnf("deregister on disable: %v", err)
		}
	}
	c.disconnect()
	c.state = StateDisabled
	if c.log != nil {
		c.log.Infof("disabled by server until %s", until.Format(time.RFC3339))
	}
	return fmt.Errorf("%w until %s", ErrServerDisabled, until.Format(time.RFC3339))
}

// DisabledUntil returns when a server Disable expires. It is zero if the
// client was never disabled.
func (c *Client) DisabledUntil() time.Time { return c.disabledUntil }
