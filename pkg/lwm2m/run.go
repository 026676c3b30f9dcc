package lwm2m

import (
	"context"
	"errors"
	"time"
)

// rebootstrapAfter is how many consecutive registration failures make Run
// fall back to the bootstrap server, when one is configured.
const rebootstrapAfter = 3

// Run connects, registers and serves the registration server until ctx is
// done. Failed sessions are retried with exponential backoff. The client
// bootstraps first when no registration server account is provisioned,
// and again after repeated registration failures. On return the client is
// deregistered and closed.
func (c *Client) Run(ctx context.Context) error {
	backoff := NewBackoff(0, 0, nil)
	failures := 0
	defer c.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if wait := c.disabledUntil.Sub(c.config.Now()); c.state == StateDisabled && wait > 0 {
			if !sleep(ctx, wait) {
				return nil
			}
			c.state = c.idleState()
		}

		err := c.connect(ctx, failures >= rebootstrapAfter)
		for err == nil {
			failures = 0
			err = c.CheckEvent(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		if errors.Is(err, ErrServerDisabled) {
			continue
		}

		failures++
		wait := backoff.Calculate(failures - 1)
		if c.log != nil {
			c.log.Warnf("session failed (%d in a row), retrying in %s: %v", failures, wait.Round(time.Millisecond), err)
		}
		c.disconnect()
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// connect brings the client to StateRegistered, bootstrapping first when
// required or requested.
func (c *Client) connect(ctx context.Context, rebootstrap bool) error {
	_, provisioned := c.security.Server(c.registry)
	if c.config.BootstrapHost != "" && (!provisioned || rebootstrap) {
		if err := c.Bootstrap(ctx); err != nil {
			return err
		}
	}
	if err := c.Prepare(ctx); err != nil {
		return err
	}
	return c.Register(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
