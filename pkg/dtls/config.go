package dtls

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
)

// DefaultHandshakeTimeout bounds a complete handshake when the caller's
// context carries no earlier deadline.
const DefaultHandshakeTimeout = 10 * time.Second

// Config configures a client Session.
type Config struct {
	// Identity is the PSK identity sent in ClientKeyExchange.
	Identity []byte

	// PSK is the pre-shared key.
	PSK []byte

	// Rand supplies the client random. Defaults to crypto/rand.
	Rand io.Reader

	// HandshakeTimeout bounds Handshake. Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// MaxTranscriptSize bounds the buffered handshake transcript.
	// Default: DefaultMaxTranscriptSize.
	MaxTranscriptSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the credentials.
func (c *Config) Validate() error {
	if len(c.Identity) == 0 || len(c.Identity) > MaxIdentityLen {
		return fmt.Errorf("%w: identity must be 1-%d bytes, got %d", ErrInvalidConfig, MaxIdentityLen, len(c.Identity))
	}
	if len(c.PSK) == 0 || len(c.PSK) > MaxPSKLen {
		return fmt.Errorf("%w: psk must be 1-%d bytes, got %d", ErrInvalidConfig, MaxPSKLen, len(c.PSK))
	}
	if c.MaxTranscriptSize < 0 || c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaxTranscriptSize == 0 {
		c.MaxTranscriptSize = DefaultMaxTranscriptSize
	}
}
