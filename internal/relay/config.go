package relay

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
)

// OnConnectFn is called after a client is registered and before its read
// loop starts. It runs on the connection's goroutine, so it must not block
// for long.
type OnConnectFn = func(client drc.Client)

// OnDisconnectFn is called once per registered client after it has been
// removed from the registry.
type OnDisconnectFn = func(client drc.Client, reason drc.DisconnectReason)

// RateLimitConfig defines inbound rate limiting for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *RateLimitConfig) newLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}

// Config holds the relay settings.
type Config struct {
	// Addr is the TCP address to listen on, e.g. "0.0.0.0:6969".
	Addr string
	// ReadTimeout disconnects clients that stay silent for longer. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds every outbound frame write.
	WriteTimeout time.Duration
	// EnqueueTimeout is how long a broadcast waits for room in a full
	// outbound queue before dropping the recipient as a slow consumer.
	// Zero drops it as soon as the queue is full.
	EnqueueTimeout time.Duration
	// QueueSize is the capacity of each client's outbound queue.
	QueueSize int
	// MaxFrameSize is the largest payload accepted from a client.
	MaxFrameSize int
	// RateLimitConfig limits inbound frames per client. Nil disables it.
	RateLimitConfig *RateLimitConfig

	Logger       *logrus.Logger
	OnConnect    OnConnectFn
	OnDisconnect OnDisconnectFn
}

// DefaultConfig returns the configuration used by the drcd binary when no
// flags are given.
func DefaultConfig() Config {
	return Config{
		Addr:            net.JoinHostPort("0.0.0.0", strconv.Itoa(drc.DefaultPort)),
		WriteTimeout:    10 * time.Second,
		EnqueueTimeout:  time.Second,
		QueueSize:       256,
		MaxFrameSize:    protocol.MaxPayloadSize,
		RateLimitConfig: NoRateLimit(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.ReadTimeout < 0:
		return fmt.Errorf("relay: invalid read timeout (%v)", c.ReadTimeout)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("relay: invalid write timeout (%v)", c.WriteTimeout)
	case c.EnqueueTimeout < 0:
		return fmt.Errorf("relay: invalid enqueue timeout (%v)", c.EnqueueTimeout)
	case c.QueueSize <= 0:
		return fmt.Errorf("relay: invalid queue size (%d)", c.QueueSize)
	case c.MaxFrameSize <= 0 || c.MaxFrameSize > protocol.MaxPayloadSize:
		return fmt.Errorf("relay: max frame size must be within 1..%d (%d)", protocol.MaxPayloadSize, c.MaxFrameSize)
	case c.RateLimitConfig != nil && c.RateLimitConfig.Enabled && (c.RateLimitConfig.MessagesPerSecond <= 0 || c.RateLimitConfig.Burst <= 0):
		return fmt.Errorf("relay: rate limit needs a positive rate and burst (%v, %d)",
			c.RateLimitConfig.MessagesPerSecond, c.RateLimitConfig.Burst)
	}
	return nil
}
