package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/drc"
)

// Client implements the drc.Client interface on top of a Transport.
//
// Outbound frames go through a bounded queue drained by the client's own
// write pump. A peer that lets the queue stay full for longer than the
// enqueue timeout is dropped as a slow consumer.
type Client struct {
	id             string
	session        string
	transport      Transport
	ctx            context.Context
	cancel         context.CancelFunc
	// sendCh is never closed; the pump stops on ctx instead.
	sendCh         chan []byte
	writeTimeout   time.Duration
	enqueueTimeout time.Duration
	rateLimiter    *rate.Limiter // Rate limiter for incoming frames
	log            *logrus.Entry
	metrics        *Metrics

	mu     sync.RWMutex
	closed bool
	reason drc.DisconnectReason
	done   chan struct{} // closed when the write pump exits
}

func newClient(t Transport, cfg *Config, log *logrus.Entry, metrics *Metrics) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	id := t.RemoteAddr()
	session := uuid.New().String()

	return &Client{
		id:             id,
		session:        session,
		transport:      t,
		ctx:            ctx,
		cancel:         cancel,
		sendCh:         make(chan []byte, cfg.QueueSize),
		writeTimeout:   cfg.WriteTimeout,
		enqueueTimeout: cfg.EnqueueTimeout,
		rateLimiter:    cfg.RateLimitConfig.newLimiter(),
		log:            log.WithFields(logrus.Fields{"client_id": id, "session": session}),
		metrics:        metrics,
		done:           make(chan struct{}),
	}
}

// ID returns the peer address the client is registered under
func (c *Client) ID() string {
	return c.id
}

// SessionID returns the random identifier assigned on accept
func (c *Client) SessionID() string {
	return c.session
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.transport.RemoteAddr()
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues payload for the write pump. When the queue is full it waits up
// to the enqueue timeout for the pump to make room, then gives up with
// drc.ErrSlowConsumer.
func (c *Client) Send(payload []byte) error {
	if !c.IsAlive() {
		return drc.ErrConnectionClosed
	}

	select {
	case c.sendCh <- payload:
		return nil
	default:
	}
	if c.enqueueTimeout <= 0 {
		return drc.ErrSlowConsumer
	}

	timer := time.NewTimer(c.enqueueTimeout)
	defer timer.Stop()
	select {
	case c.sendCh <- payload:
		return nil
	case <-c.ctx.Done():
		return drc.ErrConnectionClosed
	case <-timer.C:
		return drc.ErrSlowConsumer
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.closeWithReason(drc.ReasonLeft)
}

// closeWithReason closes the connection and remembers why. Only the first
// call has an effect.
//
// A slow consumer keeps its transport open until the write pump has flushed
// what was already queued, so accepted frames are not thrown away.
func (c *Client) closeWithReason(reason drc.DisconnectReason) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.reason = reason
	c.mu.Unlock()

	c.cancel()
	if reason == drc.ReasonSlowConsumer {
		return nil
	}
	return c.transport.Close()
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// closeReason returns the reason recorded by the first close, if any.
func (c *Client) closeReason() (drc.DisconnectReason, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason, c.closed
}

// allow checks if the client has exceeded the rate limit
// Returns true if the frame is allowed, false if rate limited
func (c *Client) allow() bool {
	if c.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump pumps frames from the send channel to the transport. It closes
// the transport on exit.
func (c *Client) writePump() {
	defer close(c.done)
	defer c.transport.Close()

	for {
		select {
		case payload := <-c.sendCh:
			if err := c.transport.WriteFrame(payload, time.Now().Add(c.writeTimeout)); err != nil {
				if c.IsAlive() {
					c.log.WithError(err).Warn("Failed to write frame, dropping client")
				}
				c.closeWithReason(drc.ReasonStreamError)
				return
			}
			c.metrics.deliveries.Inc()

		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued for a client dropped as a slow
// consumer, all within one write timeout.
func (c *Client) flush() {
	if reason, _ := c.closeReason(); reason != drc.ReasonSlowConsumer {
		return
	}
	deadline := time.Now().Add(c.writeTimeout)
	for {
		select {
		case payload := <-c.sendCh:
			if err := c.transport.WriteFrame(payload, deadline); err != nil {
				c.log.WithError(err).Debug("Gave up flushing slow client")
				return
			}
			c.metrics.deliveries.Inc()
		default:
			return
		}
	}
}
