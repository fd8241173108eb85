package relay

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
)

// Broadcaster fans a client's message out to every other registered client.
type Broadcaster struct {
	// mu spans the snapshot and every enqueue of one broadcast, so all
	// recipients see messages in the same relative order.
	mu       sync.Mutex
	registry *Registry
	log      *logrus.Entry
	metrics  *Metrics
}

// NewBroadcaster returns a broadcaster delivering to the clients of registry.
func NewBroadcaster(registry *Registry, log *logrus.Entry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log,
		metrics:  metrics,
	}
}

// Broadcast relays frame from the client identified by senderID to all other
// clients. The original frame bytes are forwarded unmodified.
//
// It returns drc.ErrMalformedFrame when frame has no tag delimiter. Messages
// with an empty tag or blank body are dropped without error. Failing to
// reach one recipient never stops delivery to the others.
func (b *Broadcaster) Broadcast(senderID string, frame []byte) error {
	msg, err := protocol.ParseMessage(frame)
	if err != nil {
		return err
	}
	if msg.Empty() {
		b.metrics.discarded.Inc()
		b.log.WithField("client_id", senderID).Trace("Discarding empty message")
		return nil
	}

	b.log.WithFields(logrus.Fields{
		"tag":       string(msg.Tag),
		"client_id": senderID,
		"body":      string(msg.Body),
	}).Info("Received message")

	var slow []*Client

	b.mu.Lock()
	targets := b.registry.SnapshotOthers(senderID)
	for _, c := range targets {
		err := c.Send(frame)
		switch {
		case err == nil:
		case errors.Is(err, drc.ErrSlowConsumer):
			slow = append(slow, c)
		default:
			// Recipient disconnected after the snapshot was taken.
			c.log.WithError(err).Debug("Skipping recipient")
		}
	}
	b.mu.Unlock()

	b.metrics.relayed.Inc()
	for _, c := range slow {
		c.log.Warn("Outbound queue stayed full, disconnecting slow client")
		c.closeWithReason(drc.ReasonSlowConsumer)
	}
	return nil
}
