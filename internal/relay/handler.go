package relay

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/luciancaetano/drc"
)

// serve runs one connection from registration to removal.
func (s *Server) serve(t Transport) {
	client := newClient(t, &s.cfg, s.log, s.metrics)

	if err := s.registry.Register(client); err != nil {
		client.log.WithError(err).Warn("Rejecting connection")
		client.closeWithReason(drc.ReasonDuplicate)
		s.metrics.disconnects.WithLabelValues(drc.ReasonDuplicate.String()).Inc()
		return
	}
	s.metrics.connected.Inc()

	// Stop may have taken its client snapshot before we registered.
	if !s.isRunning() {
		client.closeWithReason(drc.ReasonShutdown)
	}

	started := client.IsAlive()
	reason := drc.ReasonShutdown
	if started {
		s.handlers.Go(client.writePump)

		client.log.Debug("Client connected")
		if s.cfg.OnConnect != nil {
			s.cfg.OnConnect(client)
		}

		reason = s.readLoop(client)
	} else {
		// Closed before it ever ran, so there is no pump to release the transport.
		client.transport.Close()
	}

	s.registry.Deregister(client.ID())
	s.metrics.connected.Dec()
	client.closeWithReason(reason)

	// A close from elsewhere (slow consumer, shutdown) wins over what the
	// read loop saw.
	reason, _ = client.closeReason()
	s.metrics.disconnects.WithLabelValues(reason.String()).Inc()
	client.log.WithField("reason", reason.String()).Debug("Client disconnected")

	if started && s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(client, reason)
	}
}

// readLoop isolates a panicking connection from the rest of the relay.
func (s *Server) readLoop(client *Client) drc.DisconnectReason {
	reason := drc.ReasonStreamError

	var pc panics.Catcher
	pc.Try(func() {
		reason = s.readFrames(client)
	})
	if r := pc.Recovered(); r != nil {
		client.log.WithField("panic", r.Value).Errorf("Connection handler panicked\n%s", r.Stack)
		return drc.ReasonStreamError
	}
	return reason
}

func (s *Server) readFrames(client *Client) drc.DisconnectReason {
	for {
		if s.cfg.ReadTimeout > 0 {
			if err := client.transport.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return s.readError(client, err)
			}
		}

		payload, err := client.transport.ReadFrame()
		if err != nil {
			return s.readError(client, err)
		}
		if len(payload) == 0 {
			client.log.Trace("Zero-length frame, treating as end of stream")
			return drc.ReasonLeft
		}
		s.metrics.framesReceived.Inc()

		if !client.allow() {
			client.log.WithError(drc.ErrRateLimited).Warn("Closing connection")
			return drc.ReasonRateLimited
		}

		if err := s.broadcaster.Broadcast(client.ID(), payload); err != nil {
			client.log.WithError(err).Warn("Protocol violation, closing connection")
			return drc.ReasonMalformed
		}
	}
}

func (s *Server) readError(client *Client, err error) drc.DisconnectReason {
	if reason, closed := client.closeReason(); closed {
		return reason
	}

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		return drc.ReasonLeft
	case errors.Is(err, drc.ErrFrameTooLarge), errors.Is(err, drc.ErrMalformedFrame):
		client.log.WithError(err).Warn("Invalid frame, closing connection")
		return drc.ReasonMalformed
	case errors.As(err, &netErr) && netErr.Timeout():
		client.log.Info("Idle timeout, closing connection")
		return drc.ReasonTimeout
	default:
		client.log.WithError(err).Warn("Stream error, closing connection")
		return drc.ReasonStreamError
	}
}
