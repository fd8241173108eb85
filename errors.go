package drc

import "errors"

// DefaultPort is the TCP port the relay listens on when none is configured.
const DefaultPort = 6969

// Delimiter separates the sender tag from the body inside a payload.
const Delimiter byte = 0x00

// Relay errors, compared with errors.Is.
var (
	// Startup errors
	ErrBindFailure          = errors.New("failed to bind relay address")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerNotRunning     = errors.New("server not running")

	// Protocol errors
	ErrMalformedFrame = errors.New("malformed frame: missing tag delimiter")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum payload size")

	// Connection errors
	ErrClientExists     = errors.New("client identity already registered")
	ErrConnectionClosed = errors.New("client connection is closed")
	ErrSlowConsumer     = errors.New("client outbound queue stayed full")
	ErrRateLimited      = errors.New("client exceeded inbound rate limit")
)

// DisconnectReason describes why a client left the relay.
type DisconnectReason int

const (
	// ReasonLeft - the peer closed its stream.
	ReasonLeft DisconnectReason = iota
	// ReasonTimeout - the connection was idle past the read timeout.
	ReasonTimeout
	// ReasonStreamError - a read or write on the connection failed.
	ReasonStreamError
	// ReasonMalformed - the peer sent a frame without a tag delimiter or above the size limit.
	ReasonMalformed
	// ReasonRateLimited - the peer exceeded its inbound rate limit.
	ReasonRateLimited
	// ReasonSlowConsumer - the peer did not drain its outbound queue in time.
	ReasonSlowConsumer
	// ReasonDuplicate - another connection already holds the same identity.
	ReasonDuplicate
	// ReasonShutdown - the relay is stopping.
	ReasonShutdown
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLeft:
		return "left"
	case ReasonTimeout:
		return "timeout"
	case ReasonStreamError:
		return "stream_error"
	case ReasonMalformed:
		return "malformed"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonSlowConsumer:
		return "slow_consumer"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
