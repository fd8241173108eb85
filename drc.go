package drc

import (
	"context"
	"net"
)

// RelayServer defines the interface for a relay server that fans every
// inbound message out to all other connected clients.
//
// All frames exchanged between the relay and its clients use the wire format
// implemented by the internal protocol package: a 4-byte big-endian length
// followed by a payload of the form [sender tag][0x00][body].
//
// Example usage:
//
//	import "github.com/luciancaetano/drc/server"
//
//	srv, err := server.New(server.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
type RelayServer interface {
	// Start binds the configured address and begins accepting connections
	// in the background.
	//
	// Returns an error wrapping ErrBindFailure if the address cannot be bound,
	// or ErrServerAlreadyRunning if Start was already called.
	Start(ctx context.Context) error

	// Stop closes the listener, disconnects every client and waits for the
	// connection handlers to finish, or for ctx to expire.
	Stop(ctx context.Context) error

	// Addr returns the bound relay address, or nil when the server is not running.
	//
	// Useful when the server was configured with port 0.
	Addr() net.Addr

	// ClientCount returns the number of currently registered clients.
	ClientCount() int
}

// Client represents one connected peer of the relay.
//
// The client's context is cancelled when the connection closes, whichever
// side initiated it.
//
// Example usage:
//
//	cfg.OnConnect = func(c drc.Client) {
//	    log.Printf("client %s connected (session %s)", c.ID(), c.SessionID())
//	    go func() {
//	        <-c.Context().Done()
//	        log.Printf("client %s gone", c.ID())
//	    }()
//	}
type Client interface {
	// ID returns the connection identity: the peer's transport address
	// (host:port). It is unique among registered clients.
	ID() string

	// SessionID returns a random identifier generated when the connection
	// was accepted. It only serves log correlation.
	SessionID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context returns the client's lifecycle context.
	Context() context.Context

	// Send queues a raw payload for delivery to the client. When the outbound
	// queue is full it waits a bounded time for room, then returns
	// ErrSlowConsumer.
	Send(payload []byte) error

	// Close closes the connection. It is safe to call more than once.
	Close() error

	// IsAlive reports whether the connection is still open.
	IsAlive() bool
}
