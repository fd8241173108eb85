package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/luciancaetano/drc/internal/relay"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// A nil CheckOriginFn applies gorilla's same-origin default.
type CheckOriginFn = func(r *http.Request) bool

// Attacher hands accepted transports to the relay.
type Attacher interface {
	Attach(t relay.Transport) error
}

// Bridge upgrades HTTP requests to WebSocket connections and attaches each
// one to the relay, putting browser clients in the same broadcast domain as
// TCP clients.
type Bridge struct {
	relay    Attacher
	upgrader websocket.Upgrader
	maxFrame int
	log      *logrus.Entry
}

// NewBridge returns an http.Handler feeding relay.
//
// The upgrader uses read/write buffer sizes of 1024 bytes; incoming messages
// larger than one maxFrame-sized frame are rejected by the connection.
func NewBridge(r Attacher, checkOrigin CheckOriginFn, maxFrame int, log *logrus.Entry) *Bridge {
	return &Bridge{
		relay:    r,
		maxFrame: maxFrame,
		log:      log.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP handles incoming WebSocket connections
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		b.log.WithError(err).WithField("client_id", r.RemoteAddr).Debug("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(int64(b.maxFrame) + 4)

	t := newTransport(conn, r.RemoteAddr, b.maxFrame)
	if err := b.relay.Attach(t); err != nil {
		b.log.WithError(err).WithField("client_id", r.RemoteAddr).Warn("Relay refused WebSocket client")
		t.closeWithCode(websocket.CloseGoingAway, err.Error())
		return
	}
	b.log.WithField("client_id", r.RemoteAddr).Trace("New WebSocket connection")
}
