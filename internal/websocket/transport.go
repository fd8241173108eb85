package websocket

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
)

// transport carries relay frames over a WebSocket connection. Every message
// holds exactly one length-prefixed frame, the same bytes a TCP peer would
// send, so both kinds of client share one wire format.
type transport struct {
	conn       *websocket.Conn
	remoteAddr string
	maxFrame   int
	closeOnce  sync.Once
	closeErr   error
}

func newTransport(conn *websocket.Conn, remoteAddr string, maxFrame int) *transport {
	return &transport{
		conn:       conn,
		remoteAddr: remoteAddr,
		maxFrame:   maxFrame,
	}
}

// ReadFrame reads the next message and decodes the frame it carries.
func (t *transport) ReadFrame() ([]byte, error) {
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
			websocket.CloseAbnormalClosure,
		) {
			return nil, io.EOF
		}
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: frames must be sent as binary messages", drc.ErrMalformedFrame)
	}

	r := bytes.NewReader(data)
	payload, err := protocol.Decode(r, t.maxFrame)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: truncated frame in websocket message", drc.ErrMalformedFrame)
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after frame", drc.ErrMalformedFrame, r.Len())
	}
	return payload, nil
}

// WriteFrame sends payload as one binary message.
func (t *transport) WriteFrame(payload []byte, deadline time.Time) error {
	frame, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *transport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *transport) RemoteAddr() string {
	return t.remoteAddr
}

// Close is equivalent to closeWithCode with websocket.CloseNormalClosure.
func (t *transport) Close() error {
	return t.closeWithCode(websocket.CloseNormalClosure, "")
}

// closeWithCode sends a close message with code and reason, then closes the
// underlying connection. Only the first call has an effect.
func (t *transport) closeWithCode(code int, reason string) error {
	t.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(time.Second)
		t.conn.WriteControl(websocket.CloseMessage, message, deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
