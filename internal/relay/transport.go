package relay

import (
	"bufio"
	"net"
	"time"

	"github.com/luciancaetano/drc/internal/protocol"
)

// Transport is one accepted peer connection carrying length-delimited frames.
//
// ReadFrame is only called from the connection handler and WriteFrame only
// from the client's write pump, so implementations need not serialise them
// against themselves. Close may be called from any goroutine and must
// unblock pending reads and writes.
type Transport interface {
	// ReadFrame blocks until one complete payload arrives. It returns io.EOF
	// when the peer closes the stream.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one payload as a single frame before deadline.
	WriteFrame(payload []byte, deadline time.Time) error
	// SetReadDeadline bounds the next ReadFrame. A zero value clears it.
	SetReadDeadline(t time.Time) error
	// RemoteAddr returns the peer address as host:port.
	RemoteAddr() string
	Close() error
}

// streamTransport frames a byte stream (TCP) with the protocol codec.
type streamTransport struct {
	conn     net.Conn
	reader   *bufio.Reader
	maxFrame int
}

// NewStreamTransport wraps a stream connection. Payloads declaring more than
// maxFrame bytes are rejected with drc.ErrFrameTooLarge.
func NewStreamTransport(conn net.Conn, maxFrame int) Transport {
	return &streamTransport{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		maxFrame: maxFrame,
	}
}

func (t *streamTransport) ReadFrame() ([]byte, error) {
	return protocol.Decode(t.reader, t.maxFrame)
}

func (t *streamTransport) WriteFrame(payload []byte, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return protocol.WriteFrame(t.conn, payload)
}

func (t *streamTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *streamTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *streamTransport) Close() error {
	return t.conn.Close()
}
