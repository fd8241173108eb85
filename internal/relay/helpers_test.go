package relay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/logging"
	"github.com/luciancaetano/drc/internal/protocol"
)

const waitFor = 2 * time.Second

// stubTransport is a Transport that never produces frames and records
// what is written to it.
type stubTransport struct {
	addr       string
	writeDelay time.Duration

	mu      sync.Mutex
	closed  bool
	written [][]byte
}

func (t *stubTransport) ReadFrame() ([]byte, error)      { return nil, io.EOF }
func (t *stubTransport) SetReadDeadline(time.Time) error { return nil }
func (t *stubTransport) RemoteAddr() string              { return t.addr }

func (t *stubTransport) WriteFrame(payload []byte, _ time.Time) error {
	time.Sleep(t.writeDelay)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return net.ErrClosed
	}
	t.written = append(t.written, payload)
	return nil
}

func (t *stubTransport) writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *stubTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func newTestClient(t *testing.T, id string, queueSize int) *Client {
	t.Helper()
	return newTestClientOn(t, &stubTransport{addr: id}, queueSize)
}

func newTestClientOn(t *testing.T, st *stubTransport, queueSize int) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QueueSize = queueSize
	cfg.EnqueueTimeout = 20 * time.Millisecond
	return newClient(st, &cfg, logrus.NewEntry(logging.Discard()), NewMetrics())
}

// drain returns every frame queued for c without blocking.
func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case frame := <-c.sendCh:
			out = append(out, frame)
		default:
			return out
		}
	}
}

type fakeAddr string

func (a fakeAddr) Network() string { return "pipe" }
func (a fakeAddr) String() string  { return string(a) }

// namedConn gives a net.Pipe end a distinct remote address.
type namedConn struct {
	net.Conn
	addr net.Addr
}

func (c namedConn) RemoteAddr() net.Addr { return c.addr }

func startServer(t *testing.T, mutate func(*Config)) (*Server, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = logger
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))
	})
	return s, hook
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.ClientCount() == n
	}, waitFor, 5*time.Millisecond, "expected %d clients", n)
}

// peer is a raw TCP client used to drive the relay byte by byte.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialPeer(t *testing.T, s *Server) *peer {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), waitFor)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (p *peer) send(tag, body string) {
	p.t.Helper()
	payload, err := protocol.EncodeMessage(tag, body)
	require.NoError(p.t, err)
	p.sendRaw(payload)
}

func (p *peer) sendRaw(payload []byte) {
	p.t.Helper()
	require.NoError(p.t, protocol.WriteFrame(p.conn, payload))
}

func (p *peer) recv() []byte {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	payload, err := protocol.Decode(p.r, 0)
	require.NoError(p.t, err)
	return payload
}

func (p *peer) recvMessage() drc.Message {
	p.t.Helper()
	msg, err := protocol.ParseMessage(p.recv())
	require.NoError(p.t, err)
	return msg
}

func (p *peer) expectSilence(d time.Duration) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(d)))
	_, err := protocol.Decode(p.r, 0)
	var netErr net.Error
	require.ErrorAs(p.t, err, &netErr, "expected no frame, got %v", err)
	require.True(p.t, netErr.Timeout())
}

// expectClosed waits for the relay to drop the connection. A reset counts
// as closed too.
func (p *peer) expectClosed() {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, err := protocol.Decode(p.r, 0)
	require.Error(p.t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(p.t, netErr.Timeout(), "connection still open")
	}
}

func eventuallyMetric(t *testing.T, c prometheus.Collector, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c) == want
	}, waitFor, 5*time.Millisecond, "metric never reached %v", want)
}

// reasons collects OnDisconnect callbacks.
type reasons struct {
	ch chan drc.DisconnectReason
}

func newReasons() *reasons {
	return &reasons{ch: make(chan drc.DisconnectReason, 64)}
}

func (r *reasons) hook(cfg *Config) {
	cfg.OnDisconnect = func(_ drc.Client, reason drc.DisconnectReason) {
		r.ch <- reason
	}
}

func (r *reasons) next(t *testing.T) drc.DisconnectReason {
	t.Helper()
	select {
	case reason := <-r.ch:
		return reason
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a disconnect")
		return 0
	}
}
