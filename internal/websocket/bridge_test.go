package websocket

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
	"github.com/luciancaetano/drc/internal/relay"
)

const waitFor = 2 * time.Second

type fixture struct {
	relay   *relay.Server
	http    *httptest.Server
	reasons chan drc.DisconnectReason
}

func newFixture(t *testing.T, checkOrigin CheckOriginFn) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	f := &fixture{reasons: make(chan drc.DisconnectReason, 16)}

	cfg := relay.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = logger
	cfg.OnDisconnect = func(_ drc.Client, reason drc.DisconnectReason) {
		f.reasons <- reason
	}

	r, err := relay.New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	f.relay = r

	f.http = httptest.NewServer(NewBridge(r, checkOrigin, cfg.MaxFrameSize, logrus.NewEntry(logger)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Stop(ctx))
		f.http.Close()
	})
	return f
}

func (f *fixture) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http")
	dialer := &websocket.Dialer{HandshakeTimeout: waitFor}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) dialTCP(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", f.relay.Addr().String(), waitFor)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func (f *fixture) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.relay.ClientCount() == n
	}, waitFor, 5*time.Millisecond)
}

func (f *fixture) nextReason(t *testing.T) drc.DisconnectReason {
	t.Helper()
	select {
	case reason := <-f.reasons:
		return reason
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a disconnect")
		return 0
	}
}

func encodeFrame(t *testing.T, tag, body string) []byte {
	t.Helper()
	payload, err := protocol.EncodeMessage(tag, body)
	require.NoError(t, err)
	frame, err := protocol.Encode(payload)
	require.NoError(t, err)
	return frame
}

func TestBridgeSharesRelayWithTCP(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ws := f.dialWS(t)
	f.waitForClients(t, 1)
	tcp, reader := f.dialTCP(t)
	f.waitForClients(t, 2)

	// WebSocket to TCP.
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, encodeFrame(t, "web", "hi from browser")))
	require.NoError(t, tcp.SetReadDeadline(time.Now().Add(waitFor)))
	payload, err := protocol.Decode(reader, 0)
	require.NoError(t, err)
	assert.Equal(t, "web\x00hi from browser", string(payload))

	// TCP to WebSocket: the message carries the same frame bytes.
	frame := encodeFrame(t, "term", "hello web")
	_, err = tcp.Write(frame)
	require.NoError(t, err)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, frame, data)
}

func TestBridgeMalformedMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    int
		message func(t *testing.T) []byte
	}{
		{
			name: "text message",
			kind: websocket.TextMessage,
			message: func(t *testing.T) []byte {
				return encodeFrame(t, "web", "hi")
			},
		},
		{
			name: "trailing bytes",
			message: func(t *testing.T) []byte {
				return append(encodeFrame(t, "web", "hi"), 0x01, 0x02)
			},
		},
		{
			name: "truncated frame",
			message: func(t *testing.T) []byte {
				return []byte{0, 0, 0, 10, 'w', 0x00, 'x'}
			},
		},
		{
			name: "missing delimiter",
			message: func(t *testing.T) []byte {
				frame, err := protocol.Encode([]byte("no delimiter"))
				require.NoError(t, err)
				return frame
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			ws := f.dialWS(t)
			f.waitForClients(t, 1)

			kind := tt.kind
			if kind == 0 {
				kind = websocket.BinaryMessage
			}
			require.NoError(t, ws.WriteMessage(kind, tt.message(t)))
			assert.Equal(t, drc.ReasonMalformed, f.nextReason(t))
			f.waitForClients(t, 0)

			require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
			_, _, err := ws.ReadMessage()
			assert.Error(t, err)
		})
	}
}

func TestBridgeNormalCloseIsLeft(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ws := f.dialWS(t)
	f.waitForClients(t, 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	assert.Equal(t, drc.ReasonLeft, f.nextReason(t))
	f.waitForClients(t, 0)
}

func TestBridgeRelayStopped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.relay.Stop(ctx))

	ws := f.dialWS(t)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestBridgeCheckOrigin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(r *http.Request) bool {
		return r.Header.Get("Origin") == "http://allowed.example"
	})
	url := "ws" + strings.TrimPrefix(f.http.URL, "http")
	dialer := &websocket.Dialer{HandshakeTimeout: waitFor}

	_, resp, err := dialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	conn, resp, err := dialer.Dial(url, http.Header{"Origin": {"http://allowed.example"}})
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestBridgePlainHTTPRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	resp, err := http.Get(f.http.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, f.relay.ClientCount())
}
