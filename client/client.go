// Package client speaks the relay's wire protocol from the peer side.
//
// A client sends each message as one frame whose payload is
// tag + 0x00 + body and never receives its own messages back.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
)

// Conn is a connection to a relay. Send may be called concurrently with
// Receive and with other Send calls.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	tag    string

	wmu sync.Mutex
}

// Dial connects to the relay at addr. Messages sent through the returned
// Conn carry tag as their sender tag.
func Dial(ctx context.Context, addr, tag string) (*Conn, error) {
	if _, err := protocol.EncodeMessage(tag, ""); err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", addr, err)
	}
	return New(conn, tag), nil
}

// New wraps an established stream connection.
func New(conn net.Conn, tag string) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		tag:    tag,
	}
}

// Tag returns the sender tag attached to outgoing messages.
func (c *Conn) Tag() string {
	return c.tag
}

// Send relays body to every other client.
func (c *Conn) Send(body string) error {
	payload, err := protocol.EncodeMessage(c.tag, body)
	if err != nil {
		return err
	}
	return c.SendRaw(payload)
}

// SendRaw writes payload as one frame without looking at it.
func (c *Conn) SendRaw(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteFrame(c.conn, payload)
}

// Receive blocks for the next relayed message. It returns io.EOF once the
// relay closes the connection.
func (c *Conn) Receive() (drc.Message, error) {
	payload, err := c.ReceiveRaw()
	if err != nil {
		return drc.Message{}, err
	}
	return protocol.ParseMessage(payload)
}

// ReceiveRaw blocks for the next frame and returns its payload untouched.
func (c *Conn) ReceiveRaw() ([]byte, error) {
	return protocol.Decode(c.reader, 0)
}

// SetReadDeadline bounds pending and future Receive calls.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// LocalAddr returns the address the relay knows this client by.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
