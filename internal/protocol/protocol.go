package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/luciancaetano/drc"
)

const (
	headerSize = 4
	// MaxPayloadSize is the largest payload Encode accepts and the default
	// limit for Decode.
	MaxPayloadSize = 10 * 1024 * 1024 // 10MB max payload size
)

// Encode prefixes payload with its length as 4 bytes (big-endian).
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", drc.ErrFrameTooLarge, len(payload), MaxPayloadSize)
	}

	out := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(out[:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out, nil
}

// WriteFrame encodes payload and writes the whole frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Decode reads exactly one frame from r, accumulating partial reads until the
// declared length is satisfied. A peer closing the stream at any point,
// including in the middle of a frame, is reported as io.EOF.
//
// Frames declaring more than max bytes fail with drc.ErrFrameTooLarge without
// reading the body. A max of zero or less means MaxPayloadSize.
//
// The returned payload is freshly allocated and owned by the caller.
func Decode(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = MaxPayloadSize
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, endOfStream(err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(max) {
		return nil, fmt.Errorf("%w: declared %d > %d bytes", drc.ErrFrameTooLarge, size, max)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, endOfStream(err)
	}
	return payload, nil
}

func endOfStream(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// ParseMessage splits a payload on its first delimiter byte into tag and body.
// The returned slices reference frame.
func ParseMessage(frame []byte) (drc.Message, error) {
	i := bytes.IndexByte(frame, drc.Delimiter)
	if i < 0 {
		return drc.Message{}, drc.ErrMalformedFrame
	}
	return drc.Message{Tag: frame[:i], Body: frame[i+1:]}, nil
}

// EncodeMessage builds the payload tag + 0x00 + body.
// Tags containing the delimiter are rejected with drc.ErrMalformedFrame.
func EncodeMessage(tag, body string) ([]byte, error) {
	if bytes.IndexByte([]byte(tag), drc.Delimiter) >= 0 {
		return nil, fmt.Errorf("%w: tag contains 0x00", drc.ErrMalformedFrame)
	}
	payload := make([]byte, 0, len(tag)+1+len(body))
	payload = append(payload, tag...)
	payload = append(payload, drc.Delimiter)
	payload = append(payload, body...)
	return payload, nil
}
