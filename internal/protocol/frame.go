package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ErrConnectionClosed reports that the peer closed the connection while a
// frame was expected. It is distinct from a malformed-payload error so
// callers can tell a clean disconnect from a protocol violation.
var ErrConnectionClosed = errors.New("protocol: connection closed by peer")

// frameHeaderLen is the fixed size of the big-endian length prefix.
const frameHeaderLen = 4

// Conn wraps a byte stream with length-prefixed framing so whole messages
// can be sent and received atomically. Writes are serialized by a mutex so
// concurrent broadcasts never interleave frames.
type Conn struct {
	raw net.Conn
	mu  sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw network connection for framed message exchange.
//
// Precondition: raw must be a valid, open network connection. Zero timeouts
// disable deadlines.
// Postcondition: Returns a Conn ready for SendMessage and ReceiveMessage.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// SendMessage marshals m and writes it as one frame: a 4-byte big-endian
// length prefix followed by the UTF-8 payload, in a single write.
//
// Precondition: m must be non-nil.
// Postcondition: The full frame is written, or an error is returned.
func (c *Conn) SendMessage(m *Message) error {
	payload := []byte(m.Marshal())
	return c.SendPayload(payload)
}

// SendPayload writes raw payload bytes as one length-prefixed frame.
func (c *Conn) SendPayload(payload []byte) error {
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeaderLen:], payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReceiveMessage reads the next frame and decodes it as a Message.
// It blocks until a full frame arrives, accumulating across partial reads.
//
// Postcondition: Returns the decoded message; ErrConnectionClosed when the
// peer closes mid-read or between frames; a *DecodeError for a payload that
// is not a well-formed message.
func (c *Conn) ReceiveMessage() (*Message, error) {
	payload, err := c.ReceivePayload()
	if err != nil {
		return nil, err
	}
	return Unmarshal(string(payload))
}

// ReceivePayload reads the next frame and returns its raw payload bytes.
// A zero-length frame yields an empty, non-nil slice.
func (c *Conn) ReceivePayload() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(c.raw, header); err != nil {
		if isClosed(err) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.raw, payload); err != nil {
		if isClosed(err) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// isClosed reports whether err indicates the peer went away rather than a
// malformed exchange. io.ErrUnexpectedEOF counts: a disconnect mid-frame is
// still a disconnect.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

// Close closes the underlying connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
