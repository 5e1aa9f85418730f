package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"time"
)

// MaxStringLen is the largest string that fits the uint16 length prefix.
const MaxStringLen = math.MaxUint16

// Conn frames typed big-endian primitives over one connection.
// A Conn carries exactly one request and one response.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
	w  *bufio.Writer
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		r:  bufio.NewReaderSize(nc, 64*1024),
		w:  bufio.NewWriterSize(nc, 64*1024),
	}
}

// Dialer opens connections to agents. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Dial connects to addr, giving up after timeout. Failures are *ConnectionError.
func Dial(ctx context.Context, d Dialer, addr string, timeout time.Duration) (*Conn, error) {
	if d == nil {
		d = &net.Dialer{}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return NewConn(nc), nil
}

// RemoteAddr is the address of the peer.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// SetDeadline bounds every subsequent read and write.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// Reader exposes the buffered read side for streaming bodies.
func (c *Conn) Reader() io.Reader { return c.r }

// Writer exposes the buffered write side for streaming bodies. Call Flush when done.
func (c *Conn) Writer() io.Writer { return c.w }

// Flush sends buffered output.
func (c *Conn) Flush() error { return c.w.Flush() }

// Close flushes pending output and closes the connection.
func (c *Conn) Close() error {
	ferr := c.w.Flush()
	cerr := c.nc.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// WriteInt32 writes v big-endian.
func (c *Conn) WriteInt32(v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := c.w.Write(b[:])
	return err
}

// ReadInt32 reads a big-endian int32.
func (c *Conn) ReadInt32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// WriteInt64 writes v big-endian.
func (c *Conn) WriteInt64(v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := c.w.Write(b[:])
	return err
}

// ReadInt64 reads a big-endian int64.
func (c *Conn) ReadInt64() (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// WriteString writes a uint16 byte length followed by the UTF-8 bytes.
func (c *Conn) WriteString(s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	if _, err := c.w.Write(b[:]); err != nil {
		return err
	}
	_, err := c.w.WriteString(s)
	return err
}

// ReadString reads a uint16-length-prefixed UTF-8 string.
func (c *Conn) ReadString() (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(b[:]))
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
