package coolmuscle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is the byte link to the actuator. ReadLine returns one line
// without its terminator, or ErrReadTimeout if none completed in time.
type Transport interface {
	Write(p []byte) (int, error)
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// maxPending caps an unterminated line; older bytes are dropped first.
const maxPending = 4096

// LineTransport turns a byte port with a short read timeout into a
// Transport. A read returning no data counts as an idle tick; the port's
// own timeout paces the loop.
type LineTransport struct {
	port    io.ReadWriteCloser
	pending []byte
	buf     []byte
}

func NewLineTransport(port io.ReadWriteCloser) *LineTransport {
	return &LineTransport{
		port: port,
		buf:  make([]byte, 256),
	}
}

func (t *LineTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *LineTransport) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if idx := bytes.IndexByte(t.pending, '\n'); idx >= 0 {
			line := string(bytes.TrimRight(t.pending[:idx], "\r"))
			t.pending = t.pending[idx+1:]
			return line, nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}

		n, err := t.port.Read(t.buf)
		if n > 0 {
			t.pending = append(t.pending, t.buf[:n]...)
			if over := len(t.pending) - maxPending; over > 0 {
				t.pending = append(t.pending[:0], t.pending[over:]...)
			}
			continue
		}
		switch {
		case err == nil, errors.Is(err, io.EOF):
			// Drivers differ on how a read timeout is reported.
		default:
			return "", fmt.Errorf("coolmuscle: read: %w", err)
		}
	}
}

func (t *LineTransport) Close() error {
	return t.port.Close()
}

// Drain discards buffered and incoming bytes until the port stays silent
// for one poll tick or max elapses. It returns the number of bytes dropped.
func (t *LineTransport) Drain(max time.Duration) int {
	total := len(t.pending)
	t.pending = nil
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		n, err := t.port.Read(t.buf)
		if n == 0 || (err != nil && !errors.Is(err, io.EOF)) {
			break
		}
		total += n
	}
	return total
}
