package coolmuscle

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// scriptTransport replays queued lines and records writes.
type scriptTransport struct {
	mu       sync.Mutex
	lines    []string
	repeat   string // returned forever once lines run out, if set
	gap      time.Duration
	written  bytes.Buffer
	writeErr error
	readErr  error
	short    bool
	closed   bool
}

func (m *scriptTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if m.short {
		m.written.Write(p[:len(p)-1])
		return len(p) - 1, nil
	}
	return m.written.Write(p)
}

func (m *scriptTransport) ReadLine(timeout time.Duration) (string, error) {
	m.mu.Lock()
	if m.readErr != nil {
		m.mu.Unlock()
		return "", m.readErr
	}
	if len(m.lines) > 0 {
		line := m.lines[0]
		m.lines = m.lines[1:]
		m.mu.Unlock()
		return line, nil
	}
	repeat, gap := m.repeat, m.gap
	m.mu.Unlock()

	if repeat != "" {
		if gap > timeout {
			gap = timeout
		}
		time.Sleep(gap)
		return repeat, nil
	}
	time.Sleep(timeout)
	return "", ErrReadTimeout
}

func (m *scriptTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *scriptTransport) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// chunkPort is a raw byte port that hands out one scripted chunk per Read.
// An empty chunk models a driver read timeout.
type chunkPort struct {
	chunks  []string
	idleErr error // returned with zero bytes once chunks run out
	failErr error
	written bytes.Buffer
}

func (p *chunkPort) Read(b []byte) (int, error) {
	if p.failErr != nil {
		return 0, p.failErr
	}
	if len(p.chunks) == 0 {
		time.Sleep(time.Millisecond)
		return 0, p.idleErr
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	if c == "" {
		return 0, nil
	}
	return copy(b, c), nil
}

func (p *chunkPort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *chunkPort) Close() error                { return nil }

var (
	_ Transport          = (*scriptTransport)(nil)
	_ Transport          = (*Simulator)(nil)
	_ Transport          = (*LineTransport)(nil)
	_ io.ReadWriteCloser = (*chunkPort)(nil)
)
