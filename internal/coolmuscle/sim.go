package coolmuscle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Simulator emulates Cool Muscle firmware for the default vocabulary over
// an in-memory Transport. Moves complete instantly.
type Simulator struct {
	mu      sync.Mutex
	closed  bool
	servoOn bool
	stopped bool

	pos    Pulse
	target Pulse
	speed  int64
	accel  int64
	torque int64

	replies []string
	written []string

	// Chatter lines are queued ahead of every reply, like the unsolicited
	// status output real firmware interleaves with answers.
	Chatter []string
}

func NewSimulator() *Simulator { return &Simulator{} }

// Dial satisfies Dialer so a Simulator can stand in for a serial port.
func (s *Simulator) Dial(path string, baud int) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	return s, nil
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("sim: port closed")
	}
	for _, line := range strings.Split(string(p), "\r\n") {
		if line == "" {
			continue
		}
		s.written = append(s.written, line)
		for _, stmt := range strings.Split(line, ",") {
			s.exec(strings.TrimSpace(stmt))
		}
	}
	return len(p), nil
}

func (s *Simulator) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New("sim: port closed")
	}
	if len(s.replies) > 0 {
		line := s.replies[0]
		s.replies = s.replies[1:]
		s.mu.Unlock()
		return line, nil
	}
	s.mu.Unlock()
	time.Sleep(timeout)
	return "", ErrReadTimeout
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Written returns every line received so far, without terminators.
func (s *Simulator) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *Simulator) Position() Pulse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// SetPosition places the shaft, e.g. to model a manual turn while off.
func (s *Simulator) SetPosition(p Pulse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
}

func (s *Simulator) ServoOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servoOn
}

func (s *Simulator) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// LastMove returns the speed, acceleration and torque of the last move.
func (s *Simulator) LastMove() (speed, accel, torque int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed, s.accel, s.torque
}

func (s *Simulator) exec(stmt string) {
	switch {
	case stmt == "|.1":
		s.pos = 0
		s.reply("Ux.1=8")
	case stmt == "(.1":
		s.servoOn = true
	case stmt == ").1":
		s.servoOn = false
	case stmt == "*.1":
		s.stopped = true
	case stmt == "*1.1":
		s.stopped = false
	case stmt == "^.1":
		if s.servoOn && !s.stopped {
			s.pos = s.target
		}
	case stmt == "?96.1":
		s.reply(fmt.Sprintf("Px.1=%d", s.pos))
	case strings.HasPrefix(stmt, "P.1="):
		s.target = parseSimInt(stmt, s.target)
	case strings.HasPrefix(stmt, "S.1="):
		s.speed = parseSimInt(stmt, s.speed)
	case strings.HasPrefix(stmt, "A.1="):
		s.accel = parseSimInt(stmt, s.accel)
	case strings.HasPrefix(stmt, "M.1="):
		s.torque = parseSimInt(stmt, s.torque)
	}
}

func (s *Simulator) reply(line string) {
	s.replies = append(s.replies, s.Chatter...)
	s.replies = append(s.replies, line)
}

func parseSimInt(stmt string, old int64) int64 {
	_, val, _ := strings.Cut(stmt, "=")
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return old
	}
	return n
}
