package coolmuscle

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one ReadLine call.
	DefaultTimeout = 250 * time.Millisecond

	lineTerminator = "\r\n"
)

// Number is any value the framer can write as decimal text or scan back.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Framer writes CRLF-terminated command lines and reads reply lines,
// skipping anything that does not match the expected pattern.
type Framer struct {
	t         Transport
	timeout   time.Duration
	discarded int
}

// NewFramer returns a framer over t. A zero timeout means DefaultTimeout.
func NewFramer(t Transport, timeout time.Duration) *Framer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Framer{t: t, timeout: timeout}
}

// Timeout is the budget of one ReadLine call.
func (f *Framer) Timeout() time.Duration { return f.timeout }

// Discarded counts the lines dropped because they did not match.
func (f *Framer) Discarded() int { return f.discarded }

// WriteLine sends text followed by CRLF in a single write.
func (f *Framer) WriteLine(text string) error {
	b := []byte(text + lineTerminator)
	n, err := f.t.Write(b)
	if err != nil {
		return fmt.Errorf("coolmuscle: write %q: %w", text, err)
	}
	if n != len(b) {
		return fmt.Errorf("coolmuscle: write %q: %w", text, io.ErrShortWrite)
	}
	return nil
}

// WriteValue sends prefix followed by val in decimal.
func WriteValue[T Number](f *Framer, prefix string, val T) error {
	return f.WriteLine(prefix + formatNumber(val))
}

// ReadLine reads lines until one scans with format into out, or the
// framer's timeout elapses.
func (f *Framer) ReadLine(format string, out any) error {
	return f.readWithin(format, out, f.timeout)
}

// ReadValue reads the first line matching format and returns its value.
func ReadValue[T Number](f *Framer, format string) (T, error) {
	return ReadValueWithin[T](f, format, f.timeout)
}

// ReadValueWithin is ReadValue with an explicit budget.
func ReadValueWithin[T Number](f *Framer, format string, d time.Duration) (T, error) {
	var v T
	err := f.readWithin(format, &v, d)
	return v, err
}

func (f *Framer) readWithin(format string, out any, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: no line matching %q within %v", ErrProtocolTimeout, format, d)
		}
		line, err := f.t.ReadLine(remaining)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		// The trailing %s catches leftovers; a match must consume the line.
		var rest string
		if n, _ := fmt.Sscanf(line, format+"%s", out, &rest); n == 1 && rest == "" {
			return nil
		}
		f.discarded++
		log.Printf("[coolmuscle] discarded %q (want %q)", line, format)
	}
}

func formatNumber[T Number](v T) string {
	switch x := any(v).(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
