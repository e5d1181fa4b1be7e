package coolmuscle

import (
	"fmt"
	"io"
	"log"
	"time"

	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
)

// defaultPoll is the port-level read timeout; LineTransport keeps reading
// in ticks of this length until its own deadline.
const defaultPoll = 50 * time.Millisecond

// Opener opens a serial device as a raw byte port.
type Opener func(path string, baud int) (io.ReadWriteCloser, error)

// OpenBugst opens path with go.bug.st/serial, 8N1.
func OpenBugst(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(defaultPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set timeout: %w", err)
	}
	// Drop whatever the firmware printed before we attached.
	port.ResetInputBuffer()
	return port, nil
}

// OpenTarm opens path with github.com/tarm/serial, 8N1.
func OpenTarm(path string, baud int) (io.ReadWriteCloser, error) {
	port, err := tarm.OpenPort(&tarm.Config{
		Name:        path,
		Baud:        baud,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: defaultPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.Flush(); err != nil {
		log.Printf("[coolmuscle] flush %s: %v", path, err)
	}
	return port, nil
}

// OpenerFor maps a config driver name to an Opener. Empty means "bugst".
func OpenerFor(driver string) (Opener, error) {
	switch driver {
	case "", "bugst":
		return OpenBugst, nil
	case "tarm":
		return OpenTarm, nil
	default:
		return nil, fmt.Errorf("coolmuscle: unknown serial driver %q", driver)
	}
}
