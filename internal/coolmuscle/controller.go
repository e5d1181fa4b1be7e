package coolmuscle

import (
	"fmt"
	"log"
	"time"
)

// State is the connection/power state of a Controller.
type State int

const (
	Disconnected State = iota
	Connected
	Initialized
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Initialized:
		return "initialized"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Default motion parameters in actuator-native units.
const (
	DefaultSpeed  = 40 // pulse/s
	DefaultAccel  = 50 // pulse/s^2
	DefaultTorque = 20

	DefaultBaudRate    = 38400
	DefaultInitTimeout = 10 * time.Second
	DefaultInitAck     = 8
)

const drainTimeout = 500 * time.Millisecond

type drainer interface {
	Drain(max time.Duration) int
}

// Dialer opens the transport for a port path and baud rate.
type Dialer func(path string, baud int) (Transport, error)

// Defaults are substituted when a Set call omits velocity or acceleration.
type Defaults struct {
	Speed  int64 `yaml:"speed" json:"speed"`
	Accel  int64 `yaml:"accel" json:"accel"`
	Torque int64 `yaml:"torque" json:"torque"`
}

// Config describes one actuator. Zero values fall back to the defaults above.
type Config struct {
	PortPath     string
	BaudRate     int
	LimitCCW     Limit
	LimitCW      Limit
	OriginOffset Pulse

	Commands    CommandTable
	Timeout     time.Duration // per ReadLine call
	InitTimeout time.Duration // homing acknowledgement
	InitAck     int64
	Defaults    Defaults

	// Open is the serial driver; ignored when Dial is set.
	Open Opener
	Dial Dialer
}

// noCopy makes go vet's copylocks check flag copies of Controller.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Controller drives one Cool Muscle actuator over an exclusively owned
// transport. It is not safe for concurrent use; callers sharing one
// Controller must serialize access themselves.
type Controller struct {
	_ noCopy

	portPath string
	baudRate int
	conv     Converter
	cmds     CommandTable
	defaults Defaults

	timeout     time.Duration
	initTimeout time.Duration
	initAck     int64
	dial        Dialer

	t      Transport
	framer *Framer
	state  State
	halted bool
}

// New validates cfg and returns a disconnected Controller.
func New(cfg Config) (*Controller, error) {
	conv, err := NewConverter(cfg.LimitCCW, cfg.LimitCW, cfg.OriginOffset)
	if err != nil {
		return nil, err
	}
	cmds := DefaultCommands()
	if cfg.Commands != nil {
		cmds = cmds.Merge(cfg.Commands)
	}
	if err := cmds.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.InitAck == 0 {
		cfg.InitAck = DefaultInitAck
	}
	if cfg.Defaults.Speed <= 0 {
		cfg.Defaults.Speed = DefaultSpeed
	}
	if cfg.Defaults.Accel <= 0 {
		cfg.Defaults.Accel = DefaultAccel
	}
	if cfg.Defaults.Torque <= 0 {
		cfg.Defaults.Torque = DefaultTorque
	}
	dial := cfg.Dial
	if dial == nil {
		open := cfg.Open
		if open == nil {
			open = OpenBugst
		}
		dial = func(path string, baud int) (Transport, error) {
			port, err := open(path, baud)
			if err != nil {
				return nil, err
			}
			return NewLineTransport(port), nil
		}
	}
	return &Controller{
		portPath:    cfg.PortPath,
		baudRate:    cfg.BaudRate,
		conv:        conv,
		cmds:        cmds,
		defaults:    cfg.Defaults,
		timeout:     cfg.Timeout,
		initTimeout: cfg.InitTimeout,
		initAck:     cfg.InitAck,
		dial:        dial,
	}, nil
}

func (c *Controller) State() State           { return c.state }
func (c *Controller) Halted() bool           { return c.halted }
func (c *Controller) Converter() Converter   { return c.conv }
func (c *Controller) PortPath() string       { return c.portPath }
func (c *Controller) BaudRate() int          { return c.baudRate }
func (c *Controller) Commands() CommandTable { return c.cmds }

// SetPort changes the port path. Only allowed while disconnected.
func (c *Controller) SetPort(path string) error {
	if c.state != Disconnected {
		return &StateError{Op: "set port", State: c.state, Need: "disconnected"}
	}
	c.portPath = path
	return nil
}

// SetBaudRate changes the baud rate. Only allowed while disconnected.
func (c *Controller) SetBaudRate(baud int) error {
	if c.state != Disconnected {
		return &StateError{Op: "set baud rate", State: c.state, Need: "disconnected"}
	}
	if baud <= 0 {
		return fmt.Errorf("coolmuscle: invalid baud rate %d", baud)
	}
	c.baudRate = baud
	return nil
}

// Connect opens the transport.
func (c *Controller) Connect() error {
	if c.state != Disconnected {
		return &StateError{Op: "connect", State: c.state, Need: "disconnected"}
	}
	t, err := c.dial(c.portPath, c.baudRate)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, c.portPath, err)
	}
	// Boot banners and stale replies would otherwise be read as answers.
	if d, ok := t.(drainer); ok {
		if n := d.Drain(drainTimeout); n > 0 {
			log.Printf("[coolmuscle] drained %d stale bytes from %s", n, c.portPath)
		}
	}
	c.t = t
	c.framer = NewFramer(t, c.timeout)
	c.setState(Connected)
	log.Printf("[coolmuscle] connected to %s at %d baud", c.portPath, c.baudRate)
	return nil
}

// Init homes the actuator and waits for the acknowledgement. The servo must
// not be powered, so Init runs only before the first On.
func (c *Controller) Init() error {
	switch c.state {
	case Connected, Initialized:
	default:
		return &StateError{Op: "init", State: c.state, Need: "connected"}
	}
	if err := c.send(CmdInit, nil); err != nil {
		return err
	}
	deadline := time.Now().Add(c.initTimeout)
	for {
		v, err := ReadValueWithin[int64](c.framer, c.cmds[ScanInitAck], time.Until(deadline))
		if err != nil {
			return fmt.Errorf("coolmuscle: init: %w", err)
		}
		if v == c.initAck {
			break
		}
		log.Printf("[coolmuscle] init: status %d, waiting for %d", v, c.initAck)
	}
	c.setState(Initialized)
	return nil
}

// On enables the servo.
func (c *Controller) On() error {
	switch c.state {
	case Initialized, Disabled, Enabled:
	default:
		return &StateError{Op: "on", State: c.state, Need: "initialized or disabled"}
	}
	if c.halted {
		return fmt.Errorf("%w: on: emergency stop latched", ErrPrecondition)
	}
	if err := c.send(CmdOn, nil); err != nil {
		return err
	}
	c.setState(Enabled)
	return nil
}

// Off disables the servo.
func (c *Controller) Off() error {
	switch c.state {
	case Initialized, Disabled, Enabled:
	default:
		return &StateError{Op: "off", State: c.state, Need: "initialized or enabled"}
	}
	if err := c.send(CmdOff, nil); err != nil {
		return err
	}
	c.setState(Disabled)
	return nil
}

// Close releases the transport. Closing a disconnected controller is a no-op.
func (c *Controller) Close() error {
	if c.t == nil {
		return nil
	}
	err := c.t.Close()
	c.t = nil
	c.framer = nil
	c.halted = false
	c.setState(Disconnected)
	return err
}

func (c *Controller) send(op string, args map[string]int64) error {
	line, err := c.cmds.Render(op, args)
	if err != nil {
		return err
	}
	return c.framer.WriteLine(line)
}

func (c *Controller) setState(s State) {
	if s != c.state {
		log.Printf("[coolmuscle] %s -> %s", c.state, s)
	}
	c.state = s
}
