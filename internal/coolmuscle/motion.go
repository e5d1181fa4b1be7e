package coolmuscle

import (
	"fmt"
	"log"
	"math"
)

// Set moves to ang (rad) at the default speed and acceleration.
func (c *Controller) Set(ang float64) error {
	return c.move(ang, c.defaults.Speed, c.defaults.Accel)
}

// SetVel moves to ang at angular velocity vel (rad/s, sign ignored) with
// the default acceleration.
func (c *Controller) SetVel(ang, vel float64) error {
	speed, err := c.native("velocity", ang, vel)
	if err != nil {
		return err
	}
	return c.move(ang, speed, c.defaults.Accel)
}

// SetVelAcc moves to ang at angular velocity vel (rad/s) and angular
// acceleration acc (rad/s^2). Signs of vel and acc are ignored.
func (c *Controller) SetVelAcc(ang, vel, acc float64) error {
	speed, err := c.native("velocity", ang, vel)
	if err != nil {
		return err
	}
	accel, err := c.native("acceleration", ang, acc)
	if err != nil {
		return err
	}
	return c.move(ang, speed, accel)
}

// PulseCount queries the actuator's current position in pulses.
func (c *Controller) PulseCount() (Pulse, error) {
	if c.state != Enabled {
		return 0, &StateError{Op: "position query", State: c.state, Need: "enabled"}
	}
	if err := c.send(CmdQuery, nil); err != nil {
		return 0, err
	}
	return ReadValue[Pulse](c.framer, c.cmds[ScanPos])
}

// Rad returns the current angle in radians.
func (c *Controller) Rad() (float64, error) {
	p, err := c.PulseCount()
	if err != nil {
		return 0, err
	}
	return c.conv.PulseToRad(p), nil
}

func (c *Controller) move(ang float64, speed, accel int64) error {
	if c.state != Enabled {
		return &StateError{Op: "set", State: c.state, Need: "enabled"}
	}
	if !c.conv.InRange(ang) {
		return &LimitError{Angle: ang, Min: c.conv.LimitCW().Angle, Max: c.conv.LimitCCW().Angle}
	}
	target := c.conv.RadToPulse(ang)
	err := c.send(CmdMove, map[string]int64{
		ArgPulse:  target,
		ArgSpeed:  speed,
		ArgAccel:  accel,
		ArgTorque: c.defaults.Torque,
	})
	if err != nil {
		return err
	}
	log.Printf("[coolmuscle] move %.4f rad -> pulse %d (S=%d A=%d)", ang, target, speed, accel)
	return nil
}

// native converts an angular rate magnitude to actuator units on the side
// of ang. The result is at least 1 so a move always makes progress.
func (c *Controller) native(what string, ang, v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("coolmuscle: invalid angular %s %v", what, v)
	}
	if !c.conv.InRange(ang) {
		// Let move report the limit error.
		return 1, nil
	}
	f := math.Round(math.Abs(v) * c.conv.PulsesPerRad(ang))
	if f >= math.MaxInt64 {
		return 0, fmt.Errorf("coolmuscle: angular %s %v exceeds actuator range", what, v)
	}
	n := int64(f)
	if n < 1 {
		n = 1
	}
	return n, nil
}
