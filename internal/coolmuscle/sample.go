package coolmuscle

import (
	"math"
	"time"
)

// Sample is one telemetry snapshot of the actuator.
type Sample struct {
	Stamp  time.Time `json:"-"`
	Unix   int64     `json:"stamp"` // Unix ms
	State  string    `json:"state"`
	Halted bool      `json:"halted"`
	Valid  bool      `json:"valid"` // Position fields are populated
	Pulse  Pulse     `json:"pulse"`
	Rad    float64   `json:"rad"`
	Deg    float64   `json:"deg"`
}

// Snapshot reports state and, when the servo is enabled, the current
// position. A failed position query is returned along with the state-only
// sample.
func (c *Controller) Snapshot() (Sample, error) {
	now := time.Now()
	s := Sample{
		Stamp:  now,
		Unix:   now.UnixMilli(),
		State:  c.state.String(),
		Halted: c.halted,
	}
	if c.state != Enabled || c.halted {
		return s, nil
	}
	p, err := c.PulseCount()
	if err != nil {
		return s, err
	}
	s.Valid = true
	s.Pulse = p
	s.Rad = c.conv.PulseToRad(p)
	s.Deg = s.Rad * 180 / math.Pi
	return s, nil
}
