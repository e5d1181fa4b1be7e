package coolmuscle

import (
	"fmt"
	"math"
)

// Pulse is the actuator's native position unit.
type Pulse = int64

// Limit bounds travel in one direction as a matching (radians, pulses) pair.
type Limit struct {
	Angle float64 `yaml:"angle" json:"angle"` // rad
	Pulse Pulse   `yaml:"pulse" json:"pulse"`
}

// Converter maps pulse counts to radians and back. Positive angles are CCW,
// negative angles CW, 0 is the mechanical center.
type Converter struct {
	ccw    Limit
	cw     Limit
	origin Pulse
}

// NewConverter validates the limit pairs and returns a converter. A CW limit
// given as positive magnitudes is flipped to the CW sign.
func NewConverter(ccw, cw Limit, origin Pulse) (Converter, error) {
	if cw.Angle > 0 && cw.Pulse > 0 {
		cw = Limit{Angle: -cw.Angle, Pulse: -cw.Pulse}
	}
	if ccw.Angle <= 0 || ccw.Pulse <= 0 {
		return Converter{}, fmt.Errorf("coolmuscle: ccw limit must be positive, got (%g rad, %d)", ccw.Angle, ccw.Pulse)
	}
	if cw.Angle >= 0 || cw.Pulse >= 0 {
		return Converter{}, fmt.Errorf("coolmuscle: cw limit must be negative, got (%g rad, %d)", cw.Angle, cw.Pulse)
	}
	return Converter{ccw: ccw, cw: cw, origin: origin}, nil
}

func (c Converter) LimitCCW() Limit { return c.ccw }
func (c Converter) LimitCW() Limit  { return c.cw }
func (c Converter) Origin() Pulse   { return c.origin }

// PulseToRad converts an absolute pulse count to radians.
func (c Converter) PulseToRad(p Pulse) float64 {
	d := p - c.origin
	if d == 0 {
		return 0
	}
	lim := c.ccw
	if d < 0 {
		lim = c.cw
	}
	return float64(d) / float64(lim.Pulse) * lim.Angle
}

// RadToPulse converts radians to the nearest absolute pulse count.
func (c Converter) RadToPulse(rad float64) Pulse {
	if rad == 0 {
		return c.origin
	}
	lim := c.side(rad)
	return Pulse(math.Round(rad/lim.Angle*float64(lim.Pulse))) + c.origin
}

// PulsesPerRad is the magnitude of the scale on the side of rad.
func (c Converter) PulsesPerRad(rad float64) float64 {
	lim := c.side(rad)
	return math.Abs(float64(lim.Pulse) / lim.Angle)
}

// Resolution is the angle covered by one pulse on the side of rad.
func (c Converter) Resolution(rad float64) float64 {
	return 1 / c.PulsesPerRad(rad)
}

// InRange reports whether rad lies within [cw, ccw]. NaN is never in range.
func (c Converter) InRange(rad float64) bool {
	return rad >= c.cw.Angle && rad <= c.ccw.Angle
}

func (c Converter) side(rad float64) Limit {
	if rad < 0 {
		return c.cw
	}
	return c.ccw
}
