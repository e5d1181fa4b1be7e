package coolmuscle

import "log"

// Emergency sends the stop command in any connected state without waiting
// for an in-flight move. The stop stays latched until ReleaseEmergency.
func (c *Controller) Emergency() error {
	if c.state == Disconnected {
		return &StateError{Op: "emergency", State: c.state, Need: "a connection"}
	}
	if err := c.send(CmdStop, nil); err != nil {
		return err
	}
	c.halted = true
	if c.state == Enabled {
		c.setState(Disabled)
	}
	log.Printf("[coolmuscle] EMERGENCY STOP sent on %s", c.portPath)
	return nil
}

// ReleaseEmergency clears the stop. The servo stays off until On is called.
func (c *Controller) ReleaseEmergency() error {
	if c.state == Disconnected {
		return &StateError{Op: "release emergency", State: c.state, Need: "a connection"}
	}
	if err := c.send(CmdRelease, nil); err != nil {
		return err
	}
	c.halted = false
	log.Printf("[coolmuscle] emergency released on %s", c.portPath)
	return nil
}
