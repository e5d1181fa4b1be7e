package coolmuscle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Operation keys of a CommandTable.
const (
	CmdInit     = "init"
	CmdOn       = "on"
	CmdOff      = "off"
	CmdMove     = "move"
	CmdStop     = "stop"
	CmdRelease  = "release"
	CmdQuery    = "query"
	ScanInitAck = "init_ack"
	ScanPos     = "position"
)

// Placeholders filled in the move template.
const (
	ArgPulse  = "pulse"
	ArgSpeed  = "speed"
	ArgAccel  = "accel"
	ArgTorque = "torque"
)

var requiredKeys = []string{
	CmdInit, CmdOn, CmdOff, CmdMove, CmdStop, CmdRelease, CmdQuery,
	ScanInitAck, ScanPos,
}

// CommandTable holds the firmware vocabulary: command templates with
// {name} placeholders, and fmt scan formats for replies.
type CommandTable map[string]string

// DefaultCommands is the Cool Muscle Language vocabulary for motor 1.
func DefaultCommands() CommandTable {
	return CommandTable{
		CmdInit:     "|.1",
		CmdOn:       "(.1",
		CmdOff:      ").1",
		CmdMove:     "P.1={pulse},S.1={speed},A.1={accel},M.1={torque},^.1",
		CmdStop:     "*.1",
		CmdRelease:  "*1.1",
		CmdQuery:    "?96.1",
		ScanInitAck: "Ux.1=%d",
		ScanPos:     "Px.1=%d",
	}
}

// Merge returns a copy of t with non-empty entries of over applied.
func (t CommandTable) Merge(over map[string]string) CommandTable {
	out := make(CommandTable, len(t)+len(over))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range over {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Validate checks that every operation the controller issues is present.
func (t CommandTable) Validate() error {
	var missing []string
	for _, k := range requiredKeys {
		if strings.TrimSpace(t[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("coolmuscle: command table missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Render fills the template for op with args in decimal.
func (t CommandTable) Render(op string, args map[string]int64) (string, error) {
	tmpl, ok := t[op]
	if !ok {
		return "", fmt.Errorf("coolmuscle: no command for %q", op)
	}
	pairs := make([]string, 0, 2*len(args))
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", strconv.FormatInt(v, 10))
	}
	line := strings.NewReplacer(pairs...).Replace(tmpl)
	if i := strings.IndexByte(line, '{'); i >= 0 {
		if j := strings.IndexByte(line[i:], '}'); j > 0 {
			return "", fmt.Errorf("coolmuscle: %s: unfilled placeholder %s", op, line[i:i+j+1])
		}
	}
	return line, nil
}
