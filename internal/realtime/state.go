package realtime

import "fmt"

// State is the lifecycle position of a realtime session.
type State int

const (
	Idle State = iota
	Activating
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Activating:
		return "activating"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
