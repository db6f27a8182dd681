package chat

// State is a session lifecycle stage. Sessions only move forward.
type State int

const (
	Idle State = iota
	Joining
	Active
	Leaving
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	case Closed:
		return "closed"
	}
	return "unknown"
}
