package door

import (
	"fmt"
	"strings"
	"time"
)

// State is the door position. The numeric values match the cloud firmware's
// doorState variable, so polled values map directly.
type State int

// Door states. Open and Closed are terminal; Opening and Closing are the
// transitional values held while a command is in flight.
const (
	StateOpen    State = 0
	StateClosed  State = 1
	StateOpening State = 2
	StateClosing State = 3
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state is a resting position rather than a
// transition.
func (s State) Terminal() bool {
	return s == StateOpen || s == StateClosed
}

// ParseState interprets an observed value as a State. Both the numeric enum
// (as reported by the firmware variable) and the state names (as used on the
// MQTT command topic) are accepted.
//
// Returns:
//   - State: The parsed state
//   - error: ErrUnknownState (wrapped with the offending value)
func ParseState(value string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "open":
		return StateOpen, nil
	case "1", "closed", "close":
		return StateClosed, nil
	case "2", "opening":
		return StateOpening, nil
	case "3", "closing":
		return StateClosing, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, value)
	}
}

// MarshalText encodes the state name for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state from its name or numeric form.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Status is a point-in-time snapshot of the controller, as exposed over the
// REST API, MQTT state topic, and WebSocket stream.
type Status struct {
	Device     string    `json:"device"`
	Current    State     `json:"current_state"`
	Target     State     `json:"target_state"`
	Obstructed bool      `json:"obstructed"`
	InFlight   bool      `json:"command_in_flight"`
	LastPoll   time.Time `json:"last_poll,omitzero"`
}
