// Package gesture turns recorded pointer streams into labeled click and
// drag gestures and plays them back on a device.
package gesture

import (
	"encoding/json"
	"fmt"
)

// Kind is the pointer action of an event.
type Kind uint8

const (
	Down Kind = iota + 1
	Move
	Up
)

var kindNames = [...]string{Down: "mousedown", Move: "mousemove", Up: "mouseup"}

// String returns the wire name of k.
func (k Kind) String() string {
	if k >= Down && k <= Up {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind accepts the browser event names and their short forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mousedown", "down", "pointerdown":
		return Down, nil
	case "mousemove", "move", "pointermove":
		return Move, nil
	case "mouseup", "up", "pointerup":
		return Up, nil
	}
	return 0, fmt.Errorf("unknown pointer event type %q", s)
}

// MarshalJSON implements json.Marshaler.
func (k Kind) MarshalJSON() ([]byte, error) {
	if k < Down || k > Up {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return json.Marshal(kindNames[k])
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// PointerEvent is one pointer sample. X and Y are fractions of the screen
// in [0,1], independent of device resolution; Timestamp is milliseconds.
type PointerEvent struct {
	Type      Kind    `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Validate checks the event kind and coordinate range.
func (e PointerEvent) Validate() error {
	if e.Type < Down || e.Type > Up {
		return fmt.Errorf("invalid event type %d", e.Type)
	}
	if e.X < 0 || e.X > 1 || e.Y < 0 || e.Y > 1 {
		return fmt.Errorf("coordinates (%g, %g) outside [0,1]", e.X, e.Y)
	}
	return nil
}
