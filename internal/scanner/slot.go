package scanner

import (
	"fmt"
	"image"

	"github.com/dreamup/touchbot/internal/vision"
)

// SlotType is the closed set of slot states a scan can report.
type SlotType uint8

const (
	Sold SlotType = iota
	Open
	Occupied

	numSlotTypes
)

var slotTypeNames = [numSlotTypes]string{
	Sold:     "sold",
	Open:     "open",
	Occupied: "occupied",
}

// AllSlotTypes lists every slot type in query order.
var AllSlotTypes = []SlotType{Sold, Open, Occupied}

func (t SlotType) String() string {
	if t < numSlotTypes {
		return slotTypeNames[t]
	}
	return fmt.Sprintf("SlotType(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t SlotType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SlotType) UnmarshalText(b []byte) error {
	v, err := ParseSlotType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseSlotType maps a name back to its SlotType.
func ParseSlotType(s string) (SlotType, error) {
	for i, name := range slotTypeNames {
		if name == s {
			return SlotType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown slot type %q", s)
}

// Slot is one typed detection on the current page.
type Slot struct {
	Type SlotType         `json:"type"`
	Rect vision.Rectangle `json:"rect"`
	Item string           `json:"item,omitempty"`
}

// Detector finds the rectangles of one slot type in a frame.
type Detector func(frame *image.Gray) ([]vision.Rectangle, error)

// SlotTarget describes how a slot type is recognized.
type SlotTarget struct {
	Target vision.Target
	// Item labels what an occupied slot holds, e.g. "wheat".
	Item string
}

// Layout names the templates a scrollable list is recognized by.
type Layout struct {
	// Landmark bounds the scrollable viewport and must be on every page.
	Landmark vision.Target
	// EndMarker appears once the end of the list is visible.
	EndMarker vision.Target
	// Slots has one entry per SlotType.
	Slots [numSlotTypes]SlotTarget
}

// dispatchTable builds one detector per slot type. Every slot type must
// have a template, so a new SlotType cannot be added without one.
func dispatchTable(m *vision.Matcher, l Layout, c vision.Clusterer) ([numSlotTypes]Detector, error) {
	var table [numSlotTypes]Detector
	for i, st := range l.Slots {
		if st.Target.Path == "" {
			return table, fmt.Errorf("no template for slot type %s", SlotType(i))
		}
		target := st.Target
		table[i] = func(frame *image.Gray) ([]vision.Rectangle, error) {
			return m.Find(frame, target, c)
		}
	}
	return table, nil
}
