package gesture

// SegmentKind classifies a gesture by its length.
type SegmentKind uint8

const (
	Click SegmentKind = iota
	Drag
)

func (k SegmentKind) String() string {
	if k == Drag {
		return "drag"
	}
	return "click"
}

// AmbiguousPolicy decides what happens to gestures too long for a click but
// with too few moves for a drag.
type AmbiguousPolicy uint8

const (
	// KeepAmbiguous keeps them as clicks flagged Ambiguous. They never become drags.
	KeepAmbiguous AmbiguousPolicy = iota
	// DropAmbiguous discards them.
	DropAmbiguous
)

// ParseAmbiguousPolicy maps "keep" and "drop" to a policy.
func ParseAmbiguousPolicy(s string) (AmbiguousPolicy, bool) {
	switch s {
	case "", "keep":
		return KeepAmbiguous, true
	case "drop":
		return DropAmbiguous, true
	}
	return KeepAmbiguous, false
}

// SegmentOptions holds the classification boundaries.
type SegmentOptions struct {
	// DragMinMoves: a gesture with more moves than this is a drag.
	DragMinMoves int
	// ClickMaxEvents: a gesture with at most this many events is a click.
	ClickMaxEvents int
	Ambiguous      AmbiguousPolicy
}

// DefaultSegmentOptions returns the boundaries the recordings were tuned with.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{DragMinMoves: 10, ClickMaxEvents: 7, Ambiguous: KeepAmbiguous}
}

// Segment is one down..up gesture. It owns its events.
type Segment struct {
	Kind      SegmentKind
	Ambiguous bool
	Events    []PointerEvent
}

// Moves counts the move events in the segment.
func (s Segment) Moves() int {
	n := 0
	for _, e := range s.Events {
		if e.Type == Move {
			n++
		}
	}
	return n
}

// SegmentEvents splits an ordered event log into gestures.
//
// A gesture opens on down, collects moves and closes on up. A second down
// while a gesture is open starts over. Moves and ups with no open gesture
// are ignored, as is a gesture still open at the end of the log.
func SegmentEvents(events []PointerEvent, opts SegmentOptions) []Segment {
	var (
		out     []Segment
		current []PointerEvent
		open    bool
	)
	for _, e := range events {
		switch e.Type {
		case Down:
			current = []PointerEvent{e}
			open = true
		case Move:
			if open {
				current = append(current, e)
			}
		case Up:
			if !open {
				continue
			}
			current = append(current, e)
			if seg, ok := classify(current, opts); ok {
				out = append(out, seg)
			}
			current = nil
			open = false
		}
	}
	return out
}

func classify(events []PointerEvent, opts SegmentOptions) (Segment, bool) {
	seg := Segment{Events: events}
	switch {
	case seg.Moves() > opts.DragMinMoves:
		seg.Kind = Drag
	case len(events) <= opts.ClickMaxEvents:
		seg.Kind = Click
	case opts.Ambiguous == DropAmbiguous:
		return Segment{}, false
	default:
		seg.Kind = Click
		seg.Ambiguous = true
	}
	return seg, true
}
