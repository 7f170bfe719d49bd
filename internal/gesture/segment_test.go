package gesture

import "testing"

func TestSegmentDragAndClick(t *testing.T) {
	opts := DefaultSegmentOptions()

	drag := SegmentEvents(stroke(12, 0.1, 0.1), opts)
	if len(drag) != 1 || drag[0].Kind != Drag || len(drag[0].Events) != 14 {
		t.Fatalf("[down, move x12, up] = %+v, want one 14-event drag", summarize(drag))
	}

	click := SegmentEvents(stroke(2, 0.1, 0.1), opts)
	if len(click) != 1 || click[0].Kind != Click || len(click[0].Events) != 4 || click[0].Ambiguous {
		t.Fatalf("[down, move x2, up] = %+v, want one 4-event click", summarize(click))
	}
}

func TestSegmentIgnoresStrayEvents(t *testing.T) {
	events := concat(
		[]PointerEvent{{Type: Move, X: 0.5, Y: 0.5}, {Type: Up, X: 0.5, Y: 0.5}},
		stroke(1, 0.2, 0.2),
		[]PointerEvent{{Type: Move, X: 0.9, Y: 0.9}},
	)
	segs := SegmentEvents(events, DefaultSegmentOptions())
	if len(segs) != 1 || len(segs[0].Events) != 3 {
		t.Fatalf("got %+v, want the single 3-event click", summarize(segs))
	}
}

func TestSegmentRestartsOnRepeatedDown(t *testing.T) {
	events := concat(
		[]PointerEvent{{Type: Down, X: 0.1, Y: 0.1}, {Type: Move, X: 0.2, Y: 0.1}},
		stroke(0, 0.3, 0.3),
	)
	segs := SegmentEvents(events, DefaultSegmentOptions())
	if len(segs) != 1 || len(segs[0].Events) != 2 || segs[0].Events[0].X != 0.3 {
		t.Fatalf("got %+v, want only the second gesture", summarize(segs))
	}
}

func TestSegmentDropsUnfinishedGesture(t *testing.T) {
	events := concat(stroke(1, 0.1, 0.1), []PointerEvent{{Type: Down, X: 0.4, Y: 0.4}, {Type: Move, X: 0.5, Y: 0.4}})
	if segs := SegmentEvents(events, DefaultSegmentOptions()); len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
}

func TestSegmentBoundary(t *testing.T) {
	tests := []struct {
		name      string
		moves     int
		kind      SegmentKind
		ambiguous bool
	}{
		{"seven events is a click", 5, Click, false},
		{"eight events is ambiguous", 6, Click, true},
		{"ten moves is ambiguous", 10, Click, true},
		{"eleven moves is a drag", 11, Drag, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := SegmentEvents(stroke(tt.moves, 0.1, 0.1), DefaultSegmentOptions())
			if len(segs) != 1 {
				t.Fatalf("got %d segments", len(segs))
			}
			if segs[0].Kind != tt.kind || segs[0].Ambiguous != tt.ambiguous {
				t.Fatalf("kind=%v ambiguous=%v, want %v/%v", segs[0].Kind, segs[0].Ambiguous, tt.kind, tt.ambiguous)
			}
		})
	}
}

func TestSegmentAmbiguousDropPolicy(t *testing.T) {
	opts := DefaultSegmentOptions()
	opts.Ambiguous = DropAmbiguous

	events := concat(stroke(8, 0.1, 0.1), stroke(2, 0.2, 0.2), stroke(15, 0.3, 0.3))
	segs := SegmentEvents(events, opts)
	if len(segs) != 2 || segs[0].Kind != Click || segs[1].Kind != Drag {
		t.Fatalf("got %+v, want click then drag", summarize(segs))
	}
}

func TestSegmentBoundariesAreConfigurable(t *testing.T) {
	opts := SegmentOptions{DragMinMoves: 3, ClickMaxEvents: 3}
	segs := SegmentEvents(concat(stroke(4, 0.1, 0.1), stroke(1, 0.1, 0.1), stroke(3, 0.1, 0.1)), opts)
	got := []string{}
	for _, s := range segs {
		got = append(got, s.Kind.String())
	}
	if len(segs) != 3 || segs[0].Kind != Drag || segs[1].Kind != Click || !segs[2].Ambiguous {
		t.Fatalf("got %v", got)
	}
}

type segSummary struct {
	Kind      string
	Events    int
	Ambiguous bool
}

func summarize(segs []Segment) []segSummary {
	out := make([]segSummary, len(segs))
	for i, s := range segs {
		out[i] = segSummary{Kind: s.Kind.String(), Events: len(s.Events), Ambiguous: s.Ambiguous}
	}
	return out
}
