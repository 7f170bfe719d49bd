package gesture

// stroke builds down, moves, up starting at (x, y) and stepping right.
func stroke(moves int, x, y float64) []PointerEvent {
	ts := int64(1712080057000)
	events := []PointerEvent{{Type: Down, X: x, Y: y, Timestamp: ts}}
	for i := 1; i <= moves; i++ {
		events = append(events, PointerEvent{Type: Move, X: x + float64(i)*0.01, Y: y, Timestamp: ts + int64(i)*16})
	}
	return append(events, PointerEvent{Type: Up, X: x + float64(moves)*0.01, Y: y, Timestamp: ts + int64(moves+1)*16})
}

func concat(parts ...[]PointerEvent) []PointerEvent {
	var out []PointerEvent
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
