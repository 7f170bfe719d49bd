package gesture

import (
	"encoding/json"
	"testing"
)

func TestKindJSONAcceptsAliases(t *testing.T) {
	var events []PointerEvent
	in := `[{"type":"mousedown","x":0.1,"y":0.2},{"type":"move","x":0.3,"y":0.2},{"type":"pointerup","x":0.3,"y":0.2,"timestamp":5}]`
	if err := json.Unmarshal([]byte(in), &events); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []Kind{Down, Move, Up}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d type = %v, want %v", i, e.Type, want[i])
		}
	}

	out, err := json.Marshal(events[2])
	if err != nil {
		t.Fatal(err)
	}
	if got := string(out); got != `{"type":"mouseup","x":0.3,"y":0.2,"timestamp":5}` {
		t.Errorf("Marshal = %s", got)
	}
}

func TestKindJSONRejectsUnknown(t *testing.T) {
	var e PointerEvent
	if err := json.Unmarshal([]byte(`{"type":"wheel","x":0,"y":0}`), &e); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestPointerEventValidate(t *testing.T) {
	if err := (PointerEvent{Type: Move, X: 0.5, Y: 1}).Validate(); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}
	if err := (PointerEvent{Type: Move, X: 1.2, Y: 0}).Validate(); err == nil {
		t.Errorf("out of range x accepted")
	}
	if err := (PointerEvent{X: 0.5, Y: 0.5}).Validate(); err == nil {
		t.Errorf("missing type accepted")
	}
}
