package gesture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dreamup/touchbot/internal/agent"
)

// DefaultLabels is the choreography the farm recordings follow.
var DefaultLabels = []string{"harvest_crops", "plant_crops", "harvest_crops", "plant_crops"}

// Entry is one labeled action: the clicks that open a target and the drags
// that operate on it.
type Entry struct {
	Label  string           `json:"label"`
	Clicks [][]PointerEvent `json:"clicks"`
	Drags  [][]PointerEvent `json:"drag_events"`
}

// Script is an ordered list of labeled actions.
type Script []Entry

// LabelOptions controls positional labeling.
type LabelOptions struct {
	Labels []string
	// Cycle wraps around the label list instead of dropping the surplus drags.
	Cycle bool
}

// BuildScript pairs each drag with the click immediately before it, if any,
// and labels the resulting actions by position. Clicks that are not directly
// followed by a drag are discarded. Once the labels are used up the remaining
// actions are left out unless Cycle is set.
func BuildScript(segments []Segment, opts LabelOptions) Script {
	script := Script{}
	if len(opts.Labels) == 0 {
		return script
	}

	var prev *Segment
	for i := range segments {
		seg := &segments[i]
		if seg.Kind != Drag {
			prev = seg
			continue
		}

		n := len(script)
		if n >= len(opts.Labels) && !opts.Cycle {
			break
		}
		entry := Entry{
			Label:  opts.Labels[n%len(opts.Labels)],
			Clicks: [][]PointerEvent{},
			Drags:  [][]PointerEvent{seg.Events},
		}
		if prev != nil && prev.Kind == Click {
			entry.Clicks = append(entry.Clicks, prev.Events)
		}
		script = append(script, entry)
		prev = seg
	}
	return script
}

// Label segments a raw log and builds its script in one step.
func Label(events []PointerEvent, seg SegmentOptions, labels LabelOptions) Script {
	return BuildScript(SegmentEvents(events, seg), labels)
}

// Lookup returns the first entry with the given label.
func (s Script) Lookup(label string) (Entry, error) {
	for _, e := range s {
		if e.Label == label {
			return e, nil
		}
	}
	return Entry{}, agent.NewLabelNotFoundError(label)
}

// Labels lists entry labels in order.
func (s Script) Labels() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Label
	}
	return out
}

// Marshal renders the script as indented JSON. Equal scripts render to
// identical bytes.
func (s Script) Marshal() ([]byte, error) {
	if s == nil {
		s = Script{}
	}
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseScript decodes a script document.
func ParseScript(data []byte) (Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return s, nil
}

// LoadScript reads a script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, agent.NewStorageError("read script", err)
	}
	return ParseScript(data)
}

// SaveScript writes the script to path via a rename so readers never see a
// partial file.
func SaveScript(path string, s Script) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".script-*.json")
	if err != nil {
		return agent.NewStorageError("write script", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return agent.NewStorageError("write script", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return agent.NewStorageError("write script", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return agent.NewStorageError("write script", err)
	}
	return nil
}
