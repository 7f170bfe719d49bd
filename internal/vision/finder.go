package vision

import (
	"image"
	"path/filepath"
)

// Target names a template asset and how to match it.
type Target struct {
	Name      string
	Path      string
	Threshold float64
	Mask      bool
	Scale     float64
}

// Resolve returns a copy of t with Path joined onto dir when it is relative.
func (t Target) Resolve(dir string) Target {
	if dir != "" && !filepath.IsAbs(t.Path) {
		t.Path = filepath.Join(dir, t.Path)
	}
	return t
}

func (t Target) threshold() float64 {
	if t.Threshold <= 0 {
		return DefaultThreshold
	}
	return t.Threshold
}

// Matches runs the raw matcher for target and collects every cell.
func (m *Matcher) Matches(frame *image.Gray, target Target) ([]Match, error) {
	tmpl, err := m.cache.Get(target.Path, LoadOptions{UseMask: target.Mask, Scale: target.Scale})
	if err != nil {
		return nil, err
	}
	var out []Match
	for mt := range m.MatchTemplate(frame, tmpl, target.threshold()) {
		out = append(out, mt)
	}
	return out, nil
}

// Find matches target against frame and merges the hits with c.
func (m *Matcher) Find(frame *image.Gray, target Target, c Clusterer) ([]Rectangle, error) {
	matches, err := m.Matches(frame, target)
	if err != nil {
		return nil, err
	}
	return c.MergeMatches(matches), nil
}

// FindAll matches several targets and merges all hits as one set, so near
// identical icons (an enabled and a disabled button) collapse together.
func (m *Matcher) FindAll(frame *image.Gray, targets []Target, c Clusterer) ([]Rectangle, error) {
	var all []Match
	for _, t := range targets {
		matches, err := m.Matches(frame, t)
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}
	return c.MergeMatches(all), nil
}

// FindFirst returns the first merged rectangle for target, if any.
func (m *Matcher) FindFirst(frame *image.Gray, target Target, c Clusterer) (Rectangle, bool, error) {
	rects, err := m.Find(frame, target, c)
	if err != nil || len(rects) == 0 {
		return Rectangle{}, false, err
	}
	return rects[0], true, nil
}
