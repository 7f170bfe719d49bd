package vision

// Point is a pixel coordinate in frame space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rectangle is an axis-aligned region given by its top-left corner and size.
type Rectangle struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect builds a Rectangle from x, y, width and height.
func Rect(x, y, w, h int) Rectangle {
	return Rectangle{X: x, Y: y, W: w, H: h}
}

// Valid reports whether the rectangle has positive area.
func (r Rectangle) Valid() bool {
	return r.W > 0 && r.H > 0
}

// TopLeft returns the top-left corner.
func (r Rectangle) TopLeft() Point {
	return Point{X: r.X, Y: r.Y}
}

// BottomRight returns the exclusive bottom-right corner.
func (r Rectangle) BottomRight() Point {
	return Point{X: r.X + r.W, Y: r.Y + r.H}
}

// Center returns the midpoint, truncated toward the top-left.
func (r Rectangle) Center() Point {
	return Point{X: (2*r.X + r.W) / 2, Y: (2*r.Y + r.H) / 2}
}

// IsAbove reports whether r ends above other starts.
func (r Rectangle) IsAbove(other Rectangle) bool {
	return r.BottomRight().Y < other.TopLeft().Y
}

// IsBelow reports whether r starts below other ends.
func (r Rectangle) IsBelow(other Rectangle) bool {
	return r.TopLeft().Y > other.BottomRight().Y
}

// IsLeftOf reports whether r ends left of where other starts.
func (r Rectangle) IsLeftOf(other Rectangle) bool {
	return r.BottomRight().X < other.TopLeft().X
}

// IsRightOf reports whether r starts right of where other ends.
func (r Rectangle) IsRightOf(other Rectangle) bool {
	return r.TopLeft().X > other.BottomRight().X
}

// Shrink returns r inset by pad on every side. The result may be invalid.
func (r Rectangle) Shrink(pad int) Rectangle {
	return Rectangle{X: r.X + pad, Y: r.Y + pad, W: r.W - 2*pad, H: r.H - 2*pad}
}

// Match is a single response cell at or above the matcher threshold.
type Match struct {
	TopLeft     Point   `json:"top_left"`
	BottomRight Point   `json:"bottom_right"`
	Confidence  float64 `json:"confidence"`
}

// Rect converts the match into a Rectangle.
func (m Match) Rect() Rectangle {
	return Rectangle{
		X: m.TopLeft.X,
		Y: m.TopLeft.Y,
		W: m.BottomRight.X - m.TopLeft.X,
		H: m.BottomRight.Y - m.TopLeft.Y,
	}
}
