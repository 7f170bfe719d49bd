package vision

import "testing"

func TestRectangleGeometry(t *testing.T) {
	r := Rect(10, 20, 31, 11)

	if got := r.Center(); got != (Point{25, 25}) {
		t.Errorf("Center = %+v", got)
	}
	if got := r.BottomRight(); got != (Point{41, 31}) {
		t.Errorf("BottomRight = %+v", got)
	}
	if got := r.Shrink(5); got != Rect(15, 25, 21, 1) {
		t.Errorf("Shrink = %+v", got)
	}
	if r.Shrink(6).Valid() {
		t.Errorf("over-shrunk rectangle should be invalid")
	}
}

func TestRectangleRelations(t *testing.T) {
	top := Rect(0, 0, 10, 10)
	bottom := Rect(0, 20, 10, 10)
	right := Rect(30, 0, 10, 10)
	touching := Rect(0, 10, 10, 10)

	if !top.IsAbove(bottom) || !bottom.IsBelow(top) {
		t.Errorf("vertical relation wrong")
	}
	if !top.IsLeftOf(right) || !right.IsRightOf(top) {
		t.Errorf("horizontal relation wrong")
	}
	if top.IsAbove(touching) {
		t.Errorf("shared edge must not count as above")
	}
	if top.IsAbove(top) || top.IsLeftOf(top) {
		t.Errorf("a rectangle is never strictly beside itself")
	}
}
