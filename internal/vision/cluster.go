package vision

import (
	"math"

	"github.com/dreamup/touchbot/internal/agent"
)

// Clusterer merges duplicate detections into one rectangle per object.
//
// Rectangles are partitioned into equivalence classes where two rectangles
// are similar when every edge differs by at most Eps*(min width + min height)/2.
// Each class is averaged. Classes with GroupThreshold or fewer members are
// dropped, as are small classes nested inside a stronger one.
type Clusterer struct {
	GroupThreshold int
	Eps            float64
}

// DefaultClusterer is the general-purpose setting for de-duplicating matches.
var DefaultClusterer = Clusterer{GroupThreshold: 1, Eps: 0.5}

// Merge groups rects. A GroupThreshold of zero or less returns the input unchanged.
// The output order follows the first appearance of each class in rects.
func (c Clusterer) Merge(rects []Rectangle) []Rectangle {
	if c.GroupThreshold <= 0 || len(rects) == 0 {
		out := make([]Rectangle, len(rects))
		copy(out, rects)
		return out
	}

	labels, nclasses := partition(rects, c.similar)

	sums := make([][4]int, nclasses)
	weights := make([]int, nclasses)
	for i, r := range rects {
		l := labels[i]
		sums[l][0] += r.X
		sums[l][1] += r.Y
		sums[l][2] += r.W
		sums[l][3] += r.H
		weights[l]++
	}

	avg := make([]Rectangle, nclasses)
	for i := range avg {
		n := float64(weights[i])
		avg[i] = Rectangle{
			X: roundInt(float64(sums[i][0]) / n),
			Y: roundInt(float64(sums[i][1]) / n),
			W: roundInt(float64(sums[i][2]) / n),
			H: roundInt(float64(sums[i][3]) / n),
		}
	}

	out := make([]Rectangle, 0, nclasses)
	for i, r1 := range avg {
		n1 := weights[i]
		if n1 <= c.GroupThreshold {
			continue
		}
		if !c.suppressed(i, r1, n1, avg, weights) {
			out = append(out, r1)
		}
	}
	return out
}

// MergeMatches converts matches to rectangles and merges them.
func (c Clusterer) MergeMatches(matches []Match) []Rectangle {
	rects := make([]Rectangle, len(matches))
	for i, m := range matches {
		rects[i] = m.Rect()
	}
	return c.Merge(rects)
}

func (c Clusterer) similar(a, b Rectangle) bool {
	delta := c.Eps * float64(min(a.W, b.W)+min(a.H, b.H)) * 0.5
	return math.Abs(float64(a.X-b.X)) <= delta &&
		math.Abs(float64(a.Y-b.Y)) <= delta &&
		math.Abs(float64(a.X+a.W-b.X-b.W)) <= delta &&
		math.Abs(float64(a.Y+a.H-b.Y-b.H)) <= delta
}

// suppressed reports whether class i lies inside another surviving class that
// outweighs it.
func (c Clusterer) suppressed(i int, r1 Rectangle, n1 int, avg []Rectangle, weights []int) bool {
	for j, r2 := range avg {
		n2 := weights[j]
		if j == i || n2 <= c.GroupThreshold {
			continue
		}
		dx := roundInt(float64(r2.W) * c.Eps)
		dy := roundInt(float64(r2.H) * c.Eps)
		inside := r1.X >= r2.X-dx &&
			r1.Y >= r2.Y-dy &&
			r1.X+r1.W <= r2.X+r2.W+dx &&
			r1.Y+r1.H <= r2.Y+r2.H+dy
		if inside && (n2 > max(3, n1) || n1 < 3) {
			return true
		}
	}
	return false
}

// partition labels rects into equivalence classes of the similar relation
// (transitively closed). Labels are numbered by first appearance.
func partition(rects []Rectangle, similar func(a, b Rectangle) bool) ([]int, int) {
	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if !similar(rects[i], rects[j]) {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if ri < rj {
				parent[rj] = ri
			} else {
				parent[ri] = rj
			}
		}
	}

	labels := make([]int, len(rects))
	classOf := make(map[int]int)
	for i := range rects {
		root := find(i)
		l, ok := classOf[root]
		if !ok {
			l = len(classOf)
			classOf[root] = l
		}
		labels[i] = l
	}
	return labels, len(classOf)
}

func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

// Expect returns rects when exactly want were found and an ambiguous-match error otherwise.
func Expect(what string, rects []Rectangle, want int) ([]Rectangle, error) {
	if len(rects) != want {
		return nil, agent.NewAmbiguousMatchError(what, want, len(rects))
	}
	return rects, nil
}
