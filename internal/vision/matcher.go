package vision

import (
	"image"
	"iter"
	"math"
	"runtime"
	"sync"
)

// DefaultThreshold is the confidence a response cell must reach to count as a match.
const DefaultThreshold = 0.8

// Matcher runs normalized cross-correlation template matching.
type Matcher struct {
	cache   *TemplateCache
	workers int
}

// NewMatcher creates a Matcher backed by cache. A nil cache gets a private one.
func NewMatcher(cache *TemplateCache) *Matcher {
	if cache == nil {
		cache = NewTemplateCache()
	}
	return &Matcher{cache: cache, workers: runtime.GOMAXPROCS(0)}
}

// Match loads the template at path and returns every response cell of
// frame that scores at or above threshold. Template errors are returned
// immediately; the sequence itself is computed lazily as it is ranged over.
func (m *Matcher) Match(frame *image.Gray, path string, threshold float64, useMask bool) (iter.Seq[Match], error) {
	t, err := m.cache.Get(path, LoadOptions{UseMask: useMask})
	if err != nil {
		return nil, err
	}
	return m.MatchTemplate(frame, t, threshold), nil
}

// MatchTemplate correlates an already loaded template against frame.
// Cells are emitted in row-major order. Scores that are not finite, or whose
// window has zero variance, count as 0.
func (m *Matcher) MatchTemplate(frame *image.Gray, t *Template, threshold float64) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		if frame == nil || t == nil {
			return
		}
		frame = Grayscale(frame)
		c := newCorrelator(frame, t)
		if c == nil {
			return
		}

		workers := max(m.workers, 1)
		band := workers * 4
		scores := make([]float64, band*c.outW)

		for y0 := 0; y0 < c.outH; y0 += band {
			y1 := min(y0+band, c.outH)
			c.scoreRows(y0, y1, workers, scores)

			for y := y0; y < y1; y++ {
				row := scores[(y-y0)*c.outW : (y-y0+1)*c.outW]
				for x, s := range row {
					if s < threshold {
						continue
					}
					mt := Match{
						TopLeft:     Point{X: x, Y: y},
						BottomRight: Point{X: x + c.tw, Y: y + c.th},
						Confidence:  clamp01(s),
					}
					if !yield(mt) {
						return
					}
				}
			}
		}
	}
}

// correlator holds the per-call precomputation for one frame/template pair.
type correlator struct {
	frame      *image.Gray
	tw, th     int
	outW, outH int

	// offsets/values list only the template pixels that take part in the sum.
	offsets []int
	values  []int64
	n       int64
	sumT    int64
	varT    int64 // n*sum(T^2) - sum(T)^2

	// Summed-area tables, only when every template pixel counts.
	integral   []int64
	integralSq []int64
}

func newCorrelator(frame *image.Gray, t *Template) *correlator {
	tw, th := t.Size()
	fb := frame.Bounds()
	if tw == 0 || th == 0 || fb.Dx() < tw || fb.Dy() < th {
		return nil
	}

	c := &correlator{
		frame: frame,
		tw:    tw,
		th:    th,
		outW:  fb.Dx() - tw + 1,
		outH:  fb.Dy() - th + 1,
	}

	var sumT2 int64
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			if t.Mask != nil && !t.Mask[y*tw+x] {
				continue
			}
			v := int64(t.Gray.Pix[y*t.Gray.Stride+x])
			c.offsets = append(c.offsets, y*frame.Stride+x)
			c.values = append(c.values, v)
			c.sumT += v
			sumT2 += v * v
		}
	}
	c.n = int64(len(c.values))
	c.varT = c.n*sumT2 - c.sumT*c.sumT

	if t.Mask == nil {
		c.buildIntegrals()
	}
	return c
}

func (c *correlator) buildIntegrals() {
	fb := c.frame.Bounds()
	W, H := fb.Dx(), fb.Dy()
	stride := W + 1
	c.integral = make([]int64, stride*(H+1))
	c.integralSq = make([]int64, stride*(H+1))
	for y := 0; y < H; y++ {
		var rowSum, rowSq int64
		for x := 0; x < W; x++ {
			v := int64(c.frame.Pix[y*c.frame.Stride+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			c.integral[i] = c.integral[i-stride] + rowSum
			c.integralSq[i] = c.integralSq[i-stride] + rowSq
		}
	}
}

func (c *correlator) windowSums(x, y int) (sum, sq int64) {
	stride := c.frame.Bounds().Dx() + 1
	a := y*stride + x
	b := a + c.tw
	d := (y+c.th)*stride + x
	e := d + c.tw
	sum = c.integral[e] - c.integral[b] - c.integral[d] + c.integral[a]
	sq = c.integralSq[e] - c.integralSq[b] - c.integralSq[d] + c.integralSq[a]
	return sum, sq
}

// scoreRows fills out with scores for rows [y0, y1), splitting rows across workers.
func (c *correlator) scoreRows(y0, y1, workers int, out []float64) {
	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				row := out[(y-y0)*c.outW : (y-y0+1)*c.outW]
				for x := range row {
					row[x] = c.score(x, y)
				}
			}
		}()
	}
	for y := y0; y < y1; y++ {
		rows <- y
	}
	close(rows)
	wg.Wait()
}

func (c *correlator) score(x, y int) float64 {
	if c.n == 0 || c.varT == 0 {
		return 0
	}
	base := y*c.frame.Stride + x
	pix := c.frame.Pix

	var sumI, sumI2, sumTI int64
	if c.integral != nil {
		sumI, sumI2 = c.windowSums(x, y)
		for i, off := range c.offsets {
			sumTI += c.values[i] * int64(pix[base+off])
		}
	} else {
		for i, off := range c.offsets {
			v := int64(pix[base+off])
			sumI += v
			sumI2 += v * v
			sumTI += c.values[i] * v
		}
	}

	varI := c.n*sumI2 - sumI*sumI
	if varI == 0 {
		return 0
	}
	num := float64(c.n*sumTI - c.sumT*sumI)

	// Equal variances happen on an exact copy; avoid the rounding of two square roots.
	denom := float64(c.varT)
	if varI != c.varT {
		denom = math.Sqrt(float64(c.varT)) * math.Sqrt(float64(varI))
	}
	s := num / denom
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
