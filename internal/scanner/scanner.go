// Package scanner pages through a horizontally scrolling list, reporting
// the typed slots visible on each page.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/vision"
)

// Done is returned by Scan.Next once the scan has finished.
var Done = errors.New("scan done")

// Direction is the way a scan moves through the list.
type Direction uint8

const (
	// Forward swipes right to left and stops at the end marker.
	Forward Direction = iota
	// Backward swipes left to right and stops after MaxPages.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Config holds the swipe geometry and page limits.
type Config struct {
	// Padding insets the landmark before the swipe path is laid out.
	Padding int
	// Steps is the number of points on the swipe path.
	Steps int
	// StepDelay is the pause between swipe points.
	StepDelay time.Duration
	// Settle is the wait after a swipe before the next capture.
	Settle time.Duration
	// MaxPages bounds a scan. Zero leaves a forward scan to the end marker
	// and caps a backward scan at DefaultMaxPages.
	MaxPages  int
	Clusterer vision.Clusterer
}

// DefaultMaxPages caps scans that have no other way to end.
const DefaultMaxPages = 30

// DefaultConfig returns the geometry used for the roadside shop.
func DefaultConfig() Config {
	return Config{
		Padding:   180,
		Steps:     25,
		Settle:    330 * time.Millisecond,
		MaxPages:  DefaultMaxPages,
		Clusterer: vision.DefaultClusterer,
	}
}

// Scanner captures frames, finds slots and swipes between pages.
type Scanner struct {
	frames    device.FrameSource
	sink      device.TouchSink
	gate      *device.Gate
	matcher   *vision.Matcher
	layout    Layout
	detectors [numSlotTypes]Detector
	cfg       Config
	logger    zerolog.Logger
	pages     prometheus.Counter

	// Sleep may be replaced in tests.
	Sleep agent.SleepFunc
}

// New builds a Scanner. It fails if any slot type lacks a template.
func New(frames device.FrameSource, sink device.TouchSink, gate *device.Gate, matcher *vision.Matcher, layout Layout, cfg Config, logger zerolog.Logger) (*Scanner, error) {
	if cfg.Steps < 2 {
		return nil, fmt.Errorf("swipe needs at least 2 steps, got %d", cfg.Steps)
	}
	detectors, err := dispatchTable(matcher, layout, cfg.Clusterer)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		gate = device.NewGate()
	}
	return &Scanner{
		frames:    frames,
		sink:      sink,
		gate:      gate,
		matcher:   matcher,
		layout:    layout,
		detectors: detectors,
		cfg:       cfg,
		logger:    logger.With().Str("component", "scanner").Logger(),
		pages:     pagesScanned,
		Sleep:     agent.Sleep,
	}, nil
}

// Matcher returns the matcher the scanner detects with.
func (s *Scanner) Matcher() *vision.Matcher {
	return s.matcher
}

// Capture grabs one frame as grayscale.
func (s *Scanner) Capture(ctx context.Context) (*image.Gray, error) {
	img, err := s.frames.Frame(ctx)
	if err != nil {
		var catErr *agent.CategorizedError
		if errors.As(err, &catErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, agent.NewFrameError("capture frame", err)
	}
	return vision.Grayscale(img), nil
}

// Page is the result of one scan step.
type Page struct {
	Index    int              `json:"index"`
	Landmark vision.Rectangle `json:"landmark"`
	Slots    []Slot           `json:"slots"`
}

type scanState uint8

const (
	scanningPage scanState = iota
	scrolling
	finished
)

// Scan is a pull-based walk over pages. It is not safe for concurrent use.
type Scan struct {
	s        *Scanner
	dir      Direction
	types    []SlotType
	state    scanState
	page     int
	limit    int
	landmark vision.Rectangle
}

// Scan starts a walk reporting the given slot types, in that order, on each
// page. With no types every type is reported.
func (s *Scanner) Scan(dir Direction, types ...SlotType) *Scan {
	if len(types) == 0 {
		types = AllSlotTypes
	}
	limit := s.cfg.MaxPages
	if limit <= 0 && dir == Backward {
		limit = DefaultMaxPages
	}
	return &Scan{s: s, dir: dir, types: types, limit: limit}
}

// Next returns the next page, swiping first when the previous page was not
// the last. It returns Done when the walk is over. Cancellation is checked
// before each capture and swipe; a swipe that has started is never cut short.
func (sc *Scan) Next(ctx context.Context) (Page, error) {
	for {
		switch sc.state {
		case finished:
			return Page{}, Done

		case scrolling:
			if err := ctx.Err(); err != nil {
				return Page{}, err
			}
			if err := sc.s.scroll(ctx, sc.dir, sc.landmark); err != nil {
				return Page{}, err
			}
			sc.state = scanningPage

		case scanningPage:
			if err := ctx.Err(); err != nil {
				return Page{}, err
			}
			page, end, err := sc.s.scanPage(ctx, sc.page, sc.dir, sc.types)
			if err != nil {
				return Page{}, err
			}
			sc.page++
			sc.landmark = page.Landmark
			switch {
			case end:
				sc.s.logger.Debug().Int("page", page.Index).Msg("End of list")
				sc.state = finished
			case sc.limit > 0 && sc.page >= sc.limit:
				sc.s.logger.Debug().Int("pages", sc.page).Msg("Page limit reached")
				sc.state = finished
			default:
				sc.state = scrolling
			}
			return page, nil
		}
	}
}

// Pages adapts the scan to a range-over-func sequence. Iteration stops
// after the first error, which is yielded.
func (sc *Scan) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for {
			page, err := sc.Next(ctx)
			if errors.Is(err, Done) {
				return
			}
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

// Slots flattens Pages into individual slots.
func (sc *Scan) Slots(ctx context.Context) iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		for page, err := range sc.Pages(ctx) {
			if err != nil {
				yield(Slot{}, err)
				return
			}
			for _, slot := range page.Slots {
				if !yield(slot, nil) {
					return
				}
			}
		}
	}
}

// scanPage finds the landmark, queries each slot type on a fresh frame and
// reports whether the end marker was visible on the landmark frame.
func (s *Scanner) scanPage(ctx context.Context, index int, dir Direction, types []SlotType) (Page, bool, error) {
	frame, err := s.Capture(ctx)
	if err != nil {
		return Page{}, false, err
	}
	landmark, ok, err := s.matcher.FindFirst(frame, s.layout.Landmark, s.cfg.Clusterer)
	if err != nil {
		return Page{}, false, err
	}
	if !ok {
		return Page{}, false, agent.NewLayoutNotFoundError(s.layout.Landmark.Name)
	}

	page := Page{Index: index, Landmark: landmark, Slots: []Slot{}}
	for _, t := range types {
		if t >= numSlotTypes {
			return Page{}, false, fmt.Errorf("unknown slot type %d", t)
		}
		slotFrame, err := s.Capture(ctx)
		if err != nil {
			return Page{}, false, err
		}
		rects, err := s.detectors[t](slotFrame)
		if err != nil {
			return Page{}, false, err
		}
		for _, r := range rects {
			page.Slots = append(page.Slots, Slot{Type: t, Rect: r, Item: s.layout.Slots[t].Item})
		}
	}
	s.pages.Inc()

	end := false
	if dir == Forward {
		_, end, err = s.matcher.FindFirst(frame, s.layout.EndMarker, s.cfg.Clusterer)
		if err != nil {
			return Page{}, false, err
		}
	}

	s.logger.Debug().
		Int("page", index).
		Str("direction", dir.String()).
		Int("slots", len(page.Slots)).
		Bool("end", end).
		Msg("Scanned page")
	return page, end, nil
}

// SwipePath lays out the horizontal swipe across landmark shrunk by padding,
// along its vertical midline. Forward points run right to left, backward
// points left to right.
func SwipePath(landmark vision.Rectangle, padding, steps int, dir Direction) ([]image.Point, error) {
	inner := landmark.Shrink(padding)
	if !inner.Valid() || steps < 2 {
		return nil, fmt.Errorf("landmark %+v too small to swipe with padding %d", landmark, padding)
	}
	x1, y1 := inner.X, inner.Y
	x2, y2 := inner.X+inner.W, inner.Y+inner.H
	y := (y1 + y2) / 2
	spacing := (x2 - x1) / steps

	points := make([]image.Point, steps)
	for i := range points {
		points[i] = image.Pt(x2-i*spacing, y)
	}
	if dir == Backward {
		for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
			points[i], points[j] = points[j], points[i]
		}
	}
	return points, nil
}

func (s *Scanner) scroll(ctx context.Context, dir Direction, landmark vision.Rectangle) error {
	points, err := SwipePath(landmark, s.cfg.Padding, s.cfg.Steps, dir)
	if err != nil {
		return err
	}
	err = s.gate.Do(ctx, func() error {
		return device.Swipe(ctx, s.sink, points, s.cfg.StepDelay)
	})
	if err != nil {
		return err
	}
	return s.Sleep(ctx, s.cfg.Settle)
}
