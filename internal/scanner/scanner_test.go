package scanner

import (
	"context"
	"errors"
	"image"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/device/devicetest"
	"github.com/dreamup/touchbot/internal/vision"
)

func noise(seed uint64, w, h int) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.UintN(256))
	}
	return img
}

func paste(dst, src *image.Gray, at image.Point) {
	b := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(at.X+x, at.Y+y, src.GrayAt(x, y))
		}
	}
}

type fixture struct {
	landmark, marker, sold, open, occupied *image.Gray
	layout                                 Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		landmark: noise(1, 60, 30),
		marker:   noise(2, 12, 8),
		sold:     noise(3, 10, 10),
		open:     noise(4, 10, 10),
		occupied: noise(5, 10, 10),
	}
	write := func(name string, img *image.Gray) vision.Target {
		path := filepath.Join(dir, name+".png")
		out, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		defer out.Close()
		if err := png.Encode(out, img); err != nil {
			t.Fatal(err)
		}
		return vision.Target{Name: name, Path: path, Threshold: 0.9}
	}
	f.layout = Layout{
		Landmark:  write("layout", f.landmark),
		EndMarker: write("end", f.marker),
	}
	f.layout.Slots[Sold] = SlotTarget{Target: write("sold", f.sold)}
	f.layout.Slots[Open] = SlotTarget{Target: write("open", f.open)}
	f.layout.Slots[Occupied] = SlotTarget{Target: write("occupied", f.occupied), Item: "wheat"}
	return f
}

// page draws a 200x120 frame with the landmark at (20,20) and the given
// templates pasted on top.
func (f *fixture) page(seed uint64, pastes map[image.Point]*image.Gray) *image.Gray {
	frame := noise(100+seed, 200, 120)
	paste(frame, f.landmark, image.Pt(20, 20))
	for at, img := range pastes {
		paste(frame, img, at)
	}
	return frame
}

func repeat(img image.Image, n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = img
	}
	return out
}

func testConfig() Config {
	return Config{
		Padding:   5,
		Steps:     5,
		Settle:    330 * time.Millisecond,
		MaxPages:  30,
		Clusterer: vision.Clusterer{GroupThreshold: 0, Eps: 0.5},
	}
}

func newScanner(t *testing.T, f *fixture, dev *devicetest.Device, cfg Config) (*Scanner, *[]time.Duration) {
	t.Helper()
	s, err := New(dev, dev, device.NewGate(), vision.NewMatcher(nil), f.layout, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var slept []time.Duration
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestForwardScanStopsAtEndMarker(t *testing.T) {
	f := newFixture(t)
	p1 := f.page(1, map[image.Point]*image.Gray{image.Pt(100, 10): f.sold, image.Pt(100, 40): f.sold})
	p2 := f.page(2, map[image.Point]*image.Gray{image.Pt(120, 70): f.open})
	p3 := f.page(3, map[image.Point]*image.Gray{image.Pt(150, 80): f.occupied, image.Pt(170, 10): f.marker})

	var frames []image.Image
	for _, p := range []image.Image{p1, p2, p3} {
		frames = append(frames, repeat(p, 4)...)
	}
	dev := devicetest.New(frames...)
	s, slept := newScanner(t, f, dev, testConfig())

	scan := s.Scan(Forward)
	var pages []Page
	for {
		page, err := scan.Next(context.Background())
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		pages = append(pages, page)
	}

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if got := dev.FrameCount(); got != 12 {
		t.Errorf("expected 12 captures, got %d", got)
	}
	downs := 0
	for _, op := range dev.Ops() {
		if op == "down" {
			downs++
		}
	}
	if downs != 2 {
		t.Errorf("expected 2 swipes, got %d", downs)
	}
	if len(*slept) != 2 {
		t.Errorf("expected a settle after each swipe, got %v", *slept)
	}

	want := [][]Slot{
		{{Type: Sold, Rect: vision.Rect(100, 10, 10, 10)}, {Type: Sold, Rect: vision.Rect(100, 40, 10, 10)}},
		{{Type: Open, Rect: vision.Rect(120, 70, 10, 10)}},
		{{Type: Occupied, Rect: vision.Rect(150, 80, 10, 10), Item: "wheat"}},
	}
	for i, page := range pages {
		if page.Index != i {
			t.Errorf("page %d has index %d", i, page.Index)
		}
		if page.Landmark != vision.Rect(20, 20, 60, 30) {
			t.Errorf("page %d landmark = %+v", i, page.Landmark)
		}
		if len(page.Slots) != len(want[i]) {
			t.Errorf("page %d slots = %+v, want %+v", i, page.Slots, want[i])
			continue
		}
		for j := range want[i] {
			if page.Slots[j] != want[i][j] {
				t.Errorf("page %d slot %d = %+v, want %+v", i, j, page.Slots[j], want[i][j])
			}
		}
	}

	if _, err := scan.Next(context.Background()); !errors.Is(err, Done) {
		t.Errorf("expected Done after the last page, got %v", err)
	}
}

func TestSwipeDirection(t *testing.T) {
	landmark := vision.Rect(20, 20, 60, 30)

	forward, err := SwipePath(landmark, 5, 5, Forward)
	if err != nil {
		t.Fatal(err)
	}
	want := []image.Point{{75, 35}, {65, 35}, {55, 35}, {45, 35}, {35, 35}}
	for i := range want {
		if forward[i] != want[i] {
			t.Fatalf("forward path = %v, want %v", forward, want)
		}
	}

	backward, err := SwipePath(landmark, 5, 5, Backward)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if backward[i] != want[len(want)-1-i] {
			t.Fatalf("backward path = %v", backward)
		}
	}

	if _, err := SwipePath(vision.Rect(0, 0, 8, 8), 5, 5, Forward); err == nil {
		t.Errorf("expected an error when padding swallows the landmark")
	}
}

func TestBackwardScanIsBoundedByMaxPages(t *testing.T) {
	f := newFixture(t)
	// The end marker is ignored when scanning backward.
	p := f.page(1, map[image.Point]*image.Gray{image.Pt(150, 80): f.occupied, image.Pt(170, 10): f.marker})
	dev := devicetest.New(repeat(p, 10)...)
	cfg := testConfig()
	cfg.MaxPages = 2
	s, _ := newScanner(t, f, dev, cfg)

	n := 0
	for page, err := range s.Scan(Backward, Occupied).Pages(context.Background()) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(page.Slots) != 1 || page.Slots[0].Type != Occupied {
			t.Errorf("page %d slots = %+v", page.Index, page.Slots)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}

	calls := dev.Calls()
	if len(calls) != 5 || calls[0].Op != "down" || calls[0].X != 35 || calls[4].Op != "up" || calls[4].X != 75 {
		t.Errorf("unexpected backward swipe: %+v", calls)
	}
}

func TestBackwardScanWithoutLimitUsesDefault(t *testing.T) {
	f := newFixture(t)
	p := f.page(1, nil)
	dev := devicetest.New()
	dev.FrameHook = func(int) (image.Image, error) { return p, nil }
	cfg := testConfig()
	cfg.MaxPages = 0
	s, _ := newScanner(t, f, dev, cfg)

	n := 0
	for _, err := range s.Scan(Backward, Occupied).Pages(context.Background()) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		n++
		if n > DefaultMaxPages+5 {
			t.Fatalf("backward scan did not stop after %d pages", n)
		}
	}
	if n != DefaultMaxPages {
		t.Fatalf("expected %d pages, got %d", DefaultMaxPages, n)
	}
	if swipes := len(dev.Calls()) / cfg.Steps; swipes != DefaultMaxPages-1 {
		t.Errorf("expected %d swipes, got %d", DefaultMaxPages-1, swipes)
	}
}

func TestMissingLandmarkIsLayoutError(t *testing.T) {
	f := newFixture(t)
	dev := devicetest.New(noise(99, 200, 120))
	s, _ := newScanner(t, f, dev, testConfig())

	_, err := s.Scan(Forward).Next(context.Background())
	if !errors.Is(err, agent.ErrLayoutNotFound) {
		t.Fatalf("expected ErrLayoutNotFound, got %v", err)
	}
	if len(dev.Calls()) != 0 {
		t.Errorf("no touch commands expected, got %+v", dev.Calls())
	}
}

func TestCancelBetweenPages(t *testing.T) {
	f := newFixture(t)
	dev := devicetest.New(repeat(f.page(1, nil), 8)...)
	s, _ := newScanner(t, f, dev, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	scan := s.Scan(Forward, Sold)
	if _, err := scan.Next(ctx); err != nil {
		t.Fatalf("first page: %v", err)
	}
	cancel()
	if _, err := scan.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dev.Calls()) != 0 {
		t.Errorf("swipe started after cancellation: %+v", dev.Calls())
	}
}

func TestSlotsFlattensPages(t *testing.T) {
	f := newFixture(t)
	p1 := f.page(1, map[image.Point]*image.Gray{image.Pt(100, 10): f.sold})
	p2 := f.page(2, map[image.Point]*image.Gray{image.Pt(100, 40): f.sold, image.Pt(170, 10): f.marker})
	dev := devicetest.New(append(repeat(p1, 2), repeat(p2, 2)...)...)
	s, _ := newScanner(t, f, dev, testConfig())

	var got []vision.Rectangle
	for slot, err := range s.Scan(Forward, Sold).Slots(context.Background()) {
		if err != nil {
			t.Fatalf("slots: %v", err)
		}
		got = append(got, slot.Rect)
	}
	if len(got) != 2 || got[0] != vision.Rect(100, 10, 10, 10) || got[1] != vision.Rect(100, 40, 10, 10) {
		t.Errorf("slots = %+v", got)
	}
}

func TestNewRequiresEverySlotTemplate(t *testing.T) {
	f := newFixture(t)
	f.layout.Slots[Open] = SlotTarget{}
	_, err := New(devicetest.New(), devicetest.New(), nil, vision.NewMatcher(nil), f.layout, testConfig(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for a slot type without a template")
	}
}

func TestSlotTypeNames(t *testing.T) {
	for _, st := range AllSlotTypes {
		back, err := ParseSlotType(st.String())
		if err != nil || back != st {
			t.Errorf("round trip of %s gave %v, %v", st, back, err)
		}
	}
	if _, err := ParseSlotType("empty"); err == nil {
		t.Error("expected an error for an unknown name")
	}
}
