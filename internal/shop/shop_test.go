package shop

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
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/vision"
)

func noise(seed uint64, w, h int) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 0xfa7))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.UintN(256))
	}
	return img
}

type harness struct {
	images  map[string]*image.Gray
	catalog Catalog
	dev     *devicetest.Device
	shop    *Shop
	slept   []time.Duration
}

// newHarness writes one noise template per catalog entry and builds a shop
// over a device serving frames.
func newHarness(t *testing.T, frames ...image.Image) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{images: map[string]*image.Gray{}, catalog: DefaultCatalog()}

	for i, target := range h.catalog.targets() {
		w, ht := 10, 10
		if target.Name == "layout" {
			w, ht = 60, 30
		}
		img := noise(uint64(i+1), w, ht)
		path := filepath.Join(dir, target.Name+".png")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
		h.images[target.Name] = img
		*target = vision.Target{Name: target.Name, Path: path, Threshold: 0.9}
	}

	exact := vision.Clusterer{GroupThreshold: 0, Eps: 0.5}
	h.dev = devicetest.New(frames...)
	gate := device.NewGate()
	cfg := scanner.Config{Padding: 5, Steps: 5, MaxPages: 10, Clusterer: exact}
	sc, err := scanner.New(h.dev, h.dev, gate, vision.NewMatcher(nil), h.catalog.ScanLayout(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("scanner.New: %v", err)
	}
	sc.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	h.shop = New(sc, h.dev, gate, h.catalog, zerolog.Nop())
	h.shop.Clusterer = exact
	h.shop.IconClusterer = exact
	h.shop.Sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return ctx.Err()
	}
	return h
}

// frame renders a 200x120 background with the named templates pasted at
// the given points. It can be called before or after the shop is built
// because template images only depend on their catalog position.
func frame(seed uint64, images map[string]*image.Gray, pastes map[string][]image.Point) *image.Gray {
	dst := noise(1000+seed, 200, 120)
	for name, points := range pastes {
		src := images[name]
		for _, at := range points {
			b := src.Bounds()
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					dst.SetGray(at.X+x, at.Y+y, src.GrayAt(x, y))
				}
			}
		}
	}
	return dst
}

// templates returns the images newHarness will generate, so frames can be
// built before the device exists.
func templates(t *testing.T) map[string]*image.Gray {
	return newHarness(t).images
}

func taps(calls []devicetest.Call) []image.Point {
	var out []image.Point
	for _, c := range calls {
		if c.Op == "down" {
			out = append(out, image.Pt(c.X, c.Y))
		}
	}
	return out
}

func TestOpenShopTapsCenter(t *testing.T) {
	imgs := templates(t)
	h := newHarness(t, frame(1, imgs, map[string][]image.Point{"roadside_shop": {{100, 50}}}))

	if err := h.shop.OpenShop(context.Background()); err != nil {
		t.Fatalf("OpenShop: %v", err)
	}
	calls := h.dev.Calls()
	want := []devicetest.Call{{Op: "down", X: 105, Y: 55}, {Op: "up", X: 105, Y: 55}}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
}

func TestOpenShopRejectsAmbiguousMatch(t *testing.T) {
	imgs := templates(t)
	h := newHarness(t, frame(1, imgs, map[string][]image.Point{"roadside_shop": {{100, 50}, {20, 20}}}))

	err := h.shop.OpenShop(context.Background())
	if !errors.Is(err, agent.ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
	if len(h.dev.Calls()) != 0 {
		t.Errorf("no tap expected, got %+v", h.dev.Calls())
	}
}

func TestPressQuantityPlusUsesUpperButton(t *testing.T) {
	imgs := templates(t)
	h := newHarness(t, frame(2, imgs, map[string][]image.Point{
		"plus":          {{150, 80}},
		"plus_disabled": {{150, 20}},
	}))

	if err := h.shop.PressQuantityPlus(context.Background(), 3); err != nil {
		t.Fatalf("PressQuantityPlus: %v", err)
	}
	got := taps(h.dev.Calls())
	if len(got) != 3 {
		t.Fatalf("expected 3 taps, got %v", got)
	}
	for _, p := range got {
		if p != image.Pt(155, 25) {
			t.Errorf("tap at %v, want (155,25)", p)
		}
	}
	if len(h.slept) != 3 || h.slept[0] != plusPause {
		t.Errorf("pauses = %v", h.slept)
	}
}

func TestPressQuantityPlusNeedsTwoButtons(t *testing.T) {
	imgs := templates(t)
	h := newHarness(t, frame(2, imgs, map[string][]image.Point{"plus": {{150, 80}}}))

	err := h.shop.PressQuantityPlus(context.Background(), 1)
	if !errors.Is(err, agent.ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
}

func TestCollectSoldTapsEverySoldSlot(t *testing.T) {
	imgs := templates(t)
	p1 := frame(3, imgs, map[string][]image.Point{"layout": {{20, 20}}, "sold": {{100, 10}, {100, 40}}})
	p2 := frame(4, imgs, map[string][]image.Point{
		"layout":            {{20, 20}},
		"sold":              {{120, 70}},
		"purchase_new_slot": {{170, 10}},
	})
	h := newHarness(t, p1, p1, p2, p2)

	n, err := h.shop.CollectSold(context.Background())
	if err != nil {
		t.Fatalf("CollectSold: %v", err)
	}
	if n != 3 {
		t.Fatalf("collected %d, want 3", n)
	}
	want := []image.Point{{105, 15}, {105, 45}, {75, 35}, {125, 75}}
	got := taps(h.dev.Calls())
	if len(got) != len(want) {
		t.Fatalf("presses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("press %d at %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAdvertiseFirstOccupiedSlot(t *testing.T) {
	imgs := templates(t)
	page := frame(5, imgs, map[string][]image.Point{"layout": {{20, 20}}, "occupied_by_wheat": {{150, 80}}})
	advertise := frame(6, imgs, map[string][]image.Point{"advertise_now": {{40, 60}}})
	create := frame(7, imgs, map[string][]image.Point{"create_advertisement": {{90, 90}}})
	h := newHarness(t, page, page, advertise, create)

	ok, err := h.shop.Advertise(context.Background())
	if err != nil || !ok {
		t.Fatalf("Advertise = %v, %v", ok, err)
	}
	want := []image.Point{{155, 85}, {45, 65}, {95, 95}}
	got := taps(h.dev.Calls())
	if len(got) != len(want) {
		t.Fatalf("presses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("press %d at %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSellPendingClosesShopWhenAdvertiseFails(t *testing.T) {
	imgs := templates(t)
	farm := frame(8, imgs, map[string][]image.Point{"roadside_shop": {{100, 50}}})
	last := frame(9, imgs, map[string][]image.Point{"layout": {{20, 20}}, "purchase_new_slot": {{170, 10}}})
	lost := frame(10, imgs, nil)
	dialog := frame(11, imgs, map[string][]image.Point{"x_button": {{180, 100}}})
	h := newHarness(t, farm, last, last, last, lost, dialog)

	_, err := h.shop.SellPending(context.Background(), 1)
	if !errors.Is(err, agent.ErrLayoutNotFound) {
		t.Fatalf("expected ErrLayoutNotFound, got %v", err)
	}
	want := []image.Point{{105, 55}, {185, 105}}
	got := taps(h.dev.Calls())
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("presses = %v, want open then close %v", got, want)
	}
}

func TestDefaultCatalogResolve(t *testing.T) {
	c := DefaultCatalog().Resolve("/assets", 0.5)

	if c.RoadsideShop.Path != "/assets/farm/roadside_shop.png" {
		t.Errorf("path = %q", c.RoadsideShop.Path)
	}
	if c.RoadsideShop.Threshold != 0.65 || !c.RoadsideShop.Mask {
		t.Errorf("roadside shop target = %+v", c.RoadsideShop)
	}
	if c.CreateNewSale.Mask {
		t.Errorf("create_new_sale must be matched unmasked")
	}
	if c.XButton.Scale != 0.5 {
		t.Errorf("scale not applied: %+v", c.XButton)
	}

	l := c.ScanLayout()
	if l.Landmark.Name != "layout" || l.EndMarker.Name != "purchase_new_slot" {
		t.Errorf("layout = %+v", l)
	}
	if l.Slots[scanner.Occupied].Item != "wheat" {
		t.Errorf("occupied slot item = %q", l.Slots[scanner.Occupied].Item)
	}
}
