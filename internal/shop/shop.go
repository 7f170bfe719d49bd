// Package shop drives the roadside shop: collecting sold slots, listing
// items for sale and advertising them.
package shop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/vision"
)

const (
	openPause   = 200 * time.Millisecond
	soldPause   = 150 * time.Millisecond
	stepPause   = 500 * time.Millisecond
	plusPause   = 100 * time.Millisecond
	toggleDelay = time.Second
)

// DefaultQuantity is how many times the quantity plus button is pressed per sale.
const DefaultQuantity = 5

// Shop runs the shop flows against one device.
type Shop struct {
	scanner *scanner.Scanner
	sink    device.TouchSink
	gate    *device.Gate
	catalog Catalog
	logger  zerolog.Logger

	// Clusterer merges the hits of single buttons and icons.
	Clusterer vision.Clusterer
	// IconClusterer merges the enabled and disabled plus icons as one set.
	IconClusterer vision.Clusterer
	Sleep         agent.SleepFunc
}

// New creates a Shop. The scanner must have been built from catalog.ScanLayout.
func New(sc *scanner.Scanner, sink device.TouchSink, gate *device.Gate, catalog Catalog, logger zerolog.Logger) *Shop {
	return &Shop{
		scanner:       sc,
		sink:          sink,
		gate:          gate,
		catalog:       catalog,
		logger:        logger.With().Str("component", "shop").Logger(),
		Clusterer:     vision.DefaultClusterer,
		IconClusterer: vision.Clusterer{GroupThreshold: 1, Eps: 0.2},
		Sleep:         agent.Sleep,
	}
}

func (s *Shop) find(ctx context.Context, target vision.Target) ([]vision.Rectangle, error) {
	frame, err := s.scanner.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return s.scanner.Matcher().Find(frame, target, s.Clusterer)
}

func (s *Shop) tap(ctx context.Context, r vision.Rectangle) error {
	c := r.Center()
	return s.gate.Do(ctx, func() error {
		return device.Tap(ctx, s.sink, c.X, c.Y)
	})
}

// tapOne taps target, which must be visible exactly once.
func (s *Shop) tapOne(ctx context.Context, target vision.Target) error {
	rects, err := s.find(ctx, target)
	if err != nil {
		return err
	}
	rects, err = vision.Expect(target.Name, rects, 1)
	if err != nil {
		return err
	}
	return s.tap(ctx, rects[0])
}

// OpenShop taps the roadside shop on the farm view.
func (s *Shop) OpenShop(ctx context.Context) error {
	if err := s.tapOne(ctx, s.catalog.RoadsideShop); err != nil {
		return fmt.Errorf("open shop: %w", err)
	}
	return s.Sleep(ctx, openPause)
}

// Close taps the x button of the current dialog.
func (s *Shop) Close(ctx context.Context) error {
	if err := s.tapOne(ctx, s.catalog.XButton); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// CollectSold walks the shop forward and taps every sold slot. It returns
// the number of slots collected.
func (s *Shop) CollectSold(ctx context.Context) (int, error) {
	n := 0
	for slot, err := range s.scanner.Scan(scanner.Forward, scanner.Sold).Slots(ctx) {
		if err != nil {
			return n, fmt.Errorf("collect sold: %w", err)
		}
		if err := s.collect(ctx, slot); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Shop) collect(ctx context.Context, slot scanner.Slot) error {
	if err := s.tap(ctx, slot.Rect); err != nil {
		return fmt.Errorf("collect slot at %v: %w", slot.Rect.Center(), err)
	}
	return s.Sleep(ctx, soldPause)
}

// ensureSiloTab switches the sale preview to the silo inventory unless it
// already shows it.
func (s *Shop) ensureSiloTab(ctx context.Context) error {
	frame, err := s.scanner.Capture(ctx)
	if err != nil {
		return err
	}
	m := s.scanner.Matcher()
	storage, err := m.Find(frame, s.catalog.SiloStorage, s.Clusterer)
	if err != nil {
		return err
	}
	if len(storage) == 1 {
		return nil
	}
	icons, err := m.Find(frame, s.catalog.SiloIcon, s.Clusterer)
	if err != nil {
		return err
	}
	icons, err = vision.Expect(s.catalog.SiloIcon.Name, icons, 1)
	if err != nil {
		return err
	}
	return s.tap(ctx, icons[0])
}

// ItemAvailable opens the silo tab of the sale preview and reports whether
// the wheat icon is on it.
func (s *Shop) ItemAvailable(ctx context.Context) (bool, error) {
	if err := s.ensureSiloTab(ctx); err != nil {
		return false, fmt.Errorf("silo tab: %w", err)
	}
	if err := s.Sleep(ctx, toggleDelay); err != nil {
		return false, err
	}
	rects, err := s.find(ctx, s.catalog.WheatIcon)
	if err != nil {
		return false, err
	}
	return len(rects) == 1, nil
}

// PressQuantityPlus taps the quantity plus button times. Both plus buttons
// of the sale preview are located, enabled or not, and the upper one is
// the quantity control.
func (s *Shop) PressQuantityPlus(ctx context.Context, times int) error {
	frame, err := s.scanner.Capture(ctx)
	if err != nil {
		return err
	}
	targets := []vision.Target{s.catalog.Plus, s.catalog.PlusDisabled}
	rects, err := s.scanner.Matcher().FindAll(frame, targets, s.IconClusterer)
	if err != nil {
		return err
	}
	rects, err = vision.Expect("plus buttons", rects, 2)
	if err != nil {
		return err
	}
	sort.SliceStable(rects, func(i, j int) bool {
		return rects[i].Center().Y < rects[j].Center().Y
	})

	for i := 0; i < times; i++ {
		if err := s.tap(ctx, rects[0]); err != nil {
			return err
		}
		if err := s.Sleep(ctx, plusPause); err != nil {
			return err
		}
	}
	return nil
}

// SellItem fills in the open sale preview: wheat, quantity, maximum price,
// then puts it on sale.
func (s *Shop) SellItem(ctx context.Context, quantity int) error {
	if err := s.tapOne(ctx, s.catalog.WheatIcon); err != nil {
		return fmt.Errorf("select item: %w", err)
	}
	if err := s.PressQuantityPlus(ctx, quantity); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	if err := s.tapOne(ctx, s.catalog.PlusMax); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if err := s.tapOne(ctx, s.catalog.PutOnSale); err != nil {
		return fmt.Errorf("put on sale: %w", err)
	}
	return s.Sleep(ctx, stepPause)
}

// Advertise walks the shop backward and advertises the first slot holding
// wheat. It reports whether an advertisement was created.
func (s *Shop) Advertise(ctx context.Context) (bool, error) {
	for slot, err := range s.scanner.Scan(scanner.Backward, scanner.Occupied).Slots(ctx) {
		if err != nil {
			return false, fmt.Errorf("advertise: %w", err)
		}
		steps := []func() error{
			func() error { return s.tap(ctx, slot.Rect) },
			func() error { return s.tapOne(ctx, s.catalog.AdvertiseNow) },
			func() error { return s.tapOne(ctx, s.catalog.CreateAdvertisement) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return false, fmt.Errorf("advertise: %w", err)
			}
			if err := s.Sleep(ctx, stepPause); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

// Summary counts what one SellPending pass did.
type Summary struct {
	Collected  int  `json:"collected"`
	Listed     int  `json:"listed"`
	OutOfStock bool `json:"out_of_stock"`
	Advertised bool `json:"advertised"`
}

// SellPending opens the shop, collects sold slots, lists wheat in open
// slots until the silo runs out, advertises one listing and closes the shop.
// The shop is closed on failure too, unless ctx is done.
func (s *Shop) SellPending(ctx context.Context, quantity int) (Summary, error) {
	var sum Summary
	if err := s.OpenShop(ctx); err != nil {
		return sum, err
	}
	fail := func(err error) (Summary, error) {
		if ctx.Err() != nil {
			return sum, err
		}
		return sum, errors.Join(err, s.Close(ctx))
	}

	for slot, err := range s.scanner.Scan(scanner.Forward, scanner.Sold, scanner.Open).Slots(ctx) {
		if err != nil {
			return fail(fmt.Errorf("sell pending: %w", err))
		}
		switch slot.Type {
		case scanner.Sold:
			if err := s.collect(ctx, slot); err != nil {
				return fail(err)
			}
			sum.Collected++
		case scanner.Open:
			if sum.OutOfStock {
				continue
			}
			listed, err := s.listSlot(ctx, slot, quantity)
			if err != nil {
				return fail(err)
			}
			if listed {
				sum.Listed++
			} else {
				sum.OutOfStock = true
			}
		}
	}

	advertised, err := s.Advertise(ctx)
	if err != nil && !errors.Is(err, agent.ErrAmbiguousMatch) {
		return fail(err)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Advertisement skipped")
	}
	sum.Advertised = advertised

	s.logger.Info().
		Int("collected", sum.Collected).
		Int("listed", sum.Listed).
		Bool("out_of_stock", sum.OutOfStock).
		Bool("advertised", sum.Advertised).
		Msg("Shop pass complete")
	return sum, s.Close(ctx)
}

// listSlot opens an empty slot and sells into it. It returns false, after
// closing the preview, when there is nothing left to sell.
func (s *Shop) listSlot(ctx context.Context, slot scanner.Slot, quantity int) (bool, error) {
	if err := s.tap(ctx, slot.Rect); err != nil {
		return false, err
	}
	if err := s.Sleep(ctx, stepPause); err != nil {
		return false, err
	}
	ok, err := s.ItemAvailable(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Info().Msg("No wheat left to sell")
		if err := s.Close(ctx); err != nil {
			return false, err
		}
		return false, s.Sleep(ctx, stepPause)
	}
	if err := s.SellItem(ctx, quantity); err != nil {
		return false, err
	}
	return true, nil
}

