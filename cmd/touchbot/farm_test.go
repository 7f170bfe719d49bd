package main

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/shop"
)

type fakeFarm struct {
	clock   time.Time
	replays []string
	sleeps  []time.Duration
	failOn  string
}

func (f *fakeFarm) farmer(sell func(context.Context) (shop.Summary, error)) *farmer {
	return &farmer{
		replay: func(_ context.Context, label string) error {
			if label == f.failOn {
				return agent.NewLabelNotFoundError(label)
			}
			f.replays = append(f.replays, label)
			return nil
		},
		sell: sell,
		sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			f.clock = f.clock.Add(d)
			return ctx.Err()
		},
		jitter:  func(min, max time.Duration) time.Duration { return min },
		now:     func() time.Time { return f.clock },
		growMin: 123 * time.Second,
		growMax: 125 * time.Second,
		restMin: 3 * time.Second,
		restMax: 5 * time.Second,
	}
}

func TestFarmCycleSellsWhileCropsGrow(t *testing.T) {
	ff := &fakeFarm{clock: time.Unix(0, 0)}
	f := ff.farmer(func(context.Context) (shop.Summary, error) {
		ff.clock = ff.clock.Add(20 * time.Second)
		return shop.Summary{Collected: 2, Listed: 1}, nil
	})

	rep, err := f.cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}

	wantReplays := []string{labelPlant, labelHarvest, labelPlant, labelHarvest, labelPlant, labelHarvest}
	if !reflect.DeepEqual(ff.replays, wantReplays) {
		t.Errorf("replays = %v", ff.replays)
	}
	// The first grow wait is shortened by the 21s spent in the shop.
	wantSleeps := []time.Duration{
		time.Second, 102 * time.Second, 3 * time.Second,
		123 * time.Second, 3 * time.Second,
		123 * time.Second, 3 * time.Second,
	}
	if !reflect.DeepEqual(ff.sleeps, wantSleeps) {
		t.Errorf("sleeps = %v, want %v", ff.sleeps, wantSleeps)
	}
	if rep.Shop == nil || rep.Shop.Collected != 2 {
		t.Errorf("shop summary = %+v", rep.Shop)
	}
}

func TestFarmCycleContinuesAfterShopFailure(t *testing.T) {
	ff := &fakeFarm{clock: time.Unix(0, 0)}
	f := ff.farmer(func(context.Context) (shop.Summary, error) {
		return shop.Summary{}, agent.NewAmbiguousMatchError("roadside_shop", 1, 0)
	})

	rep, err := f.cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if rep.ShopError == "" || rep.Shop != nil {
		t.Errorf("report = %+v", rep)
	}
	if len(ff.replays) != 6 {
		t.Errorf("replays = %v", ff.replays)
	}
}

func TestFarmCycleStopsOnReplayError(t *testing.T) {
	ff := &fakeFarm{clock: time.Unix(0, 0), failOn: labelHarvest}
	f := ff.farmer(nil)

	_, err := f.cycle(context.Background())
	if !errors.Is(err, agent.ErrLabelNotFound) {
		t.Fatalf("expected ErrLabelNotFound, got %v", err)
	}
	if !reflect.DeepEqual(ff.replays, []string{labelPlant}) {
		t.Errorf("replays = %v", ff.replays)
	}
	if len(ff.sleeps) != 1 || ff.sleeps[0] != 123*time.Second {
		t.Errorf("without a shop the full grow wait applies, got %v", ff.sleeps)
	}
}
