package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/gesture"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/shop"
)

const (
	labelPlant   = "plant_crops"
	labelHarvest = "harvest_crops"
)

var (
	farmCycles   int
	farmGrowMin  time.Duration
	farmGrowMax  time.Duration
	farmRestMin  time.Duration
	farmRestMax  time.Duration
	farmNoSell   bool
	farmQuantity int
)

var farmCmd = &cobra.Command{
	Use:   "farm",
	Short: "Plant, sell and harvest in a loop",
	Long: `Run the farm loop: replay plant_crops, sell pending wheat while the crops
grow, replay harvest_crops, then plant and harvest twice more without selling.
The script file is reloaded whenever it changes on disk.`,
	RunE: runFarm,
}

func init() {
	farmCmd.Flags().IntVarP(&farmCycles, "cycles", "n", 0, "Number of cycles to run (0 = until interrupted)")
	farmCmd.Flags().DurationVar(&farmGrowMin, "grow-min", 123*time.Second, "Minimum wait for crops to grow")
	farmCmd.Flags().DurationVar(&farmGrowMax, "grow-max", 125*time.Second, "Maximum wait for crops to grow")
	farmCmd.Flags().DurationVar(&farmRestMin, "rest-min", 3*time.Second, "Minimum pause after a harvest")
	farmCmd.Flags().DurationVar(&farmRestMax, "rest-max", 5*time.Second, "Maximum pause after a harvest")
	farmCmd.Flags().BoolVar(&farmNoSell, "no-sell", false, "Skip the roadside shop")
	farmCmd.Flags().IntVarP(&farmQuantity, "quantity", "q", 0, "Quantity plus presses per sale (default: shop.quantity from config)")
}

// farmer runs farm cycles against injected actions.
type farmer struct {
	replay func(ctx context.Context, label string) error
	// sell may be nil to skip the shop.
	sell   func(ctx context.Context) (shop.Summary, error)
	sleep  agent.SleepFunc
	jitter func(min, max time.Duration) time.Duration
	now    func() time.Time

	growMin, growMax time.Duration
	restMin, restMax time.Duration
}

// cycleReport is the run detail of one farm cycle.
type cycleReport struct {
	Replays   []string      `json:"replays"`
	Shop      *shop.Summary `json:"shop,omitempty"`
	ShopError string        `json:"shop_error,omitempty"`
}

// cycle plants, sells while the first crop grows, harvests, then plants
// and harvests twice more.
func (f *farmer) cycle(ctx context.Context) (*cycleReport, error) {
	rep := &cycleReport{}
	replay := func(label string) error {
		if err := f.replay(ctx, label); err != nil {
			return fmt.Errorf("replay %s: %w", label, err)
		}
		rep.Replays = append(rep.Replays, label)
		return nil
	}

	if err := replay(labelPlant); err != nil {
		return rep, err
	}
	start := f.now()

	if f.sell != nil {
		if err := f.sleep(ctx, time.Second); err != nil {
			return rep, err
		}
		summary, err := f.sell(ctx)
		switch {
		case err == nil:
			rep.Shop = &summary
		case ctx.Err() != nil:
			return rep, ctx.Err()
		default:
			// Unsold wheat waits for the next cycle; the crops still need harvesting.
			rep.ShopError = err.Error()
			logger.Warn().Err(err).Msg("Shop pass failed")
		}
	}

	elapsed := f.now().Sub(start)
	if elapsed <= f.growMax {
		if err := f.sleep(ctx, f.jitter(max(f.growMin-elapsed, 0), f.growMax-elapsed)); err != nil {
			return rep, err
		}
	}
	if err := replay(labelHarvest); err != nil {
		return rep, err
	}
	if err := f.sleep(ctx, f.jitter(f.restMin, f.restMax)); err != nil {
		return rep, err
	}

	for i := 0; i < 2; i++ {
		if err := replay(labelPlant); err != nil {
			return rep, err
		}
		if err := f.sleep(ctx, f.jitter(f.growMin, f.growMax)); err != nil {
			return rep, err
		}
		if err := replay(labelHarvest); err != nil {
			return rep, err
		}
		if err := f.sleep(ctx, f.jitter(f.restMin, f.restMax)); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func runFarm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := gesture.NewScriptStore(cfg.Script, logger)
	if err != nil {
		return err
	}
	for _, label := range []string{labelPlant, labelHarvest} {
		if _, err := store.Current().Lookup(label); err != nil {
			return err
		}
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			logger.Error().Err(err).Msg("Script watcher stopped")
		}
	}()

	reg := prometheus.NewRegistry()
	if err := scanner.RegisterMetrics(reg); err != nil {
		return err
	}
	serveMetrics(ctx, cfg.MetricsAddr, reg)

	r := newRig(cfg)
	replayer := gesture.NewReplayer(r.sink, r.gate, cfg.Replay, logger)

	f := &farmer{
		replay: func(ctx context.Context, label string) error {
			return replayer.Replay(ctx, store.Current(), label)
		},
		sleep:   agent.Sleep,
		jitter:  func(min, max time.Duration) time.Duration { return agent.Jitter(nil, min, max) },
		now:     time.Now,
		growMin: farmGrowMin,
		growMax: farmGrowMax,
		restMin: farmRestMin,
		restMax: farmRestMax,
	}
	if !farmNoSell {
		sh, _, err := r.newShop(cfg)
		if err != nil {
			return err
		}
		quantity := farmQuantity
		if quantity <= 0 {
			quantity = cfg.SellQuantity
		}
		f.sell = func(ctx context.Context) (shop.Summary, error) {
			return sh.SellPending(ctx, quantity)
		}
	}

	for n := 1; farmCycles == 0 || n <= farmCycles; n++ {
		logger.Info().Int("cycle", n).Msg("Farm cycle started")
		err := journaled("farm", fmt.Sprintf("cycle %d", n), func() (any, error) {
			return f.cycle(ctx)
		})
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "🛑 Stopped after %d cycles\n", n-1)
			return nil
		}
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Finished %d cycles\n", farmCycles)
	return nil
}
