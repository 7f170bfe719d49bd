package gesture

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/device"
)

// ReplayOptions controls playback timing and scaling.
type ReplayOptions struct {
	Resolution device.Resolution
	// Delay after every event is drawn uniformly from [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration
	// One pause between the clicks and the drags, drawn from [MinPause, MaxPause].
	MinPause time.Duration
	MaxPause time.Duration
}

// DefaultReplayOptions returns human-like timings at the default resolution.
func DefaultReplayOptions() ReplayOptions {
	return ReplayOptions{
		Resolution: device.DefaultResolution,
		MinDelay:   30 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		MinPause:   800 * time.Millisecond,
		MaxPause:   1200 * time.Millisecond,
	}
}

// Replayer plays labeled script entries against a touch sink.
type Replayer struct {
	sink   device.TouchSink
	gate   *device.Gate
	opts   ReplayOptions
	logger zerolog.Logger

	// Rand and Sleep may be replaced before use; tests make them deterministic.
	Rand  *rand.Rand
	Sleep agent.SleepFunc
}

// NewReplayer creates a Replayer. gate may be shared with other users of sink.
func NewReplayer(sink device.TouchSink, gate *device.Gate, opts ReplayOptions, logger zerolog.Logger) *Replayer {
	if gate == nil {
		gate = device.NewGate()
	}
	if !opts.Resolution.Valid() {
		opts.Resolution = device.DefaultResolution
	}
	return &Replayer{
		sink:   sink,
		gate:   gate,
		opts:   opts,
		logger: logger.With().Str("component", "replayer").Logger(),
		Sleep:  agent.Sleep,
	}
}

// Replay plays the first entry of script labeled label.
func (r *Replayer) Replay(ctx context.Context, script Script, label string) error {
	entry, err := script.Lookup(label)
	if err != nil {
		return err
	}
	return r.ReplayEntry(ctx, entry)
}

// ReplayEntry plays every click, pauses once, then plays every drag. The
// sink gate is held throughout. Cancellation is honoured between events;
// a pointer left down by the cancelled gesture is released first.
func (r *Replayer) ReplayEntry(ctx context.Context, entry Entry) error {
	if err := r.gate.Acquire(ctx); err != nil {
		return err
	}
	defer r.gate.Release()

	start := time.Now()
	r.logger.Info().
		Str("label", entry.Label).
		Int("clicks", len(entry.Clicks)).
		Int("drags", len(entry.Drags)).
		Msg("Replaying")

	for _, click := range entry.Clicks {
		if err := r.play(ctx, click); err != nil {
			return err
		}
	}

	if err := r.Sleep(ctx, agent.Jitter(r.Rand, r.opts.MinPause, r.opts.MaxPause)); err != nil {
		return err
	}

	for _, drag := range entry.Drags {
		if err := r.play(ctx, drag); err != nil {
			return err
		}
	}

	r.logger.Debug().Str("label", entry.Label).Dur("elapsed", time.Since(start)).Msg("Replay finished")
	return nil
}

func (r *Replayer) play(ctx context.Context, events []PointerEvent) error {
	cmdCtx := context.WithoutCancel(ctx)
	var (
		pressed bool
		lx, ly  int
	)
	abort := func(cause error) error {
		if pressed {
			if err := r.sink.Up(cmdCtx, lx, ly); err != nil {
				r.logger.Warn().Err(err).Msg("Release after cancel failed")
			}
		}
		return cause
	}

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		x, y := r.opts.Resolution.Scale(e.X, e.Y)
		if err := send(cmdCtx, r.sink, e.Type, x, y); err != nil {
			return abort(err)
		}
		lx, ly = x, y
		switch e.Type {
		case Down:
			pressed = true
		case Up:
			pressed = false
		}

		if err := r.Sleep(ctx, agent.Jitter(r.Rand, r.opts.MinDelay, r.opts.MaxDelay)); err != nil {
			return abort(err)
		}
	}
	return nil
}

// send dispatches one event to sink.
func send(ctx context.Context, sink device.TouchSink, kind Kind, x, y int) error {
	var err error
	switch kind {
	case Down:
		err = sink.Down(ctx, x, y)
	case Move:
		err = sink.Move(ctx, x, y)
	case Up:
		err = sink.Up(ctx, x, y)
	default:
		return nil
	}
	if err != nil {
		return agent.NewTouchError(kind.String(), err)
	}
	return nil
}
