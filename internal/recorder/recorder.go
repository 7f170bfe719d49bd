// Package recorder accepts live pointer batches, persists them to an event
// log and mirrors them onto the device.
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/gesture"
)

// BatchWriter persists one line of events.
type BatchWriter interface {
	AppendBatch(events []gesture.PointerEvent) error
}

// Options tunes persistence and draining.
type Options struct {
	// FlushEvery is how many submitted batches are buffered before a write.
	FlushEvery int
	// Idle is how long the drain loop waits when the queue is empty.
	Idle       time.Duration
	Resolution device.Resolution
}

// DefaultOptions flushes every 10 batches and idles 100ms.
func DefaultOptions() Options {
	return Options{FlushEvery: 10, Idle: 100 * time.Millisecond, Resolution: device.DefaultResolution}
}

// Recorder is a single-consumer FIFO of pointer events. Submit may be called
// from any goroutine; Run (or HandleNextEvent) must be driven by one.
//
// Up to FlushEvery-1 batches live only in memory; an unclean exit loses them.
type Recorder struct {
	sink    device.TouchSink
	gate    *device.Gate
	log     BatchWriter
	opts    Options
	metrics *Metrics
	logger  zerolog.Logger
	sleep   agent.SleepFunc

	mu      sync.Mutex
	pending []gesture.PointerEvent
	buffer  [][]gesture.PointerEvent
	batches int

	engaged atomic.Bool

	// Drain side only.
	lastX int
	lastY int
}

// New creates a Recorder. metrics may be nil.
func New(sink device.TouchSink, gate *device.Gate, log BatchWriter, opts Options, metrics *Metrics, logger zerolog.Logger) *Recorder {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultOptions().FlushEvery
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultOptions().Idle
	}
	if !opts.Resolution.Valid() {
		opts.Resolution = device.DefaultResolution
	}
	if gate == nil {
		gate = device.NewGate()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Recorder{
		sink:    sink,
		gate:    gate,
		log:     log,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With().Str("component", "recorder").Logger(),
		sleep:   agent.Sleep,
	}
}

// Submit queues batch for the device and buffers it for the event log.
// Every FlushEvery-th batch writes the buffered batches as one line.
func (r *Recorder) Submit(batch []gesture.PointerEvent) error {
	if len(batch) == 0 {
		return nil
	}
	own := make([]gesture.PointerEvent, len(batch))
	copy(own, batch)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, own...)
	r.buffer = append(r.buffer, own)
	r.batches++
	r.metrics.EventsSubmitted.Add(float64(len(own)))
	r.metrics.QueueDepth.Set(float64(len(r.pending)))

	if r.batches%r.opts.FlushEvery == 0 {
		return r.flushLocked()
	}
	return nil
}

func (r *Recorder) flushLocked() error {
	if len(r.buffer) == 0 || r.log == nil {
		r.buffer = nil
		return nil
	}
	var line []gesture.PointerEvent
	for _, b := range r.buffer {
		line = append(line, b...)
	}
	n := len(r.buffer)
	if err := r.log.AppendBatch(line); err != nil {
		return err
	}
	r.buffer = nil
	r.metrics.BatchesFlushed.Add(float64(n))
	r.logger.Debug().Int("batches", n).Int("events", len(line)).Msg("Flushed event log")
	return nil
}

// Flush writes any buffered batches now.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

// Pending reports how many events wait to be drained.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// HandleNextEvent drains the oldest event. It reports false when the queue
// was empty. A down waits for the sink gate; the gate stays held until the
// matching up. Moves outside a down..up pair are dropped so a desynced
// stream cannot drag the pointer. An up is always sent; without a down it
// takes the gate just for that command. Device commands are never
// interrupted once sent.
func (r *Recorder) HandleNextEvent(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return false, nil
	}
	e := r.pending[0]
	r.mu.Unlock()

	if (e.Type == gesture.Down || e.Type == gesture.Up) && !r.engaged.Load() {
		if err := r.gate.Acquire(ctx); err != nil {
			return false, err
		}
	}

	r.mu.Lock()
	r.pending = r.pending[1:]
	r.metrics.QueueDepth.Set(float64(len(r.pending)))
	r.mu.Unlock()

	cmdCtx := context.WithoutCancel(ctx)
	x, y := r.opts.Resolution.Scale(e.X, e.Y)

	var err error
	switch e.Type {
	case gesture.Down:
		r.engaged.Store(true)
		err = r.sink.Down(cmdCtx, x, y)
	case gesture.Move:
		if !r.engaged.Load() {
			return true, nil
		}
		err = r.sink.Move(cmdCtx, x, y)
	case gesture.Up:
		if !r.engaged.Load() {
			r.logger.Debug().Msg("Up without down")
		}
		err = r.sink.Up(cmdCtx, x, y)
		r.engaged.Store(false)
		r.gate.Release()
	default:
		return true, nil
	}
	r.lastX, r.lastY = x, y

	r.metrics.Commands.WithLabelValues(e.Type.String()).Inc()
	if err != nil {
		r.metrics.CommandErrors.Inc()
		return true, agent.NewTouchError(e.Type.String(), err)
	}
	return true, nil
}

// Engaged reports whether the drain side currently holds the pointer down.
func (r *Recorder) Engaged() bool {
	return r.engaged.Load()
}

// Run drains the queue until ctx is done, idling while it is empty.
// Cancellation is observed between events. On exit a pointer that is still
// down is released and the gate freed.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info().Msg("Recorder drain started")
	defer r.release()

	for {
		if ctx.Err() != nil {
			return nil
		}
		handled, err := r.HandleNextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error().Err(err).Msg("Touch command failed")
			continue
		}
		if handled {
			continue
		}
		if err := r.sleep(ctx, r.opts.Idle); err != nil {
			return nil
		}
	}
}

func (r *Recorder) release() {
	if !r.engaged.Load() {
		return
	}
	if err := r.sink.Up(context.Background(), r.lastX, r.lastY); err != nil {
		r.logger.Warn().Err(err).Msg("Release on shutdown failed")
	}
	r.engaged.Store(false)
	r.gate.Release()
	r.logger.Info().Msg("Released pointer on shutdown")
}

// Close flushes buffered batches. Call it after Run has returned.
func (r *Recorder) Close() error {
	return r.Flush()
}
