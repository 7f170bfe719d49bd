// Package devicetest provides a scripted in-memory device for tests.
package devicetest

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrNoMoreFrames is returned once a scripted frame list is exhausted.
var ErrNoMoreFrames = errors.New("devicetest: no more frames")

// Call is one recorded touch command.
type Call struct {
	Op   string
	X, Y int
}

// Device records touch commands and serves frames from a script.
type Device struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	calls  []Call
	// FrameHook, when set, is consulted before the script and may replace it.
	FrameHook func(n int) (image.Image, error)
	// TouchHook, when set, runs for every touch command; a non-nil error fails the command.
	TouchHook func(c Call) error
}

// New creates a device that serves frames in order.
func New(frames ...image.Image) *Device {
	return &Device{frames: frames}
}

// Frame returns the next scripted frame.
func (d *Device) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.next
	d.next++
	if d.FrameHook != nil {
		return d.FrameHook(n)
	}
	if n >= len(d.frames) {
		return nil, ErrNoMoreFrames
	}
	return d.frames[n], nil
}

// FrameCount reports how many frames have been requested.
func (d *Device) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

func (d *Device) record(op string, x, y int) error {
	c := Call{Op: op, X: x, Y: y}
	d.mu.Lock()
	hook := d.TouchHook
	d.mu.Unlock()
	if hook != nil {
		if err := hook(c); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	return nil
}

// Down records a press.
func (d *Device) Down(_ context.Context, x, y int) error { return d.record("down", x, y) }

// Move records a move.
func (d *Device) Move(_ context.Context, x, y int) error { return d.record("move", x, y) }

// Up records a release.
func (d *Device) Up(_ context.Context, x, y int) error { return d.record("up", x, y) }

// Calls returns a copy of the recorded touch commands.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Ops returns just the command names, in order.
func (d *Device) Ops() []string {
	calls := d.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}
