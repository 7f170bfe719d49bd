// Package device defines the two capabilities the bot needs from a phone:
// a source of screen frames and a sink for touch commands. Adapters for
// adb and an HTTP screenshot endpoint live alongside.
package device

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/dreamup/touchbot/internal/agent"
)

// FrameSource captures the current screen.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// TouchSink accepts primitive touch commands in device pixels.
type TouchSink interface {
	Down(ctx context.Context, x, y int) error
	Move(ctx context.Context, x, y int) error
	Up(ctx context.Context, x, y int) error
}

// TapHold is how long Tap keeps the pointer down.
const TapHold = 20 * time.Millisecond

// Tap presses and releases at (x, y). Once the press is sent the release
// always follows, even if ctx is cancelled during the hold.
func Tap(ctx context.Context, sink TouchSink, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if err := sink.Down(ctx, x, y); err != nil {
		return agent.NewTouchError("tap press failed", err)
	}
	_ = agent.Sleep(ctx, TapHold)
	if err := sink.Up(ctx, x, y); err != nil {
		return agent.NewTouchError("tap release failed", err)
	}
	return nil
}

// Swipe presses at the first point, moves through the interior points and
// releases at the last, pausing step between commands. The order of points
// is preserved exactly. A swipe that has started always completes.
func Swipe(ctx context.Context, sink TouchSink, points []image.Point, step time.Duration) error {
	if len(points) < 2 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	first, last := points[0], points[len(points)-1]
	if err := sink.Down(ctx, first.X, first.Y); err != nil {
		return agent.NewTouchError("swipe press failed", err)
	}
	for i, p := range points[1 : len(points)-1] {
		_ = agent.Sleep(ctx, step)
		if err := sink.Move(ctx, p.X, p.Y); err != nil {
			// Release so the device is not left with a stuck pointer.
			_ = sink.Up(ctx, p.X, p.Y)
			return agent.NewTouchError(fmt.Sprintf("swipe move failed at step %d", i+1), err)
		}
	}
	_ = agent.Sleep(ctx, step)
	if err := sink.Up(ctx, last.X, last.Y); err != nil {
		return agent.NewTouchError("swipe release failed", err)
	}
	return nil
}
