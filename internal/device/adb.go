package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dreamup/touchbot/internal/agent"
)

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%w: %s", err, exitErr.Stderr)
	}
	return out, err
}

// ADBConfig configures the adb adapter.
type ADBConfig struct {
	Path   string
	Serial string
	// CommandsPerSecond throttles touch commands; zero disables throttling.
	CommandsPerSecond float64
}

// ADB drives a device through the adb command line. It is both a FrameSource
// (exec-out screencap) and a TouchSink (input motionevent).
type ADB struct {
	cfg     ADBConfig
	run     Runner
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewADB creates an adapter. A nil runner uses ExecRunner.
func NewADB(cfg ADBConfig, run Runner, logger zerolog.Logger) *ADB {
	if cfg.Path == "" {
		cfg.Path = "adb"
	}
	if run == nil {
		run = ExecRunner
	}
	limit := rate.Inf
	if cfg.CommandsPerSecond > 0 {
		limit = rate.Limit(cfg.CommandsPerSecond)
	}
	return &ADB{
		cfg:     cfg,
		run:     run,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "adb").Logger(),
	}
}

func (a *ADB) args(parts ...string) []string {
	if a.cfg.Serial == "" {
		return parts
	}
	return append([]string{"-s", a.cfg.Serial}, parts...)
}

// Down implements TouchSink.
func (a *ADB) Down(ctx context.Context, x, y int) error { return a.motion(ctx, "DOWN", x, y) }

// Move implements TouchSink.
func (a *ADB) Move(ctx context.Context, x, y int) error { return a.motion(ctx, "MOVE", x, y) }

// Up implements TouchSink.
func (a *ADB) Up(ctx context.Context, x, y int) error { return a.motion(ctx, "UP", x, y) }

func (a *ADB) motion(ctx context.Context, action string, x, y int) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	a.logger.Trace().Str("action", action).Int("x", x).Int("y", y).Msg("motionevent")
	_, err := a.run(ctx, a.cfg.Path, a.args("shell", "input", "motionevent", action, strconv.Itoa(x), strconv.Itoa(y))...)
	if err != nil {
		return agent.NewTouchError("motionevent "+action, err)
	}
	return nil
}

// Frame implements FrameSource using the raw screencap format: a little
// endian header of width, height and pixel format (plus a color space word
// on newer devices) followed by RGBA pixels.
func (a *ADB) Frame(ctx context.Context) (image.Image, error) {
	raw, err := a.run(ctx, a.cfg.Path, a.args("exec-out", "screencap")...)
	if err != nil {
		return nil, agent.NewFrameError("screencap", err)
	}
	img, err := decodeRawScreencap(raw)
	if err != nil {
		return nil, agent.NewFrameError("decode screencap", err)
	}
	return img, nil
}

func decodeRawScreencap(raw []byte) (*image.NRGBA, error) {
	if len(raw) < 12 {
		return nil, fmt.Errorf("screencap too short: %d bytes", len(raw))
	}
	width := int(binary.LittleEndian.Uint32(raw[0:4]))
	height := int(binary.LittleEndian.Uint32(raw[4:8]))
	size := width * height * 4
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("screencap reports %dx%d", width, height)
	}

	var header int
	switch len(raw) - size {
	case 12:
		header = 12
	case 16:
		header = 16
	default:
		return nil, fmt.Errorf("screencap payload %d bytes does not fit %dx%d", len(raw), width, height)
	}

	return &image.NRGBA{
		Pix:    raw[header:],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
