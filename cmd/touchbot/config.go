package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/gesture"
	"github.com/dreamup/touchbot/internal/recorder"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/vision"
)

// Config holds application configuration
type Config struct {
	Environment string
	LogLevel    string

	Resolution device.Resolution
	ADB        device.ADBConfig
	FrameURL   string
	// FrameRetries bounds transport retries of the HTTP frame source.
	FrameRetries int

	AssetsDir     string
	TemplateScale float64

	EventLog    string
	Script      string
	Labels      []string
	CycleLabels bool

	Segment  gesture.SegmentOptions
	Replay   gesture.ReplayOptions
	Scanner  scanner.Config
	Recorder recorder.Options

	SellQuantity int
	DBPath       string
	S3Bucket     string
	S3Region     string
	MetricsAddr  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "")
	v.SetDefault("device.width", device.DefaultResolution.Width)
	v.SetDefault("device.height", device.DefaultResolution.Height)
	v.SetDefault("device.serial", "")
	v.SetDefault("adb.path", "adb")
	v.SetDefault("adb.commands_per_second", 50)
	v.SetDefault("frame.url", "")
	v.SetDefault("frame.retries", 3)
	v.SetDefault("assets_dir", "./assets/templates")
	v.SetDefault("template_scale", 1.0)
	v.SetDefault("event_log", "")
	v.SetDefault("script", "./labeled_data.json")
	v.SetDefault("labels", strings.Join(gesture.DefaultLabels, ","))
	v.SetDefault("cycle_labels", false)
	v.SetDefault("segment.drag_min_moves", 10)
	v.SetDefault("segment.click_max_events", 7)
	v.SetDefault("segment.ambiguous", "keep")
	v.SetDefault("replay.min_delay", "30ms")
	v.SetDefault("replay.max_delay", "50ms")
	v.SetDefault("replay.min_pause", "800ms")
	v.SetDefault("replay.max_pause", "1200ms")
	v.SetDefault("scanner.padding", 180)
	v.SetDefault("scanner.steps", 25)
	v.SetDefault("scanner.settle", "330ms")
	v.SetDefault("scanner.max_pages", 30)
	v.SetDefault("recorder.flush_every", 10)
	v.SetDefault("recorder.idle", "100ms")
	v.SetDefault("shop.quantity", 5)
	v.SetDefault("db.path", "./touchbot.db")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("metrics.addr", "")
}

// LoadConfig loads configuration from environment variables and config file.
// An explicit configFile must exist; the default search path may be empty.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("touchbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.touchbot")
	}

	setDefaults(v)

	// TOUCHBOT_SCANNER_MAX_PAGES maps to scanner.max_pages
	v.SetEnvPrefix("TOUCHBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK - we'll use defaults
	}

	policy, ok := gesture.ParseAmbiguousPolicy(v.GetString("segment.ambiguous"))
	if !ok {
		return nil, fmt.Errorf("segment.ambiguous must be keep or drop, got %q", v.GetString("segment.ambiguous"))
	}

	res := device.Resolution{Width: v.GetInt("device.width"), Height: v.GetInt("device.height")}
	cfg := &Config{
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log_level"),
		Resolution:  res,
		ADB: device.ADBConfig{
			Path:              v.GetString("adb.path"),
			Serial:            v.GetString("device.serial"),
			CommandsPerSecond: v.GetFloat64("adb.commands_per_second"),
		},
		FrameURL:      v.GetString("frame.url"),
		FrameRetries:  v.GetInt("frame.retries"),
		AssetsDir:     v.GetString("assets_dir"),
		TemplateScale: v.GetFloat64("template_scale"),
		EventLog:      v.GetString("event_log"),
		Script:        v.GetString("script"),
		Labels:        labelList(v),
		CycleLabels:   v.GetBool("cycle_labels"),
		Segment: gesture.SegmentOptions{
			DragMinMoves:   v.GetInt("segment.drag_min_moves"),
			ClickMaxEvents: v.GetInt("segment.click_max_events"),
			Ambiguous:      policy,
		},
		Replay: gesture.ReplayOptions{
			Resolution: res,
			MinDelay:   v.GetDuration("replay.min_delay"),
			MaxDelay:   v.GetDuration("replay.max_delay"),
			MinPause:   v.GetDuration("replay.min_pause"),
			MaxPause:   v.GetDuration("replay.max_pause"),
		},
		Scanner: scanner.Config{
			Padding:   v.GetInt("scanner.padding"),
			Steps:     v.GetInt("scanner.steps"),
			Settle:    v.GetDuration("scanner.settle"),
			MaxPages:  v.GetInt("scanner.max_pages"),
			Clusterer: vision.DefaultClusterer,
		},
		Recorder: recorder.Options{
			FlushEvery: v.GetInt("recorder.flush_every"),
			Idle:       v.GetDuration("recorder.idle"),
			Resolution: res,
		},
		SellQuantity: v.GetInt("shop.quantity"),
		DBPath:       v.GetString("db.path"),
		S3Bucket:     v.GetString("s3.bucket"),
		S3Region:     v.GetString("s3.region"),
		MetricsAddr:  v.GetString("metrics.addr"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot run with
func (c *Config) Validate() error {
	var errs []error
	if !c.Resolution.Valid() {
		errs = append(errs, fmt.Errorf("device resolution must be positive, got %dx%d", c.Resolution.Width, c.Resolution.Height))
	}
	if c.Replay.MinDelay < 0 || c.Replay.MinDelay > c.Replay.MaxDelay {
		errs = append(errs, fmt.Errorf("replay delay range [%v, %v] is invalid", c.Replay.MinDelay, c.Replay.MaxDelay))
	}
	if c.Replay.MinPause < 0 || c.Replay.MinPause > c.Replay.MaxPause {
		errs = append(errs, fmt.Errorf("replay pause range [%v, %v] is invalid", c.Replay.MinPause, c.Replay.MaxPause))
	}
	if c.Scanner.Steps < 2 {
		errs = append(errs, fmt.Errorf("scanner.steps must be at least 2, got %d", c.Scanner.Steps))
	}
	if c.Scanner.Padding < 0 || c.Scanner.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("scanner.padding and scanner.max_pages must not be negative"))
	}
	if c.Segment.DragMinMoves < 0 || c.Segment.ClickMaxEvents < 2 {
		errs = append(errs, fmt.Errorf("segment boundaries %d/%d are invalid", c.Segment.DragMinMoves, c.Segment.ClickMaxEvents))
	}
	if len(c.Labels) == 0 {
		errs = append(errs, fmt.Errorf("at least one label is required"))
	}
	return errors.Join(errs...)
}

// labelList accepts a YAML list or a comma separated string (env, flags)
func labelList(v *viper.Viper) []string {
	if s, ok := v.Get("labels").(string); ok {
		return splitList(s)
	}
	return v.GetStringSlice("labels")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// durationOr returns d, or fallback when d is not positive
func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
