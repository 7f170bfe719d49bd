package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dreamup/touchbot/internal/gesture"
)

// isolate keeps config files on the developer machine out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Resolution.Width != 1376 || cfg.Resolution.Height != 800 {
		t.Errorf("resolution = %+v", cfg.Resolution)
	}
	if cfg.Replay.Resolution != cfg.Resolution || cfg.Recorder.Resolution != cfg.Resolution {
		t.Errorf("replayer and recorder must share the device resolution")
	}
	if cfg.Replay.MinDelay != 30*time.Millisecond || cfg.Replay.MaxPause != 1200*time.Millisecond {
		t.Errorf("replay = %+v", cfg.Replay)
	}
	if cfg.Scanner.Padding != 180 || cfg.Scanner.Steps != 25 || cfg.Scanner.Settle != 330*time.Millisecond || cfg.Scanner.MaxPages != 30 {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
	if cfg.Segment != gesture.DefaultSegmentOptions() {
		t.Errorf("segment = %+v", cfg.Segment)
	}
	if strings.Join(cfg.Labels, ",") != "harvest_crops,plant_crops,harvest_crops,plant_crops" {
		t.Errorf("labels = %v", cfg.Labels)
	}
	if cfg.ADB.CommandsPerSecond != 50 || cfg.FrameRetries != 3 {
		t.Errorf("adb = %+v, retries = %d", cfg.ADB, cfg.FrameRetries)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "touchbot.yaml")
	yaml := `
device:
  width: 1920
  height: 1080
  serial: emulator-5554
labels:
  - plant_crops
  - harvest_crops
segment:
  ambiguous: drop
scanner:
  settle: 500ms
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOUCHBOT_SCANNER_MAX_PAGES", "12")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Resolution.Width != 1920 || cfg.ADB.Serial != "emulator-5554" {
		t.Errorf("device = %+v / %+v", cfg.Resolution, cfg.ADB)
	}
	if len(cfg.Labels) != 2 || cfg.Labels[0] != "plant_crops" {
		t.Errorf("labels = %v", cfg.Labels)
	}
	if cfg.Segment.Ambiguous != gesture.DropAmbiguous {
		t.Errorf("ambiguous policy not applied")
	}
	if cfg.Scanner.Settle != 500*time.Millisecond || cfg.Scanner.MaxPages != 12 {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
}

func TestLoadConfigLabelsFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("TOUCHBOT_LABELS", "a, b ,c")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if strings.Join(cfg.Labels, "|") != "a|b|c" {
		t.Errorf("labels = %q", cfg.Labels)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero width", map[string]string{"TOUCHBOT_DEVICE_WIDTH": "0"}, "resolution"},
		{"inverted delays", map[string]string{"TOUCHBOT_REPLAY_MIN_DELAY": "80ms"}, "delay range"},
		{"one step", map[string]string{"TOUCHBOT_SCANNER_STEPS": "1"}, "scanner.steps"},
		{"bad policy", map[string]string{"TOUCHBOT_SEGMENT_AMBIGUOUS": "maybe"}, "segment.ambiguous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}
