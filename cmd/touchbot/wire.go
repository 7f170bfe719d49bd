package main

import (
	"context"
	"fmt"

	"github.com/dreamup/touchbot/internal/db"
	"github.com/dreamup/touchbot/internal/device"
	"github.com/dreamup/touchbot/internal/reporter"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/shop"
	"github.com/dreamup/touchbot/internal/vision"
)

// rig is the device side of a command: one touch sink shared behind one gate.
type rig struct {
	frames device.FrameSource
	sink   device.TouchSink
	gate   *device.Gate
}

func newRig(cfg *Config) *rig {
	adb := device.NewADB(cfg.ADB, nil, logger)
	r := &rig{frames: adb, sink: adb, gate: device.NewGate()}
	if cfg.FrameURL != "" {
		r.frames = device.NewHTTPFrameSource(cfg.FrameURL, cfg.FrameRetries, logger)
	}
	return r
}

func (r *rig) newShop(cfg *Config) (*shop.Shop, *scanner.Scanner, error) {
	catalog := shop.DefaultCatalog().Resolve(cfg.AssetsDir, cfg.TemplateScale)
	sc, err := scanner.New(r.frames, r.sink, r.gate, vision.NewMatcher(nil), catalog.ScanLayout(), cfg.Scanner, logger)
	if err != nil {
		return nil, nil, err
	}
	return shop.New(sc, r.sink, r.gate, catalog, logger), sc, nil
}

// journaled records fn as one run in the journal. A journal that cannot be
// opened is logged and skipped; the command still runs.
func journaled(kind, label string, fn func() (any, error)) error {
	journal, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.DBPath).Msg("Run journal unavailable")
		_, err := fn()
		return err
	}
	defer journal.Close()

	id, err := journal.StartRun(kind, label)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	detail, runErr := fn()
	if err := journal.CompleteRun(id, detail, runErr); err != nil {
		logger.Warn().Err(err).Str("run", id).Msg("Failed to complete run record")
	}
	logger.Debug().Str("run", id).Str("kind", kind).Msg("Run recorded")
	return runErr
}

func newUploader(ctx context.Context) (*reporter.S3Uploader, error) {
	return reporter.NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Region)
}
