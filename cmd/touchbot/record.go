package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/gesture"
	"github.com/dreamup/touchbot/internal/recorder"
)

var (
	recordDir         string
	recordUpload      bool
	recordMetricsAddr string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Mirror pointer batches from stdin onto the device and log them",
	Long: `Read pointer batches from stdin, one JSON array of events per line, as sent
by the capture overlay. Every event is mirrored onto the device and every
batch is appended to a new event log for later segmentation.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordDir, "dir", "d", "", "Directory for the event log (default: directory of event_log, or .)")
	recordCmd.Flags().BoolVar(&recordUpload, "upload", false, "Upload the compressed event log to S3 when done")
	recordCmd.Flags().StringVar(&recordMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics.addr)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	dir := recordDir
	if dir == "" && cfg.EventLog != "" {
		dir = filepath.Dir(cfg.EventLog)
	}
	if dir == "" {
		dir = "."
	}
	if err := EnsureDir(dir); err != nil {
		return err
	}

	eventLog, err := gesture.CreateEventLog(dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := recorder.NewMetrics(reg)
	serveMetrics(ctx, firstNonEmpty(recordMetricsAddr, cfg.MetricsAddr), reg)

	r := newRig(cfg)
	rec := recorder.New(r.sink, r.gate, eventLog, cfg.Recorder, metrics, logger)

	return journaled("record", eventLog.Path(), func() (any, error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "🎙️  Recording to %s (Ctrl-D to stop)\n", eventLog.Path())

		drained := make(chan error, 1)
		go func() { drained <- rec.Run(ctx) }()

		submitted, readErr := feed(ctx, cmd.InOrStdin(), rec)
		waitDrained(ctx, rec, cfg.Recorder.Idle)
		if rec.Engaged() {
			logger.Warn().Msg("Input ended mid-gesture; releasing pointer")
		}
		cancel()
		<-drained

		closeErr := rec.Close()
		if err := eventLog.Close(); closeErr == nil {
			closeErr = err
		}

		detail := map[string]any{"batches": submitted, "event_log": eventLog.Path()}
		if readErr != nil {
			return detail, readErr
		}
		if closeErr != nil {
			return detail, closeErr
		}

		if recordUpload {
			uploader, err := newUploader(cmd.Context())
			if err != nil {
				return detail, err
			}
			url, err := uploader.UploadEventLog(cmd.Context(), eventLog.Path(), uuid.NewString())
			if err != nil {
				return detail, err
			}
			detail["event_log_url"] = url
			fmt.Fprintf(cmd.OutOrStdout(), "☁️  Uploaded to %s\n", url)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Recorded %d batches to %s\n", submitted, eventLog.Path())
		return detail, nil
	})
}

// feed submits each stdin line as one batch until EOF or cancellation.
// Malformed lines are logged and skipped.
func feed(ctx context.Context, in io.Reader, rec *recorder.Recorder) (int, error) {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	submitted := 0
	for {
		select {
		case <-ctx.Done():
			return submitted, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return submitted, err
				default:
					return submitted, nil
				}
			}
			batch, err := decodeBatch(line)
			if err != nil {
				logger.Warn().Err(err).Msg("Skipping malformed batch")
				continue
			}
			if len(batch) == 0 {
				continue
			}
			if err := rec.Submit(batch); err != nil {
				return submitted, err
			}
			submitted++
		}
	}
}

func decodeBatch(line []byte) ([]gesture.PointerEvent, error) {
	var batch []gesture.PointerEvent
	if err := json.Unmarshal(line, &batch); err != nil {
		return nil, err
	}
	for _, e := range batch {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// waitDrained blocks until the recorder queue is empty or ctx is done.
func waitDrained(ctx context.Context, rec *recorder.Recorder, poll time.Duration) {
	ticker := time.NewTicker(durationOr(poll, 100*time.Millisecond))
	defer ticker.Stop()
	for rec.Pending() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
