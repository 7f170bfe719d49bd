package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/gesture"
)

var (
	segmentInput  string
	segmentOutput string
	segmentUpload bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Turn a recorded event log into a labeled gesture script",
	Long: `Split a recorded event log into clicks and drags, pair each drag with the
click right before it and label the pairs by position.`,
	RunE: runSegment,
}

func init() {
	segmentCmd.Flags().StringVarP(&segmentInput, "input", "i", "", "Event log to segment (default: event_log from config)")
	segmentCmd.Flags().StringVarP(&segmentOutput, "output", "o", "", "Script file to write (default: script from config)")
	segmentCmd.Flags().BoolVar(&segmentUpload, "upload", false, "Upload the script to S3")
}

func runSegment(cmd *cobra.Command, args []string) error {
	input := firstNonEmpty(segmentInput, cfg.EventLog)
	output := firstNonEmpty(segmentOutput, cfg.Script)
	if input == "" {
		return fmt.Errorf("no event log given (use --input or event_log)")
	}

	return journaled("segment", input, func() (any, error) {
		events, stats, err := gesture.ReadEventLogFile(input)
		if err != nil {
			return nil, err
		}
		if stats.Skipped > 0 {
			logger.Warn().Int("skipped", stats.Skipped).Str("path", input).Msg("Skipped unreadable event log lines")
		}
		if stats.Dropped > 0 {
			logger.Warn().Int("dropped", stats.Dropped).Str("path", input).Msg("Dropped malformed events")
		}

		segments := gesture.SegmentEvents(events, cfg.Segment)
		script := gesture.BuildScript(segments, gesture.LabelOptions{Labels: cfg.Labels, Cycle: cfg.CycleLabels})
		if err := gesture.SaveScript(output, script); err != nil {
			return nil, err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✅ %d events -> %d gestures -> %d labeled actions\n", len(events), len(segments), len(script))
		for _, entry := range script {
			fmt.Fprintf(out, "   %-16s clicks=%d drags=%d\n", entry.Label, len(entry.Clicks), len(entry.Drags))
		}
		fmt.Fprintf(out, "📁 Script saved to %s\n", output)

		detail := map[string]any{
			"events":   len(events),
			"segments": len(segments),
			"labels":   script.Labels(),
			"script":   output,
		}
		if segmentUpload {
			uploader, err := newUploader(cmd.Context())
			if err != nil {
				return detail, err
			}
			url, err := uploader.UploadScript(cmd.Context(), script, "scripts/"+filepath.Base(output))
			if err != nil {
				return detail, err
			}
			detail["script_url"] = url
			fmt.Fprintf(out, "☁️  Uploaded to %s\n", url)
		}
		return detail, nil
	})
}
