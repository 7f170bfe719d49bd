package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tidwall/gjson"

	"github.com/dreamup/touchbot/internal/gesture"
	"github.com/dreamup/touchbot/internal/logging"
	"github.com/dreamup/touchbot/internal/reporter"
)

// SegmentEvent asks the function to segment one recorded event log
type SegmentEvent struct {
	// Bucket holding the event log (optional, defaults to env var)
	Bucket string `json:"bucket,omitempty"`
	// Key of the event log object; a .sz suffix means snappy-compressed
	Key string `json:"key"`
	// OutputKey for the script (default: derived from Key)
	OutputKey string `json:"output_key,omitempty"`
	// Labels assigned to actions by position (default: the farm cycle)
	Labels []string `json:"labels,omitempty"`
	// Cycle wraps the labels instead of dropping surplus actions
	Cycle bool `json:"cycle,omitempty"`
	// DragMinMoves overrides the drag boundary
	DragMinMoves int `json:"drag_min_moves,omitempty"`
	// ClickMaxEvents overrides the click boundary
	ClickMaxEvents int `json:"click_max_events,omitempty"`
	// Ambiguous is "keep" or "drop"
	Ambiguous string `json:"ambiguous,omitempty"`
}

// LambdaResponse represents the Lambda function output
type LambdaResponse struct {
	// Success indicates every event log was segmented
	Success bool `json:"success"`
	// Scripts lists the written scripts
	Scripts []ScriptResult `json:"scripts,omitempty"`
	// Error message if failed
	Error string `json:"error,omitempty"`
	// Duration in seconds
	Duration float64 `json:"duration_seconds,omitempty"`
}

// ScriptResult describes one segmented event log
type ScriptResult struct {
	Source    string   `json:"source"`
	ScriptKey string   `json:"script_key"`
	ScriptURL string   `json:"script_url"`
	Labels    []string `json:"labels"`
	Events    int      `json:"events"`
	Skipped   int      `json:"skipped_lines"`
}

type objectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	UploadScript(ctx context.Context, script gesture.Script, key string) (string, error)
}

var newStore = func(ctx context.Context, bucket string) (objectStore, error) {
	return reporter.NewS3Uploader(ctx, bucket, "")
}

var logger = logging.Setup(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))

// HandleRequest is the Lambda handler function. It accepts either a
// SegmentEvent or an S3 object-created notification.
func HandleRequest(ctx context.Context, raw json.RawMessage) (LambdaResponse, error) {
	startTime := time.Now()

	requests, err := parseRequests(raw)
	if err != nil {
		return LambdaResponse{Success: false, Error: err.Error()}, err
	}

	response := LambdaResponse{Success: true}
	for _, req := range requests {
		result, err := segment(ctx, req)
		if err != nil {
			logger.Error().Err(err).Str("key", req.Key).Msg("Segmentation failed")
			response.Success = false
			response.Error = err.Error()
			break
		}
		response.Scripts = append(response.Scripts, result)
	}

	response.Duration = time.Since(startTime).Seconds()
	return response, nil // Don't return error to Lambda - include in response
}

func parseRequests(raw json.RawMessage) ([]SegmentEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid event payload")
	}

	if gjson.GetBytes(raw, "Records").IsArray() {
		var s3Event events.S3Event
		if err := json.Unmarshal(raw, &s3Event); err != nil {
			return nil, fmt.Errorf("invalid S3 event: %w", err)
		}
		var out []SegmentEvent
		for _, rec := range s3Event.Records {
			key, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil {
				key = rec.S3.Object.Key
			}
			// Scripts written back to the bucket must not trigger another run.
			if strings.HasSuffix(key, ".script.json") {
				continue
			}
			out = append(out, SegmentEvent{Bucket: rec.S3.Bucket.Name, Key: key})
		}
		return out, nil
	}

	var event SegmentEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("invalid segment event: %w", err)
	}
	if event.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	return []SegmentEvent{event}, nil
}

func (e SegmentEvent) options() (gesture.SegmentOptions, gesture.LabelOptions, error) {
	seg := gesture.DefaultSegmentOptions()
	if e.DragMinMoves > 0 {
		seg.DragMinMoves = e.DragMinMoves
	}
	if e.ClickMaxEvents > 0 {
		seg.ClickMaxEvents = e.ClickMaxEvents
	}
	policy, ok := gesture.ParseAmbiguousPolicy(e.Ambiguous)
	if !ok {
		return seg, gesture.LabelOptions{}, fmt.Errorf("ambiguous must be keep or drop, got %q", e.Ambiguous)
	}
	seg.Ambiguous = policy

	labels := gesture.LabelOptions{Labels: gesture.DefaultLabels, Cycle: e.Cycle}
	if len(e.Labels) > 0 {
		labels.Labels = e.Labels
	}
	return seg, labels, nil
}

func segment(ctx context.Context, req SegmentEvent) (ScriptResult, error) {
	segOpts, labelOpts, err := req.options()
	if err != nil {
		return ScriptResult{}, err
	}

	store, err := newStore(ctx, req.Bucket)
	if err != nil {
		return ScriptResult{}, err
	}

	data, err := store.Download(ctx, req.Key)
	if err != nil {
		return ScriptResult{}, err
	}
	evts, stats, err := gesture.ReadEventLog(bytes.NewReader(data))
	if err != nil {
		return ScriptResult{}, fmt.Errorf("read event log %s: %w", req.Key, err)
	}

	script := gesture.Label(evts, segOpts, labelOpts)

	outKey := req.OutputKey
	if outKey == "" {
		outKey = reporter.ScriptKey(req.Key)
	}
	scriptURL, err := store.UploadScript(ctx, script, outKey)
	if err != nil {
		return ScriptResult{}, err
	}

	logger.Info().
		Str("source", req.Key).
		Str("script", outKey).
		Int("events", len(evts)).
		Int("entries", len(script)).
		Int("skipped_lines", stats.Skipped).
		Msg("Segmented event log")

	return ScriptResult{
		Source:    req.Key,
		ScriptKey: outKey,
		ScriptURL: scriptURL,
		Labels:    script.Labels(),
		Events:    len(evts),
		Skipped:   stats.Skipped,
	}, nil
}

func main() {
	lambda.Start(HandleRequest)
}
