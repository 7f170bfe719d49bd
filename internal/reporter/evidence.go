package reporter

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dreamup/touchbot/internal/device"
)

// SnapshotContext represents why a frame was kept
type SnapshotContext string

const (
	// ContextFailure is the frame on screen when a run failed
	ContextFailure SnapshotContext = "failure"
	// ContextFinal is the last frame of a successful run
	ContextFinal SnapshotContext = "final"
)

// Snapshot represents a captured frame with metadata
type Snapshot struct {
	// Filepath is the local path to the PNG file
	Filepath string
	// Context indicates when the frame was taken
	Context SnapshotContext
	// Timestamp records when the frame was captured
	Timestamp time.Time
	// Data contains the encoded PNG bytes
	Data []byte
	// Width is the frame width in pixels
	Width int
	// Height is the frame height in pixels
	Height int
}

// CaptureSnapshot grabs one frame from the device and encodes it as PNG
func CaptureSnapshot(ctx context.Context, frames device.FrameSource, snapshotContext SnapshotContext) (*Snapshot, error) {
	img, err := frames.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	b := img.Bounds()
	return &Snapshot{
		Context:   snapshotContext,
		Timestamp: time.Now(),
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// SaveToTemp saves the snapshot to a temporary directory with a unique filename
func (s *Snapshot) SaveToTemp() error {
	filename := fmt.Sprintf("snapshot_%s_%s_%s.png",
		s.Context,
		s.Timestamp.Format("20060102_150405"),
		uuid.New().String()[:8],
	)

	path := filepath.Join(os.TempDir(), filename)
	if err := os.WriteFile(path, s.Data, 0644); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", path, err)
	}

	s.Filepath = path
	return nil
}

// SnapshotInfo contains metadata about a snapshot in a report
type SnapshotInfo struct {
	// Context is when the snapshot was taken
	Context SnapshotContext `json:"context"`
	// Filepath is the local path
	Filepath string `json:"filepath"`
	// S3URL is the S3 URL (if uploaded)
	S3URL string `json:"s3_url,omitempty"`
	// Timestamp is when it was captured
	Timestamp time.Time `json:"timestamp"`
	// Width in pixels
	Width int `json:"width"`
	// Height in pixels
	Height int `json:"height"`
}

// UploadSnapshot uploads a snapshot to S3 under the report's prefix
func (u *S3Uploader) UploadSnapshot(ctx context.Context, s *Snapshot, reportID string) (string, error) {
	s3Key := fmt.Sprintf("reports/%s/snapshots/%s_%s.png",
		reportID,
		s.Context,
		s.Timestamp.Format("20060102_150405"),
	)
	return u.UploadBytes(ctx, s.Data, s3Key)
}

// UploadReportWithSnapshots uploads the snapshots, records their URLs in
// the report and then uploads the report itself
func (u *S3Uploader) UploadReportWithSnapshots(ctx context.Context, report *Report, snapshots []*Snapshot) (string, error) {
	for i, s := range snapshots {
		url, err := u.UploadSnapshot(ctx, s, report.ReportID)
		if err != nil {
			return "", fmt.Errorf("failed to upload snapshot %d: %w", i, err)
		}
		if i < len(report.Snapshots) {
			report.Snapshots[i].S3URL = url
		}
	}
	return u.UploadReport(ctx, report)
}
