package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/shop"
)

// Report represents the outcome of one scan or shop run
type Report struct {
	// ReportID is a unique identifier for this report
	ReportID string `json:"report_id"`
	// Kind is the operation that produced the report (scan, collect, sell)
	Kind string `json:"kind"`
	// Timestamp is when the run started
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the run took
	Duration time.Duration `json:"duration_ms"`
	// Pages are the scanned shop pages in order
	Pages []scanner.Page `json:"pages"`
	// SlotCounts totals the slots seen per type
	SlotCounts map[string]int `json:"slot_counts"`
	// Shop holds what a sell pass did, if one ran
	Shop *shop.Summary `json:"shop,omitempty"`
	// Snapshots are frames kept as evidence
	Snapshots []SnapshotInfo `json:"snapshots,omitempty"`
	// Summary provides a high-level overview
	Summary *Summary `json:"summary"`
	// Metadata contains additional information
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Summary provides a high-level run overview
type Summary struct {
	// Status is the overall run status (completed, completed_with_warnings, failed)
	Status string `json:"status"`
	// Pages is the number of pages scanned
	Pages int `json:"pages"`
	// Slots is the number of slots seen across all pages
	Slots int `json:"slots"`
	// Error is the error that ended the run, if any
	Error string `json:"error,omitempty"`
	// Category is the error category, if the error was categorized
	Category string `json:"category,omitempty"`
	// Warnings are non-fatal observations
	Warnings []string `json:"warnings"`
}

// ReportBuilder helps construct reports
type ReportBuilder struct {
	kind      string
	startTime time.Time
	pages     []scanner.Page
	shop      *shop.Summary
	snapshots []*Snapshot
	err       error
	metadata  map[string]string
}

// NewReportBuilder creates a new report builder
func NewReportBuilder(kind string) *ReportBuilder {
	return &ReportBuilder{
		kind:      kind,
		startTime: time.Now(),
		metadata:  make(map[string]string),
	}
}

// AddPage records a scanned page
func (rb *ReportBuilder) AddPage(page scanner.Page) {
	rb.pages = append(rb.pages, page)
}

// SetShopSummary records the result of a sell pass
func (rb *ReportBuilder) SetShopSummary(s shop.Summary) {
	rb.shop = &s
}

// AddSnapshot records a frame kept as evidence
func (rb *ReportBuilder) AddSnapshot(s *Snapshot) {
	rb.snapshots = append(rb.snapshots, s)
}

// Snapshots returns the recorded snapshots in order
func (rb *ReportBuilder) Snapshots() []*Snapshot {
	return rb.snapshots
}

// SetError records the error that ended the run
func (rb *ReportBuilder) SetError(err error) {
	rb.err = err
}

// AddMetadata adds a metadata key-value pair
func (rb *ReportBuilder) AddMetadata(key, value string) {
	rb.metadata[key] = value
}

// Build constructs the final report
func (rb *ReportBuilder) Build() *Report {
	counts := make(map[string]int)
	for _, st := range scanner.AllSlotTypes {
		counts[st.String()] = 0
	}
	for _, page := range rb.pages {
		for _, slot := range page.Slots {
			counts[slot.Type.String()]++
		}
	}

	var snapshots []SnapshotInfo
	for _, s := range rb.snapshots {
		snapshots = append(snapshots, SnapshotInfo{
			Context:   s.Context,
			Filepath:  s.Filepath,
			Timestamp: s.Timestamp,
			Width:     s.Width,
			Height:    s.Height,
		})
	}

	pages := rb.pages
	if pages == nil {
		pages = []scanner.Page{}
	}

	return &Report{
		ReportID:   uuid.New().String(),
		Kind:       rb.kind,
		Timestamp:  rb.startTime,
		Duration:   time.Since(rb.startTime),
		Pages:      pages,
		SlotCounts: counts,
		Shop:       rb.shop,
		Snapshots:  snapshots,
		Summary:    rb.buildSummary(),
		Metadata:   rb.metadata,
	}
}

// buildSummary constructs the run summary
func (rb *ReportBuilder) buildSummary() *Summary {
	summary := &Summary{
		Pages:    len(rb.pages),
		Warnings: make([]string, 0),
	}
	for _, page := range rb.pages {
		summary.Slots += len(page.Slots)
		if len(page.Slots) == 0 {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("page %d has no matching slots", page.Index))
		}
	}
	if rb.shop != nil && rb.shop.OutOfStock {
		summary.Warnings = append(summary.Warnings, "ran out of stock before every open slot was filled")
	}

	if rb.err != nil {
		summary.Error = rb.err.Error()
		var catErr *agent.CategorizedError
		if errors.As(rb.err, &catErr) {
			summary.Category = string(catErr.Category)
		}
	}

	switch {
	case rb.err != nil:
		summary.Status = "failed"
	case len(summary.Warnings) > 0:
		summary.Status = "completed_with_warnings"
	default:
		summary.Status = "completed"
	}
	return summary
}

// SaveToFile saves the report to a JSON file
func (r *Report) SaveToFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// SaveToTemp saves the report to a temporary file
func (r *Report) SaveToTemp() (string, error) {
	filename := fmt.Sprintf("touchbot_%s_%s_%s.json",
		r.Kind,
		time.Now().Format("20060102_150405"),
		r.ReportID[:8],
	)

	path := filepath.Join(os.TempDir(), filename)
	if err := r.SaveToFile(path); err != nil {
		return "", err
	}

	return path, nil
}
