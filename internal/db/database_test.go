package db

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRunLifecycle(t *testing.T) {
	d := openTestDB(t)

	id, err := d.StartRun("replay", "plant_crops")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run, err := d.GetRun(id)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v, %v", run, err)
	}
	if run.Status != StatusRunning || run.CompletedAt != nil || run.Duration() != 0 {
		t.Errorf("fresh run = %+v", run)
	}

	detail := map[string]int{"events": 42}
	if err := d.CompleteRun(id, detail, nil); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	run, err = d.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != StatusCompleted || run.CompletedAt == nil {
		t.Fatalf("completed run = %+v", run)
	}
	if run.Kind != "replay" || run.Label != "plant_crops" {
		t.Errorf("kind/label = %q/%q", run.Kind, run.Label)
	}
	var got map[string]int
	if err := json.Unmarshal([]byte(run.Detail), &got); err != nil || got["events"] != 42 {
		t.Errorf("detail = %q (%v)", run.Detail, err)
	}
}

func TestCompleteRunRecordsFailure(t *testing.T) {
	d := openTestDB(t)
	id, _ := d.StartRun("scan", "")

	if err := d.CompleteRun(id, nil, errors.New("landmark layout not visible")); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	run, _ := d.GetRun(id)
	if run.Status != StatusFailed || run.Error != "landmark layout not visible" || run.Detail != "" {
		t.Errorf("failed run = %+v", run)
	}

	if err := d.CompleteRun("missing", nil, nil); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestListAndCountRuns(t *testing.T) {
	d := openTestDB(t)
	for _, kind := range []string{"scan", "replay", "scan"} {
		if _, err := d.StartRun(kind, ""); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	all, err := d.ListRuns("all", 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].Kind != "scan" || !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Errorf("runs not newest first: %+v", all)
	}

	scans, _ := d.ListRuns("scan", 10, 0)
	if len(scans) != 2 {
		t.Errorf("expected 2 scans, got %d", len(scans))
	}

	n, err := d.CountRuns(StatusRunning)
	if err != nil || n != 3 {
		t.Errorf("CountRuns = %d, %v", n, err)
	}

	if run, err := d.GetRun("nope"); run != nil || err != nil {
		t.Errorf("GetRun(unknown) = %v, %v", run, err)
	}
}
