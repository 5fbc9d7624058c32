package domain

import (
	"testing"
)

func TestNewIngestRun(t *testing.T) {
	run := NewIngestRun("ed-2026", "vol-one", "archives/ed-2026/vol-one.zip", 2048)

	if run.ID == "" {
		t.Error("expected non-empty ID")
	}
	if run.Status != RunStatusQueued {
		t.Errorf("expected status %s, got %s", RunStatusQueued, run.Status)
	}
	if run.EditionID != "ed-2026" {
		t.Errorf("expected edition ed-2026, got %s", run.EditionID)
	}
	if run.VolumeTag != "vol-one" {
		t.Errorf("expected volume vol-one, got %s", run.VolumeTag)
	}
	if run.ArchiveKey != "archives/ed-2026/vol-one.zip" {
		t.Errorf("unexpected archive key %s", run.ArchiveKey)
	}
	if run.ArchiveSize != 2048 {
		t.Errorf("expected archive size 2048, got %d", run.ArchiveSize)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if run.StartedAt != nil || run.CompletedAt != nil {
		t.Error("expected no start/completion timestamps on a queued run")
	}
}

func TestRunStatusTransitions(t *testing.T) {
	run := NewIngestRun("ed", "vol", "key", 1)

	run.MarkRunning()
	if run.Status != RunStatusRunning {
		t.Errorf("expected running, got %s", run.Status)
	}
	if run.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
	started := *run.StartedAt

	run.MarkPartial()
	if run.Status != RunStatusPartial {
		t.Errorf("expected partial, got %s", run.Status)
	}

	// Resuming must not reset the original start time.
	run.MarkRunning()
	if !run.StartedAt.Equal(started) {
		t.Error("expected StartedAt to be preserved across resume")
	}

	run.MarkDone()
	if run.Status != RunStatusDone {
		t.Errorf("expected done, got %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestRunMarkFailedKeepsErrorVerbatim(t *testing.T) {
	run := NewIngestRun("ed", "vol", "key", 1)
	run.MarkFailed("enqueue failed: POST https://worker/invoke: 503 Service Unavailable")

	if run.Status != RunStatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
	if run.Error != "enqueue failed: POST https://worker/invoke: 503 Service Unavailable" {
		t.Errorf("expected verbatim error text, got %q", run.Error)
	}
	if !run.Status.IsTerminal() {
		t.Error("expected failed to be terminal")
	}
}

func TestRunStatusPredicates(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
		inFlight bool
	}{
		{RunStatusQueued, false, true},
		{RunStatusRunning, false, true},
		{RunStatusPartial, false, true},
		{RunStatusDone, true, false},
		{RunStatusFailed, true, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s: IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.InFlight(); got != tt.inFlight {
			t.Errorf("%s: InFlight() = %v, want %v", tt.status, got, tt.inFlight)
		}
	}
}

func TestRunStatsPendingFiles(t *testing.T) {
	stats := RunStats{TotalFiles: 10, ProcessedFiles: 6, ErroredFiles: 1}
	if got := stats.PendingFiles(); got != 3 {
		t.Errorf("expected 3 pending, got %d", got)
	}
}

func TestBatchResultDone(t *testing.T) {
	if (BatchResult{Reason: StopTimeBudget}).Done() {
		t.Error("time_budget stop must not be done")
	}
	if (BatchResult{Reason: StopBatchLimit}).Done() {
		t.Error("batch_limit stop must not be done")
	}
	if !(BatchResult{Reason: StopCompleted}).Done() {
		t.Error("completed stop must be done")
	}
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()

	if a == "" || b == "" {
		t.Fatal("expected non-empty IDs")
	}
	if a == b {
		t.Error("expected unique IDs")
	}
	// ULIDs are 26 chars and sort by creation time.
	if len(a) != 26 {
		t.Errorf("expected ID length 26, got %d", len(a))
	}
	if a >= b {
		t.Error("expected monotonic IDs to sort in creation order")
	}
}
