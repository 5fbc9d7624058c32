package domain

import "time"

// RunStatus represents the current state of an ingestion run
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	// RunStatusPartial means the time-boxed invocation stopped early and the
	// run must be invoked again to drain the remaining pending files.
	RunStatusPartial RunStatus = "partial"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// IsTerminal returns true for states that accept no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// InFlight returns true while the run still owns its (edition, volume) slot.
func (s RunStatus) InFlight() bool {
	return s == RunStatusQueued || s == RunStatusRunning || s == RunStatusPartial
}

// IngestRun is one attempt to ingest one archive for one (edition, volume) pair.
type IngestRun struct {
	ID          string     `json:"id"`
	EditionID   string     `json:"edition_id"`
	VolumeTag   string     `json:"volume_tag"`
	ArchiveKey  string     `json:"archive_key"`
	ArchiveSize int64      `json:"archive_size"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Stats       RunStats   `json:"stats"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats holds denormalized counters for an ingestion run
type RunStats struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	ErroredFiles   int `json:"errored_files"`
	Documents      int `json:"documents"`
	Blocks         int `json:"blocks"`
	Nodes          int `json:"nodes"`
	Assets         int `json:"assets"`
	References     int `json:"references"`
}

// PendingFiles returns how many ledger rows have not reached a final state.
func (s RunStats) PendingFiles() int {
	return s.TotalFiles - s.ProcessedFiles - s.ErroredFiles
}

// NewIngestRun creates a queued run for a confirmed archive upload.
// The (key, volume, size) tuple is recorded here, at confirm time, so no
// after-the-fact metadata reconstruction is ever needed.
func NewIngestRun(editionID, volumeTag, archiveKey string, archiveSize int64) *IngestRun {
	now := time.Now()
	return &IngestRun{
		ID:          NewID(),
		EditionID:   editionID,
		VolumeTag:   volumeTag,
		ArchiveKey:  archiveKey,
		ArchiveSize: archiveSize,
		Status:      RunStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkRunning transitions the run into the running state.
func (r *IngestRun) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.Error = ""
	r.UpdatedAt = now
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
}

// MarkPartial records that pending files remain after a time-boxed batch.
func (r *IngestRun) MarkPartial() {
	r.Status = RunStatusPartial
	r.UpdatedAt = time.Now()
}

// MarkDone finalizes the run.
func (r *IngestRun) MarkDone() {
	now := time.Now()
	r.Status = RunStatusDone
	r.Error = ""
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// MarkFailed records a run-level error verbatim.
func (r *IngestRun) MarkFailed(errText string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.Error = errText
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// FileStatus represents the per-file ledger state
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// ParseProgress is the resumability ledger: one row per discovered
// document-bearing file, scoped to one IngestRun.
type ParseProgress struct {
	RunID        string     `json:"run_id"`
	FilePath     string     `json:"file_path"`
	Status       FileStatus `json:"status"`
	NodesCreated int        `json:"nodes_created"`
	Error        string     `json:"error,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// StopReason explains why a batch loop returned control to its caller.
type StopReason string

const (
	// StopCompleted means no pending files remain; the run was finalized.
	StopCompleted StopReason = "completed"
	// StopBatchLimit means the batch exhausted its file allotment with
	// pending files remaining.
	StopBatchLimit StopReason = "batch_limit"
	// StopTimeBudget means the wall-clock budget ran out mid-batch.
	StopTimeBudget StopReason = "time_budget"
)

// BatchResult is the explicit continue-or-stop outcome of one batch
// invocation, consumed by the orchestrator and by chunked callers.
type BatchResult struct {
	RunID     string     `json:"run_id"`
	Processed int        `json:"processed"`
	Errored   int        `json:"errored"`
	Remaining int        `json:"remaining"`
	Reason    StopReason `json:"reason"`
}

// Done returns true when the run reached its terminal done state.
func (b BatchResult) Done() bool {
	return b.Reason == StopCompleted
}
