package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/archive"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/assets"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/classify"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/extract"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/hierarchy"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/refs"
)

const (
	defaultBatchSize  = 25
	defaultTimeBudget = 60 * time.Second
	defaultLeaseTTL   = 5 * time.Minute

	// editionStatusParsed is propagated onto the owning edition once a run
	// finalizes successfully.
	editionStatusParsed = "parsed"
)

// IngestOrchestrator coordinates the archive ingestion pipeline:
//  1. Fetch and open the archive
//  2. Classify XML entries, seed the per-file ledger
//  3. Process pending files in bounded, time-boxed batches
//     (extract -> blocks -> hierarchy -> reference scan)
//  4. Finalize: upload assets, link placeholders, resolve references,
//     snapshot counts, advance the edition
type IngestOrchestrator struct {
	runs       driven.RunStore
	progress   driven.ProgressStore
	xmlObjects driven.XMLObjectStore
	documents  driven.DocumentStore
	blocks     driven.BlockStore
	nodes      driven.NodeStore
	assetStore driven.AssetStore
	references driven.ReferenceStore
	objects    driven.ObjectStore
	enqueuer   driven.Enqueuer
	lock       driven.DistributedLock
	uploader   *assets.Uploader
	logger     *slog.Logger

	batchSize  int
	timeBudget time.Duration
	leaseTTL   time.Duration
}

// IngestOrchestratorConfig holds dependencies for IngestOrchestrator.
type IngestOrchestratorConfig struct {
	Runs       driven.RunStore
	Progress   driven.ProgressStore
	XMLObjects driven.XMLObjectStore
	Documents  driven.DocumentStore
	Blocks     driven.BlockStore
	Nodes      driven.NodeStore
	Assets     driven.AssetStore
	References driven.ReferenceStore
	Objects    driven.ObjectStore
	Enqueuer   driven.Enqueuer
	Lock       driven.DistributedLock
	Logger     *slog.Logger

	// BatchSize bounds how many files one ProcessBatch invocation handles.
	BatchSize int
	// TimeBudget bounds the wall clock of one ProcessBatch invocation.
	TimeBudget time.Duration
	// LeaseTTL is how long the (edition, volume) lease is held before
	// auto-expiry frees the slot after a crash.
	LeaseTTL time.Duration
}

// NewIngestOrchestrator creates the ingestion orchestrator.
func NewIngestOrchestrator(cfg IngestOrchestratorConfig) *IngestOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	timeBudget := cfg.TimeBudget
	if timeBudget <= 0 {
		timeBudget = defaultTimeBudget
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}

	return &IngestOrchestrator{
		runs:       cfg.Runs,
		progress:   cfg.Progress,
		xmlObjects: cfg.XMLObjects,
		documents:  cfg.Documents,
		blocks:     cfg.Blocks,
		nodes:      cfg.Nodes,
		assetStore: cfg.Assets,
		references: cfg.References,
		objects:    cfg.Objects,
		enqueuer:   cfg.Enqueuer,
		lock:       cfg.Lock,
		uploader: assets.NewUploader(assets.UploaderConfig{
			Objects: cfg.Objects,
			Assets:  cfg.Assets,
			Blocks:  cfg.Blocks,
			Logger:  logger,
		}),
		logger:     logger,
		batchSize:  batchSize,
		timeBudget: timeBudget,
		leaseTTL:   leaseTTL,
	}
}

var _ driving.IngestService = (*IngestOrchestrator)(nil)

func slotLockName(editionID, volumeTag string) string {
	return "ingest:" + editionID + ":" + volumeTag
}

// ConfirmUpload records a confirmed archive upload and creates + enqueues
// the run for the (edition, volume) pair.
func (o *IngestOrchestrator) ConfirmUpload(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
	if editionID == "" || volumeTag == "" || archiveKey == "" {
		return nil, fmt.Errorf("%w: edition, volume and archive key are required", domain.ErrInvalidInput)
	}
	if archiveSize <= 0 {
		return nil, fmt.Errorf("%w: archive size must be positive", domain.ErrInvalidInput)
	}

	lockName := slotLockName(editionID, volumeTag)
	acquired, err := o.lock.Acquire(ctx, lockName, o.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire slot lease: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrRunInProgress, editionID, volumeTag)
	}
	defer func() {
		if err := o.lock.Release(ctx, lockName); err != nil {
			o.logger.Warn("failed to release slot lease", "lock", lockName, "error", err)
		}
	}()

	if existing, err := o.runs.GetInFlight(ctx, editionID, volumeTag); err == nil {
		return nil, fmt.Errorf("%w: run %s owns %s/%s", domain.ErrRunInProgress, existing.ID, editionID, volumeTag)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check in-flight run: %w", err)
	}

	run := domain.NewIngestRun(editionID, volumeTag, archiveKey, archiveSize)
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	if err := o.enqueuer.EnqueueRun(ctx, editionID, run.ID); err != nil {
		run.MarkFailed(fmt.Sprintf("enqueue failed: %v", err))
		if saveErr := o.runs.Save(ctx, run); saveErr != nil {
			o.logger.Error("failed to persist enqueue failure", "run_id", run.ID, "error", saveErr)
		}
		return run, fmt.Errorf("%w: %v", domain.ErrEnqueue, err)
	}

	o.logger.Info("run created",
		"run_id", run.ID, "edition_id", editionID, "volume_tag", volumeTag,
		"archive_key", archiveKey, "archive_size", archiveSize)
	return run, nil
}

// ProcessBatch runs one time-boxed, bounded batch for the run.
func (o *IngestOrchestrator) ProcessBatch(ctx context.Context, runID string) (*domain.BatchResult, error) {
	run, err := o.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run %s is %s", domain.ErrRunTerminal, runID, run.Status)
	}

	lockName := slotLockName(run.EditionID, run.VolumeTag)
	acquired, err := o.lock.Acquire(ctx, lockName, o.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire slot lease: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s/%s is being processed elsewhere", domain.ErrRunInProgress, run.EditionID, run.VolumeTag)
	}
	defer func() {
		if err := o.lock.Release(ctx, lockName); err != nil {
			o.logger.Warn("failed to release slot lease", "lock", lockName, "error", err)
		}
	}()

	layout, err := o.openArchive(ctx, run)
	if err != nil {
		return nil, o.failRun(ctx, run, err)
	}

	if err := o.prepare(ctx, run, layout); err != nil {
		return nil, o.failRun(ctx, run, err)
	}

	return o.processBatch(ctx, run, layout)
}

// RunToCompletion drains a run in one pass, the queue-worker shape.
func (o *IngestOrchestrator) RunToCompletion(ctx context.Context, runID string) error {
	for {
		result, err := o.ProcessBatch(ctx, runID)
		if err != nil {
			return err
		}
		if result.Done() {
			return nil
		}
		if result.Processed == 0 && result.Errored == 0 {
			return fmt.Errorf("run %s made no progress with %d files remaining", runID, result.Remaining)
		}
	}
}

// Retry re-enqueues a failed or stuck run.
func (o *IngestOrchestrator) Retry(ctx context.Context, runID string) (*domain.IngestRun, error) {
	run, err := o.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.Status == domain.RunStatusDone {
		return nil, fmt.Errorf("%w: run %s already completed", domain.ErrRunTerminal, runID)
	}
	// An in-flight run that updated recently is still owned by a worker.
	if run.Status.InFlight() && time.Since(run.UpdatedAt) < o.leaseTTL {
		return nil, fmt.Errorf("%w: run %s is active", domain.ErrRunInProgress, runID)
	}

	run.Status = domain.RunStatusQueued
	run.Error = ""
	run.UpdatedAt = time.Now()
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	if err := o.enqueuer.EnqueueRun(ctx, run.EditionID, run.ID); err != nil {
		run.MarkFailed(fmt.Sprintf("enqueue failed: %v", err))
		if saveErr := o.runs.Save(ctx, run); saveErr != nil {
			o.logger.Error("failed to persist enqueue failure", "run_id", run.ID, "error", saveErr)
		}
		return run, fmt.Errorf("%w: %v", domain.ErrEnqueue, err)
	}

	o.logger.Info("run re-enqueued", "run_id", run.ID)
	return run, nil
}

// openArchive fetches and parses the archive recorded at confirm time.
func (o *IngestOrchestrator) openArchive(ctx context.Context, run *domain.IngestRun) (*archive.Layout, error) {
	data, err := o.objects.Get(ctx, run.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("fetch archive %s: %w", run.ArchiveKey, err)
	}
	layout, err := archive.Read(data)
	if err != nil {
		return nil, err
	}
	return layout, nil
}

// prepare moves the run into running and seeds the ledger. A run entering
// from anything other than partial is restarting, so all previous output
// rows for the run are deleted first: re-processing must converge on the
// same result, not accumulate duplicates.
func (o *IngestOrchestrator) prepare(ctx context.Context, run *domain.IngestRun, layout *archive.Layout) error {
	// Partial means a previous batch already classified and seeded; the file
	// set is fixed, so just resume the ledger.
	if run.Status != domain.RunStatusPartial {
		if err := o.resetOutputs(ctx, run.ID); err != nil {
			return err
		}

		entries := layout.SourceEntries()
		objects := make([]*domain.XMLObject, 0, len(entries))
		var docPaths []string
		for _, e := range entries {
			obj := classify.Classify(run.ID, e.Path, e.Data)
			objects = append(objects, obj)
			if obj.DocumentBearing() {
				docPaths = append(docPaths, e.Path)
			}
		}
		if err := o.xmlObjects.SaveBatch(ctx, objects); err != nil {
			return fmt.Errorf("save classified entries: %w", err)
		}
		if err := o.progress.Seed(ctx, run.ID, docPaths); err != nil {
			return fmt.Errorf("seed ledger: %w", err)
		}

		o.logger.Info("run prepared",
			"run_id", run.ID, "xml_entries", len(objects), "document_bearing", len(docPaths))
	}

	run.MarkRunning()
	if err := o.runs.Save(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// resetOutputs deletes a run's derived rows children-first.
func (o *IngestOrchestrator) resetOutputs(ctx context.Context, runID string) error {
	steps := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"references", o.references.DeleteByRun},
		{"assets", o.assetStore.DeleteByRun},
		{"blocks", o.blocks.DeleteByRun},
		{"nodes", o.nodes.DeleteByRun},
		{"documents", o.documents.DeleteByRun},
		{"xml objects", o.xmlObjects.DeleteByRun},
		{"ledger", o.progress.DeleteByRun},
	}
	for _, s := range steps {
		if err := s.fn(ctx, runID); err != nil {
			return fmt.Errorf("reset %s: %w", s.name, err)
		}
	}
	return nil
}

func (o *IngestOrchestrator) processBatch(ctx context.Context, run *domain.IngestRun, layout *archive.Layout) (*domain.BatchResult, error) {
	pending, err := o.progress.ListPending(ctx, run.ID, o.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	// Seed from the highest persisted sort order, not the row count: an
	// errored file leaves a gap, and a count-based seed would hand out
	// already-used sort values on resume.
	maxSort, err := o.nodes.MaxSortOrder(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("max sort order: %w", err)
	}
	builder := hierarchy.NewBuilder(run.ID, o.docLookup(ctx, run.ID))
	builder.StartAt(maxSort)

	deadline := time.Now().Add(o.timeBudget)
	result := &domain.BatchResult{RunID: run.ID, Reason: domain.StopBatchLimit}

	for _, row := range pending {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			result.Reason = domain.StopTimeBudget
			break
		}

		if err := o.progress.MarkProcessing(ctx, run.ID, row.FilePath); err != nil {
			return nil, fmt.Errorf("mark processing %s: %w", row.FilePath, err)
		}

		nodesCreated, err := o.processFile(ctx, run, builder, row.FilePath)
		if err != nil {
			o.logger.Warn("file failed", "run_id", run.ID, "file", row.FilePath, "error", err)
			if markErr := o.progress.MarkError(ctx, run.ID, row.FilePath, err.Error()); markErr != nil {
				return nil, fmt.Errorf("mark error %s: %w", row.FilePath, markErr)
			}
			result.Errored++
			continue
		}
		if err := o.progress.MarkCompleted(ctx, run.ID, row.FilePath, nodesCreated); err != nil {
			return nil, fmt.Errorf("mark completed %s: %w", row.FilePath, err)
		}
		result.Processed++
	}

	total, completed, errored, err := o.progress.Counts(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger counts: %w", err)
	}
	result.Remaining = total - completed - errored

	run.Stats.TotalFiles = total
	run.Stats.ProcessedFiles = completed
	run.Stats.ErroredFiles = errored

	if result.Remaining == 0 {
		if err := o.finalize(ctx, run, layout); err != nil {
			return nil, o.failRun(ctx, run, err)
		}
		result.Reason = domain.StopCompleted
		return result, nil
	}

	run.MarkPartial()
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	o.logger.Info("batch stopped early",
		"run_id", run.ID, "reason", result.Reason,
		"processed", result.Processed, "errored", result.Errored, "remaining", result.Remaining)
	return result, nil
}

// processFile runs the per-file pipeline: parse, blocks, hierarchy,
// reference scan. Returns how many nodes the file produced.
func (o *IngestOrchestrator) processFile(ctx context.Context, run *domain.IngestRun, builder *hierarchy.Builder, filePath string) (int, error) {
	basename := path.Base(filePath)
	obj, err := o.xmlObjects.GetByBasename(ctx, run.ID, basename)
	if err != nil {
		return 0, fmt.Errorf("load entry %s: %w", basename, err)
	}

	parsed, err := extract.Parse(basename, []byte(obj.Raw))
	if err != nil {
		return 0, err
	}

	doc := &domain.Document{
		ID:            domain.NewID(),
		RunID:         run.ID,
		XMLObjectID:   obj.ID,
		Basename:      basename,
		ReferenceCode: parsed.ReferenceCode,
		Title:         parsed.Title,
		ArchiveNum:    parsed.ArchiveNum,
		Jurisdiction:  parsed.Jurisdiction,
		DocType:       parsed.DocType,
		CreatedAt:     time.Now(),
	}

	nodesCreated, err := o.persistFile(ctx, run, builder, obj, parsed, doc)
	if err != nil {
		// An errored file contributes zero rows. Partial output would
		// orphan documents the ledger knows nothing about and inflate
		// the final counts.
		o.discardFileOutputs(ctx, run.ID, doc.ID)
		return 0, err
	}
	return nodesCreated, nil
}

// persistFile writes one file's extraction output: document row, blocks,
// hierarchy nodes and scanned references, in that order. References go
// last so a failed write never leaves edges behind.
func (o *IngestOrchestrator) persistFile(ctx context.Context, run *domain.IngestRun, builder *hierarchy.Builder, obj *domain.XMLObject, parsed *extract.Parsed, doc *domain.Document) (int, error) {
	if err := o.documents.Save(ctx, doc); err != nil {
		return 0, fmt.Errorf("save document: %w", err)
	}

	if blocks := parsed.Blocks(run.ID, doc.ID); len(blocks) > 0 {
		if err := o.blocks.SaveBatch(ctx, blocks); err != nil {
			return 0, fmt.Errorf("save blocks: %w", err)
		}
	}

	nodes := builder.Build(doc.ID, parsed)
	if err := o.nodes.SaveBatch(ctx, nodes); err != nil {
		return 0, fmt.Errorf("save nodes: %w", err)
	}

	if references := refs.Scan(run.ID, doc.ID, []byte(obj.Raw)); len(references) > 0 {
		if err := o.references.SaveBatch(ctx, references); err != nil {
			return 0, fmt.Errorf("save references: %w", err)
		}
	}

	return len(nodes), nil
}

// discardFileOutputs removes whatever a failed file managed to persist.
// Best effort: a delete failure is logged and the ledger error row still
// stands, so a restart clears any leftovers via resetOutputs.
func (o *IngestOrchestrator) discardFileOutputs(ctx context.Context, runID, documentID string) {
	steps := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"nodes", o.nodes.DeleteByDocument},
		{"blocks", o.blocks.DeleteByDocument},
		{"document", o.documents.Delete},
	}
	for _, s := range steps {
		if err := s.fn(ctx, documentID); err != nil {
			o.logger.Warn("failed to discard partial output",
				"run_id", runID, "document_id", documentID, "step", s.name, "error", err)
		}
	}
}

// docLookup resolves clauseref/subtopic targets against documents already
// ingested this run. Pending files sort in stable path order, so chunked
// and single-pass executions see the same targets at the same points.
func (o *IngestOrchestrator) docLookup(ctx context.Context, runID string) hierarchy.DocLookup {
	return func(basename string) (*extract.Parsed, string, bool) {
		doc, err := o.documents.GetByBasename(ctx, runID, basename)
		if err != nil {
			return nil, "", false
		}
		obj, err := o.xmlObjects.GetByBasename(ctx, runID, basename)
		if err != nil {
			return nil, "", false
		}
		parsed, err := extract.Parse(basename, []byte(obj.Raw))
		if err != nil {
			return nil, "", false
		}
		return parsed, doc.ID, true
	}
}

// finalize uploads assets, links placeholders, resolves references,
// snapshots counts and advances the edition.
func (o *IngestOrchestrator) finalize(ctx context.Context, run *domain.IngestRun, layout *archive.Layout) error {
	uploaded, err := o.uploader.UploadAll(ctx, run, layout)
	if err != nil {
		return fmt.Errorf("upload assets: %w", err)
	}

	documents, err := o.documents.ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	linked, err := o.uploader.LinkPlaceholders(ctx, run.ID, documents)
	if err != nil {
		return fmt.Errorf("link placeholders: %w", err)
	}

	resolved, err := o.references.ResolveTargets(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("resolve references: %w", err)
	}

	if err := o.snapshotCounts(ctx, run); err != nil {
		return err
	}

	run.MarkDone()
	if err := o.runs.Save(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if err := o.runs.UpdateEditionStatus(ctx, run.EditionID, editionStatusParsed); err != nil {
		o.logger.Warn("failed to advance edition status", "edition_id", run.EditionID, "error", err)
	}

	o.logger.Info("run completed",
		"run_id", run.ID, "edition_id", run.EditionID, "volume_tag", run.VolumeTag,
		"documents", run.Stats.Documents, "blocks", run.Stats.Blocks,
		"nodes", run.Stats.Nodes, "assets", len(uploaded),
		"placements", linked, "references_resolved", resolved,
		"errored_files", run.Stats.ErroredFiles)
	return nil
}

func (o *IngestOrchestrator) snapshotCounts(ctx context.Context, run *domain.IngestRun) error {
	counts := []struct {
		name string
		fn   func(context.Context, string) (int, error)
		dst  *int
	}{
		{"documents", o.documents.CountByRun, &run.Stats.Documents},
		{"blocks", o.blocks.CountByRun, &run.Stats.Blocks},
		{"nodes", o.nodes.CountByRun, &run.Stats.Nodes},
		{"assets", o.assetStore.CountByRun, &run.Stats.Assets},
		{"references", o.references.CountByRun, &run.Stats.References},
	}
	for _, c := range counts {
		n, err := c.fn(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dst = n
	}
	return nil
}

// failRun marks the run failed with the error text verbatim and returns
// the original error.
func (o *IngestOrchestrator) failRun(ctx context.Context, run *domain.IngestRun, err error) error {
	o.logger.Error("run failed", "run_id", run.ID, "error", err)
	run.MarkFailed(err.Error())
	if saveErr := o.runs.Save(ctx, run); saveErr != nil {
		o.logger.Error("failed to persist run failure", "run_id", run.ID, "error", saveErr)
	}
	return err
}

// GetRun retrieves run status and aggregate counts.
func (o *IngestOrchestrator) GetRun(ctx context.Context, runID string) (*domain.IngestRun, error) {
	return o.runs.Get(ctx, runID)
}

// ListRuns retrieves runs for an edition, newest first.
func (o *IngestOrchestrator) ListRuns(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
	if editionID == "" {
		return nil, fmt.Errorf("%w: edition is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return o.runs.ListByEdition(ctx, editionID, limit, offset)
}

// ListProgress retrieves the per-file ledger for a run.
func (o *IngestOrchestrator) ListProgress(ctx context.Context, runID string) ([]*domain.ParseProgress, error) {
	if _, err := o.runs.Get(ctx, runID); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return o.progress.List(ctx, runID)
}

// GetDocument retrieves one extracted document with its ordered blocks.
func (o *IngestOrchestrator) GetDocument(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error) {
	doc, err := o.documents.Get(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	blocks, err := o.blocks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("list blocks: %w", err)
	}
	return doc, blocks, nil
}

// GetDocumentNodes retrieves a document's hierarchy nodes in sort order.
func (o *IngestOrchestrator) GetDocumentNodes(ctx context.Context, documentID string) ([]*domain.Node, error) {
	if _, err := o.documents.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return o.nodes.ListByDocument(ctx, documentID)
}
