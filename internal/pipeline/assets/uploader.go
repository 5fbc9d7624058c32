// Package assets uploads archive binaries to object storage and links them
// back to the image placeholders that cite them.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/archive"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/refs"
)

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

const defaultConcurrency = 4

// Uploader pushes an archive's asset entries to object storage.
type Uploader struct {
	objects     driven.ObjectStore
	assets      driven.AssetStore
	blocks      driven.BlockStore
	logger      *slog.Logger
	concurrency int
}

// UploaderConfig holds dependencies for creating an Uploader
type UploaderConfig struct {
	Objects     driven.ObjectStore
	Assets      driven.AssetStore
	Blocks      driven.BlockStore
	Logger      *slog.Logger
	Concurrency int
}

// NewUploader creates an asset uploader
func NewUploader(cfg UploaderConfig) *Uploader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Uploader{
		objects:     cfg.Objects,
		assets:      cfg.Assets,
		blocks:      cfg.Blocks,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Key returns the deterministic object-storage key for one asset file.
// Re-running an ingestion overwrites the same keys instead of duplicating.
func Key(editionID, volumeTag, filename string) string {
	return fmt.Sprintf("editions/%s/%s/assets/%s", editionID, volumeTag, filename)
}

// UploadAll stores every allowed asset entry and records an asset row per
// file. Uploads run on a bounded pool. A failed file is logged and
// skipped, leaving its placeholders unresolved; the documents themselves
// already parsed, so one bad binary never sinks the run.
func (u *Uploader) UploadAll(ctx context.Context, run *domain.IngestRun, layout *archive.Layout) ([]*domain.Asset, error) {
	entries := layout.AssetEntries()
	if len(entries) == 0 {
		return nil, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out []*domain.Asset
	)
	sem := make(chan struct{}, u.concurrency)

	for _, entry := range entries {
		filename := path.Base(entry.Path)
		contentType, ok := contentTypes[strings.ToLower(path.Ext(filename))]
		if !ok {
			u.logger.Debug("skipping non-asset file", "run_id", run.ID, "path", entry.Path)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(entry archive.Entry, filename, contentType string) {
			defer wg.Done()
			defer func() { <-sem }()

			asset, err := u.upload(ctx, run, entry, filename, contentType)
			if err != nil {
				u.logger.Warn("asset upload failed, skipping",
					"run_id", run.ID, "file", filename, "error", err)
				return
			}
			mu.Lock()
			out = append(out, asset)
			mu.Unlock()
		}(entry, filename, contentType)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (u *Uploader) upload(ctx context.Context, run *domain.IngestRun, entry archive.Entry, filename, contentType string) (*domain.Asset, error) {
	key := Key(run.EditionID, run.VolumeTag, filename)
	if err := u.objects.Put(ctx, key, entry.Data, contentType); err != nil {
		return nil, fmt.Errorf("%w: upload %s: %v", domain.ErrStorage, filename, err)
	}

	asset := &domain.Asset{
		ID:          domain.NewID(),
		RunID:       run.ID,
		Filename:    filename,
		Key:         key,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(entry.Data)); err == nil {
		asset.Width = cfg.Width
		asset.Height = cfg.Height
	}

	if err := u.assets.Save(ctx, asset); err != nil {
		return nil, fmt.Errorf("save asset %s: %w", filename, err)
	}
	return asset, nil
}

// LinkPlaceholders patches every image block whose descriptor resolves to
// an uploaded asset and records a placement per match. Placeholders citing
// files the archive never shipped are left unpatched.
func (u *Uploader) LinkPlaceholders(ctx context.Context, runID string, documents []*domain.Document) (int, error) {
	linked := 0
	for _, doc := range documents {
		blocks, err := u.blocks.ListByDocument(ctx, doc.ID)
		if err != nil {
			return linked, fmt.Errorf("list blocks for %s: %w", doc.ID, err)
		}
		for _, block := range blocks {
			if block.Type != domain.BlockTypeImage || block.ImageRef == "" {
				continue
			}
			filename := refs.TargetBasename(block.ImageRef)
			asset, err := u.assets.GetByFilename(ctx, runID, filename)
			if errors.Is(err, domain.ErrNotFound) {
				u.logger.Debug("image placeholder without asset",
					"run_id", runID, "document_id", doc.ID, "ref", block.ImageRef)
				continue
			}
			if err != nil {
				return linked, fmt.Errorf("lookup asset %s: %w", filename, err)
			}
			if err := u.blocks.PatchAsset(ctx, block.ID, asset.ID, asset.Key); err != nil {
				return linked, fmt.Errorf("patch block %s: %w", block.ID, err)
			}
			placement := &domain.AssetPlacement{
				ID:         domain.NewID(),
				RunID:      runID,
				AssetID:    asset.ID,
				DocumentID: doc.ID,
				BlockID:    block.ID,
				Caption:    block.Text,
				CreatedAt:  time.Now(),
			}
			if err := u.assets.SavePlacement(ctx, placement); err != nil {
				return linked, fmt.Errorf("save placement: %w", err)
			}
			linked++
		}
	}
	return linked, nil
}
