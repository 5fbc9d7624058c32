package assets

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/archive"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testRun() *domain.IngestRun {
	return &domain.IngestRun{ID: "run-1", EditionID: "bca-2025", VolumeTag: "vol-one"}
}

func TestKeyDeterministic(t *testing.T) {
	got := Key("bca-2025", "vol-one", "figure-3.1.png")
	want := "editions/bca-2025/vol-one/assets/figure-3.1.png"
	if got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
	if got != Key("bca-2025", "vol-one", "figure-3.1.png") {
		t.Fatal("same inputs produced different keys")
	}
}

func TestUploadAll(t *testing.T) {
	objects := mocks.NewMockObjectStore()
	assetStore := mocks.NewMockAssetStore()
	u := NewUploader(UploaderConfig{Objects: objects, Assets: assetStore, Blocks: mocks.NewMockBlockStore()})

	layout := &archive.Layout{
		AssetRoot: "archive/images",
		Entries: []archive.Entry{
			{Path: "archive/images/figure-1.png", Data: pngBytes(t, 40, 20)},
			{Path: "archive/images/notes.txt", Data: []byte("not an asset")},
			{Path: "archive/images/schedule.pdf", Data: []byte("%PDF-1.4")},
		},
	}

	got, err := u.UploadAll(context.Background(), testRun(), layout)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assets, want 2 (txt filtered out)", len(got))
	}

	// Sorted by filename: figure-1.png then schedule.pdf.
	fig := got[0]
	if fig.Filename != "figure-1.png" {
		t.Fatalf("first asset = %s", fig.Filename)
	}
	if fig.Key != "editions/bca-2025/vol-one/assets/figure-1.png" {
		t.Errorf("key = %q", fig.Key)
	}
	if fig.ContentType != "image/png" {
		t.Errorf("content type = %q", fig.ContentType)
	}
	if fig.Width != 40 || fig.Height != 20 {
		t.Errorf("dimensions = %dx%d, want 40x20", fig.Width, fig.Height)
	}

	pdf := got[1]
	if pdf.ContentType != "application/pdf" {
		t.Errorf("pdf content type = %q", pdf.ContentType)
	}
	if pdf.Width != 0 || pdf.Height != 0 {
		t.Errorf("pdf should carry no dimensions, got %dx%d", pdf.Width, pdf.Height)
	}

	for _, a := range got {
		data, err := objects.Get(context.Background(), a.Key)
		if err != nil {
			t.Errorf("object %s not stored: %v", a.Key, err)
		} else if len(data) == 0 {
			t.Errorf("object %s empty", a.Key)
		}
		if _, err := assetStore.GetByFilename(context.Background(), "run-1", a.Filename); err != nil {
			t.Errorf("asset row %s not saved: %v", a.Filename, err)
		}
	}
}

func TestUploadAllEmptyAssetRoot(t *testing.T) {
	u := NewUploader(UploaderConfig{
		Objects: mocks.NewMockObjectStore(),
		Assets:  mocks.NewMockAssetStore(),
		Blocks:  mocks.NewMockBlockStore(),
	})
	got, err := u.UploadAll(context.Background(), testRun(), &archive.Layout{})
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if got != nil {
		t.Fatalf("got %d assets, want none", len(got))
	}
}

func TestUploadAllSkipsFailedUploads(t *testing.T) {
	objects := mocks.NewMockObjectStore()
	objects.PutErr = domain.ErrStorage
	assetStore := mocks.NewMockAssetStore()
	u := NewUploader(UploaderConfig{
		Objects: objects,
		Assets:  assetStore,
		Blocks:  mocks.NewMockBlockStore(),
	})

	layout := &archive.Layout{
		AssetRoot: "a/images",
		Entries:   []archive.Entry{{Path: "a/images/x.png", Data: pngBytes(t, 1, 1)}},
	}
	got, err := u.UploadAll(context.Background(), testRun(), layout)
	if err != nil {
		t.Fatalf("a failed upload should be skipped, not surfaced: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d assets, want none", len(got))
	}
	if _, err := assetStore.GetByFilename(context.Background(), "run-1", "x.png"); err == nil {
		t.Fatal("asset row saved for a file that never reached storage")
	}
}

func TestLinkPlaceholders(t *testing.T) {
	assetStore := mocks.NewMockAssetStore()
	blockStore := mocks.NewMockBlockStore()
	u := NewUploader(UploaderConfig{
		Objects: mocks.NewMockObjectStore(),
		Assets:  assetStore,
		Blocks:  blockStore,
	})

	asset := &domain.Asset{
		ID: "asset-1", RunID: "run-1", Filename: "fig.png",
		Key: Key("e", "v", "fig.png"), CreatedAt: time.Now(),
	}
	if err := assetStore.Save(context.Background(), asset); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	blocks := []*domain.Block{
		{ID: "b1", RunID: "run-1", DocumentID: "doc-1", Ordinal: 0, Type: domain.BlockTypeParagraph, Text: "text"},
		{ID: "b2", RunID: "run-1", DocumentID: "doc-1", Ordinal: 1, Type: domain.BlockTypeImage, ImageRef: "images/fig.png", Text: "Figure 1"},
		{ID: "b3", RunID: "run-1", DocumentID: "doc-1", Ordinal: 2, Type: domain.BlockTypeImage, ImageRef: "images/missing.png"},
	}
	if err := blockStore.SaveBatch(context.Background(), blocks); err != nil {
		t.Fatalf("seed blocks: %v", err)
	}

	docs := []*domain.Document{{ID: "doc-1", RunID: "run-1"}}
	linked, err := u.LinkPlaceholders(context.Background(), "run-1", docs)
	if err != nil {
		t.Fatalf("LinkPlaceholders: %v", err)
	}
	if linked != 1 {
		t.Fatalf("linked = %d, want 1", linked)
	}

	stored, err := blockStore.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("list blocks: %v", err)
	}
	for _, b := range stored {
		switch b.ID {
		case "b2":
			if b.AssetID != "asset-1" || b.AssetKey != asset.Key {
				t.Errorf("b2 not patched: %q %q", b.AssetID, b.AssetKey)
			}
		case "b3":
			if b.AssetID != "" {
				t.Errorf("b3 patched despite missing asset")
			}
		}
	}

	placements, err := assetStore.ListPlacements(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("list placements: %v", err)
	}
	if len(placements) != 1 {
		t.Fatalf("got %d placements, want 1", len(placements))
	}
	if placements[0].BlockID != "b2" || placements[0].Caption != "Figure 1" {
		t.Errorf("placement = %+v", placements[0])
	}
}
