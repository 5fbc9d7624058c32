package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"testing"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/codex-ingest/internal/core/services"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// ingestFeature holds per-scenario state: the service wired over in-memory
// adapters, the staged archive, and the outcome of each action step.
type ingestFeature struct {
	runs       *mocks.MockRunStore
	progress   *mocks.MockProgressStore
	documents  *mocks.MockDocumentStore
	references *mocks.MockReferenceStore
	objects    *mocks.MockObjectStore
	svc        *services.IngestOrchestrator

	archive    map[string][]byte
	run        *domain.IngestRun
	confirmErr error
}

func (f *ingestFeature) reset() {
	f.runs = mocks.NewMockRunStore()
	f.progress = mocks.NewMockProgressStore()
	f.documents = mocks.NewMockDocumentStore()
	f.references = mocks.NewMockReferenceStore(f.documents)
	f.objects = mocks.NewMockObjectStore()

	f.svc = services.NewIngestOrchestrator(services.IngestOrchestratorConfig{
		Runs:       f.runs,
		Progress:   f.progress,
		XMLObjects: mocks.NewMockXMLObjectStore(),
		Documents:  f.documents,
		Blocks:     mocks.NewMockBlockStore(),
		Nodes:      mocks.NewMockNodeStore(),
		Assets:     mocks.NewMockAssetStore(),
		References: f.references,
		Objects:    f.objects,
		Enqueuer:   mocks.NewMockEnqueuer(),
		Lock:       mocks.NewMockDistributedLock(),
	})

	f.archive = nil
	f.run = nil
	f.confirmErr = nil
}

func (f *ingestFeature) anArchiveWithTwoClauses(source, target string) error {
	figure, err := encodePNG()
	if err != nil {
		return err
	}

	f.archive = map[string][]byte{
		"archive/xml files/" + source + ".xml": []byte(fmt.Sprintf(`<clause>
  <sptc>%s</sptc>
  <title>Source</title>
  <p>Intro text.</p>
  <clauseref href="%s.xml"/>
  <image-reference href="../images/fig.png">Figure 1</image-reference>
</clause>`, source, target)),
		"archive/xml files/" + target + ".xml": []byte(fmt.Sprintf(`<clause>
  <sptc>%s</sptc>
  <title>Target</title>
  <subclause><num>1</num><p>Hello.</p></subclause>
</clause>`, target)),
		"archive/images/fig.png": figure,
	}
	return nil
}

func (f *ingestFeature) archiveContainsMalformedFile(name string) error {
	if f.archive == nil {
		return errors.New("no archive staged")
	}
	f.archive["archive/xml files/"+name] = []byte(`<clause><sptc>BROKEN</sptc><title>Never closed`)
	return nil
}

func (f *ingestFeature) uploadConfirmed(editionID, volumeTag string) error {
	ctx := context.Background()
	key := fmt.Sprintf("editions/%s/%s/archive.zip", editionID, volumeTag)
	data, err := buildArchive(f.archive)
	if err != nil {
		return err
	}
	if err := f.objects.Put(ctx, key, data, "application/zip"); err != nil {
		return fmt.Errorf("stage archive: %w", err)
	}

	f.run, err = f.svc.ConfirmUpload(ctx, editionID, volumeTag, key, int64(len(data)))
	if err != nil {
		return fmt.Errorf("confirm upload: %w", err)
	}
	return nil
}

func (f *ingestFeature) secondUploadConfirmed(editionID, volumeTag string) error {
	_, f.confirmErr = f.svc.ConfirmUpload(context.Background(), editionID, volumeTag, "another.zip", 10)
	return nil
}

func (f *ingestFeature) runDrained() error {
	if f.run == nil {
		return errors.New("no run confirmed")
	}
	return f.svc.RunToCompletion(context.Background(), f.run.ID)
}

func (f *ingestFeature) runStatusIs(want string) error {
	run, err := f.svc.GetRun(context.Background(), f.run.ID)
	if err != nil {
		return err
	}
	if string(run.Status) != want {
		return fmt.Errorf("run status = %s (error %q), want %s", run.Status, run.Error, want)
	}
	return nil
}

func (f *ingestFeature) documentsStored(want int) error {
	docs, err := f.documents.ListByRun(context.Background(), f.run.ID)
	if err != nil {
		return err
	}
	if len(docs) != want {
		return fmt.Errorf("documents = %d, want %d", len(docs), want)
	}
	return nil
}

func (f *ingestFeature) citationResolves(sourceBasename, targetBasename string) error {
	ctx := context.Background()
	refs, err := f.references.ListByRun(ctx, f.run.ID)
	if err != nil {
		return err
	}

	target, err := f.documents.GetByBasename(ctx, f.run.ID, targetBasename)
	if err != nil {
		return fmt.Errorf("target document: %w", err)
	}

	for _, ref := range refs {
		if ref.TargetBasename != targetBasename {
			continue
		}
		if !ref.Resolved() {
			return fmt.Errorf("citation to %s left unresolved", targetBasename)
		}
		if ref.TargetDocumentID != target.ID {
			return fmt.Errorf("citation target = %s, want %s", ref.TargetDocumentID, target.ID)
		}
		return nil
	}
	return fmt.Errorf("no citation from %s to %s recorded", sourceBasename, targetBasename)
}

func (f *ingestFeature) figureStored() error {
	key := fmt.Sprintf("editions/%s/%s/assets/fig.png", f.run.EditionID, f.run.VolumeTag)
	exists, err := f.objects.Exists(context.Background(), key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no object stored under %s", key)
	}
	return nil
}

func (f *ingestFeature) editionStatusIs(want string) error {
	if got := f.runs.EditionStatus(f.run.EditionID); got != want {
		return fmt.Errorf("edition status = %q, want %q", got, want)
	}
	return nil
}

func (f *ingestFeature) ledgerMarks(filePath, status string) error {
	row, err := f.progress.Get(context.Background(), f.run.ID, filePath)
	if err != nil {
		return err
	}
	if string(row.Status) != status {
		return fmt.Errorf("ledger row %s = %s, want %s", filePath, row.Status, status)
	}
	if status == "error" && row.Error == "" {
		return errors.New("error row carries no message")
	}
	return nil
}

func (f *ingestFeature) secondConfirmRejected() error {
	if !errors.Is(f.confirmErr, domain.ErrRunInProgress) {
		return fmt.Errorf("second confirm err = %v, want run-in-progress rejection", f.confirmErr)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	f := &ingestFeature{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		f.reset()
		return ctx, nil
	})

	ctx.Step(`^an uploaded archive with two clauses where "([^"]*)" cites "([^"]*)" and references a figure$`, f.anArchiveWithTwoClauses)
	ctx.Step(`^the archive also contains a malformed file "([^"]*)"$`, f.archiveContainsMalformedFile)
	ctx.Step(`^the upload is confirmed for edition "([^"]*)" volume "([^"]*)"$`, f.uploadConfirmed)
	ctx.Step(`^another upload is confirmed for edition "([^"]*)" volume "([^"]*)"$`, f.secondUploadConfirmed)
	ctx.Step(`^the run is drained to completion$`, f.runDrained)
	ctx.Step(`^the run status is "([^"]*)"$`, f.runStatusIs)
	ctx.Step(`^(\d+) documents are stored$`, f.documentsStored)
	ctx.Step(`^the citation from "([^"]*)" resolves to "([^"]*)"$`, f.citationResolves)
	ctx.Step(`^the figure is stored under the run's asset prefix$`, f.figureStored)
	ctx.Step(`^the edition status is "([^"]*)"$`, f.editionStatusIs)
	ctx.Step(`^the ledger marks "([^"]*)" as "([^"]*)"$`, f.ledgerMarks)
	ctx.Step(`^the second confirmation is rejected as already in progress$`, f.secondConfirmRejected)
}

func buildArchive(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
