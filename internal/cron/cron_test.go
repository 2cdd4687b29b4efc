package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

type fakePortal struct {
	files      []*model.ProductFile
	modelFiles []*model.ProductFile
	byUUID     map[string]*model.ProductFile
	products   map[string]*model.Product
	published  []metadata.PublishTaskParams

	lastFileQuery      metadata.FileQuery
	lastModelFileQuery metadata.FileQuery
}

func (f *fakePortal) GetFiles(_ context.Context, q metadata.FileQuery) ([]*model.ProductFile, error) {
	f.lastFileQuery = q
	return f.files, nil
}

func (f *fakePortal) GetModelFiles(_ context.Context, q metadata.FileQuery) ([]*model.ProductFile, error) {
	f.lastModelFileQuery = q
	return f.modelFiles, nil
}

func (f *fakePortal) GetFile(_ context.Context, fileUUID string) (*model.ProductFile, error) {
	return f.byUUID[fileUUID], nil
}

func (f *fakePortal) GetProduct(_ context.Context, id string) (*model.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return &model.Product{ID: id}, nil
}

func (f *fakePortal) PublishTask(p metadata.PublishTaskParams) error {
	f.published = append(f.published, p)
	return nil
}

func file(productID string, volatile bool, sources ...*model.ProductFile) *model.ProductFile {
	f := &model.ProductFile{
		UUID:            uuid.New(),
		SiteID:          "bucharest",
		ProductID:       productID,
		MeasurementDate: time.Date(2020, 10, 22, 0, 0, 0, 0, time.UTC),
		Volatile:        volatile,
	}
	for _, s := range sources {
		f.SourceFileUUIDs = append(f.SourceFileUUIDs, s.UUID)
	}
	return f
}

func indexFiles(files ...*model.ProductFile) map[string]*model.ProductFile {
	m := map[string]*model.ProductFile{}
	for _, f := range files {
		m[f.UUID.String()] = f
	}
	return m
}

func newFreezeJob(p *fakePortal) *FreezeJob {
	return &FreezeJob{MD: p, FreezeAfterDays: 15, FreezeModelAfterDays: 3, products: map[string]*model.Product{}}
}

func TestFreezeJobPublishesFreezableFile(t *testing.T) {
	radar := file("radar", false)
	radar.PID = "https://hdl.handle.net/21.12132/1.abc"
	categorize := file("categorize", true, radar)

	p := &fakePortal{
		files:  []*model.ProductFile{categorize},
		byUUID: indexFiles(radar, categorize),
	}
	if err := newFreezeJob(p).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.published) != 1 {
		t.Fatalf("published %d tasks, want 1", len(p.published))
	}
	task := p.published[0]
	if task.Type != model.TaskFreeze || task.ProductID != "categorize" || task.Priority != cronTaskPriority {
		t.Errorf("unexpected task: %+v", task)
	}
}

func TestFreezeJobSkipsFileWithVolatileAncestor(t *testing.T) {
	radar := file("radar", true)
	categorize := file("categorize", true, radar)

	p := &fakePortal{
		files:  []*model.ProductFile{categorize},
		byUUID: indexFiles(radar, categorize),
	}
	if err := newFreezeJob(p).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.published) != 0 {
		t.Fatalf("published %d tasks, want 0", len(p.published))
	}
}

func TestFreezeJobSkipsExperimentalAncestor(t *testing.T) {
	voodoo := file("categorize-voodoo", false)
	classification := file("classification-voodoo", true, voodoo)

	p := &fakePortal{
		files:  []*model.ProductFile{classification},
		byUUID: indexFiles(voodoo, classification),
		products: map[string]*model.Product{
			"categorize-voodoo": {ID: "categorize-voodoo", Types: []model.ProductType{model.ProductTypeExperimental}},
		},
	}
	if err := newFreezeJob(p).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.published) != 0 {
		t.Fatalf("published %d tasks, want 0", len(p.published))
	}
}

func TestFreezeJobModelFilesNeedNoAncestryCheck(t *testing.T) {
	mf := file("model", true)
	mf.ModelID = "ecmwf"

	p := &fakePortal{modelFiles: []*model.ProductFile{mf}, byUUID: indexFiles()}
	if err := newFreezeJob(p).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.published) != 1 {
		t.Fatalf("published %d tasks, want 1", len(p.published))
	}
	if p.published[0].ModelID != "ecmwf" {
		t.Errorf("modelId = %q, want ecmwf", p.published[0].ModelID)
	}
	if !p.lastModelFileQuery.AllModels {
		t.Error("model-file query should set allModels")
	}
	if p.lastModelFileQuery.Volatile == nil || !*p.lastModelFileQuery.Volatile {
		t.Error("model-file query should filter volatile=true")
	}
}

func TestFreezeJobQueryAge(t *testing.T) {
	p := &fakePortal{}
	if err := newFreezeJob(p).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	q := p.lastFileQuery
	if q.ReleasedBefore == nil {
		t.Fatal("regular-file query should set releasedBefore")
	}
	age := time.Since(*q.ReleasedBefore)
	if age < 14*24*time.Hour || age > 16*24*time.Hour {
		t.Errorf("releasedBefore is %v old, want about 15 days", age)
	}
}

func TestQCJobPublishesForYesterdaysFiles(t *testing.T) {
	inst := uuid.New()
	regular := file("classification", true)
	withInstrument := file("radar", true)
	withInstrument.InstrumentUUID = &inst
	mf := file("model", true)
	mf.ModelID = "ecmwf"

	p := &fakePortal{
		files:      []*model.ProductFile{regular, withInstrument},
		modelFiles: []*model.ProductFile{mf},
	}
	j := NewQCJob(p, nil)
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.published) != 3 {
		t.Fatalf("published %d tasks, want 3", len(p.published))
	}
	for _, task := range p.published {
		if task.Type != model.TaskQC || task.Priority != cronTaskPriority {
			t.Errorf("unexpected task: %+v", task)
		}
	}
	if p.published[1].InstrumentInfoUUID == nil || *p.published[1].InstrumentInfoUUID != inst {
		t.Error("instrument identity not carried into the qc task")
	}
	if p.published[2].ModelID != "ecmwf" {
		t.Error("model identity not carried into the qc task")
	}
	if p.lastFileQuery.Date == nil {
		t.Fatal("qc query should filter by date")
	}
	age := time.Since(*p.lastFileQuery.Date)
	if age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("qc query date is %v old, want about one day", age)
	}
}
