// Package cron implements the two periodic enqueuers: one scans for
// volatile files old enough to freeze and publishes freeze tasks, one
// scans yesterday's files and publishes qc tasks. Neither job touches
// the scientific stack or the object store; they only read metadata and
// enqueue. Failures are reported to Slack and surface as a non-zero
// exit from the wrapping binary.
package cron

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/actris-cloudnet/cloudnet-processing/internal/alert"
	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// cronTaskPriority lies above the 0..10 range of worker-published
// follow-ups; since lower values are served first, freezes and QC
// reruns queue behind fresh processing.
const cronTaskPriority = 100

// Portal is the slice of the data-portal client the cron jobs need.
// *metadata.Client satisfies it; tests substitute a fake.
type Portal interface {
	GetFiles(ctx context.Context, q metadata.FileQuery) ([]*model.ProductFile, error)
	GetModelFiles(ctx context.Context, q metadata.FileQuery) ([]*model.ProductFile, error)
	GetFile(ctx context.Context, fileUUID string) (*model.ProductFile, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	PublishTask(p metadata.PublishTaskParams) error
}

// FreezeJob publishes a freeze task for every volatile file whose
// release is older than the configured age and whose ancestry is
// settled enough to freeze.
type FreezeJob struct {
	MD                   Portal
	Alert                *alert.Notifier
	FreezeAfterDays      int
	FreezeModelAfterDays int

	products map[string]*model.Product
}

func NewFreezeJob(md Portal, notifier *alert.Notifier, cfg *config.Config) *FreezeJob {
	return &FreezeJob{
		MD: md, Alert: notifier,
		FreezeAfterDays:      cfg.FreezeAfterDays,
		FreezeModelAfterDays: cfg.FreezeModelAfterDays,
		products:             map[string]*model.Product{},
	}
}

// Run executes one scan-and-enqueue pass. Any error is reported to
// Slack before being returned, so the orchestrator sees a non-zero exit
// and the operators see the log.
func (j *FreezeJob) Run(ctx context.Context) error {
	if err := j.run(ctx); err != nil {
		j.sendAlert(ctx, err)
		return err
	}
	return nil
}

func (j *FreezeJob) run(ctx context.Context) error {
	now := time.Now().UTC()

	files, err := j.findRegularFiles(ctx, now)
	if err != nil {
		return err
	}
	glog.Infof("freeze-cronjob: found %d regular files to freeze", len(files))

	modelFiles, err := j.MD.GetModelFiles(ctx, freezeQuery(now, j.FreezeModelAfterDays, true))
	if err != nil {
		return err
	}
	glog.Infof("freeze-cronjob: found %d model files to freeze", len(modelFiles))

	for _, f := range append(files, modelFiles...) {
		if err := publishTask(j.MD, model.TaskFreeze, f, now); err != nil {
			return err
		}
	}
	return nil
}

func (j *FreezeJob) findRegularFiles(ctx context.Context, now time.Time) ([]*model.ProductFile, error) {
	rows, err := j.MD.GetFiles(ctx, freezeQuery(now, j.FreezeAfterDays, false))
	if err != nil {
		return nil, err
	}
	out := rows[:0:0]
	for _, f := range rows {
		ok, err := j.isFreezable(ctx, f.UUID.String(), 0)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func freezeQuery(now time.Time, afterDays int, allModels bool) metadata.FileQuery {
	volatile := true
	releasedBefore := now.AddDate(0, 0, -afterDays)
	return metadata.FileQuery{Volatile: &volatile, ReleasedBefore: &releasedBefore, AllModels: allModels}
}

// isFreezable walks the file's source lineage: every ancestor must be
// non-volatile and every file in the chain non-experimental. Only the
// root (depth 0) may still be volatile, since freezing it is exactly
// what the task will do.
func (j *FreezeJob) isFreezable(ctx context.Context, fileUUID string, depth int) (bool, error) {
	f, err := j.MD.GetFile(ctx, fileUUID)
	if err != nil {
		return false, err
	}
	if depth > 0 && f.Volatile {
		return false, nil
	}
	product, err := j.getProduct(ctx, f.ProductID)
	if err != nil {
		return false, err
	}
	if product.IsExperimental() {
		return false, nil
	}
	for _, src := range f.SourceFileUUIDs {
		ok, err := j.isFreezable(ctx, src.String(), depth+1)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (j *FreezeJob) getProduct(ctx context.Context, id string) (*model.Product, error) {
	if p, ok := j.products[id]; ok {
		return p, nil
	}
	p, err := j.MD.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	j.products[id] = p
	return p, nil
}

func (j *FreezeJob) sendAlert(ctx context.Context, err error) {
	glog.Errorf("freeze-cronjob: fatal error: %v", err)
	if sendErr := j.Alert.Send(ctx, alert.SourceFreeze, err, alert.Context{}, err.Error()); sendErr != nil {
		glog.Errorf("freeze-cronjob: failed to send slack alert: %v", sendErr)
	}
}

// QCJob publishes a qc task for every regular and model file measured
// yesterday, so overnight uploads get a quality report without waiting
// for the next reprocessing.
type QCJob struct {
	MD    Portal
	Alert *alert.Notifier
}

func NewQCJob(md Portal, notifier *alert.Notifier) *QCJob {
	return &QCJob{MD: md, Alert: notifier}
}

// Run executes one scan-and-enqueue pass, alerting on failure like
// FreezeJob.Run.
func (j *QCJob) Run(ctx context.Context) error {
	if err := j.run(ctx); err != nil {
		glog.Errorf("qc-cronjob: fatal error: %v", err)
		if sendErr := j.Alert.Send(ctx, alert.SourceQC, err, alert.Context{}, err.Error()); sendErr != nil {
			glog.Errorf("qc-cronjob: failed to send slack alert: %v", sendErr)
		}
		return err
	}
	return nil
}

func (j *QCJob) run(ctx context.Context) error {
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)

	files, err := j.MD.GetFiles(ctx, metadata.FileQuery{Date: &yesterday})
	if err != nil {
		return err
	}
	glog.Infof("qc-cronjob: found %d regular files to check", len(files))

	modelFiles, err := j.MD.GetModelFiles(ctx, metadata.FileQuery{Date: &yesterday, AllModels: true})
	if err != nil {
		return err
	}
	glog.Infof("qc-cronjob: found %d model files to check", len(modelFiles))

	for _, f := range append(files, modelFiles...) {
		if err := publishTask(j.MD, model.TaskQC, f, now); err != nil {
			return err
		}
	}
	return nil
}

// publishTask enqueues one task for f, carrying over whichever of the
// instrument/model identities the file has so the worker's product
// lookup lands on the same file.
func publishTask(md Portal, taskType model.TaskType, f *model.ProductFile, now time.Time) error {
	p := metadata.PublishTaskParams{
		Type:            taskType,
		SiteID:          f.SiteID,
		ProductID:       f.ProductID,
		MeasurementDate: f.MeasurementDate,
		ScheduledAt:     now,
		Priority:        cronTaskPriority,
	}
	if f.InstrumentUUID != nil {
		p.InstrumentInfoUUID = f.InstrumentUUID
	}
	if f.ModelID != "" {
		p.ModelID = f.ModelID
	}
	glog.Infof("publish task: %s %s/%s/%s", taskType, p.SiteID, f.MeasurementDate.Format("2006-01-02"), p.ProductID)
	return md.PublishTask(p)
}
