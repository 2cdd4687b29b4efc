package tasks

import (
	"context"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/processor"
)

// UpdatePlots re-renders every plottable field of the existing product
// for params and re-uploads the PNGs. No QC run, no status updates.
func (h *Handlers) UpdatePlots(ctx context.Context, params model.ProcessParams, dir string) error {
	existing, err := h.Proc.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if existing == nil {
		return cerr.NewSkip("no product file to plot for %s/%s", params.Site().ID, params.Product().ID)
	}
	localPath, err := h.Proc.Storage.DownloadProduct(ctx, existing, dir)
	if err != nil {
		return err
	}
	return h.Proc.CreateAndUploadImages(ctx, localPath, existing.ProductID, existing.UUID, existing.Filename, dir)
}

// UpdateQC reruns the quality control suite against the existing
// product and PUTs a fresh report.
func (h *Handlers) UpdateQC(ctx context.Context, params model.ProcessParams, dir string) error {
	existing, err := h.Proc.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if existing == nil {
		return cerr.NewSkip("no product file to QC for %s/%s", params.Site().ID, params.Product().ID)
	}
	localPath, err := h.Proc.Storage.DownloadProduct(ctx, existing, dir)
	if err != nil {
		return err
	}
	_, err = h.Proc.UploadQualityReport(ctx, localPath, existing.UUID, existing.ProductID)
	return err
}

// Freeze mints a PID for a volatile product, re-uploads it under the
// stable bucket, flips its metadata record to volatile=false, and
// removes the stale volatile object. Refuses an already-frozen file,
// making repeated freeze tasks on the same lineage idempotent.
func (h *Handlers) Freeze(ctx context.Context, params model.ProcessParams, dir string) error {
	existing, err := h.Proc.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if existing == nil {
		return cerr.NewSkip("no product file to freeze for %s/%s", params.Site().ID, params.Product().ID)
	}
	if existing.Frozen() {
		return cerr.NewSkip("product already frozen")
	}

	localPath, err := h.Proc.Storage.DownloadProduct(ctx, existing, dir)
	if err != nil {
		return err
	}
	handle, err := h.NC.Open(localPath)
	if err != nil {
		return err
	}
	defer handle.Close()

	_, pidOut, _, err := h.Proc.Pid.AddPidToFile(ctx, handle, "")
	if err != nil {
		return err
	}

	stableKey := existing.Filename
	if existing.Legacy {
		stableKey = "legacy/" + existing.Filename
	}
	if _, err := h.Proc.Storage.UploadProduct(localPath, stableKey, false); err != nil {
		return err
	}
	if err := h.Proc.MD.PostFileUpdate(existing.UUID.String(), map[string]interface{}{
		"volatile": false,
		"pid":      pidOut,
	}); err != nil {
		return err
	}
	return h.Proc.Storage.DeleteVolatileProduct(stableKey)
}

// UploadToDvas federates an already-frozen, geophysical product with
// ACTRIS. The dvas client itself applies the remaining quiet-skip conditions (volatile,
// categorize, non-DVAS site, no ACTRIS variables); this routine only
// short-circuits the one precondition the task dispatcher, not the
// client, is responsible for: a file can't be re-federated once it
// already carries a dvasId.
func (h *Handlers) UploadToDvas(ctx context.Context, params model.ProcessParams, dir string) error {
	existing, err := h.Proc.FetchProduct(ctx, params)
	if err != nil {
		return err
	}
	if existing == nil {
		return cerr.NewSkip("no product file to federate for %s/%s", params.Site().ID, params.Product().ID)
	}
	if existing.DvasID != nil {
		return cerr.NewSkip("product already has a dvasId")
	}
	return h.Proc.Dvas.Upload(ctx, existing, params.Site(), params.Product())
}

// HKD runs the delegated housekeeping module over an instrument's
// raw files for the day, through the same boundary a scientific
// Transform uses. Only meaningful
// for instrument products; the dispatcher rejects every other kind
// before this is ever called.
func (h *Handlers) HKD(ctx context.Context, site *model.Site, instrument *model.Instrument, params model.ProcessParams, dir string, housekeeping Transform) error {
	paths, _, err := h.Proc.DownloadInstrument(ctx, site.ID, params.Date(), instrument.UUID, instrument.PID, dir,
		processor.InstrumentDownloadOptions{AllowEmpty: true})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return cerr.NewSkip("no raw files to run housekeeping on")
	}
	_, err = housekeeping.Run(ctx, TransformInputs{RawPaths: paths}, "")
	return err
}
