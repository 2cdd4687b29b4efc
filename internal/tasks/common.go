package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/ncdiff"
	"github.com/actris-cloudnet/cloudnet-processing/internal/processor"
)

// Handlers bundles the façade, the transform registry, and the NetCDF
// boundary every task-type handler needs. One instance lives for the
// worker's lifetime.
type Handlers struct {
	Proc       *processor.Processor
	Transforms Registry
	NC         NetCDFOpener
}

func New(proc *processor.Processor, transforms Registry, nc NetCDFOpener) *Handlers {
	return &Handlers{Proc: proc, Transforms: transforms, NC: nc}
}

// ProcessResult is returned by the common pipeline so handlers can log
// a landing-page URL and pass the derived-uuid to follow-up publishing.
type ProcessResult struct {
	ProductUUID  uuid.UUID
	QCLevel      model.ErrorLevel
	Uploaded     bool
	ParentFrozen bool // existing product was already frozen before this run
}

// processJob is everything runProcessPipeline needs beyond the
// ProcessParams already captured by the concrete handler: which
// transform to run, with what inputs, over which raw source uuids, and
// (for instrument-derived products) which instrument PID to stamp into
// provenance.
type processJob struct {
	Params        model.ProcessParams
	Transform     Transform
	Inputs        TransformInputs
	RawUUIDs      []uuid.UUID
	InstrumentPID string // provenance attribute; empty for model/non-instrument products
	Dir           string
}

// runProcessPipeline is the common `process` pipeline shared by every
// product kind: fetch the existing product, run the transform, stamp
// provenance and PID, diff, upload, plot, QC, advance raw statuses.
// Follow-up fan-out is left to the caller, which also has the task's
// options in hand.
func (h *Handlers) runProcessPipeline(ctx context.Context, job processJob) (ProcessResult, error) {
	params := job.Params
	site := params.Site()
	product := params.Product()

	u := &model.Uuid{Raw: job.RawUUIDs}

	existing, err := h.Proc.FetchProduct(ctx, params)
	if err != nil {
		return ProcessResult{}, err
	}

	var filename string
	var existingHandle NetCDFHandle
	var existingLocalPath string
	var existingVolatilePID string
	parentFrozen := existing != nil && existing.Frozen()
	if existing != nil {
		filename = existing.Filename
		if existing.Volatile {
			v := existing.UUID
			u.Volatile = &v
			existingVolatilePID = existing.PID
		}
		var err error
		existingLocalPath, err = h.Proc.Storage.DownloadProduct(ctx, existing, job.Dir)
		if err != nil {
			return ProcessResult{}, err
		}
		existingHandle, err = h.NC.Open(existingLocalPath)
		if err != nil {
			return ProcessResult{}, err
		}
		defer existingHandle.Close()
	} else {
		filename = processor.SynthesizeFilename(params.Date(), site.ID, params)
	}

	outPath := filepath.Join(job.Dir, "new_"+filename)
	newUUID, err := job.Transform.Run(ctx, job.Inputs, outPath)
	if err != nil {
		return ProcessResult{}, cerr.AsSkip(err)
	}
	u.Product = newUUID

	newHandle, err := h.NC.Open(outPath)
	if err != nil {
		return ProcessResult{}, err
	}
	defer newHandle.Close()

	if err := newHandle.SetSourceFileUUIDs(u.Raw); err != nil {
		return ProcessResult{}, err
	}
	if err := newHandle.SetGlobalAttr("cloudnetpy_version", ProcessingVersion); err != nil {
		return ProcessResult{}, err
	}
	if job.InstrumentPID != "" {
		if err := newHandle.SetGlobalAttr("instrument_pid", job.InstrumentPID); err != nil {
			return ProcessResult{}, err
		}
	}

	if !product.IsExperimental() {
		if _, _, _, err := h.Proc.Pid.AddPidToFile(ctx, newHandle, existingVolatilePID); err != nil {
			return ProcessResult{}, err
		}
	}

	volatile := true
	patch := false
	upload := true

	if existing != nil {
		switch ncdiff.Diff(existingHandle, newHandle) {
		case ncdiff.None:
			upload = false
			u.Product = existing.UUID
		case ncdiff.Minor:
			if existing.Volatile {
				// Patchable: reuse the existing lineage in place. A
				// frozen file is never patched; its revision falls
				// through below as a new volatile version instead.
				patch = true
				volatile = true
				if err := newHandle.SetGlobalAttr("file_uuid", existing.UUID.String()); err != nil {
					return ProcessResult{}, err
				}
				u.Product = existing.UUID
			}
			// else: fall through as a new volatile version (MAJOR-like).
		}
	}

	pidAttr, _ := newHandle.GetGlobalAttr("pid")

	result := ProcessResult{ProductUUID: u.Product, ParentFrozen: parentFrozen}

	if upload {
		checksum, err := sha256File(outPath)
		if err != nil {
			return ProcessResult{}, err
		}
		_, err = h.Proc.UploadFile(ctx, processor.UploadParams{
			UUID:              u.Product,
			Checksum:          checksum,
			MeasurementDate:   params.Date(),
			Format:            "HDF5 (NetCDF4)",
			CloudnetpyVersion: ProcessingVersion,
			Site:              site.ID,
			Product:           product.ID,
			SourceFileIDs:     u.Raw,
			InstrumentPID:     job.InstrumentPID,
			ModelID:           modelIDOf(params),
			Volatile:          volatile,
			PID:               pidAttr,
			Patch:             patch,
		}, outPath, filename)
		if err != nil {
			return ProcessResult{}, err
		}
		result.Uploaded = true
	} else {
		glog.Infof("Skipping PUT to data portal, file has not changed")
	}

	finalPath := outPath
	if !upload {
		// NONE: the freshly produced bytes are discarded; plots/QC run
		// against the existing, unchanged file already on disk.
		finalPath = existingLocalPath
	}

	productS3Key := filename
	if err := h.Proc.CreateAndUploadImages(ctx, finalPath, product.ID, result.ProductUUID, productS3Key, job.Dir); err != nil {
		return ProcessResult{}, err
	}

	level, err := h.Proc.UploadQualityReport(ctx, finalPath, result.ProductUUID, product.ID)
	if err != nil {
		return ProcessResult{}, err
	}
	result.QCLevel = level

	if err := h.Proc.UpdateStatuses(u.Raw, model.RawFileProcessed); err != nil {
		return ProcessResult{}, err
	}

	glog.Infof("Processed %s/%s/%s: %s %s", site.ID, params.Date().Format("2006-01-02"), product.ID,
		h.Proc.Pid.LandingURL(result.ProductUUID.String()), level)

	return result, nil
}

func modelIDOf(params model.ProcessParams) string {
	if mp, ok := params.(model.ModelParams); ok {
		return mp.ModelID
	}
	return ""
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
