// Package tasks implements the per-task orchestration routines: the
// four process variants (instrument, model, product, model-evaluation)
// plus plot, qc, freeze, hkd, and dvas handling. Each is a thin routine
// over package processor's primitives.
//
// The scientific transform itself stays a black box: a pure
// (inputs, output path) -> uuid function. Task handlers never interpret
// NetCDF content beyond the handful of global attributes the common
// pipeline reads and writes (file_uuid, pid, source_file_uuids,
// processing/instrument provenance).
package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/ncdiff"
	"github.com/actris-cloudnet/cloudnet-processing/internal/pid"
)

// ProcessingVersion is stamped into every produced file's
// cloudnetpy_version global attribute, the engine-side fallback used
// when a transform doesn't report its own library version.
const ProcessingVersion = "cloudnet-processing-engine"

// TransformInputs carries whichever subset of local input paths and
// side-channel data a given product's transform needs. Unused fields
// are left zero; handlers populate only what their product requires.
type TransformInputs struct {
	RawPaths         []string          // instrument/model raw files
	ModelPath        string            // upstream model file
	RadarPath        string            // upstream radar product
	LidarPath        string            // upstream lidar product
	MwrPath          string            // upstream mwr-single/mwr-multi/mwr-l1c product
	DisdrometerPath  string            // upstream disdrometer product (optional)
	CategorizePath   string            // upstream categorize(-voodoo) product
	AuxPaths         map[string]string // keyed by role, e.g. "doppler-lidar-wind"
	Calibration      map[string]any    // calibration document (mwr-l1c)
	CoefficientPaths []string          // retrieval coefficient files linked by the calibration (mwr-l1c)
}

// Transform is the scientific transformation boundary: one pure
// function per product that reads TransformInputs and writes
// outputPath, returning the uuid it stamped into the file's file_uuid
// attribute. Implementations live outside this module; the engine only
// calls through this interface.
type Transform interface {
	Run(ctx context.Context, inputs TransformInputs, outputPath string) (uuid.UUID, error)
}

// TransformKey selects a Transform: productID alone for non-instrument
// products, productID+instrumentType for Level-1b instrument products.
type TransformKey struct {
	ProductID      string
	InstrumentType string
}

// Registry resolves a TransformKey to its Transform. Supplied by the
// wrapper/wiring layer; the worker owns one instance for its lifetime.
type Registry map[TransformKey]Transform

// Lookup finds the transform for productID, preferring an
// instrument-specific entry over a bare product-id entry.
func (r Registry) Lookup(productID, instrumentType string) (Transform, bool) {
	if instrumentType != "" {
		if t, ok := r[TransformKey{ProductID: productID, InstrumentType: instrumentType}]; ok {
			return t, true
		}
	}
	t, ok := r[TransformKey{ProductID: productID}]
	return t, ok
}

// NetCDFHandle is the minimal surface task handlers need over a local
// NetCDF file: PID stamping (pid.NetCDFFile), three-valued diffing
// (ncdiff.File), and the couple of extra global attributes the common
// pipeline sets. The concrete NetCDF reader/writer is supplied by the
// (out-of-scope) scientific boundary; the caller of New wires a real
// implementation in.
type NetCDFHandle interface {
	pid.NetCDFFile
	ncdiff.File
	SetSourceFileUUIDs(ids []uuid.UUID) error
	Close() error
}

// NetCDFOpener opens a local path as a NetCDFHandle.
type NetCDFOpener interface {
	Open(path string) (NetCDFHandle, error)
}
