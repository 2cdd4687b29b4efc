package tasks

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/processor"
)

// instrumentRawFilters holds the per-instrument-type include/exclude
// patterns applied to a day's raw files before they're handed to the
// transform: RPG radars only process zenith Level-1 sweeps, ceilometers
// drop status/live side files.
var instrumentRawFilters = map[string]processor.InstrumentDownloadOptions{
	"rpg-fmcw-94": {IncludePattern: `zen.*\.lv1$`},
	"rpg-fmcw-35": {IncludePattern: `zen.*\.lv1$`},
	"mira-35":     {IncludePattern: `.*\.mmclx$`},
	"copernicus":  {IncludePattern: `.*\.nc$`},
	"chm15k":      {ExcludePattern: `.*status.*`},
	"cl61":        {ExcludePattern: `.*_live_.*`},
}

// ProcessInstrument implements the process task for a Level-1b
// instrument product: the day's filtered raw files through the
// product's transform, with hatpro's mwr-l1c handled separately since
// it also needs calibration data.
func (h *Handlers) ProcessInstrument(ctx context.Context, site *model.Site, product *model.Product, instrument *model.Instrument, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	if instrument.Type == "hatpro" && product.ID == "mwr-l1c" {
		return h.processMwrL1c(ctx, site, product, instrument, date, dir, transform)
	}

	opts := instrumentRawFilters[instrument.Type]

	var (
		paths []string
		raw   []uuid.UUID
		err   error
	)
	if instrument.Type == "halo-doppler-lidar" {
		opts.IncludePattern = `Stare.*\.hpl$`
		paths, raw, err = h.Proc.DownloadAdjoiningDailyFiles(ctx, site.ID, date, instrument.UUID, dir, opts)
	} else {
		paths, raw, err = h.Proc.DownloadInstrument(ctx, site.ID, date, instrument.UUID, instrument.PID, dir, opts)
	}
	if err != nil {
		return ProcessResult{}, err
	}

	params := model.InstrumentParams{SiteRef: site, DateVal: date, ProductRef: product, Instrument: instrument}
	job := processJob{
		Params:        params,
		Transform:     transform,
		Inputs:        TransformInputs{RawPaths: paths},
		RawUUIDs:      raw,
		InstrumentPID: instrument.PID,
		Dir:           dir,
	}
	return h.runProcessPipeline(ctx, job)
}

// processMwrL1c additionally pulls the instrument's calibration record
// and the retrieval coefficient files it links to, alongside hatpro's
// raw brightness-temperature/housekeeping/meteo/IR/blb files. No
// calibration on file means the retrieval cannot run at all, so the
// task is skipped rather than failed.
func (h *Handlers) processMwrL1c(ctx context.Context, site *model.Site, product *model.Product, instrument *model.Instrument, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	calibration, err := h.Proc.FetchCalibration(ctx, instrument.PID, date)
	if err != nil {
		return ProcessResult{}, err
	}
	if calibration == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("no mwrpy coefficients for %s", instrument.PID)
	}
	paths, raw, err := h.Proc.DownloadInstrument(ctx, site.ID, date, instrument.UUID, instrument.PID, dir, processor.InstrumentDownloadOptions{
		IncludePattern: `.*\.(brt|hkd|met|irt|blb|bls)$`,
	})
	if err != nil {
		return ProcessResult{}, err
	}
	coeffPaths, err := h.downloadCoefficientFiles(ctx, calibration, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	params := model.InstrumentParams{SiteRef: site, DateVal: date, ProductRef: product, Instrument: instrument}
	job := processJob{
		Params:    params,
		Transform: transform,
		Inputs: TransformInputs{
			RawPaths:         paths,
			Calibration:      calibration,
			CoefficientPaths: coeffPaths,
		},
		RawUUIDs:      raw,
		InstrumentPID: instrument.PID,
		Dir:           dir,
	}
	return h.runProcessPipeline(ctx, job)
}

// downloadCoefficientFiles fetches every URL in the calibration's
// data.coefficientLinks list into dir and returns the local paths in
// link order.
func (h *Handlers) downloadCoefficientFiles(ctx context.Context, calibration map[string]any, dir string) ([]string, error) {
	data, _ := calibration["data"].(map[string]any)
	links, _ := data["coefficientLinks"].([]any)
	var paths []string
	for _, l := range links {
		link, ok := l.(string)
		if !ok {
			continue
		}
		filename := link[strings.LastIndex(link, "/")+1:]
		localPath := filepath.Join(dir, filename)
		if err := h.Proc.MD.DownloadFile(ctx, link, localPath); err != nil {
			return nil, err
		}
		paths = append(paths, localPath)
	}
	return paths, nil
}
