package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/processor"
)

// earthCARELaunch is cpr-simulation's refusal cutoff: once the real
// satellite flies (2024-05-28), there is nothing to simulate.
var earthCARELaunch = time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC)

// modelPreferenceOrder picks which NWP run feeds categorize when a site
// has more than one for the day.
var modelPreferenceOrder = []string{"ecmwf", "gdas1", "icon", "harmonie"}

// ProcessProduct implements the process task for every non-instrument,
// non-model, non-evaluation product id: categorize(-voodoo), Level-2
// products, mwr-single/mwr-multi, cpr-simulation, epsilon-lidar. Each
// branch assembles the product's inputs and hands off to the common
// pipeline.
func (h *Handlers) ProcessProduct(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	switch {
	case product.ID == "categorize" || product.ID == "categorize-voodoo":
		return h.processCategorize(ctx, site, product, date, dir, transform)
	case product.ID == "mwr-single" || product.ID == "mwr-multi":
		return h.processMwrRetrieval(ctx, site, product, date, dir, transform)
	case product.ID == "cpr-simulation":
		return h.processCprSimulation(ctx, site, product, date, dir, transform)
	case product.ID == "epsilon-lidar":
		return h.processEpsilonLidar(ctx, site, product, date, dir, transform)
	default:
		return h.processLevel2(ctx, site, product, date, dir, transform)
	}
}

func (h *Handlers) processCategorize(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	voodoo := product.ID == "categorize-voodoo"

	var radarTypes map[string]bool
	if voodoo {
		radarTypes = map[string]bool{voodooOnlyInstrumentType: true}
	}
	radar, err := h.bestSourceProduct(ctx, site, date, "radar", radarTypes)
	if err != nil {
		return ProcessResult{}, err
	}
	if radar == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: radar")
	}
	lidar, err := h.bestSourceProduct(ctx, site, date, "lidar", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if lidar == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: lidar")
	}
	mwr, err := h.bestMwrSource(ctx, site, date)
	if err != nil {
		return ProcessResult{}, err
	}
	if mwr == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: mwr")
	}
	disdrometer, err := h.bestSourceProduct(ctx, site, date, "disdrometer", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	modelFile, err := h.bestModelSource(ctx, site, date)
	if err != nil {
		return ProcessResult{}, err
	}
	if modelFile == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: model")
	}

	sources := []*model.ProductFile{radar, lidar, mwr}
	if disdrometer != nil {
		sources = append(sources, disdrometer)
	}
	sources = append(sources, modelFile)

	paths, err := h.Proc.DownloadProducts(ctx, sources, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	inputs := TransformInputs{RadarPath: paths[0], LidarPath: paths[1], MwrPath: paths[2]}
	rawUUIDs := []uuid.UUID{radar.UUID, lidar.UUID, mwr.UUID}
	idx := 3
	if disdrometer != nil {
		inputs.DisdrometerPath = paths[idx]
		rawUUIDs = append(rawUUIDs, disdrometer.UUID)
		idx++
	}
	inputs.ModelPath = paths[idx]
	rawUUIDs = append(rawUUIDs, modelFile.UUID)

	if voodoo {
		lv0Paths, lv0Raw, err := h.Proc.DownloadInstrument(ctx, site.ID, date, *radar.InstrumentUUID, "", dir,
			processor.InstrumentDownloadOptions{IncludePattern: `.*\.lv0$`})
		if err != nil {
			return ProcessResult{}, err
		}
		inputs.RawPaths = lv0Paths
		rawUUIDs = append(rawUUIDs, lv0Raw...)
	}

	params := model.ProductParams{SiteRef: site, DateVal: date, ProductRef: product}
	job := processJob{Params: params, Transform: transform, Inputs: inputs, RawUUIDs: rawUUIDs, Dir: dir}
	return h.runProcessPipeline(ctx, job)
}

// mwrLwpRadarTypes are the radar types whose Level-1b product carries a
// usable liquid-water path, the last resort for categorize's mwr input.
var mwrLwpRadarTypes = map[string]bool{
	"rpg-fmcw-35": true,
	"rpg-fmcw-94": true,
}

// bestMwrSource resolves categorize's humidity/LWP input in three
// tiers: the mwr-single retrieval, then a plain mwr product (hatpro
// preferred over radiometrics), then liquid water derived from an RPG
// radar.
func (h *Handlers) bestMwrSource(ctx context.Context, site *model.Site, date time.Time) (*model.ProductFile, error) {
	single, err := h.bestSourceProduct(ctx, site, date, "mwr-single", nil)
	if err != nil || single != nil {
		return single, err
	}
	mwr, err := h.bestSourceProduct(ctx, site, date, "mwr", nil)
	if err != nil || mwr != nil {
		return mwr, err
	}
	return h.bestSourceProduct(ctx, site, date, "radar", mwrLwpRadarTypes)
}

func (h *Handlers) bestModelSource(ctx context.Context, site *model.Site, date time.Time) (*model.ProductFile, error) {
	rows, err := h.Proc.MD.GetModelFiles(ctx, metadata.FileQuery{Site: site.ID, Product: "model", Date: &date, AllModels: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for _, want := range modelPreferenceOrder {
		for _, r := range rows {
			if r.ModelID == want {
				return r, nil
			}
		}
	}
	return rows[0], nil
}

func (h *Handlers) processMwrRetrieval(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	mwrL1c, err := h.bestSourceProduct(ctx, site, date, "mwr-l1c", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if mwrL1c == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: mwr-l1c")
	}
	paths, err := h.Proc.DownloadProducts(ctx, []*model.ProductFile{mwrL1c}, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	var instrumentPID string
	var inst *model.Instrument
	if mwrL1c.InstrumentUUID != nil {
		inst, err = h.Proc.GetInstrument(ctx, *mwrL1c.InstrumentUUID)
		if err != nil {
			return ProcessResult{}, err
		}
		instrumentPID = inst.PID
	}

	params := model.ProductParams{SiteRef: site, DateVal: date, ProductRef: product, Instrument: inst}
	job := processJob{
		Params:        params,
		Transform:     transform,
		Inputs:        TransformInputs{MwrPath: paths[0]},
		RawUUIDs:      []uuid.UUID{mwrL1c.UUID},
		InstrumentPID: instrumentPID,
		Dir:           dir,
	}
	return h.runProcessPipeline(ctx, job)
}

// processLevel2 covers classification/iwc/lwc/drizzle/der/ier and
// their -voodoo variants, all of which take a single
// categorize(-voodoo) input.
func (h *Handlers) processLevel2(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	categorizeID := "categorize"
	if strings.HasSuffix(product.ID, "-voodoo") {
		categorizeID = "categorize-voodoo"
	}
	categorize, err := h.bestSourceProduct(ctx, site, date, categorizeID, nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if categorize == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: %s", categorizeID)
	}
	paths, err := h.Proc.DownloadProducts(ctx, []*model.ProductFile{categorize}, dir)
	if err != nil {
		return ProcessResult{}, err
	}
	params := model.ProductParams{SiteRef: site, DateVal: date, ProductRef: product}
	job := processJob{
		Params:    params,
		Transform: transform,
		Inputs:    TransformInputs{CategorizePath: paths[0]},
		RawUUIDs:  []uuid.UUID{categorize.UUID},
		Dir:       dir,
	}
	return h.runProcessPipeline(ctx, job)
}

func (h *Handlers) processCprSimulation(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	if !date.Before(earthCARELaunch) {
		return ProcessResult{}, cerr.NewSkip("cpr-simulation refused: %s is on or after the EarthCARE launch date", date.Format("2006-01-02"))
	}
	categorize, err := h.bestSourceProduct(ctx, site, date, "categorize", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if categorize == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: categorize")
	}
	paths, err := h.Proc.DownloadProducts(ctx, []*model.ProductFile{categorize}, dir)
	if err != nil {
		return ProcessResult{}, err
	}
	params := model.ProductParams{SiteRef: site, DateVal: date, ProductRef: product}
	job := processJob{
		Params:    params,
		Transform: transform,
		Inputs:    TransformInputs{CategorizePath: paths[0]},
		RawUUIDs:  []uuid.UUID{categorize.UUID},
		Dir:       dir,
	}
	return h.runProcessPipeline(ctx, job)
}

func (h *Handlers) processEpsilonLidar(ctx context.Context, site *model.Site, product *model.Product, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	stare, err := h.bestSourceProduct(ctx, site, date, "doppler-lidar", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if stare == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: doppler-lidar")
	}
	wind, err := h.bestSourceProduct(ctx, site, date, "doppler-lidar-wind", nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if wind == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: doppler-lidar-wind")
	}
	paths, err := h.Proc.DownloadProducts(ctx, []*model.ProductFile{stare, wind}, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	var instrumentPID string
	if stare.InstrumentUUID != nil {
		inst, err := h.Proc.GetInstrument(ctx, *stare.InstrumentUUID)
		if err != nil {
			return ProcessResult{}, err
		}
		instrumentPID = inst.PID
	}

	params := model.ProductParams{SiteRef: site, DateVal: date, ProductRef: product}
	job := processJob{
		Params:        params,
		Transform:     transform,
		Inputs:        TransformInputs{LidarPath: paths[0], AuxPaths: map[string]string{"doppler-lidar-wind": paths[1]}},
		RawUUIDs:      []uuid.UUID{stare.UUID, wind.UUID},
		InstrumentPID: instrumentPID,
		Dir:           dir,
	}
	return h.runProcessPipeline(ctx, job)
}
