// Package processor is the façade task handlers are built on: it
// composes the metadata, storage, pid, and dvas clients behind the
// dozen primitives the task handlers actually call (fetch/download,
// upload, images, quality reports, status updates, calibration). The
// diff engine is called by the task handlers directly.
package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/dvas"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/pid"
	"github.com/actris-cloudnet/cloudnet-processing/internal/storage"
)

// QualityChecker runs the (out-of-scope) QC suite over a local NetCDF
// and reports per-test results plus the worst severity observed.
type QualityChecker interface {
	RunTests(ctx context.Context, localPath, productID string) (QualityReport, error)
}

// QualityReport is what the delegated QC library hands back.
type QualityReport struct {
	TimestampISO string
	QCVersion    string
	Tests        []metadata.QualityTest
	WorstLevel   model.ErrorLevel
}

// PlotRenderer renders one plottable field of product to a PNG,
// delegated to the (out-of-scope) plotting library.
type PlotRenderer interface {
	Fields(productID string) ([]string, error)
	Render(ctx context.Context, localPath, field, outPath string) (*metadata.VisualizationDimensions, error)
}

// Processor composes the leaf clients into the primitives every task
// handler needs.
type Processor struct {
	MD      *metadata.Client
	Storage *storage.Client
	Pid     *pid.Client
	Dvas    *dvas.Client
	QC      QualityChecker
	Plots   PlotRenderer

	sites       map[string]*model.Site
	products    map[string]*model.Product
	instruments map[uuid.UUID]*model.Instrument
}

func New(md *metadata.Client, st *storage.Client, pc *pid.Client, dc *dvas.Client, qc QualityChecker, plots PlotRenderer) *Processor {
	return &Processor{
		MD: md, Storage: st, Pid: pc, Dvas: dc, QC: qc, Plots: plots,
		sites:       map[string]*model.Site{},
		products:    map[string]*model.Product{},
		instruments: map[uuid.UUID]*model.Instrument{},
	}
}

// GetSite is a process-lifetime cached lookup.
func (p *Processor) GetSite(ctx context.Context, id string) (*model.Site, error) {
	if s, ok := p.sites[id]; ok {
		return s, nil
	}
	s, err := p.MD.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	p.sites[id] = s
	return s, nil
}

// GetProduct is a process-lifetime cached lookup.
func (p *Processor) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if pr, ok := p.products[id]; ok {
		return pr, nil
	}
	pr, err := p.MD.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.products[id] = pr
	return pr, nil
}

// GetInstrument is a process-lifetime cached lookup.
func (p *Processor) GetInstrument(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	if i, ok := p.instruments[id]; ok {
		return i, nil
	}
	i, err := p.MD.GetInstrument(ctx, id)
	if err != nil {
		return nil, err
	}
	p.instruments[id] = i
	return i, nil
}

// GetModel looks up a model "instrument" by id through GetProduct, so
// it shares that lookup's process-lifetime cache.
func (p *Processor) GetModel(ctx context.Context, id string) (*model.Product, error) {
	return p.GetProduct(ctx, id)
}

// FetchProduct queries api/files or api/model-files for the unique
// ProductFile matching params, or nil if none exists. More than one
// match is a programmer/data error, not a SkipTask: it means the
// at-most-one-nonfrozen-file invariant has already been violated
// upstream.
func (p *Processor) FetchProduct(ctx context.Context, params model.ProcessParams) (*model.ProductFile, error) {
	q := metadata.FileQuery{
		Site: params.Site().ID, Product: params.Product().ID,
		Date: timePtr(params.Date()),
	}
	var rows []*model.ProductFile
	var err error
	if mp, ok := params.(model.ModelParams); ok {
		q.Model = mp.ModelID
		q.AllModels = false
		rows, err = p.MD.GetModelFiles(ctx, q)
	} else {
		switch ip := params.(type) {
		case model.InstrumentParams:
			q.Instrument = ip.Instrument.UUID.String()
		case model.ProductParams:
			if ip.Instrument != nil {
				q.Instrument = ip.Instrument.UUID.String()
			}
		}
		rows, err = p.MD.GetFiles(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, cerr.NewMisc("multiple product files found for %s/%s/%s", params.Site().ID, params.Date().Format("2006-01-02"), params.Product().ID)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

// DownloadRawData downloads raw files, delegating byte transfer and
// checksum verification to StorageClient.
func (p *Processor) DownloadRawData(ctx context.Context, rows []*model.RawFile, dir string) ([]string, []uuid.UUID, []string, error) {
	return p.Storage.DownloadRawData(ctx, rows, dir)
}

// DownloadProducts downloads several existing products in parallel.
func (p *Processor) DownloadProducts(ctx context.Context, metas []*model.ProductFile, dir string) ([]string, error) {
	return p.Storage.DownloadProducts(ctx, metas, dir)
}

// InstrumentDownloadOptions configures DownloadInstrument's filters.
type InstrumentDownloadOptions struct {
	IncludePattern   string
	ExcludePattern   string
	LargestOnly      bool
	IncludeTagSubset []string
	ExcludeTagSubset []string
	AllowEmpty       bool
	FilenamePrefix   string
	FilenameSuffix   string
}

// DownloadInstrument lists an instrument's raw files for (site, date),
// applies the filter predicates, and downloads what remains. An empty
// result after filtering is a RawDataMissingError unless AllowEmpty is
// set.
func (p *Processor) DownloadInstrument(ctx context.Context, siteID string, date time.Time, instrumentUUID uuid.UUID, instrumentPID string, dir string, opts InstrumentDownloadOptions) ([]string, []uuid.UUID, error) {
	rows, err := p.MD.GetRawFiles(ctx, metadata.RawFileQuery{
		Site: siteID, Date: timePtr(date), InstrumentUUID: instrumentUUID.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	rows = filterRawFiles(rows, opts)
	if len(rows) == 0 {
		if opts.AllowEmpty {
			return nil, nil, nil
		}
		return nil, nil, cerr.NewRawDataMissing("no raw files found for instrument %s on %s", instrumentPID, date.Format("2006-01-02"))
	}
	if opts.LargestOnly {
		rows = []*model.RawFile{largest(rows)}
	}
	paths, uuids, _, err := p.Storage.DownloadRawData(ctx, rows, dir)
	return paths, uuids, err
}

// DownloadAdjoiningDailyFiles fetches the target date's raw files plus
// the following day's, for instruments (e.g. HALO Doppler lidar) whose
// local-midnight rollover means a measurement day's final samples land
// in the next calendar day's upload.
func (p *Processor) DownloadAdjoiningDailyFiles(ctx context.Context, siteID string, date time.Time, instrumentUUID uuid.UUID, dir string, opts InstrumentDownloadOptions) ([]string, []uuid.UUID, error) {
	var allPaths []string
	var allUUIDs []uuid.UUID
	for _, d := range []time.Time{date, date.AddDate(0, 0, 1)} {
		rows, err := p.MD.GetRawFiles(ctx, metadata.RawFileQuery{Site: siteID, Date: timePtr(d), InstrumentUUID: instrumentUUID.String()})
		if err != nil {
			return nil, nil, err
		}
		rows = filterRawFiles(rows, opts)
		if len(rows) == 0 {
			continue
		}
		paths, uuids, _, err := p.Storage.DownloadRawData(ctx, rows, dir)
		if err != nil {
			return nil, nil, err
		}
		allPaths = append(allPaths, paths...)
		allUUIDs = append(allUUIDs, uuids...)
	}
	if len(allPaths) == 0 && !opts.AllowEmpty {
		return nil, nil, cerr.NewRawDataMissing("no raw files found for %s or the following day", date.Format("2006-01-02"))
	}
	return allPaths, allUUIDs, nil
}

func filterRawFiles(rows []*model.RawFile, opts InstrumentDownloadOptions) []*model.RawFile {
	out := rows[:0:0]
	for _, r := range rows {
		if opts.IncludePattern != "" && !matchPattern(opts.IncludePattern, r.Filename) {
			continue
		}
		if opts.ExcludePattern != "" && matchPattern(opts.ExcludePattern, r.Filename) {
			continue
		}
		if opts.FilenamePrefix != "" && !strings.HasPrefix(r.Filename, opts.FilenamePrefix) {
			continue
		}
		if opts.FilenameSuffix != "" && !strings.HasSuffix(r.Filename, opts.FilenameSuffix) {
			continue
		}
		if len(opts.IncludeTagSubset) > 0 && !hasAnyTag(r, opts.IncludeTagSubset) {
			continue
		}
		if len(opts.ExcludeTagSubset) > 0 && hasAnyTag(r, opts.ExcludeTagSubset) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasAnyTag(r *model.RawFile, tags []string) bool {
	for _, t := range tags {
		if r.HasTag(t) {
			return true
		}
	}
	return false
}

func largest(rows []*model.RawFile) *model.RawFile {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Size > best.Size {
			best = r
		}
	}
	return best
}

// matchPattern reports whether the instrument include/exclude
// expression (e.g. `zen.*\.lv1$`) matches name. Patterns are compiled
// per call rather than cached, since filtering happens at most once
// per task.
func matchPattern(pattern, name string) bool {
	ok, err := matchRegexp(pattern, name)
	if err != nil {
		glog.Warningf("invalid instrument filter pattern %q: %v", pattern, err)
		return false
	}
	return ok
}

// UploadParams carries the fields upload_file needs beyond the local
// path, mirroring PutFileParams plus the volatile/patch decision made
// by the task handler after running NetCDFDiff.
type UploadParams struct {
	UUID              uuid.UUID
	Checksum          string
	MeasurementDate   time.Time
	Format            string
	CloudnetpyVersion string
	Version           string
	Site              string
	Product           string
	SourceFileIDs     []uuid.UUID
	InstrumentPID     string
	ModelID           string
	Volatile          bool
	Legacy            bool
	PID               string
	Patch             bool
}

// UploadFile uploads the product bytes then PUTs its metadata record.
// Under Patch=true the existing UUID/PID/filename are being reused and
// the bucket write simply overwrites the prior object.
func (p *Processor) UploadFile(ctx context.Context, params UploadParams, localPath, filename string) (storage.UploadResult, error) {
	res, err := p.Storage.UploadProduct(localPath, s3Key(filename, params.Legacy), params.Volatile)
	if err != nil {
		return res, err
	}
	err = p.MD.PutFile(filename, metadata.PutFileParams{
		UUID: params.UUID, Checksum: params.Checksum, MeasurementDate: params.MeasurementDate,
		Format: params.Format, Size: res.Size, Volatile: params.Volatile, PID: params.PID,
		CloudnetpyVersion: params.CloudnetpyVersion, Version: params.Version, Site: params.Site,
		Product: params.Product, SourceFileIDs: params.SourceFileIDs, InstrumentPID: params.InstrumentPID,
		ModelID: params.ModelID, Legacy: params.Legacy,
	})
	return res, err
}

func s3Key(filename string, legacy bool) string {
	if legacy {
		return "legacy/" + filename
	}
	return filename
}

// CreateAndUploadImages enumerates product's plottable fields, renders
// each (delegated to PlotRenderer), uploads the PNGs, and PUTs one
// visualizations record per successfully rendered field.
func (p *Processor) CreateAndUploadImages(ctx context.Context, localPath, productID string, productUUID uuid.UUID, productS3Key, dir string) error {
	fields, err := p.Plots.Fields(productID)
	if err != nil {
		glog.Warningf("plotting for %s not implemented: %v", productID, err)
		return nil
	}
	var visualizations []metadata.Visualization
	for _, field := range fields {
		imgPath := filepath.Join(dir, fmt.Sprintf("%s.png", field))
		dims, err := p.Plots.Render(ctx, localPath, field, imgPath)
		if err != nil {
			glog.V(1).Infof("skipping plotting %s: %v", field, err)
			continue
		}
		imgKey := strings.TrimSuffix(productS3Key, ".nc") + fmt.Sprintf("-%s-%s.png", productUUID.String()[:8], field)
		if err := p.Storage.UploadImage(imgPath, imgKey); err != nil {
			return err
		}
		visualizations = append(visualizations, metadata.Visualization{
			S3Key: imgKey, VariableID: fmt.Sprintf("%s-%s", productID, field), Dimensions: dims,
		})
	}
	if len(visualizations) == 0 {
		return nil
	}
	return p.MD.PutImages(visualizations, productUUID.String())
}

// UploadQualityReport runs QC (delegated) and PUTs the report,
// returning the worst severity observed.
func (p *Processor) UploadQualityReport(ctx context.Context, localPath string, fileUUID uuid.UUID, productID string) (model.ErrorLevel, error) {
	report, err := p.QC.RunTests(ctx, localPath, productID)
	if err != nil {
		return "", errors.Wrap(err, "run quality control")
	}
	if err := p.MD.PutQuality(fileUUID.String(), report.TimestampISO, report.QCVersion, report.Tests); err != nil {
		return "", err
	}
	return report.WorstLevel, nil
}

// UpdateStatuses advances raw files to status.
func (p *Processor) UpdateStatuses(rawUUIDs []uuid.UUID, status model.RawFileStatus) error {
	for _, u := range rawUUIDs {
		if err := p.MD.PostUploadMetadata(u.String(), status); err != nil {
			return err
		}
	}
	return nil
}

// FetchCalibration returns nil, nil on 404 (no calibration on file).
func (p *Processor) FetchCalibration(ctx context.Context, instrumentPID string, date time.Time) (map[string]interface{}, error) {
	return p.MD.GetCalibration(ctx, instrumentPID, date)
}

// SynthesizeFilename builds the deterministic output filename for a
// fresh product with no existing file to reuse the name of.
func SynthesizeFilename(date time.Time, siteID string, params model.ProcessParams) string {
	datePart := date.Format("20060102")
	switch p := params.(type) {
	case model.InstrumentParams:
		prefix8 := p.Instrument.UUID.String()
		prefix8 = strings.ReplaceAll(prefix8, "-", "")
		if len(prefix8) > 8 {
			prefix8 = prefix8[:8]
		}
		return fmt.Sprintf("%s_%s_%s_%s.nc", datePart, siteID, p.ProductRef.ID, prefix8)
	case model.ModelParams:
		return fmt.Sprintf("%s_%s_%s.nc", datePart, siteID, p.ModelID)
	default:
		identifier := productFilenameAlias(params.Product().ID)
		return fmt.Sprintf("%s_%s_%s.nc", datePart, siteID, identifier)
	}
}

// productFilenameAlias maps the two products whose filenames carry the
// retrieval method instead of the bare product id.
func productFilenameAlias(productID string) string {
	switch productID {
	case "iwc":
		return "iwc-Z-T-method"
	case "lwc":
		return "lwc-scaled-adiabatic"
	default:
		return productID
	}
}

// NominalInstrument resolves the site-declared canonical instrument for
// (site, date, product), or nil if none is declared.
func (p *Processor) NominalInstrument(ctx context.Context, siteID, productID string, date time.Time) (*model.Instrument, error) {
	return p.MD.GetNominalInstrument(ctx, siteID, productID, date)
}

// SelectInstrument applies the nominal-instrument-first, then
// preference-order tie-break over a set of candidate
// instruments that reported data for the day. excluded instrument
// types (e.g. mira-10) must already be filtered out of candidates by
// the caller's preference table.
func SelectInstrument(candidates []*model.Instrument, nominal *model.Instrument, preferenceOrder []string) *model.Instrument {
	if nominal != nil {
		for _, c := range candidates {
			if c.UUID == nominal.UUID {
				return c
			}
		}
	}
	for _, want := range preferenceOrder {
		for _, c := range candidates {
			if c.Type == want {
				return c
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]*model.Instrument(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })
	return sorted[0]
}
