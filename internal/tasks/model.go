package tasks

import (
	"context"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// ProcessModel implements the process task for a raw NWP model upload:
// the single valid upload of the day (largest, above the minimum size)
// is harmonized into the site's model product.
func (h *Handlers) ProcessModel(ctx context.Context, site *model.Site, product *model.Product, modelID string, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	rows, err := h.Proc.MD.GetRawModelUploads(ctx, metadata.RawFileQuery{Site: site.ID, Date: &date, ModelID: modelID})
	if err != nil {
		return ProcessResult{}, err
	}
	if len(rows) == 0 {
		return ProcessResult{}, cerr.NewRawDataMissing("no model upload found for %s/%s on %s", site.ID, modelID, date.Format("2006-01-02"))
	}
	upload := rows[0]
	for _, r := range rows[1:] {
		if r.Size > upload.Size {
			upload = r
		}
	}

	paths, raw, _, err := h.Proc.Storage.DownloadRawData(ctx, []*model.RawFile{upload}, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	params := model.ModelParams{SiteRef: site, DateVal: date, ProductRef: product, ModelID: modelID}
	job := processJob{
		Params:    params,
		Transform: transform,
		Inputs:    TransformInputs{RawPaths: paths, ModelPath: paths[0]},
		RawUUIDs:  raw,
		Dir:       dir,
	}
	return h.runProcessPipeline(ctx, job)
}
