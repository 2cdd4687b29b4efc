package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// ProcessMe implements the process task for l3-* model-evaluation
// products: one model run of the chosen model plus the corresponding
// Level-2 product.
func (h *Handlers) ProcessMe(ctx context.Context, site *model.Site, product *model.Product, modelID string, date time.Time, dir string, transform Transform) (ProcessResult, error) {
	modelFile, err := h.bestModelRun(ctx, site, modelID, date)
	if err != nil {
		return ProcessResult{}, err
	}
	if modelFile == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input model: %s", modelID)
	}

	level2ID := level2ProductFor(product.ID)
	level2, err := h.bestSourceProduct(ctx, site, date, level2ID, nil)
	if err != nil {
		return ProcessResult{}, err
	}
	if level2 == nil {
		return ProcessResult{}, cerr.NewRawDataMissing("missing required input product: %s", level2ID)
	}

	paths, err := h.Proc.DownloadProducts(ctx, []*model.ProductFile{modelFile, level2}, dir)
	if err != nil {
		return ProcessResult{}, err
	}

	params := model.ModelParams{SiteRef: site, DateVal: date, ProductRef: product, ModelID: modelID}
	job := processJob{
		Params:    params,
		Transform: transform,
		Inputs:    TransformInputs{ModelPath: paths[0], CategorizePath: paths[1]},
		RawUUIDs:  []uuid.UUID{modelFile.UUID, level2.UUID},
		Dir:       dir,
	}
	return h.runProcessPipeline(ctx, job)
}

// level2ProductFor resolves the Level-2 product an l3-* variant
// evaluates the model against: l3-cf always diffs against categorize's
// cloud fraction, every other variant against its same-named Level-2
// product.
func level2ProductFor(l3ProductID string) string {
	if l3ProductID == "l3-cf" {
		return "categorize"
	}
	return strings.TrimPrefix(l3ProductID, "l3-")
}

func (h *Handlers) bestModelRun(ctx context.Context, site *model.Site, modelID string, date time.Time) (*model.ProductFile, error) {
	rows, err := h.Proc.MD.GetModelFiles(ctx, metadata.FileQuery{Site: site.ID, Product: "model", Model: modelID, Date: &date})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
