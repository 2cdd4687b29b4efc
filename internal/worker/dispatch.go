// Package worker implements the long-running task loop: receive one
// task at a time from the queue, classify it, dispatch to the matching
// handler from package tasks, and report the outcome back. Parallelism
// comes from running more workers, never from within one.
package worker

import (
	"context"
	"strings"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/tasks"
)

// classify resolves a queued Task into the richer ProcessParams shape
// handlers need: looking up the site, product, and (for instrument
// products) the specific Instrument the task names.
func classify(ctx context.Context, h *tasks.Handlers, t *model.Task) (model.ProcessParams, error) {
	site, err := h.Proc.GetSite(ctx, t.SiteID)
	if err != nil {
		return nil, err
	}
	product, err := h.Proc.GetProduct(ctx, t.ProductID)
	if err != nil {
		return nil, err
	}

	switch {
	case t.ProductID == "model", strings.HasPrefix(t.ProductID, "l3-"):
		return model.ModelParams{SiteRef: site, DateVal: t.MeasurementDate, ProductRef: product, ModelID: t.ModelID}, nil
	case product.HasType(model.ProductTypeInstrument):
		if t.InstrumentInfoUUID == nil {
			return nil, cerr.NewMisc("instrument product task %s has no instrumentInfoUuid", t.ID)
		}
		instrument, err := h.Proc.GetInstrument(ctx, *t.InstrumentInfoUUID)
		if err != nil {
			return nil, err
		}
		return model.InstrumentParams{SiteRef: site, DateVal: t.MeasurementDate, ProductRef: product, Instrument: instrument}, nil
	default:
		var instrument *model.Instrument
		if t.InstrumentInfoUUID != nil {
			instrument, err = h.Proc.GetInstrument(ctx, *t.InstrumentInfoUUID)
			if err != nil {
				return nil, err
			}
		}
		return model.ProductParams{SiteRef: site, DateVal: t.MeasurementDate, ProductRef: product, Instrument: instrument}, nil
	}
}

// dispatch routes one task to its handler by (product kind, task
// type). Unsupported combinations return a
// SkipTaskError naming the reason, never a fatal error: a worker
// should never hot-loop retrying a structurally impossible combination.
func dispatch(ctx context.Context, h *tasks.Handlers, t *model.Task, params model.ProcessParams, dir string) error {
	switch t.Type {
	case model.TaskProcess:
		return dispatchProcess(ctx, h, t, params, dir)
	case model.TaskPlot:
		return h.UpdatePlots(ctx, params, dir)
	case model.TaskQC:
		return h.UpdateQC(ctx, params, dir)
	case model.TaskFreeze:
		return h.Freeze(ctx, params, dir)
	case model.TaskHKD:
		ip, ok := params.(model.InstrumentParams)
		if !ok {
			return cerr.NewSkip("hkd is only valid for instrument products")
		}
		transform, ok := h.Transforms.Lookup("hkd", ip.Instrument.Type)
		if !ok {
			return cerr.NewSkip("no housekeeping module registered for %s", ip.Instrument.Type)
		}
		return h.HKD(ctx, ip.SiteRef, ip.Instrument, params, dir, transform)
	case model.TaskDvas:
		if _, ok := params.(model.ModelParams); ok {
			return cerr.NewSkip("dvas is not valid for model or l3 products")
		}
		if params.Product().HasType(model.ProductTypeInstrument) {
			return cerr.NewSkip("dvas is not valid for instrument products")
		}
		return h.UploadToDvas(ctx, params, dir)
	default:
		return cerr.NewSkip("unknown task type %q", t.Type)
	}
}

func dispatchProcess(ctx context.Context, h *tasks.Handlers, t *model.Task, params model.ProcessParams, dir string) error {
	switch p := params.(type) {
	case model.ModelParams:
		if strings.HasPrefix(p.ProductRef.ID, "l3-") {
			transform, ok := h.Transforms.Lookup(p.ProductRef.ID, "")
			if !ok {
				return cerr.NewSkip("no transform registered for %s", p.ProductRef.ID)
			}
			res, err := h.ProcessMe(ctx, p.SiteRef, p.ProductRef, p.ModelID, p.DateVal, dir, transform)
			return finishProcess(ctx, h, t, params, res, err)
		}
		transform, ok := h.Transforms.Lookup("model", "")
		if !ok {
			return cerr.NewSkip("no transform registered for model")
		}
		res, err := h.ProcessModel(ctx, p.SiteRef, p.ProductRef, p.ModelID, p.DateVal, dir, transform)
		return finishProcess(ctx, h, t, params, res, err)
	case model.InstrumentParams:
		transform, ok := h.Transforms.Lookup(p.ProductRef.ID, p.Instrument.Type)
		if !ok {
			return cerr.NewSkip("no transform registered for %s/%s", p.ProductRef.ID, p.Instrument.Type)
		}
		res, err := h.ProcessInstrument(ctx, p.SiteRef, p.ProductRef, p.Instrument, p.DateVal, dir, transform)
		return finishProcess(ctx, h, t, params, res, err)
	case model.ProductParams:
		transform, ok := h.Transforms.Lookup(p.ProductRef.ID, "")
		if !ok {
			return cerr.NewSkip("no transform registered for %s", p.ProductRef.ID)
		}
		res, err := h.ProcessProduct(ctx, p.SiteRef, p.ProductRef, p.DateVal, dir, transform)
		return finishProcess(ctx, h, t, params, res, err)
	default:
		return cerr.NewSkip("unrecognized process params")
	}
}

// finishProcess runs the derived-task fan-out once a process handler
// has succeeded, after all of its uploads are already visible.
func finishProcess(ctx context.Context, h *tasks.Handlers, t *model.Task, params model.ProcessParams, res tasks.ProcessResult, err error) error {
	if err != nil {
		return err
	}
	if !t.Options.DerivedProducts {
		return nil
	}
	return h.PublishFollowups(ctx, params, res.ParentFrozen)
}
