package tasks

import (
	"context"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// experimentalAllowList lets a handful of experimental products still
// fan out follow-ups: these ids carry the experimental label for
// data-maturity reasons only, not because the code is unstable.
var experimentalAllowList = map[string]bool{
	"cpr-simulation": true,
	"epsilon-lidar":  true,
}

// followupPriority is the measurement's age in days, clamped to
// [0, 10]: newer dates run first.
func followupPriority(now, measurementDate time.Time) int {
	days := int(now.Sub(measurementDate).Hours() / 24)
	if days < 0 {
		days = -days
	}
	if days > 10 {
		return 10
	}
	return days
}

// followupDelay picks the scheduledAt offset: none for a single-source
// derived product, 15 minutes when multiple peers feed it (gives them
// time to finish first), an hour when the parent being republished is
// already frozen (reprocessing a settled file can wait).
func followupDelay(multipleSources, parentFrozen bool) time.Duration {
	if parentFrozen {
		return time.Hour
	}
	if multipleSources {
		return 15 * time.Minute
	}
	return 0
}

// PublishFollowups fans out a process task for every derived product
// fed by (site, product), skipping hidden and model-only sites. Called
// only once all of the parent task's uploads have completed, so a
// consumer of a follow-up always sees the parent's outputs.
func (h *Handlers) PublishFollowups(ctx context.Context, params model.ProcessParams, parentFrozen bool) error {
	site := params.Site()
	product := params.Product()
	if site.HasType(model.SiteTypeHidden) || site.HasType(model.SiteTypeModel) {
		return nil
	}

	now := time.Now().UTC()
	for _, derivedID := range product.DerivedProductIDs {
		if experimentalAllowList[derivedID] {
			// still eligible, fall through
		} else {
			derived, err := h.Proc.GetProduct(ctx, derivedID)
			if err != nil {
				return err
			}
			if derived.IsExperimental() {
				continue
			}
		}

		multipleSources := len(h.sourceProductsOf(ctx, derivedID)) > 1
		scheduledAt := now.Add(followupDelay(multipleSources, parentFrozen))

		if err := h.Proc.MD.PublishTask(metadata.PublishTaskParams{
			Type:            model.TaskProcess,
			SiteID:          site.ID,
			ProductID:       derivedID,
			MeasurementDate: params.Date(),
			ScheduledAt:     scheduledAt,
			Priority:        followupPriority(now, params.Date()),
			DerivedProducts: true,
		}); err != nil {
			return err
		}
		metrics.FollowupTasksPublished.WithLabelValues(derivedID).Inc()
	}
	return nil
}

// sourceProductsOf returns the upstream product ids that feed
// derivedID, used only to decide the +15 minute multi-source delay; a
// lookup failure is treated as single-source (err on no delay rather
// than blocking the follow-up entirely).
func (h *Handlers) sourceProductsOf(ctx context.Context, derivedID string) []string {
	derived, err := h.Proc.GetProduct(ctx, derivedID)
	if err != nil {
		return nil
	}
	return derived.SourceProductIDs
}
