package tasks

import (
	"context"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// instrumentPreferenceOrder is the per-product tie-break table, used
// only when the site has no nominal instrument declared for
// (site, date, product).
var instrumentPreferenceOrder = map[string][]string{
	"radar":      {"mira-35", "rpg-fmcw-35", "rpg-fmcw-94", "copernicus"},
	"lidar":      {"chm15k", "cl61", "cl51", "cl31", "ct25k"},
	"mwr":        {"hatpro", "radiometrics"},
	"mwr-l1c":    {"hatpro"},
	"mwr-single": {"hatpro", "radiometrics"},
	"mwr-multi":  {"hatpro", "radiometrics"},
}

// excludedInstrumentTypes are never eligible regardless of preference
// order: mira-10 support is still pending, so it must surface as an
// explicit skip rather than a silent pick.
var excludedInstrumentTypes = map[string]bool{
	"mira-10": true,
}

// voodooOnlyInstrumentType restricts categorize-voodoo's radar source to
// rpg-fmcw-94; the voodoo network is trained on its Level-0 spectra.
const voodooOnlyInstrumentType = "rpg-fmcw-94"

// bestSourceProduct resolves the single ProductFile to use as an input
// when several instruments of the requested type reported data for
// (site, date, productID): nominal instrument first, then the
// preference-order table, excluding hard-excluded types.
func (h *Handlers) bestSourceProduct(ctx context.Context, site *model.Site, date time.Time, productID string, allowedTypes map[string]bool) (*model.ProductFile, error) {
	rows, err := h.Proc.MD.GetFiles(ctx, metadata.FileQuery{Site: site.ID, Product: productID, Date: &date})
	if err != nil {
		return nil, err
	}

	type candidate struct {
		file *model.ProductFile
		typ  string
	}
	var candidates []candidate
	for _, r := range rows {
		typ := ""
		if r.InstrumentUUID != nil {
			inst, err := h.Proc.GetInstrument(ctx, *r.InstrumentUUID)
			if err != nil {
				return nil, err
			}
			typ = inst.Type
		}
		if excludedInstrumentTypes[typ] {
			continue
		}
		if allowedTypes != nil && !allowedTypes[typ] {
			continue
		}
		candidates = append(candidates, candidate{file: r, typ: typ})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0].file, nil
	}

	nominal, err := h.Proc.NominalInstrument(ctx, site.ID, productID, date)
	if err != nil {
		return nil, err
	}
	if nominal != nil {
		for _, c := range candidates {
			if c.file.InstrumentUUID != nil && *c.file.InstrumentUUID == nominal.UUID {
				return c.file, nil
			}
		}
	}
	for _, want := range instrumentPreferenceOrder[productID] {
		for _, c := range candidates {
			if c.typ == want {
				return c.file, nil
			}
		}
	}
	return candidates[0].file, nil
}
