// Package dvas mirrors frozen, federated products into the ACTRIS DVAS
// portal: a metadata summary document per frozen geophysical product,
// built from file metadata and the ACTRIS vocabulary tables.
package dvas

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/httpx"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// instrumentTypeVocab maps Cloudnet instrument types to the ACTRIS instrumenttype
// vocabulary (https://prod-actris-md.nilu.no/vocabulary/instrumenttype).
var instrumentTypeVocab = map[string]string{
	"radar":         "cloud radar",
	"lidar":         "lidar",
	"mwr":           "microwave radiometer",
	"disdrometer":   "particle size spectrometer",
	"doppler-lidar": "Doppler lidar",
}

// timelinessVocab maps to the ACTRIS observationtimeliness vocabulary
// (https://prod-actris-md.nilu.no/vocabulary/observationtimeliness).
var timelinessVocab = map[model.Timeliness]string{
	model.TimelinessNRT:       "near real-time",
	model.TimelinessRRT:       "real real-time",
	model.TimelinessScheduled: "scheduled",
}

var qcOutcomeVocab = map[model.ErrorLevel]string{
	model.ErrorLevelPass:    "1 - Good",
	model.ErrorLevelInfo:    "3 - Questionable/suspect",
	model.ErrorLevelWarning: "3 - Questionable/suspect",
	model.ErrorLevelError:   "4 - Bad",
}

const qcOutcomeUnknown = "2 - Not evaluated, not available or unknown"

// actrisLegacyCutoff is the date ACTRIS started treating new Cloudnet
// submissions as "associated" rather than "legacy" data.
var actrisLegacyCutoff = time.Date(2023, 4, 25, 0, 0, 0, 0, time.UTC)

// Client federates Cloudnet product metadata with the ACTRIS DVAS portal.
type Client struct {
	cfg *config.Config
	cli *httpx.Client
	md  *metadata.Client
}

func New(cfg *config.Config, md *metadata.Client) *Client {
	return &Client{cfg: cfg, cli: httpx.New(cfg.NewHTTPClient(), cfg.MaxRetries), md: md}
}

func (c *Client) bearer(req *http.Request) {
	req.Header.Set("X-Authorization", "Bearer "+c.cfg.DvasAccessToken)
}

func (c *Client) basic(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.DvasUsername + ":" + c.cfg.DvasPassword))
	req.Header.Set("X-Authorization", "Basic "+auth)
}

// Upload builds and POSTs the DVAS metadata document for file, after
// retiring any previous federation of the same uuid lineage, and writes
// the returned dvasId back onto the Cloudnet file record. A handful of
// conditions are quiet skips
// (volatile file, non-geophysical product, categorize, non-DVAS site,
// no ACTRIS variables); a failed POST to the DVAS portal itself is
// logged but does not fail the caller, since a DVAS outage should not
// block the Cloudnet-side processing pipeline.
func (c *Client) Upload(ctx context.Context, file *model.ProductFile, site *model.Site, product *model.Product) error {
	if file.PID == "" {
		glog.Errorf("dvas: skipping %s - volatile file", file.UUID)
		return nil
	}
	if !product.HasType(model.ProductTypeGeophysical) {
		glog.Errorf("dvas: skipping %s - only geophysical products supported for now", file.UUID)
		return nil
	}
	if strings.Contains(product.ID, "categorize") {
		glog.Errorf("dvas: skipping %s - categorize file", file.UUID)
		return nil
	}
	if site.DvasID == nil {
		glog.Errorf("dvas: skipping %s - not DVAS site", file.UUID)
		return nil
	}

	doc, err := c.buildDocument(ctx, file, site, product)
	if err != nil {
		return errors.Wrap(err, "build dvas document")
	}
	if len(doc.MDContentInformation.AttributeDescriptions) == 0 {
		glog.Errorf("dvas: skipping %s - no ACTRIS variables", file.UUID)
		return nil
	}

	c.deleteOldVersions(ctx, file.UUID.String())

	dvasID, err := c.post(ctx, doc)
	if err != nil {
		glog.Errorf("dvas: failed to upload %s to DVAS: %v", file.Filename, err)
		return nil
	}
	return c.md.UpdateDvasInfo(file.UUID.String(), doc.MDMetadata.Datestamp, dvasID)
}

// Delete retires one DVAS federation by id.
func (c *Client) Delete(ctx context.Context, fileUUID string, dvasID int) error {
	glog.Warningf("dvas: deleting file %s with dvasId %d from DVAS", fileUUID, dvasID)
	url := fmt.Sprintf("%s/Metadata/delete/%d", c.cfg.DvasPortalURL, dvasID)
	return c.delete(ctx, url)
}

// DeleteAll purges the engine's entire CLU provider namespace from DVAS.
func (c *Client) DeleteAll(ctx context.Context) error {
	url := fmt.Sprintf("%s/Metadata/delete/all/%s", c.cfg.DvasPortalURL, c.cfg.DvasProviderID)
	if err := c.delete(ctx, url); err != nil {
		return err
	}
	glog.Info("dvas: done, all Cloudnet files deleted from DVAS")
	return nil
}

func (c *Client) delete(ctx context.Context, url string) error {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}
		c.basic(req)
		return req, nil
	})
	if err != nil {
		return errors.Wrap(err, "DELETE dvas")
	}
	resp.Body.Close()
	return nil
}

// deleteOldVersions retires every earlier revision of the same file
// lineage that was previously federated, logging (not failing) on any
// individual delete error.
func (c *Client) deleteOldVersions(ctx context.Context, fileUUID string) {
	versions, err := c.md.GetFileVersions(ctx, fileUUID)
	if err != nil {
		glog.Errorf("dvas: failed to list versions of %s: %v", fileUUID, err)
		return
	}
	for _, v := range versions {
		if v.DvasID == nil {
			continue
		}
		if err := c.Delete(ctx, v.UUID, *v.DvasID); err != nil {
			glog.Errorf("dvas: failed to delete %d from DVAS: %v", *v.DvasID, err)
		}
	}
}

func (c *Client) post(ctx context.Context, doc *document) (int, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return 0, errors.Wrap(err, "encode dvas document")
	}
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.cfg.DvasPortalURL+"/Metadata/add", strings.NewReader(string(buf)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.bearer(req)
		return req, nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "POST dvas metadata")
	}
	defer resp.Body.Close()
	loc := resp.Header.Get("Location")
	parts := strings.Split(loc, "/")
	idStr := parts[len(parts)-1]
	var id int
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return 0, errors.Wrapf(err, "parse dvas id from Location %q", loc)
	}
	return id, nil
}
