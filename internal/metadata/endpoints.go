package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/actris-cloudnet/cloudnet-processing/internal/httpx"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

// wire structs mirror the data portal's JSON shapes; they stay unexported
// since every caller works with package model's domain types instead.

type wireSite struct {
	ID     string   `json:"id"`
	Name   string   `json:"humanReadableName"`
	Lat    float64  `json:"latitude"`
	Lon    float64  `json:"longitude"`
	Alt    float64  `json:"altitude"`
	Types  []string `json:"type"`
	DvasID *int     `json:"dvasId"`
}

func (w wireSite) toModel() *model.Site {
	s := &model.Site{ID: w.ID, Name: w.Name, Latitude: w.Lat, Longitude: w.Lon, Altitude: w.Alt, DvasID: w.DvasID}
	for _, t := range w.Types {
		s.Types = append(s.Types, model.SiteType(t))
	}
	return s
}

// GetSite fetches a single site by id.
func (c *Client) GetSite(ctx context.Context, id string) (*model.Site, error) {
	var w wireSite
	if err := c.Get(ctx, fmt.Sprintf("api/sites/%s", id), nil, &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

type wireInstrument struct {
	UUID string `json:"uuid"`
	PID  string `json:"pid"`
	Type string `json:"type"`
}

// GetInstrument fetches a single instrument by uuid.
func (c *Client) GetInstrument(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	var w wireInstrument
	if err := c.Get(ctx, fmt.Sprintf("api/instruments/%s", id), nil, &w); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(w.UUID)
	if err != nil {
		return nil, errors.Wrap(err, "parse instrument uuid")
	}
	return &model.Instrument{UUID: u, PID: w.PID, Type: w.Type}, nil
}

type wireProduct struct {
	ID                    string   `json:"id"`
	Level                 string   `json:"level"`
	HumanReadableName     string   `json:"humanReadableName"`
	Types                 []string `json:"type"`
	SourceInstrumentTypes []string `json:"sourceInstrumentIds"`
	SourceProductIDs      []string `json:"sourceProductIds"`
	DerivedProductIDs     []string `json:"derivedProductIds"`
}

// GetProduct fetches product metadata, used to route tasks and resolve
// a product's upstream and derived ids.
func (c *Client) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var w wireProduct
	if err := c.Get(ctx, fmt.Sprintf("api/products/%s", id), nil, &w); err != nil {
		return nil, err
	}
	p := &model.Product{
		ID: w.ID, Level: w.Level, HumanReadableName: w.HumanReadableName,
		SourceInstrumentTypes: w.SourceInstrumentTypes,
		SourceProductIDs:      w.SourceProductIDs,
		DerivedProductIDs:     w.DerivedProductIDs,
	}
	for _, t := range w.Types {
		p.Types = append(p.Types, model.ProductType(t))
	}
	return p, nil
}

// GetNominalInstrument returns the site-declared canonical instrument
// for (site, date, product). A 404 means "none declared", returned as a
// nil *model.Instrument with no error.
func (c *Client) GetNominalInstrument(ctx context.Context, siteID, productID string, date time.Time) (*model.Instrument, error) {
	var w wireInstrument
	err := c.Get(ctx, "api/nominal-instrument", map[string]string{
		"site": siteID, "product": productID, "date": date.Format("2006-01-02"),
	}, &w)
	if httpx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u, err := uuid.Parse(w.UUID)
	if err != nil {
		return nil, err
	}
	return &model.Instrument{UUID: u, PID: w.PID, Type: w.Type}, nil
}

// FileQuery is the filter set accepted by GET /api/files and
// GET /api/model-files.
type FileQuery struct {
	Site           string
	Date           *time.Time
	DateFrom       *time.Time
	DateTo         *time.Time
	Product        string
	Instrument     string
	InstrumentPID  string
	Model          string
	AllModels      bool
	Volatile       *bool
	ShowLegacy     bool
	Developer      bool
	Status         []string
	UpdatedAtFrom  *time.Time
	ReleasedBefore *time.Time
}

func (q FileQuery) toParams() map[string]string {
	p := map[string]string{}
	if q.Site != "" {
		p["site"] = q.Site
	}
	if q.Date != nil {
		p["date"] = q.Date.Format("2006-01-02")
	}
	if q.DateFrom != nil {
		p["dateFrom"] = q.DateFrom.Format("2006-01-02")
	}
	if q.DateTo != nil {
		p["dateTo"] = q.DateTo.Format("2006-01-02")
	}
	if q.Product != "" {
		p["product"] = q.Product
	}
	if q.Instrument != "" {
		p["instrument"] = q.Instrument
	}
	if q.InstrumentPID != "" {
		p["instrumentPid"] = q.InstrumentPID
	}
	if q.Model != "" {
		p["model"] = q.Model
	}
	if q.AllModels {
		p["allModels"] = "true"
	}
	if q.Volatile != nil {
		p["volatile"] = fmt.Sprintf("%t", *q.Volatile)
	}
	if q.ShowLegacy {
		p["showLegacy"] = "true"
	}
	if q.Developer {
		p["developer"] = "true"
	}
	if q.ReleasedBefore != nil {
		p["releasedBefore"] = q.ReleasedBefore.Format(time.RFC3339)
	}
	if q.UpdatedAtFrom != nil {
		p["updatedAtFrom"] = q.UpdatedAtFrom.Format(time.RFC3339)
	}
	return p
}

type wireProductFile struct {
	UUID            string   `json:"uuid"`
	Filename        string   `json:"filename"`
	Checksum        string   `json:"checksum"`
	Size            int64    `json:"size"`
	MeasurementDate string   `json:"measurementDate"`
	Site            string   `json:"site"`
	Product         string   `json:"product"`
	Instrument      string   `json:"instrumentPid"`
	InstrumentUUID  string   `json:"instrumentInfoUuid"`
	Model           string   `json:"model"`
	PID             string   `json:"pid"`
	Volatile        bool     `json:"volatile"`
	Legacy          bool     `json:"legacy"`
	DvasID          *int     `json:"dvasId"`
	ErrorLevel      string   `json:"errorLevel"`
	SourceFileIDs   []string `json:"sourceFileIds"`
	Format          string   `json:"format"`
	Timeliness      string   `json:"timeliness"`
	StartTime       string   `json:"startTime"`
	StopTime        string   `json:"stopTime"`
	DownloadURL     string   `json:"downloadUrl"`
}

func (w wireProductFile) toModel() (*model.ProductFile, error) {
	u, err := uuid.Parse(w.UUID)
	if err != nil {
		return nil, errors.Wrap(err, "parse product uuid")
	}
	date, err := time.Parse("2006-01-02", w.MeasurementDate)
	if err != nil {
		return nil, errors.Wrap(err, "parse measurement date")
	}
	pf := &model.ProductFile{
		UUID: u, Filename: w.Filename, Checksum: w.Checksum, Size: w.Size,
		MeasurementDate: date, SiteID: w.Site, ProductID: w.Product,
		ModelID: w.Model, PID: w.PID, Volatile: w.Volatile, Legacy: w.Legacy,
		DvasID: w.DvasID, ErrorLevel: model.ErrorLevel(w.ErrorLevel),
		Format: w.Format, Timeliness: model.Timeliness(w.Timeliness),
		DownloadURL: w.DownloadURL,
	}
	if w.InstrumentUUID != "" {
		iu, err := uuid.Parse(w.InstrumentUUID)
		if err == nil {
			pf.InstrumentUUID = &iu
		}
	}
	for _, s := range w.SourceFileIDs {
		if su, err := uuid.Parse(s); err == nil {
			pf.SourceFileUUIDs = append(pf.SourceFileUUIDs, su)
		}
	}
	if ts, err := time.Parse(time.RFC3339, w.StartTime); err == nil {
		pf.StartTime = &ts
	}
	if ts, err := time.Parse(time.RFC3339, w.StopTime); err == nil {
		pf.StopTime = &ts
	}
	return pf, nil
}

// GetFiles queries GET /api/files.
func (c *Client) GetFiles(ctx context.Context, q FileQuery) ([]*model.ProductFile, error) {
	var raw []wireProductFile
	if err := c.Get(ctx, "api/files", q.toParams(), &raw); err != nil {
		return nil, err
	}
	return toProductFiles(raw)
}

// GetFile fetches a single product file by uuid.
func (c *Client) GetFile(ctx context.Context, fileUUID string) (*model.ProductFile, error) {
	var w wireProductFile
	if err := c.Get(ctx, fmt.Sprintf("api/files/%s", fileUUID), nil, &w); err != nil {
		return nil, err
	}
	return w.toModel()
}

// GetModelFiles queries GET /api/model-files.
func (c *Client) GetModelFiles(ctx context.Context, q FileQuery) ([]*model.ProductFile, error) {
	var raw []wireProductFile
	if err := c.Get(ctx, "api/model-files", q.toParams(), &raw); err != nil {
		return nil, err
	}
	return toProductFiles(raw)
}

func toProductFiles(raw []wireProductFile) ([]*model.ProductFile, error) {
	out := make([]*model.ProductFile, 0, len(raw))
	for _, w := range raw {
		pf, err := w.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, nil
}

// PutFileParams is the body PUT /files/{filename} expects, derived from
// the freshly-produced local NetCDF.
type PutFileParams struct {
	UUID              uuid.UUID
	Checksum          string
	MeasurementDate   time.Time
	Format            string
	Size              int64
	Volatile          bool
	PID               string
	CloudnetpyVersion string
	Version           string
	Site              string
	Product           string
	SourceFileIDs     []uuid.UUID
	InstrumentPID     string
	ModelID           string
	Legacy            bool
}

// PutFile uploads the product's metadata record.
func (c *Client) PutFile(filename string, p PutFileParams) error {
	payload := map[string]interface{}{
		"uuid":              p.UUID.String(),
		"checksum":          p.Checksum,
		"measurementDate":   p.MeasurementDate.Format("2006-01-02"),
		"format":            p.Format,
		"size":              p.Size,
		"volatile":          p.Volatile,
		"pid":               p.PID,
		"cloudnetpyVersion": p.CloudnetpyVersion,
		"version":           p.Version,
		"site":              p.Site,
		"product":           p.Product,
		"sourceFileIds":     uuidStrings(p.SourceFileIDs),
		"legacy":            p.Legacy,
	}
	if p.InstrumentPID != "" {
		payload["instrumentPid"] = p.InstrumentPID
	}
	if p.ModelID != "" {
		payload["model"] = p.ModelID
	}
	return c.Put("files", filename, payload)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// PostFileUpdate flips fields on an existing ProductFile record in
// place (volatile status, pid, ...), used by freeze. DVAS write-back
// goes through UpdateDvasInfo.
func (c *Client) PostFileUpdate(uuid string, fields map[string]interface{}) error {
	fields["uuid"] = uuid
	return c.Post("api/files", fields, nil)
}

// QualityException is one result/message pair of a QC test.
type QualityException struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type QualityTest struct {
	TestID     string             `json:"testId"`
	Exceptions []QualityException `json:"exceptions"`
}

// PutQuality writes a QC report for uuid.
func (c *Client) PutQuality(uuid, timestampISO, qcVersion string, tests []QualityTest) error {
	return c.Put("quality", uuid, map[string]interface{}{
		"timestamp": timestampISO,
		"qcVersion": qcVersion,
		"tests":     tests,
	})
}

// PostUploadMetadata advances a raw file's status.
func (c *Client) PostUploadMetadata(uuid string, status model.RawFileStatus) error {
	return c.Post("upload-metadata", map[string]interface{}{
		"uuid":   uuid,
		"status": string(status),
	}, nil)
}

// GetCalibration returns the calibration record for an instrument/date,
// or nil if none exists (404).
func (c *Client) GetCalibration(ctx context.Context, instrumentPID string, date time.Time) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.Get(ctx, "api/calibration", map[string]string{
		"instrumentPid": instrumentPID, "date": date.Format("2006-01-02"),
	}, &out)
	if httpx.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// wireRawFile mirrors GET /api/raw-files and /api/raw-model-files rows.
type wireRawFile struct {
	UUID            string   `json:"uuid"`
	Filename        string   `json:"filename"`
	Checksum        string   `json:"checksum"`
	Size            int64    `json:"size"`
	S3Key           string   `json:"s3key"`
	MeasurementDate string   `json:"measurementDate"`
	Status          string   `json:"status"`
	Site            string   `json:"site"`
	InstrumentUUID  string   `json:"instrumentInfoUuid"`
	InstrumentPID   string   `json:"instrumentPid"`
	ModelID         string   `json:"modelId"`
	Tags            []string `json:"tags"`
}

func (w wireRawFile) toModel() (*model.RawFile, error) {
	u, err := uuid.Parse(w.UUID)
	if err != nil {
		return nil, errors.Wrap(err, "parse raw file uuid")
	}
	date, _ := time.Parse("2006-01-02", w.MeasurementDate)
	rf := &model.RawFile{
		UUID: u, Filename: w.Filename, Checksum: w.Checksum, Size: w.Size,
		S3Key: w.S3Key, MeasurementDate: date, Status: model.RawFileStatus(w.Status),
		SiteID: w.Site, InstrumentPID: w.InstrumentPID, ModelID: w.ModelID,
	}
	if w.InstrumentUUID != "" {
		if iu, err := uuid.Parse(w.InstrumentUUID); err == nil {
			rf.InstrumentUUID = &iu
		}
	}
	if len(w.Tags) > 0 {
		rf.Tags = make(map[string]struct{}, len(w.Tags))
		for _, t := range w.Tags {
			rf.Tags[t] = struct{}{}
		}
	}
	return rf, nil
}

// RawFileQuery filters GET /api/raw-files.
type RawFileQuery struct {
	Site           string
	Date           *time.Time
	InstrumentUUID string
	InstrumentPID  string
	ModelID        string
	Status         string
}

func (q RawFileQuery) toParams() map[string]string {
	p := map[string]string{}
	if q.Site != "" {
		p["site"] = q.Site
	}
	if q.Date != nil {
		p["date"] = q.Date.Format("2006-01-02")
	}
	if q.InstrumentUUID != "" {
		p["instrument"] = q.InstrumentUUID
	}
	if q.InstrumentPID != "" {
		p["instrumentPid"] = q.InstrumentPID
	}
	if q.ModelID != "" {
		p["model"] = q.ModelID
	}
	if q.Status != "" {
		p["status"] = q.Status
	}
	return p
}

// GetRawFiles queries GET /api/raw-files.
func (c *Client) GetRawFiles(ctx context.Context, q RawFileQuery) ([]*model.RawFile, error) {
	var raw []wireRawFile
	if err := c.Get(ctx, "api/raw-files", q.toParams(), &raw); err != nil {
		return nil, err
	}
	out := make([]*model.RawFile, 0, len(raw))
	for _, w := range raw {
		rf, err := w.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, nil
}

// GetRawModelUploads queries GET /api/raw-model-files, keeping only
// uploads larger than model.MinModelUploadSize.
func (c *Client) GetRawModelUploads(ctx context.Context, q RawFileQuery) ([]*model.RawFile, error) {
	var raw []wireRawFile
	if err := c.Get(ctx, "api/raw-model-files", q.toParams(), &raw); err != nil {
		return nil, err
	}
	out := make([]*model.RawFile, 0, len(raw))
	for _, w := range raw {
		if w.Size <= model.MinModelUploadSize {
			continue
		}
		rf, err := w.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, nil
}

// --- task queue ---

type wireTask struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	SiteID             string `json:"siteId"`
	ProductID          string `json:"productId"`
	MeasurementDate    string `json:"measurementDate"`
	InstrumentInfoUUID string `json:"instrumentInfoUuid"`
	ModelID            string `json:"modelId"`
	Priority           int    `json:"priority"`
	Options            struct {
		DerivedProducts bool `json:"derivedProducts"`
	} `json:"options"`
}

// ReceiveTask calls POST /queue/receive. A nil task with nil error means
// the queue was empty (HTTP 204).
func (c *Client) ReceiveTask(ctx context.Context) (*model.Task, error) {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.url("queue/receive", nil), nil)
		if err != nil {
			return nil, err
		}
		c.basicAuth(req)
		return req, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "POST queue/receive")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var w wireTask
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, errors.Wrap(err, "decode task")
	}
	date, err := time.Parse("2006-01-02", w.MeasurementDate)
	if err != nil {
		return nil, errors.Wrap(err, "parse task date")
	}
	t := &model.Task{
		ID: w.ID, Type: model.TaskType(w.Type), SiteID: w.SiteID, ProductID: w.ProductID,
		MeasurementDate: date, ModelID: w.ModelID, Priority: w.Priority,
		Options: model.TaskOptions{DerivedProducts: w.Options.DerivedProducts},
	}
	if w.InstrumentInfoUUID != "" {
		if iu, err := uuid.Parse(w.InstrumentInfoUUID); err == nil {
			t.InstrumentInfoUUID = &iu
		}
	}
	return t, nil
}

// CompleteTask calls PUT /queue/complete/{id}.
func (c *Client) CompleteTask(taskID string) error {
	return c.putQueueAction("complete", taskID)
}

// FailTask calls PUT /queue/fail/{id}.
func (c *Client) FailTask(taskID string) error {
	return c.putQueueAction("fail", taskID)
}

func (c *Client) putQueueAction(action, taskID string) error {
	resp, err := c.cli.Do(context.Background(), func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPut, c.url(fmt.Sprintf("queue/%s/%s", action, taskID), nil), nil)
		if err != nil {
			return nil, err
		}
		c.basicAuth(req)
		return req, nil
	})
	if err != nil {
		return errors.Wrapf(err, "PUT queue/%s/%s", action, taskID)
	}
	resp.Body.Close()
	return nil
}

// PublishTaskParams is the body for POST /api/queue/publish.
type PublishTaskParams struct {
	Type               model.TaskType
	SiteID             string
	ProductID          string
	MeasurementDate    time.Time
	InstrumentInfoUUID *uuid.UUID
	ModelID            string
	ScheduledAt        time.Time
	Priority           int
	DerivedProducts    bool
}

// --- DVAS support endpoints ---

type wireFileVersion struct {
	UUID   string `json:"uuid"`
	DvasID *int   `json:"dvasId"`
}

// GetFileVersions lists every revision of a product's uuid lineage,
// used to purge stale DVAS federations before posting a new one.
func (c *Client) GetFileVersions(ctx context.Context, fileUUID string) ([]struct {
	UUID   string
	DvasID *int
}, error) {
	var raw []wireFileVersion
	if err := c.Get(ctx, fmt.Sprintf("api/files/%s/versions", fileUUID), map[string]string{"properties": "dvasId"}, &raw); err != nil {
		return nil, err
	}
	out := make([]struct {
		UUID   string
		DvasID *int
	}, len(raw))
	for i, w := range raw {
		out[i].UUID = w.UUID
		out[i].DvasID = w.DvasID
	}
	return out, nil
}

type wireProductVariables struct {
	ID        string `json:"id"`
	Variables []struct {
		ActrisName *string `json:"actrisName"`
	} `json:"variables"`
}

// GetProductVariableNames returns the ACTRIS vocabulary names declared
// for productID, skipping variables with no ACTRIS mapping.
func (c *Client) GetProductVariableNames(ctx context.Context, productID string) ([]string, error) {
	var raw []wireProductVariables
	if err := c.Get(ctx, "api/products/variables", nil, &raw); err != nil {
		return nil, err
	}
	for _, p := range raw {
		if p.ID != productID {
			continue
		}
		names := make([]string, 0, len(p.Variables))
		for _, v := range p.Variables {
			if v.ActrisName != nil {
				names = append(names, *v.ActrisName)
			}
		}
		return names, nil
	}
	return nil, nil
}

type wireFileInstrument struct {
	Instrument *struct {
		Type string `json:"type"`
	} `json:"instrument"`
	SourceFileIDs []string `json:"sourceFileIds"`
}

// GetFileInstrumentTypes recursively walks a product's source-file
// lineage collecting every instrument type that fed it.
func (c *Client) GetFileInstrumentTypes(ctx context.Context, fileUUID string) ([]string, error) {
	var w wireFileInstrument
	if err := c.Get(ctx, fmt.Sprintf("api/files/%s", fileUUID), nil, &w); err != nil {
		return nil, err
	}
	var types []string
	if w.Instrument != nil {
		types = append(types, w.Instrument.Type)
	}
	for _, src := range w.SourceFileIDs {
		sub, err := c.GetFileInstrumentTypes(ctx, src)
		if err != nil {
			return nil, err
		}
		types = append(types, sub...)
	}
	return types, nil
}

// GetCredits fetches the citation or acknowledgement text for a file.
func (c *Client) GetCredits(ctx context.Context, fileUUID, kind string) (string, error) {
	return c.GetText(ctx, fmt.Sprintf("api/reference/%s/%s", fileUUID, kind), map[string]string{"format": "txt"})
}

// PublishTask enqueues a follow-up task.
func (c *Client) PublishTask(p PublishTaskParams) error {
	payload := map[string]interface{}{
		"type":            string(p.Type),
		"siteId":          p.SiteID,
		"productId":       p.ProductID,
		"measurementDate": p.MeasurementDate.Format("2006-01-02"),
		"scheduledAt":     p.ScheduledAt.UTC().Format(time.RFC3339),
		"priority":        p.Priority,
		"options":         map[string]interface{}{"derivedProducts": p.DerivedProducts},
	}
	if p.InstrumentInfoUUID != nil {
		payload["instrumentInfoUuid"] = p.InstrumentInfoUUID.String()
	}
	if p.ModelID != "" {
		payload["modelId"] = p.ModelID
	}
	return c.Post("api/queue/publish", payload, nil)
}
