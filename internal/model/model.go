// Package model holds the reference data and task data types shared by
// every other package: read-mostly, cached-for-process-lifetime types
// with no business logic of their own.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MinModelUploadSize is the byte size a raw model upload must exceed to
// be considered valid input; anything this size or smaller is a
// truncated transfer.
const MinModelUploadSize = 20200

// ErrorLevel is the worst QC severity recorded against a ProductFile.
type ErrorLevel string

const (
	ErrorLevelPass    ErrorLevel = "pass"
	ErrorLevelInfo    ErrorLevel = "info"
	ErrorLevelWarning ErrorLevel = "warning"
	ErrorLevelError   ErrorLevel = "error"
)

// Timeliness tags a ProductFile by how quickly after measurement it was
// produced.
type Timeliness string

const (
	TimelinessNRT       Timeliness = "nrt"
	TimelinessRRT       Timeliness = "rrt"
	TimelinessScheduled Timeliness = "scheduled"
)

// RawFileStatus only ever advances uploaded -> processed -> (invalid),
// never backward.
type RawFileStatus string

const (
	RawFileUploaded  RawFileStatus = "uploaded"
	RawFileProcessed RawFileStatus = "processed"
	RawFileInvalid   RawFileStatus = "invalid"
)

// SiteType is one of the tags a Site can carry.
type SiteType string

const (
	SiteTypeCloudnet SiteType = "cloudnet"
	SiteTypeCampaign SiteType = "campaign"
	SiteTypeARM      SiteType = "arm"
	SiteTypeHidden   SiteType = "hidden"
	SiteTypeModel    SiteType = "model"
)

// Site is read-only reference data obtained from MetadataClient and
// cached for the worker's lifetime.
type Site struct {
	ID        string
	Name      string // human-readable name
	Latitude  float64
	Longitude float64
	Altitude  float64
	Types     []SiteType
	DvasID    *int // federation id; nil if the site isn't federated
}

func (s *Site) HasType(t SiteType) bool {
	for _, ty := range s.Types {
		if ty == t {
			return true
		}
	}
	return false
}

// Instrument uniquely identifies a hardware unit across sites and time.
type Instrument struct {
	UUID uuid.UUID
	PID  string // handle URL
	Type string // e.g. "chm15k", "rpg-fmcw-94", "hatpro"
}

// ProductType is one of the tags a Product can carry.
type ProductType string

const (
	ProductTypeInstrument   ProductType = "instrument"
	ProductTypeGeophysical  ProductType = "geophysical"
	ProductTypeEvaluation   ProductType = "evaluation"
	ProductTypeExperimental ProductType = "experimental"
)

// Product describes one node of the processing graph.
type Product struct {
	ID                string
	Level             string // "1b", "1c", "2", "3"
	HumanReadableName string
	Types             []ProductType

	SourceInstrumentTypes []string // instrument types this product can be derived from
	SourceProductIDs      []string // upstream product ids (categorize, etc.)
	DerivedProductIDs     []string // downstream product ids fed by this one
}

func (p *Product) HasType(t ProductType) bool {
	for _, ty := range p.Types {
		if ty == t {
			return true
		}
	}
	return false
}

func (p *Product) IsExperimental() bool { return p.HasType(ProductTypeExperimental) }

// RawFile is an uploaded instrument or model file awaiting processing.
type RawFile struct {
	UUID            uuid.UUID
	Filename        string
	Checksum        string // MD5
	Size            int64
	S3Key           string
	MeasurementDate time.Time
	Status          RawFileStatus
	SiteID          string
	InstrumentUUID  *uuid.UUID // set for instrument data
	InstrumentPID   string
	ModelID         string // set for model data
	Tags            map[string]struct{}
}

func (r *RawFile) HasTag(tag string) bool {
	_, ok := r.Tags[tag]
	return ok
}

// ProductFile is a harmonized Level-1b/1c/2/3 product revision.
type ProductFile struct {
	UUID            uuid.UUID // stable across revisions
	Filename        string
	Checksum        string // SHA-256
	Size            int64
	MeasurementDate time.Time
	SiteID          string
	ProductID       string
	InstrumentUUID  *uuid.UUID
	ModelID         string
	PID             string // empty while volatile
	Volatile        bool
	Legacy          bool
	DvasID          *int
	ErrorLevel      ErrorLevel
	SourceFileUUIDs []uuid.UUID
	Format          string
	Timeliness      Timeliness
	StartTime       *time.Time
	StopTime        *time.Time
	DownloadURL     string
}

// Frozen reports whether this revision has a minted PID and is therefore
// immutable; volatile -> frozen is one-way.
func (f *ProductFile) Frozen() bool { return !f.Volatile && f.PID != "" }

// TaskType is one of the six task kinds the worker loop dispatches.
type TaskType string

const (
	TaskProcess TaskType = "process"
	TaskPlot    TaskType = "plot"
	TaskQC      TaskType = "qc"
	TaskFreeze  TaskType = "freeze"
	TaskHKD     TaskType = "hkd"
	TaskDvas    TaskType = "dvas"
)

// TaskOptions carries per-task flags.
type TaskOptions struct {
	DerivedProducts bool
}

// Task is the persisted, at-most-once-delivered unit of work.
type Task struct {
	ID                 string
	Type               TaskType
	SiteID             string
	ProductID          string
	MeasurementDate    time.Time
	InstrumentInfoUUID *uuid.UUID
	ModelID            string
	ScheduledAt        time.Time
	Priority           int
	Options            TaskOptions
}

// Uuid is the accumulator carried through a process task.
type Uuid struct {
	Raw      []uuid.UUID
	Volatile *uuid.UUID // set iff an existing volatile product is being replaced
	Product  uuid.UUID
}
