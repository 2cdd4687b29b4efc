package dvas

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000-07:00")
}

type contact struct {
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	OrganisationName string   `json:"organisation_name"`
	RoleCode         []string `json:"role_code"`
	CountryCode      string   `json:"country_code"`
}

type onlineResource struct {
	Linkage string `json:"linkage"`
}

type identifier struct {
	PID  string `json:"pid"`
	Type string `json:"type"`
}

type mdMetadata struct {
	FileIdentifier string         `json:"file_identifier"`
	Language       string         `json:"language"`
	HierarchyLevel string         `json:"hierarchy_level"`
	OnlineResource onlineResource `json:"online_resource"`
	Datestamp      string         `json:"datestamp"`
	Contact        []contact      `json:"contact"`
}

type mdIdentification struct {
	Abstract       string         `json:"abstract"`
	Title          string         `json:"title"`
	DateType       string         `json:"date_type"`
	Contact        []contact      `json:"contact"`
	OnlineResource onlineResource `json:"online_resource"`
	Identifier     identifier     `json:"identifier"`
	Date           string         `json:"date"`
}

type mdConstraints struct {
	AccessConstraints string `json:"access_constraints"`
	UseConstraints    string `json:"use_constraints"`
	OtherConstraints  string `json:"other_constraints"`
	DataLicence       string `json:"data_licence"`
	MetadataLicence   string `json:"metadata_licence"`
	Citation          string `json:"citation"`
	Acknowledgement   string `json:"acknowledgement"`
}

type mdKeywords struct {
	Keywords []string `json:"keywords"`
}

type mdDataIdentification struct {
	Language           string `json:"language"`
	TopicCategory      string `json:"topic_category"`
	Description        string `json:"description"`
	FacilityIdentifier int    `json:"facility_identifier"`
}

type exGeographicBoundingBox struct {
	WestBoundLongitude float64 `json:"west_bound_longitude"`
	EastBoundLongitude float64 `json:"east_bound_longitude"`
	SouthBoundLatitude float64 `json:"south_bound_latitude"`
	NorthBoundLatitude float64 `json:"north_bound_latitude"`
}

type exTemporalExtent struct {
	TimePeriodBegin string `json:"time_period_begin"`
	TimePeriodEnd   string `json:"time_period_end"`
}

type mdContentInformation struct {
	AttributeDescriptions []string `json:"attribute_descriptions"`
	ContentType           string   `json:"content_type"`
}

type restriction struct {
	Set bool `json:"set"`
}

type mdDistributionInformation struct {
	DataFormat        string      `json:"data_format"`
	VersionDataFormat string      `json:"version_data_format"`
	DatasetURL        string      `json:"dataset_url"`
	Protocol          string      `json:"protocol"`
	Transfersize      float64     `json:"transfersize"`
	Description       string      `json:"description"`
	Function          string      `json:"function"`
	Restriction       restriction `json:"restriction"`
}

type mdActrisSpecific struct {
	FacilityType                string   `json:"facility_type"`
	ProductType                 string   `json:"product_type"`
	Matrix                      string   `json:"matrix"`
	SubMatrix                   *string  `json:"sub_matrix"`
	InstrumentType              []string `json:"instrument_type"`
	ProgramAffiliation          []string `json:"program_affiliation"`
	VariableStatisticalProperty *string  `json:"variable_statistical_property"`
	LegacyData                  bool     `json:"legacy_data"`
	ObservationTimeliness       string   `json:"observation_timeliness"`
	DataProduct                 string   `json:"data_product"`
}

type dqDataQualityInformation struct {
	Level                 string `json:"level"`
	Compliance            string `json:"compliance"`
	QualityControlExtent  string `json:"quality_control_extent"`
	QualityControlOutcome string `json:"quality_control_outcome"`
}

// document is the exact JSON body POSTed to /Metadata/add.
type document struct {
	MDMetadata                mdMetadata                  `json:"md_metadata"`
	MDIdentification          mdIdentification            `json:"md_identification"`
	MDConstraints             mdConstraints               `json:"md_constraints"`
	MDKeywords                mdKeywords                  `json:"md_keywords"`
	MDDataIdentification      mdDataIdentification        `json:"md_data_identification"`
	ExGeographicBoundingBox   exGeographicBoundingBox     `json:"ex_geographic_bounding_box"`
	ExTemporalExtent          exTemporalExtent            `json:"ex_temporal_extent"`
	MDContentInformation      mdContentInformation        `json:"md_content_information"`
	MDDistributionInformation []mdDistributionInformation `json:"md_distribution_information"`
	MDActrisSpecific          mdActrisSpecific            `json:"md_actris_specific"`
	DQDataQualityInformation  dqDataQualityInformation    `json:"dq_data_quality_information"`
}

func (c *Client) buildDocument(ctx context.Context, file *model.ProductFile, site *model.Site, product *model.Product) (*document, error) {
	timeBegin := file.MeasurementDate.Format("2006-01-02") + "T00:00:00.0000000Z"
	if file.StartTime != nil {
		timeBegin = file.StartTime.Format("2006-01-02T15:04:05.0000000Z")
	}
	timeEnd := file.MeasurementDate.Format("2006-01-02") + "T23:59:59.9999999Z"
	if file.StopTime != nil {
		timeEnd = file.StopTime.Format("2006-01-02T15:04:05.0000000Z")
	}

	variables, err := c.md.GetProductVariableNames(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	instrumentTypes, err := c.instrumentTypes(ctx, file.UUID.String())
	if err != nil {
		return nil, err
	}
	citation, err := c.md.GetCredits(ctx, file.UUID.String(), "citation")
	if err != nil {
		return nil, err
	}
	acknowledgement, err := c.md.GetCredits(ctx, file.UUID.String(), "acknowledgements")
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s data derived from cloud remote sensing measurements at %s", product.HumanReadableName, site.Name)

	return &document{
		MDMetadata: mdMetadata{
			FileIdentifier: file.Filename,
			Language:       "en",
			HierarchyLevel: "dataset",
			OnlineResource: onlineResource{Linkage: "https://cloudnet.fmi.fi/"},
			Datestamp:      nowISO8601(),
			Contact: []contact{{
				FirstName: "Ewan", LastName: "O'Connor",
				OrganisationName: "Finnish Meteorological Institute (FMI)",
				RoleCode:         []string{"pointOfContact"}, CountryCode: "FI",
			}},
		},
		MDIdentification: mdIdentification{
			Abstract: title,
			Title:    title,
			DateType: "creation",
			Contact: []contact{{
				FirstName: "Simo", LastName: "Tukiainen",
				OrganisationName: "Finnish Meteorological Institute (FMI)",
				RoleCode:         []string{"processor"}, CountryCode: "FI",
			}},
			OnlineResource: onlineResource{Linkage: fmt.Sprintf("https://cloudnet.fmi.fi/file/%s", file.UUID)},
			Identifier:     identifier{PID: file.PID, Type: "handle"},
			Date:           timeBegin,
		},
		MDConstraints: mdConstraints{
			AccessConstraints: "license",
			UseConstraints:    "license",
			OtherConstraints:  "N/A",
			DataLicence:       "CC-BY-4.0",
			MetadataLicence:   "CC-BY-4.0",
			Citation:          citation,
			Acknowledgement:   acknowledgement,
		},
		MDKeywords: mdKeywords{Keywords: []string{"FMI", "ACTRIS", product.HumanReadableName}},
		MDDataIdentification: mdDataIdentification{
			Language:           "en",
			TopicCategory:      "climatologyMeteorologyAtmosphere",
			Description:        "time series of profile measurements",
			FacilityIdentifier: *site.DvasID,
		},
		ExGeographicBoundingBox: exGeographicBoundingBox{
			WestBoundLongitude: site.Longitude, EastBoundLongitude: site.Longitude,
			SouthBoundLatitude: site.Latitude, NorthBoundLatitude: site.Latitude,
		},
		ExTemporalExtent: exTemporalExtent{TimePeriodBegin: timeBegin, TimePeriodEnd: timeEnd},
		MDContentInformation: mdContentInformation{
			AttributeDescriptions: variables,
			ContentType:           "physicalMeasurement",
		},
		MDDistributionInformation: []mdDistributionInformation{{
			DataFormat:        "netcdf",
			VersionDataFormat: file.Format,
			DatasetURL:        file.DownloadURL,
			Protocol:          "HTTP",
			Transfersize:      fileSizeMB(file.Size),
			Description:       "Direct download of data file",
			Function:          "download",
			Restriction:       restriction{Set: false},
		}},
		MDActrisSpecific: mdActrisSpecific{
			FacilityType:          "observation platform, fixed",
			ProductType:           "observation",
			Matrix:                "cloud phase",
			InstrumentType:        instrumentTypes,
			ProgramAffiliation:    affiliation(site),
			LegacyData:            file.Legacy,
			ObservationTimeliness: timelinessVocab[file.Timeliness],
			DataProduct:           fmt.Sprintf("%s data", timelinessVocab[file.Timeliness]),
		},
		DQDataQualityInformation: dqDataQualityInformation{
			Level:                 "dataset",
			Compliance:            compliance(file.MeasurementDate),
			QualityControlExtent:  "full quality control applied",
			QualityControlOutcome: qcOutcome(file.ErrorLevel),
		},
	}, nil
}

func (c *Client) instrumentTypes(ctx context.Context, fileUUID string) ([]string, error) {
	raw, err := c.md.GetFileInstrumentTypes(ctx, fileUUID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		out = append(out, instrumentTypeVocab[t])
	}
	return out, nil
}

func affiliation(site *model.Site) []string {
	out := []string{"CLOUDNET"}
	if site.HasType(model.SiteTypeARM) {
		out = append(out, "ARM")
	}
	if site.HasType(model.SiteTypeCloudnet) {
		out = append(out, "ACTRIS")
	}
	return out
}

func compliance(measurementDate time.Time) string {
	if measurementDate.Before(actrisLegacyCutoff) {
		return "ACTRIS legacy"
	}
	return "ACTRIS associated"
}

func qcOutcome(level model.ErrorLevel) string {
	if v, ok := qcOutcomeVocab[level]; ok {
		return v
	}
	return qcOutcomeUnknown
}

func fileSizeMB(size int64) float64 {
	mb := float64(size) / 1000 / 1000
	return math.Round(mb*1000) / 1000
}
