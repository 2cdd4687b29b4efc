package metadata

import (
	"testing"
	"time"
)

func TestFileQueryToParams(t *testing.T) {
	date := time.Date(2020, 10, 22, 0, 0, 0, 0, time.UTC)
	released := time.Date(2020, 10, 1, 6, 30, 0, 0, time.UTC)
	volatile := true
	q := FileQuery{
		Site:           "bucharest",
		Date:           &date,
		Product:        "radar",
		Volatile:       &volatile,
		AllModels:      true,
		ReleasedBefore: &released,
	}
	p := q.toParams()
	want := map[string]string{
		"site":           "bucharest",
		"date":           "2020-10-22",
		"product":        "radar",
		"volatile":       "true",
		"allModels":      "true",
		"releasedBefore": "2020-10-01T06:30:00Z",
	}
	if len(p) != len(want) {
		t.Errorf("toParams() has %d keys, want %d: %v", len(p), len(want), p)
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("toParams()[%s] = %q, want %q", k, p[k], v)
		}
	}
}

func TestFileQueryOmitsZeroFields(t *testing.T) {
	if p := (FileQuery{}).toParams(); len(p) != 0 {
		t.Errorf("empty query should produce no params, got %v", p)
	}
}

func TestWireProductFileToModel(t *testing.T) {
	w := wireProductFile{
		UUID:            "a5d1d5a4-5e8a-4ae6-8a10-cfbbbf9dbdbb",
		Filename:        "20201022_bucharest_radar_abcd1234.nc",
		Checksum:        "deadbeef",
		Size:            1234,
		MeasurementDate: "2020-10-22",
		Site:            "bucharest",
		Product:         "radar",
		Volatile:        true,
		SourceFileIDs:   []string{"0c7a0a1c-0000-0000-0000-000000000001"},
	}
	pf, err := w.toModel()
	if err != nil {
		t.Fatalf("toModel() error: %v", err)
	}
	if pf.Frozen() {
		t.Error("volatile file without pid must not be frozen")
	}
	if pf.MeasurementDate.Format("2006-01-02") != "2020-10-22" {
		t.Errorf("measurement date = %v", pf.MeasurementDate)
	}
	if len(pf.SourceFileUUIDs) != 1 {
		t.Errorf("source uuids = %v, want one entry", pf.SourceFileUUIDs)
	}
}

func TestWireProductFileRejectsBadUUID(t *testing.T) {
	w := wireProductFile{UUID: "not-a-uuid", MeasurementDate: "2020-10-22"}
	if _, err := w.toModel(); err == nil {
		t.Error("toModel() should reject an unparsable uuid")
	}
}
