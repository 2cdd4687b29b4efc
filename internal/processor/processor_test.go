package processor_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/processor"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad fixture date %s: %v", s, err)
	}
	return d
}

func TestSynthesizeFilenameInstrument(t *testing.T) {
	date := mustDate(t, "2020-10-22")
	instUUID := uuid.MustParse("aabbccdd-0000-0000-0000-000000000000")
	params := model.InstrumentParams{
		ProductRef: &model.Product{ID: "radar"},
		Instrument: &model.Instrument{UUID: instUUID},
	}
	got := processor.SynthesizeFilename(date, "bucharest", params)
	want := "20201022_bucharest_radar_aabbccdd.nc"
	if got != want {
		t.Errorf("SynthesizeFilename() = %s, want %s", got, want)
	}
}

func TestSynthesizeFilenameModel(t *testing.T) {
	date := mustDate(t, "2020-10-22")
	params := model.ModelParams{ModelID: "ecmwf"}
	got := processor.SynthesizeFilename(date, "bucharest", params)
	want := "20201022_bucharest_ecmwf.nc"
	if got != want {
		t.Errorf("SynthesizeFilename() = %s, want %s", got, want)
	}
}

func TestSynthesizeFilenameProductAliases(t *testing.T) {
	tests := []struct {
		product string
		want    string
	}{
		{"iwc", "20201022_bucharest_iwc-Z-T-method.nc"},
		{"lwc", "20201022_bucharest_lwc-scaled-adiabatic.nc"},
		{"classification", "20201022_bucharest_classification.nc"},
	}
	date := mustDate(t, "2020-10-22")
	for _, test := range tests {
		params := model.ProductParams{ProductRef: &model.Product{ID: test.product}}
		got := processor.SynthesizeFilename(date, "bucharest", params)
		if got != test.want {
			t.Errorf("SynthesizeFilename(%s) = %s, want %s", test.product, got, test.want)
		}
	}
}

func TestSelectInstrumentPrefersNominal(t *testing.T) {
	nominal := &model.Instrument{UUID: uuid.New(), Type: "rpg-fmcw-94"}
	other := &model.Instrument{UUID: uuid.New(), Type: "mira-35"}
	candidates := []*model.Instrument{other, nominal}
	got := processor.SelectInstrument(candidates, nominal, []string{"mira-35", "rpg-fmcw-94"})
	if got != nominal {
		t.Errorf("SelectInstrument() = %v, want nominal %v", got, nominal)
	}
}

func TestSelectInstrumentFallsBackToPreferenceOrder(t *testing.T) {
	mira35 := &model.Instrument{UUID: uuid.New(), Type: "mira-35"}
	rpg94 := &model.Instrument{UUID: uuid.New(), Type: "rpg-fmcw-94"}
	candidates := []*model.Instrument{rpg94, mira35}
	got := processor.SelectInstrument(candidates, nil, []string{"mira-35", "rpg-fmcw-35", "rpg-fmcw-94", "copernicus"})
	if got != mira35 {
		t.Errorf("SelectInstrument() = %v, want preference-order winner %v", got, mira35)
	}
}

func TestSelectInstrumentNoCandidates(t *testing.T) {
	got := processor.SelectInstrument(nil, nil, []string{"mira-35"})
	if got != nil {
		t.Errorf("SelectInstrument(empty) = %v, want nil", got)
	}
}
