package dvas

import (
	"testing"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

func TestCompliance(t *testing.T) {
	tests := []struct {
		date     string
		expected string
	}{
		{"2023-04-24", "ACTRIS legacy"},
		{"2023-04-25", "ACTRIS associated"},
		{"2023-04-26", "ACTRIS associated"},
		{"2010-01-01", "ACTRIS legacy"},
	}
	for _, test := range tests {
		d, err := time.Parse("2006-01-02", test.date)
		if err != nil {
			t.Fatalf("bad fixture date %s: %v", test.date, err)
		}
		if got := compliance(d); got != test.expected {
			t.Errorf("compliance(%s) = %s, want %s", test.date, got, test.expected)
		}
	}
}

func TestQcOutcome(t *testing.T) {
	tests := []struct {
		level    model.ErrorLevel
		expected string
	}{
		{model.ErrorLevelPass, "1 - Good"},
		{model.ErrorLevelInfo, "3 - Questionable/suspect"},
		{model.ErrorLevelWarning, "3 - Questionable/suspect"},
		{model.ErrorLevelError, "4 - Bad"},
		{model.ErrorLevel("unknown"), qcOutcomeUnknown},
		{model.ErrorLevel(""), qcOutcomeUnknown},
	}
	for _, test := range tests {
		if got := qcOutcome(test.level); got != test.expected {
			t.Errorf("qcOutcome(%q) = %s, want %s", test.level, got, test.expected)
		}
	}
}

func TestAffiliation(t *testing.T) {
	tests := []struct {
		name  string
		types []model.SiteType
		want  []string
	}{
		{"plain cloudnet", []model.SiteType{model.SiteTypeCloudnet}, []string{"CLOUDNET", "ACTRIS"}},
		{"arm only", []model.SiteType{model.SiteTypeARM}, []string{"CLOUDNET", "ARM"}},
		{"both", []model.SiteType{model.SiteTypeARM, model.SiteTypeCloudnet}, []string{"CLOUDNET", "ARM", "ACTRIS"}},
		{"neither", []model.SiteType{model.SiteTypeHidden}, []string{"CLOUDNET"}},
	}
	for _, test := range tests {
		site := &model.Site{Types: test.types}
		got := affiliation(site)
		if len(got) != len(test.want) {
			t.Fatalf("%s: affiliation() = %v, want %v", test.name, got, test.want)
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("%s: affiliation()[%d] = %s, want %s", test.name, i, got[i], test.want[i])
			}
		}
	}
}

func TestFileSizeMB(t *testing.T) {
	tests := []struct {
		size int64
		want float64
	}{
		{1_000_000, 1},
		{1_234_567, 1.235},
		{0, 0},
		{500_000, 0.5},
	}
	for _, test := range tests {
		if got := fileSizeMB(test.size); got != test.want {
			t.Errorf("fileSizeMB(%d) = %v, want %v", test.size, got, test.want)
		}
	}
}
