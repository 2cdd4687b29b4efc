package ncdiff_test

import (
	"testing"

	"github.com/actris-cloudnet/cloudnet-processing/internal/ncdiff"
)

type fakeFile struct {
	dims  map[string]int
	attrs map[string]string
	vars  map[string]ncdiff.Variable
}

func (f fakeFile) Dimensions() map[string]int            { return f.dims }
func (f fakeFile) GlobalAttrs() map[string]string        { return f.attrs }
func (f fakeFile) Variables() map[string]ncdiff.Variable { return f.vars }

func baseline() fakeFile {
	return fakeFile{
		dims: map[string]int{"time": 3, "height": 2},
		attrs: map[string]string{
			"title":             "Cloudnet classification",
			"source_file_uuids": "a, b",
			"history":           "created today",
		},
		vars: map[string]ncdiff.Variable{
			"beta": {
				Values:     []float64{1.0, 2.0, 3.0},
				Dtype:      "f8",
				Dimensions: []string{"time"},
			},
		},
	}
}

func TestDiffIdenticalIsNone(t *testing.T) {
	old := baseline()
	new := baseline()
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(identical) = %s, want NONE", got)
	}
}

func TestDiffIgnoresHistoryAndProvenanceAttrs(t *testing.T) {
	old := baseline()
	new := baseline()
	new.attrs["history"] = "created today, patched later"
	new.attrs["file_uuid"] = "different-uuid"
	new.attrs["pid"] = "https://example.pid/different"
	new.attrs["cloudnetpy_version"] = "1.2.3"
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(ignored-attr-change) = %s, want NONE", got)
	}
}

func TestDiffSourceFileUuidsIsUnorderedSet(t *testing.T) {
	old := baseline()
	new := baseline()
	new.attrs["source_file_uuids"] = "b, a"
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(reordered source_file_uuids) = %s, want NONE", got)
	}
}

func TestDiffNewSourceFileUuidsIsMinor(t *testing.T) {
	old := baseline()
	new := baseline()
	new.attrs["source_file_uuids"] = "a, b, c"
	if got := ncdiff.Diff(old, new); got != ncdiff.Minor {
		t.Errorf("Diff(grown source_file_uuids) = %s, want MINOR", got)
	}
}

func TestDiffChangedTitleIsMajor(t *testing.T) {
	old := baseline()
	new := baseline()
	new.attrs["title"] = "Something else entirely"
	if got := ncdiff.Diff(old, new); got != ncdiff.Major {
		t.Errorf("Diff(changed title) = %s, want MAJOR", got)
	}
}

func TestDiffDifferentDimensionsIsMajor(t *testing.T) {
	old := baseline()
	new := baseline()
	new.dims["time"] = 4
	if got := ncdiff.Diff(old, new); got != ncdiff.Major {
		t.Errorf("Diff(changed dimension) = %s, want MAJOR", got)
	}
}

func TestDiffWithinToleranceIsNone(t *testing.T) {
	old := baseline()
	new := baseline()
	v := new.vars["beta"]
	v.Values = []float64{1.00001, 2.00002, 3.00003}
	new.vars["beta"] = v
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(within rtol) = %s, want NONE", got)
	}
}

func TestDiffOutsideToleranceIsMajor(t *testing.T) {
	old := baseline()
	new := baseline()
	v := new.vars["beta"]
	v.Values = []float64{1.0, 2.0, 30.0}
	new.vars["beta"] = v
	if got := ncdiff.Diff(old, new); got != ncdiff.Major {
		t.Errorf("Diff(outside rtol) = %s, want MAJOR", got)
	}
}

func TestDiffAllMaskedVariableIsNoneRegardlessOfValues(t *testing.T) {
	old := baseline()
	new := baseline()
	ov := old.vars["beta"]
	ov.Mask = []bool{true, true, true}
	old.vars["beta"] = ov
	nv := new.vars["beta"]
	nv.Values = []float64{99, 98, 97}
	nv.Mask = []bool{true, true, true}
	new.vars["beta"] = nv
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(all masked) = %s, want NONE", got)
	}
}

func TestDiffMissingVariableIsMajor(t *testing.T) {
	old := baseline()
	new := baseline()
	delete(new.vars, "beta")
	if got := ncdiff.Diff(old, new); got != ncdiff.Major {
		t.Errorf("Diff(missing variable) = %s, want MAJOR", got)
	}
}

func TestDiffIgnoredVariableNeverCompared(t *testing.T) {
	old := baseline()
	new := baseline()
	old.vars["beta_smooth"] = ncdiff.Variable{Values: []float64{1}}
	new.vars["beta_smooth"] = ncdiff.Variable{Values: []float64{999}}
	if got := ncdiff.Diff(old, new); got != ncdiff.None {
		t.Errorf("Diff(beta_smooth differs) = %s, want NONE", got)
	}
}

func TestDiffNilOldIsMajor(t *testing.T) {
	new := baseline()
	if got := ncdiff.Diff(nil, new); got != ncdiff.Major {
		t.Errorf("Diff(nil, new) = %s, want MAJOR", got)
	}
}
