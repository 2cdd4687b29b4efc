// Package ncdiff implements the three-valued comparison between an
// existing product file and a freshly produced one: NONE keeps the
// existing file, MINOR patches it in place, MAJOR produces a new
// volatile version. Comparison is float-tolerant, treats all-masked
// arrays as equal, and skips attributes that change on every run. An
// xxhash pre-check lets byte-identical variable buffers short-circuit
// the float-tolerant compare.
package ncdiff

import (
	"math"
	"sort"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// Result is the outcome of comparing two NetCDF files.
type Result string

const (
	// None means every dimension, variable, and attribute (modulo the
	// ignored set) is equal: the new file is discarded.
	None Result = "NONE"
	// Minor means differences are confined to metadata that doesn't
	// change scientific content: the existing file is patched in place.
	Minor Result = "MINOR"
	// Major means anything else: a new volatile version is produced.
	Major Result = "MAJOR"
)

// rtol is the relative tolerance applied to floating-point variable
// comparisons.
const rtol = 1e-4

// ignoredGlobalAttrs never participate in scientific-content comparison:
// they change on every run (history, provenance ids) without the data
// itself changing.
var ignoredGlobalAttrs = map[string]bool{
	"history":   true,
	"file_uuid": true,
	"pid":       true,
}

// minorOnlyGlobalAttrs are attributes whose change alone downgrades a
// would-be MAJOR result to MINOR: they describe provenance, not content.
var minorOnlyGlobalAttrs = map[string]bool{
	"source_file_uuids": true,
}

func isVersionAttr(name string) bool { return strings.HasSuffix(name, "_version") }

// Variable is one netCDF variable's comparable content.
type Variable struct {
	Values     []float64
	Mask       []bool // nil if the variable carries no mask
	Dtype      string
	Dimensions []string
	Attrs      map[string]interface{}
}

// File is the minimal surface ncdiff needs over a netCDF dataset. The
// concrete reader is supplied by the scientific boundary.
type File interface {
	Dimensions() map[string]int
	GlobalAttrs() map[string]string
	Variables() map[string]Variable
}

// ignoreVariables are excluded from comparison entirely: beta_smooth is
// a derived display quantity that legitimately differs run to run.
var ignoreVariables = map[string]bool{"beta_smooth": true}

// Diff classifies the difference between old and new. A nil old is
// treated as MAJOR (nothing to compare against, so no shortcut applies).
func Diff(old, new File) Result {
	if old == nil {
		return Major
	}

	major := false
	minor := false

	if !equalDimensions(old.Dimensions(), new.Dimensions()) {
		major = true
	}

	switch attrDiff(old.GlobalAttrs(), new.GlobalAttrs()) {
	case Major:
		major = true
	case Minor:
		minor = true
	}

	switch variableDiff(old.Variables(), new.Variables()) {
	case Major:
		major = true
	case Minor:
		minor = true
	}

	switch {
	case major:
		return Major
	case minor:
		return Minor
	default:
		return None
	}
}

func equalDimensions(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func attrDiff(a, b map[string]string) Result {
	keys := map[string]bool{}
	for k := range a {
		if !ignoredGlobalAttrs[k] && !isVersionAttr(k) {
			keys[k] = true
		}
	}
	for k := range b {
		if !ignoredGlobalAttrs[k] && !isVersionAttr(k) {
			keys[k] = true
		}
	}

	result := None
	for k := range keys {
		v1, ok1 := a[k]
		v2, ok2 := b[k]
		equal := ok1 == ok2 && attrEqual(k, v1, v2)
		if equal {
			continue
		}
		if minorOnlyGlobalAttrs[k] {
			if result == None {
				result = Minor
			}
			continue
		}
		return Major
	}
	return result
}

func attrEqual(name, v1, v2 string) bool {
	if name == "source_file_uuids" {
		return sameUnorderedSet(v1, v2)
	}
	return v1 == v2
}

func sameUnorderedSet(a, b string) bool {
	as := splitSortedNonEmpty(a)
	bs := splitSortedNonEmpty(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func splitSortedNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}

func variableDiff(a, b map[string]Variable) Result {
	names := map[string]bool{}
	for n := range a {
		if !ignoreVariables[n] {
			names[n] = true
		}
	}
	for n := range b {
		if !ignoreVariables[n] {
			names[n] = true
		}
	}

	for n := range names {
		v1, ok1 := a[n]
		v2, ok2 := b[n]
		if ok1 != ok2 {
			return Major
		}
		if !ok1 {
			continue
		}
		if !equalVariable(v1, v2) {
			return Major
		}
	}
	return None
}

func equalVariable(v1, v2 Variable) bool {
	if v1.Dtype != v2.Dtype || !equalStrings(v1.Dimensions, v2.Dimensions) {
		return false
	}
	if len(v1.Values) != len(v2.Values) {
		return false
	}

	// A fully masked variable carries no data: treat both sides as
	// equal without inspecting the (meaningless) underlying values.
	if allMasked(v1.Mask) && allMasked(v2.Mask) {
		return true
	}

	// Fast path: byte-identical buffers hash equal, which implies
	// element-wise equality tighter than the rtol check below needs.
	if hashFloats(v1.Values) != hashFloats(v2.Values) {
		for i := range v1.Values {
			if !closeEnough(v1.Values[i], v2.Values[i]) {
				return false
			}
		}
	}
	return equalMask(v1.Mask, v2.Mask) && equalAttrs(v1.Attrs, v2.Attrs)
}

func hashFloats(v []float64) uint64 {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		bits := math.Float64bits(f)
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(bits >> (8 * j))
		}
	}
	return xxhash.Checksum64(buf)
}

func closeEnough(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	diff := math.Abs(a - b)
	return diff <= rtol*math.Abs(b)
}

func allMasked(mask []bool) bool {
	if len(mask) == 0 {
		return false
	}
	for _, m := range mask {
		if !m {
			return false
		}
	}
	return true
}

func equalMask(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalAttrs(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v1 := range a {
		v2, ok := b[k]
		if !ok {
			return false
		}
		// _FillValue is allowed to change across library versions.
		if k == "_FillValue" {
			continue
		}
		if v1 != v2 {
			return false
		}
	}
	return true
}
