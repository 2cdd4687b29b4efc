package processor

import "regexp"

// matchRegexp compiles an instrument include/exclude pattern (e.g.
// `zen.*\.lv1$`) and reports whether it matches name anywhere.
func matchRegexp(pattern, name string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(name), nil
}
