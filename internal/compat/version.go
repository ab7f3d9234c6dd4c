package compat

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted numeric versions component by component and returns
// -1, 0 or 1. Missing components count as zero and anything after the numeric prefix of a
// component ("6-rc1", "0ubuntu1") is ignored, so "10.0" > "9.9" and "6.0" > "5.9.9".
func CompareVersions(a, b string) int {
	pa := versionTuple(a)
	pb := versionTuple(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// MajorVersion returns the leading numeric component of v.
func MajorVersion(v string) int {
	t := versionTuple(v)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

func versionTuple(v string) []int {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		digits := leadingDigits(part)
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		out = append(out, n)
		if len(digits) != len(part) {
			break
		}
	}
	return out
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
