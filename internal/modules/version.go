package modules

import (
	"strconv"
	"strings"
)

// DefaultVersion is assumed for templates without a VERSION file
const DefaultVersion = "1.0.0"

// CompareVersions compares two dotted version strings part by part as
// integers. It returns a positive number when a is newer than b, zero when
// they are equal and a negative number when a is older.
//
// Missing parts count as zero ("1.2" == "1.2.0"). Non-numeric parts also
// count as zero, so pre-release suffixes ("1.0.0-rc1") are not ordered
// meaningfully.
func CompareVersions(a, b string) int {
	pa := versionParts(a)
	pb := versionParts(b)

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
		if x != y {
			if x > y {
				return 1
			}
			return -1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}

	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			n = 0
		}
		parts[i] = n
	}
	return parts
}
