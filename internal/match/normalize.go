// Package match resolves ERCOT substation names against power plant names using a
// prefix, containment, and sequence-similarity ladder.
package match

import "strings"

// DefaultSuffixes are the resource-type suffixes ERCOT appends to substation names.
// BESS precedes ESS so that "SOUTH_BESS" cleans to "SOUTH".
var DefaultSuffixes = []string{"BESS", "ESS", "SOLAR", "SLR", "WIND", "WND"}

// NormalizeFacilityName uppercases the name and drops every character outside [A-Z0-9].
func NormalizeFacilityName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanSubstation removes underscores and strips each suffix, in order, when the
// name keeps more than two characters after stripping it. The result is uppercased.
func CleanSubstation(name string, suffixes []string) string {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	for _, suffix := range suffixes {
		suffix = strings.ToUpper(suffix)
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix)+2 {
			s = s[:len(s)-len(suffix)]
		}
	}
	return s
}
