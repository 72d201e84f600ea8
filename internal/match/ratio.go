package match

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns the sequence similarity of a and b in [0, 1], computed as
// 2*M/T over characters where M is the number of matched characters and T the
// combined length.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

func chars(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

// scorer ranks many candidates against one query. The query is held as the
// second sequence so its index is built once.
type scorer struct {
	m *difflib.SequenceMatcher
}

func newScorer(query string) *scorer {
	return &scorer{m: difflib.NewMatcher(nil, chars(query))}
}

// score returns the ratio of candidate against the query, or -1 when the cheap
// upper bounds already rule it out below cutoff.
func (s *scorer) score(candidate string, cutoff float64) float64 {
	s.m.SetSeq1(chars(candidate))
	if s.m.RealQuickRatio() < cutoff || s.m.QuickRatio() < cutoff {
		return -1
	}
	return s.m.Ratio()
}
