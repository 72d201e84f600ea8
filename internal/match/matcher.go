package match

import (
	"strings"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Options tunes the matching ladder.
type Options struct {
	FuzzyCutoff   float64
	MinNameLength int
	Suffixes      []string
}

// DefaultOptions returns the cutoff, length floor, and suffix list used for ERCOT.
func DefaultOptions() Options {
	return Options{
		FuzzyCutoff:   0.7,
		MinNameLength: 3,
		Suffixes:      DefaultSuffixes,
	}
}

// Result is a facility chosen for a substation.
type Result struct {
	Facility model.Facility
	Method   model.MatchMethod
	Cleaned  string
	Score    float64 // similarity for fuzzy hits, 1 otherwise
}

// Matcher resolves substation names against a fixed facility table.
type Matcher struct {
	facilities []model.Facility
	opts       Options

	// norms holds each distinct non-empty normalized name once, and first maps it
	// to the position of its first facility row.
	norms []string
	first map[string]int
}

// NewMatcher indexes the facilities in source order. Facilities without a
// normalized name get one computed from Name.
func NewMatcher(facilities []model.Facility, opts Options) *Matcher {
	if opts.MinNameLength <= 0 {
		opts.MinNameLength = 3
	}
	if opts.Suffixes == nil {
		opts.Suffixes = DefaultSuffixes
	}

	m := &Matcher{
		facilities: make([]model.Facility, len(facilities)),
		opts:       opts,
		first:      make(map[string]int),
	}
	for i, f := range facilities {
		if f.NormName == "" {
			f.NormName = NormalizeFacilityName(f.Name)
		}
		m.facilities[i] = f
		if f.NormName == "" {
			continue
		}
		if _, seen := m.first[f.NormName]; !seen {
			m.first[f.NormName] = i
			m.norms = append(m.norms, f.NormName)
		}
	}
	return m
}

// Match runs prefix, contains, then fuzzy matching for one substation name.
// Within prefix and contains the first facility row in source order wins. For
// fuzzy hits the highest ratio wins, ties going to the lexicographically
// smallest normalized name and then to its first facility row.
func (m *Matcher) Match(substation string) (Result, bool) {
	cleaned := CleanSubstation(substation, m.opts.Suffixes)
	if len(cleaned) < m.opts.MinNameLength {
		return Result{}, false
	}

	for _, f := range m.facilities {
		if f.NormName != "" && strings.HasPrefix(f.NormName, cleaned) {
			return Result{Facility: f, Method: model.MatchPrefix, Cleaned: cleaned, Score: 1}, true
		}
	}

	for _, f := range m.facilities {
		if f.NormName != "" && strings.Contains(f.NormName, cleaned) {
			return Result{Facility: f, Method: model.MatchContains, Cleaned: cleaned, Score: 1}, true
		}
	}

	best, score := m.closest(cleaned)
	if best == "" {
		return Result{}, false
	}
	return Result{
		Facility: m.facilities[m.first[best]],
		Method:   model.MatchFuzzy,
		Cleaned:  cleaned,
		Score:    score,
	}, true
}

func (m *Matcher) closest(query string) (string, float64) {
	sc := newScorer(query)

	var best string
	bestScore := -1.0
	for _, name := range m.norms {
		s := sc.score(name, m.opts.FuzzyCutoff)
		if s < m.opts.FuzzyCutoff {
			continue
		}
		if s > bestScore || (s == bestScore && name < best) {
			best, bestScore = name, s
		}
	}
	return best, bestScore
}
