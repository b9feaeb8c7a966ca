// Package match cross-references records of one collection against a
// candidate pool from another.
package match

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/matsen/pubharvest/internal/record"
)

// Strategy selects which signals contribute to a match.
type Strategy string

const (
	// Exact keeps the first candidate with the same canonical DOI.
	Exact Strategy = "exact"
	// Fuzzy keeps candidates whose title similarity reaches the threshold.
	Fuzzy Strategy = "fuzzy"
	// Comprehensive combines a year window, title similarity and DOI equality.
	Comprehensive Strategy = "comprehensive"
)

// DefaultThreshold is the title similarity threshold as a fraction.
const DefaultThreshold = 0.8

// Composite score weights for Comprehensive.
const (
	titleWeight = 50
	doiWeight   = 50
	yearWindow  = 1
)

// ParseStrategy maps a name to a Strategy. Unknown and empty names select
// Comprehensive.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Exact:
		return Exact
	case Fuzzy:
		return Fuzzy
	default:
		return Comprehensive
	}
}

// Similarity scores two titles from 0 to 100, ignoring case. The score is
// the indel ratio (total-indel)/total over runes, where indel counts the
// insertions and deletions turning one title into the other. Halves round
// to even. An absent or empty title scores 0.
func Similarity(a, b *string) int {
	if a == nil || b == nil || *a == "" || *b == "" {
		return 0
	}
	la, lb := strings.ToLower(*a), strings.ToLower(*b)
	total := utf8.RuneCountInString(la) + utf8.RuneCountInString(lb)
	indel := edlib.LCSEditDistance(la, lb)
	return int(math.RoundToEven(100 * float64(total-indel) / float64(total)))
}

// Match returns the candidates in pool that match src under strategy.
// threshold is a fraction in [0, 1]. The result is empty, never nil, when
// nothing qualifies.
func Match(src record.Record, pool []record.Record, strategy Strategy, threshold float64) []record.Candidate {
	switch strategy {
	case Exact:
		return matchExact(src, pool)
	case Fuzzy:
		return matchFuzzy(src, pool, threshold)
	default:
		return matchComprehensive(src, pool, threshold)
	}
}

func matchExact(src record.Record, pool []record.Record) []record.Candidate {
	out := []record.Candidate{}
	if src.DOI == nil {
		return out
	}
	for _, c := range pool {
		if c.DOI != nil && *c.DOI == *src.DOI {
			return append(out, record.Candidate{Record: c, Strategy: string(Exact)})
		}
	}
	return out
}

func matchFuzzy(src record.Record, pool []record.Record, threshold float64) []record.Candidate {
	out := []record.Candidate{}
	for _, c := range pool {
		sim := Similarity(src.Title, c.Title)
		if float64(sim) >= threshold*100 {
			out = append(out, record.Candidate{Record: c, Similarity: &sim, Strategy: string(Fuzzy)})
		}
	}
	return out
}

func matchComprehensive(src record.Record, pool []record.Record, threshold float64) []record.Candidate {
	out := []record.Candidate{}
	for _, c := range pool {
		if !withinYears(src.Year, c.Year) {
			continue
		}
		sim := Similarity(src.Title, c.Title)
		score := 0
		if float64(sim) >= threshold*100 {
			score += titleWeight
		}
		if src.DOI != nil && c.DOI != nil && *src.DOI == *c.DOI {
			score += doiWeight
		}
		if score == 0 {
			continue
		}
		out = append(out, record.Candidate{Record: c, Similarity: &sim, MatchScore: &score, Strategy: string(Comprehensive)})
	}
	slices.SortStableFunc(out, func(a, b record.Candidate) int {
		return *b.MatchScore - *a.MatchScore
	})
	return out
}

// withinYears reports whether both years are known and at most yearWindow
// apart. An unknown year never matches.
func withinYears(a, b *int) bool {
	if a == nil || b == nil {
		return false
	}
	d := *a - *b
	return d >= -yearWindow && d <= yearWindow
}

// MatchAll matches every source record against pool, one group per source
// record in order.
func MatchAll(srcs, pool []record.Record, strategy Strategy, threshold float64) []record.Group {
	groups := make([]record.Group, 0, len(srcs))
	for _, src := range srcs {
		groups = append(groups, record.Group{
			Source:     src,
			Candidates: Match(src, pool, strategy, threshold),
		})
	}
	return groups
}
