// Package dedupe implements the rule-based duplicate-detection engine: pure,
// deterministic scoring of complaint pairs across three independent passes
// (text, location, temporal) merged into a weighted confidence score. It is
// intentionally small and dependency-free; persistence and candidate
// selection live with the caller, so the engine stays trivially testable.
//
// Scoring model:
//   - text:     0.4*titleLevenshtein + 0.4*descriptionLevenshtein + 0.2*keywordJaccard,
//     kept only when > 0.5
//   - location: Haversine distance bucketed (≤0.05km→1.0 … ≤1.0km→0.25)
//   - temporal: day gap bucketed (≤1d→1.0, ≤3d→0.8, ≤7d→0.5)
//   - merge:    0.4*text + 0.4*location + 0.2*temporal over the union of
//     candidates; passes that did not fire contribute 0
package dedupe

import (
	"math"
	"sort"
	"time"
)

// Confidence labels over the merged score.
const (
	ConfidenceVeryHigh = "very_high"
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
)

// Candidate is the slice of complaint state the engine needs for scoring.
type Candidate struct {
	ID           string
	Title        string
	Description  string
	LocationText string
	Latitude     *float64
	Longitude    *float64
	SubmittedAt  time.Time
}

// Match is one scored pair: subject complaint → candidate.
type Match struct {
	SimilarComplaintID string
	Score              float64
	Confidence         string

	TextScore     float64
	LocationScore float64
	TemporalScore float64
	DistanceKM    float64
	SameStreet    bool
	DaysApart     float64
}

// TemporalScore buckets the absolute day gap between two submission times.
// Gaps beyond 7 days are excluded.
func TemporalScore(a, b time.Time) (score float64, ok bool) {
	days := math.Abs(a.Sub(b).Hours()) / 24
	switch {
	case days <= 1:
		return 1.0, true
	case days <= 3:
		return 0.8, true
	case days <= 7:
		return 0.5, true
	default:
		return 0, false
	}
}

// Confidence labels a merged score.
func Confidence(score float64) string {
	switch {
	case score >= 0.85:
		return ConfidenceVeryHigh
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Score runs the three passes for one subject against the given candidate
// pools and merges the union. The pools correspond to the three candidate
// searches (same-category recent, geo-near, temporally-near); a candidate
// may appear in any subset of them. Results are sorted descending by score
// with candidate ID as a deterministic tie-break.
func Score(subject Candidate, textPool, locationPool, temporalPool []Candidate) []Match {
	acc := make(map[string]*Match)

	touch := func(c Candidate) *Match {
		m, ok := acc[c.ID]
		if !ok {
			m = &Match{SimilarComplaintID: c.ID}
			acc[c.ID] = m
		}
		return m
	}

	// Pass 1: text similarity, kept only above 0.5.
	for _, c := range textPool {
		if c.ID == subject.ID {
			continue
		}
		ts := TextScore(subject.Title, subject.Description, c.Title, c.Description)
		if ts <= 0.5 {
			continue
		}
		touch(c).TextScore = ts
	}

	// Pass 2: geographic proximity, both sides need coordinates.
	if subject.Latitude != nil && subject.Longitude != nil {
		for _, c := range locationPool {
			if c.ID == subject.ID || c.Latitude == nil || c.Longitude == nil {
				continue
			}
			dist := HaversineKM(*subject.Latitude, *subject.Longitude, *c.Latitude, *c.Longitude)
			ls, ok := LocationScore(dist)
			if !ok {
				continue
			}
			m := touch(c)
			m.LocationScore = ls
			m.DistanceKM = dist
			m.SameStreet = SameStreet(subject.LocationText, c.LocationText)
		}
	}

	// Pass 3: temporal proximity.
	for _, c := range temporalPool {
		if c.ID == subject.ID {
			continue
		}
		tsc, ok := TemporalScore(subject.SubmittedAt, c.SubmittedAt)
		if !ok {
			continue
		}
		m := touch(c)
		m.TemporalScore = tsc
		m.DaysApart = math.Abs(subject.SubmittedAt.Sub(c.SubmittedAt).Hours()) / 24
	}

	out := make([]Match, 0, len(acc))
	for _, m := range acc {
		m.Score = 0.4*m.TextScore + 0.4*m.LocationScore + 0.2*m.TemporalScore
		m.Confidence = Confidence(m.Score)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SimilarComplaintID < out[j].SimilarComplaintID
	})
	return out
}
