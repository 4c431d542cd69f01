// Package suggest implements the rule-based department suggestion engine.
// It scores departments against a complaint's category and free text using a
// static keyword table. Output is advisory only: every suggestion carries a
// note that a human coordinator must confirm routing. It never writes.
package suggest

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/citizenlink/citizenlink-api/internal/dedupe"
)

// Suggestion is one advisory department recommendation.
type Suggestion struct {
	DepartmentCode string   `json:"department_code"`
	Label          string   `json:"label"`
	Score          float64  `json:"score"`
	MatchedTerms   []string `json:"matched_terms,omitempty"`
	Note           string   `json:"note"`
}

// AdvisoryNote is attached to every suggestion so downstream surfaces cannot
// present the hint as authoritative.
const AdvisoryNote = "advisory only - requires human confirmation"

// rule maps trigger terms to a department code. Category hits weigh more
// than free-text keyword hits.
type rule struct {
	code     string
	category []string
	keywords []string
}

var rules = []rule{
	{code: "ENG", category: []string{"roads", "infrastructure"},
		keywords: []string{"pothole", "road", "bridge", "sidewalk", "pavement", "construction", "drainage"}},
	{code: "WST", category: []string{"waste", "sanitation"},
		keywords: []string{"garbage", "trash", "waste", "dump", "litter", "collection", "smell"}},
	{code: "WTR", category: []string{"water"},
		keywords: []string{"water", "pipe", "leak", "flood", "sewer", "supply"}},
	{code: "ELC", category: []string{"electrical", "lighting"},
		keywords: []string{"streetlight", "light", "electric", "power", "wire", "lamp", "outage"}},
	{code: "HLT", category: []string{"health"},
		keywords: []string{"health", "clinic", "mosquito", "dengue", "rabies", "stray", "vaccination"}},
	{code: "PRK", category: []string{"parks", "environment"},
		keywords: []string{"park", "tree", "playground", "vandalism", "grass", "pollution"}},
	{code: "TRF", category: []string{"traffic", "transport"},
		keywords: []string{"traffic", "parking", "signal", "jeepney", "terminal", "pedestrian", "crossing"}},
	{code: "PUB", category: []string{"safety", "order"},
		keywords: []string{"noise", "curfew", "loitering", "obstruction", "vendor", "disturbance"}},
}

const (
	categoryWeight = 0.6
	keywordWeight  = 0.4
)

var titleCaser = cases.Title(language.English)

// Departments scores every rule against the complaint's category and text
// and returns suggestions sorted descending by score. Departments with no
// signal at all are omitted; an empty result means "no hint".
func Departments(category, title, description string) []Suggestion {
	category = strings.ToLower(strings.TrimSpace(category))
	kw := dedupe.Keywords(title + " " + description)

	out := make([]Suggestion, 0, len(rules))
	for _, r := range rules {
		var score float64
		var matched []string

		for _, c := range r.category {
			if c == category {
				score += categoryWeight
				matched = append(matched, c)
				break
			}
		}

		hits := 0
		for _, k := range r.keywords {
			if _, ok := kw[k]; ok {
				hits++
				matched = append(matched, k)
			}
		}
		if hits > 0 {
			// Saturate keyword contribution at three distinct hits.
			frac := float64(hits) / 3
			if frac > 1 {
				frac = 1
			}
			score += keywordWeight * frac
		}

		if score == 0 {
			continue
		}
		out = append(out, Suggestion{
			DepartmentCode: r.code,
			Label:          titleCaser.String(strings.Join(r.category, " / ")),
			Score:          score,
			MatchedTerms:   matched,
			Note:           AdvisoryNote,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DepartmentCode < out[j].DepartmentCode
	})
	return out
}

// TopCodes returns up to n department codes from Departments output, used by
// complaint creation to supplement routing when the citizen chose none.
func TopCodes(category, title, description string, n int) []string {
	sugg := Departments(category, title, description)
	if n > len(sugg) {
		n = len(sugg)
	}
	out := make([]string, 0, n)
	for _, s := range sugg[:n] {
		out = append(out, s.DepartmentCode)
	}
	return out
}
