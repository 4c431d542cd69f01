package dedupe

import (
	"math"
	"strings"
)

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance in kilometers between two
// WGS84 coordinates.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// LocationScore buckets a distance in kilometers into the location sub-score.
// Candidates beyond 1km are excluded (score 0, ok=false).
func LocationScore(distanceKM float64) (score float64, ok bool) {
	switch {
	case distanceKM <= 0.05:
		return 1.0, true
	case distanceKM <= 0.1:
		return 0.9, true
	case distanceKM <= 0.25:
		return 0.75, true
	case distanceKM <= 0.5:
		return 0.5, true
	case distanceKM <= 1.0:
		return 0.25, true
	default:
		return 0, false
	}
}

// streetSuffixes are stripped before the same-street containment check.
var streetSuffixes = []string{
	"street", "st.", "avenue", "ave.", "road", "rd.", "boulevard", "blvd.",
	"drive", "dr.", "lane", "ln.", "highway", "hwy.", "barangay", "brgy.",
}

// SameStreet is a heuristic: after lowercasing and stripping common street
// suffix words, one location text containing the other counts as the same
// street. Recorded as a factor only; it never feeds the score directly.
func SameStreet(locA, locB string) bool {
	a := stripStreetWords(locA)
	b := stripStreetWords(locB)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func stripStreetWords(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		skip := false
		for _, suf := range streetSuffixes {
			if f == suf || f == strings.TrimSuffix(suf, ".") {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
