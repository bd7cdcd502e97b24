package sites

import (
	"math"
	"strings"

	"ecowing/models"
)

// DefaultThreshold is the per-axis proximity bound in degrees (about 1km).
const DefaultThreshold = 0.01

// Matcher decides whether a report belongs to an existing site.
type Matcher struct {
	Threshold float64
}

// DefaultMatcher uses DefaultThreshold.
var DefaultMatcher = Matcher{Threshold: DefaultThreshold}

// effectiveCoord is the coordinate used for proximity checks. A missing
// coordinate counts as 0, so reports without a position sit at (0,0) and can
// match each other.
func effectiveCoord(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func reportCoord(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// namesOverlap is a case-insensitive substring test in either direction.
// An empty name is a substring of everything.
func namesOverlap(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func (m Matcher) near(r *models.Report, s *Site) bool {
	latDiff := math.Abs(effectiveCoord(s.Lat) - effectiveCoord(reportCoord(r.Lat)))
	lngDiff := math.Abs(effectiveCoord(s.Lng) - effectiveCoord(reportCoord(r.Lng)))
	return latDiff < m.Threshold && lngDiff < m.Threshold
}

// Matches reports whether r belongs to s by name or by proximity.
func (m Matcher) Matches(r *models.Report, s *Site) bool {
	return namesOverlap(s.Location, r.LocationName) || m.near(r, s)
}

// Match scans sites in insertion order and returns the first matching key.
func (m Matcher) Match(r *models.Report, sites *SiteMap) (string, bool) {
	for _, k := range sites.keys {
		if m.Matches(r, sites.sites[k]) {
			return k, true
		}
	}
	return "", false
}
