package sites

import (
	"math"
	"time"

	"ecowing/taxonomy"
)

const (
	unknownKeyName      = "Unknown"
	unknownLocationName = "Unknown Location"
)

// Site is a logical location built from one or more merged reports.
// Lat and Lng are NaN when the seeding report had no coordinates.
type Site struct {
	Key         string
	Location    string
	TotalItems  int
	ReportCount int
	Severity    taxonomy.Severity
	Lat         float64
	Lng         float64
	AllLat      []float64
	AllLng      []float64
	LastUpdated time.Time
}

// SiteView is the JSON-safe projection of a Site.
type SiteView struct {
	Key         string            `json:"key"`
	Location    string            `json:"location"`
	TotalItems  int               `json:"totalItems"`
	ReportCount int               `json:"reports"`
	Severity    taxonomy.Severity `json:"severity"`
	Color       string            `json:"color"`
	Lat         *float64          `json:"lat"`
	Lng         *float64          `json:"lng"`
	LastUpdated *time.Time        `json:"lastUpdated,omitempty"`
}

func jsonCoord(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// View converts the site for rendering. NaN coordinates become null.
func (s *Site) View() SiteView {
	v := SiteView{
		Key:         s.Key,
		Location:    s.Location,
		TotalItems:  s.TotalItems,
		ReportCount: s.ReportCount,
		Severity:    s.Severity,
		Color:       taxonomy.Color(s.Severity),
		Lat:         jsonCoord(s.Lat),
		Lng:         jsonCoord(s.Lng),
	}
	if !s.LastUpdated.IsZero() {
		t := s.LastUpdated
		v.LastUpdated = &t
	}
	return v
}

// HasCoordinates is true when the site centroid is a real position.
func (s *Site) HasCoordinates() bool {
	return !math.IsNaN(s.Lat) && !math.IsNaN(s.Lng)
}

// Views converts a slice of sites.
func Views(sites []Site) []SiteView {
	out := make([]SiteView, 0, len(sites))
	for i := range sites {
		out = append(out, sites[i].View())
	}
	return out
}

// SiteMap is an insertion-ordered mapping from site key to Site.
type SiteMap struct {
	keys  []string
	sites map[string]*Site
}

func newSiteMap() *SiteMap {
	return &SiteMap{sites: make(map[string]*Site)}
}

func (m *SiteMap) add(s *Site) {
	m.keys = append(m.keys, s.Key)
	m.sites[s.Key] = s
}

// Keys returns site keys in first-seen order.
func (m *SiteMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns a copy of the site stored under key.
func (m *SiteMap) Get(key string) (Site, bool) {
	s, ok := m.sites[key]
	if !ok {
		return Site{}, false
	}
	return s.clone(), true
}

func (m *SiteMap) Len() int {
	return len(m.keys)
}

// List returns copies of all sites in first-seen order.
func (m *SiteMap) List() []Site {
	out := make([]Site, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.sites[k].clone())
	}
	return out
}

func (s *Site) clone() Site {
	c := *s
	c.AllLat = append([]float64(nil), s.AllLat...)
	c.AllLng = append([]float64(nil), s.AllLng...)
	return c
}
