package sites

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"

	"gonum.org/v1/gonum/stat"
)

// Aggregator folds reports into sites.
type Aggregator struct {
	Matcher Matcher
}

// NewAggregator returns an aggregator using the default matcher.
func NewAggregator() *Aggregator {
	return &Aggregator{Matcher: DefaultMatcher}
}

// Aggregate groups reports with the default matcher.
func Aggregate(reports []models.Report) *SiteMap {
	return NewAggregator().Aggregate(reports)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// siteKey builds the key for a site seeded by r.
func siteKey(r *models.Report) string {
	name := r.LocationName
	if name == "" {
		name = unknownKeyName
	}
	return name + ":" + formatCoord(reportCoord(r.Lat)) + ":" + formatCoord(reportCoord(r.Lng))
}

func newSite(key string, r *models.Report) *Site {
	location := r.LocationName
	if location == "" {
		location = unknownLocationName
	}
	lat, lng := reportCoord(r.Lat), reportCoord(r.Lng)
	return &Site{
		Key:         key,
		Location:    location,
		Severity:    r.Severity,
		Lat:         lat,
		Lng:         lng,
		AllLat:      []float64{lat},
		AllLng:      []float64{lng},
		LastUpdated: r.Timestamp,
	}
}

// merge folds the position and timestamp of r into s. Counters are handled
// by the caller for both new and merged sites.
func (s *Site) merge(r *models.Report) {
	if r.HasCoordinates() {
		s.AllLat = append(s.AllLat, *r.Lat)
		s.AllLng = append(s.AllLng, *r.Lng)
		s.Lat = stat.Mean(s.AllLat, nil)
		s.Lng = stat.Mean(s.AllLng, nil)
	}
	if !r.Timestamp.IsZero() {
		s.LastUpdated = r.Timestamp
	}
}

func (s *Site) accumulate(r *models.Report) {
	s.TotalItems += r.ItemCount()
	s.ReportCount++
	s.Severity = taxonomy.Max(s.Severity, r.Severity)
}

// Aggregate processes reports in order. The first matching site wins, so the
// result depends on input order.
func (a *Aggregator) Aggregate(reports []models.Report) *SiteMap {
	m := newSiteMap()
	for i := range reports {
		r := &reports[i]
		key, ok := a.Matcher.Match(r, m)
		var s *Site
		if ok {
			s = m.sites[key]
			s.merge(r)
		} else {
			key = uniqueKey(m, siteKey(r))
			s = newSite(key, r)
			m.add(s)
		}
		s.accumulate(r)
	}
	return m
}

func uniqueKey(m *SiteMap, key string) string {
	if _, taken := m.sites[key]; !taken {
		return key
	}
	for n := 2; ; n++ {
		k := fmt.Sprintf("%s#%d", key, n)
		if _, taken := m.sites[k]; !taken {
			return k
		}
	}
}

// Rank returns up to limit sites sorted by TotalItems descending. Sites with
// equal totals keep their insertion order. The input is not modified.
func Rank(m *SiteMap, limit int) []Site {
	if limit <= 0 || m == nil {
		return []Site{}
	}
	list := m.List()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].TotalItems > list[j].TotalItems
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// TopSites filters, aggregates and ranks in one pass.
func TopSites(reports []models.Report, f models.Filter, limit int, now time.Time) []Site {
	return Rank(Aggregate(f.Apply(reports, now)), limit)
}
