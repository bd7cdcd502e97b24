package mapaggr

import (
	"sort"

	"ecowing/models"
	"ecowing/taxonomy"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// ViewPort is the visible map rectangle in degrees.
type ViewPort struct {
	LatMin float64 `json:"lat_min"`
	LngMin float64 `json:"lng_min"`
	LatMax float64 `json:"lat_max"`
	LngMax float64 `json:"lng_max"`
}

// Center is the midpoint of the viewport.
func (vp ViewPort) Center() (float64, float64) {
	return (vp.LatMin + vp.LatMax) / 2, (vp.LngMin + vp.LngMax) / 2
}

// Contains reports whether the point lies inside the viewport.
func (vp ViewPort) Contains(lat, lng float64) bool {
	return lat >= vp.LatMin && lat <= vp.LatMax && lng >= vp.LngMin && lng <= vp.LngMax
}

// Cluster is either a single report (Count 1, ReportID set) or a group of
// nearby reports collapsed into one pin.
type Cluster struct {
	Lat      float64           `json:"lat"`
	Lng      float64           `json:"lng"`
	Count    int64             `json:"count"`
	Items    int               `json:"items"`
	Severity taxonomy.Severity `json:"severity"`
	ReportID string            `json:"report_id,omitempty"`
}

type aggrUnit struct {
	cnt         int64
	items       int
	severity    taxonomy.Severity
	containment [4]bool // one per child cell
	pin         s2.Point
	origRes     []*models.Report
}

type aggregator struct {
	level  int
	points map[s2.CellID][]*models.Report
	aggrs  map[s2.CellID]*aggrUnit
}

const (
	expectedCells       = 16
	minLevel            = 2
	maxLevel            = 18
	minRepToAggr        = 10
	weightDiffThreshold = 8
)

// CellBaseLevel picks the s2 level at which about expectedCells cells cover
// the viewport.
func CellBaseLevel(vp ViewPort) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LngMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LngMax)

	rect := s2.Rect{
		Lat: r1.Interval{
			Lo: minLL.Lat.Radians(),
			Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{
			Lo: minLL.Lng.Radians(),
			Hi: maxLL.Lng.Radians()},
	}
	vpArea := rect.Area()

	cLat, cLng := vp.Center()
	center := s2.CellIDFromLatLng(s2.LatLngFromDegrees(cLat, cLng))

	for lv := maxLevel; lv >= minLevel; lv-- {
		cc := s2.CellFromCellID(center.Parent(lv))
		if vpArea/cc.ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel
}

func newAggregator(vp ViewPort) *aggregator {
	return &aggregator{
		level:  CellBaseLevel(vp),
		points: make(map[s2.CellID][]*models.Report),
		aggrs:  make(map[s2.CellID]*aggrUnit),
	}
}

func (a *aggregator) addReport(r *models.Report) {
	pc := s2.CellIDFromLatLng(s2.LatLngFromDegrees(*r.Lat, *r.Lng))
	parent := pc.Parent(maxLevel)
	a.points[parent] = append(a.points[parent], r)
}

func (a *aggregator) computeCentroid(pCell s2.CellID, chAggrs []*aggrUnit) s2.Point {
	fChPins := make([]s2.Point, 0)
	maxWeight := int64(0)
	for _, aggr := range chAggrs {
		if maxWeight < aggr.cnt {
			maxWeight = aggr.cnt
		}
	}
	// Children much lighter than the heaviest one do not pull the pin.
	for _, aggr := range chAggrs {
		if maxWeight/aggr.cnt < weightDiffThreshold {
			fChPins = append(fChPins, aggr.pin)
		}
	}
	switch len(fChPins) {
	case 1:
		return fChPins[0]
	case 2:
		return s2.PlanarCentroid(fChPins[0], fChPins[0], fChPins[1])
	case 3:
		return s2.PlanarCentroid(fChPins[0], fChPins[1], fChPins[2])
	}
	return s2.PointFromLatLng(pCell.LatLng())
}

func (a *aggregator) aggrStep(level int) {
	if level < a.level {
		return
	}
	nextAggrs := make(map[s2.CellID]*aggrUnit)
	for cell, unit := range a.aggrs {
		p := cell.Parent(level)
		eu, ok := nextAggrs[p]
		if !ok {
			nextAggrs[p] = &aggrUnit{
				cnt:      unit.cnt,
				items:    unit.items,
				severity: unit.severity,
				origRes:  unit.origRes,
			}
		} else {
			nextAggrs[p] = &aggrUnit{
				cnt:         eu.cnt + unit.cnt,
				items:       eu.items + unit.items,
				severity:    taxonomy.Max(eu.severity, unit.severity),
				containment: eu.containment,
			}
			if eu.cnt+unit.cnt <= minRepToAggr {
				nextAggrs[p].origRes = append(append([]*models.Report(nil), eu.origRes...), unit.origRes...)
			}
		}
		nextAggrs[p].containment[cell.ChildPosition(level+1)] = true
	}
	for pCell, pUnit := range nextAggrs {
		chAggrs := make([]*aggrUnit, 0)
		for i, v := range pUnit.containment {
			if v {
				chCell := pCell.Children()[i]
				if chAggr, ok := a.aggrs[chCell]; ok {
					chAggrs = append(chAggrs, chAggr)
				}
			}
		}
		pUnit.pin = a.computeCentroid(pCell, chAggrs)
	}
	a.aggrs = nextAggrs
	a.aggrStep(level - 1)
}

func (a *aggregator) aggregate() {
	for cell, pts := range a.points {
		unit := &aggrUnit{
			cnt:         int64(len(pts)),
			containment: [4]bool{true, true, true, true},
			pin:         s2.PointFromLatLng(cell.LatLng()),
		}
		for _, r := range pts {
			unit.items += r.ItemCount()
			unit.severity = taxonomy.Max(unit.severity, r.Severity)
		}
		if len(pts) <= minRepToAggr {
			unit.origRes = pts
		}
		a.aggrs[cell] = unit
	}
	a.aggrStep(maxLevel - 1)
}

func (a *aggregator) toArray() []Cluster {
	a.aggregate()
	r := make([]Cluster, 0, len(a.aggrs))
	for _, unit := range a.aggrs {
		if unit.cnt <= minRepToAggr {
			for _, rep := range unit.origRes {
				r = append(r, Cluster{
					Lat:      *rep.Lat,
					Lng:      *rep.Lng,
					Count:    1,
					Items:    rep.ItemCount(),
					Severity: rep.Severity,
					ReportID: rep.ID,
				})
			}
			continue
		}
		ll := s2.LatLngFromPoint(unit.pin)
		r = append(r, Cluster{
			Lat:      ll.Lat.Degrees(),
			Lng:      ll.Lng.Degrees(),
			Count:    unit.cnt,
			Items:    unit.items,
			Severity: unit.severity,
		})
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].Lat != r[j].Lat {
			return r[i].Lat < r[j].Lat
		}
		if r[i].Lng != r[j].Lng {
			return r[i].Lng < r[j].Lng
		}
		return r[i].ReportID < r[j].ReportID
	})
	return r
}

// Aggregate clusters the reports visible in vp. Reports without coordinates
// are ignored. Cells holding more than minRepToAggr reports collapse into a
// single pin.
func Aggregate(reports []models.Report, vp ViewPort) []Cluster {
	a := newAggregator(vp)
	for i := range reports {
		r := &reports[i]
		if !r.HasCoordinates() || !vp.Contains(*r.Lat, *r.Lng) {
			continue
		}
		a.addReport(r)
	}
	return a.toArray()
}
