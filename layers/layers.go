package layers

import (
	"errors"
	"fmt"
	"time"

	"ecowing/models"
	"ecowing/sites"
	"ecowing/taxonomy"

	geojson "github.com/paulmach/go.geojson"
)

const (
	LayerPoints = "points"
	LayerHeat   = "heat"
	LayerSites  = "sites"
)

var ErrUnknownLayer = errors.New("unknown layer")

// HeatPoint is a [lat, lng, weight] triple for heat map renderers.
type HeatPoint [3]float64

// Points returns one GeoJSON point per report with coordinates.
func Points(reports []models.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range reports {
		r := &reports[i]
		if !r.HasCoordinates() {
			continue
		}
		f := geojson.NewPointFeature([]float64{*r.Lng, *r.Lat})
		f.ID = r.ID
		f.SetProperty("id", r.ID)
		f.SetProperty("type", r.Type)
		f.SetProperty("subType", r.SubType)
		f.SetProperty("severity", string(r.Severity))
		f.SetProperty("color", taxonomy.Color(r.Severity))
		f.SetProperty("locationName", r.LocationName)
		f.SetProperty("verified", r.Verified)
		f.SetProperty("items", r.ItemCount())
		if !r.Timestamp.IsZero() {
			f.SetProperty("timestamp", r.Timestamp.Format(time.RFC3339))
		}
		fc.AddFeature(f)
	}
	return fc
}

// Heat returns weighted points for every report with coordinates.
func Heat(reports []models.Report) []HeatPoint {
	out := make([]HeatPoint, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		if !r.HasCoordinates() {
			continue
		}
		out = append(out, HeatPoint{*r.Lat, *r.Lng, taxonomy.HeatWeight(r.Severity)})
	}
	return out
}

// HeatCollection is the GeoJSON form of Heat, with the weight as a property.
func HeatCollection(reports []models.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range Heat(reports) {
		f := geojson.NewPointFeature([]float64{p[1], p[0]})
		f.SetProperty("weight", p[2])
		fc.AddFeature(f)
	}
	return fc
}

// Sites returns site centroids. Sites without a usable centroid are skipped.
func Sites(list []sites.Site) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range list {
		s := &list[i]
		if !s.HasCoordinates() {
			continue
		}
		f := geojson.NewPointFeature([]float64{s.Lng, s.Lat})
		f.ID = s.Key
		f.SetProperty("location", s.Location)
		f.SetProperty("totalItems", s.TotalItems)
		f.SetProperty("reports", s.ReportCount)
		f.SetProperty("severity", string(s.Severity))
		f.SetProperty("color", taxonomy.Color(s.Severity))
		fc.AddFeature(f)
	}
	return fc
}

// Build dispatches on the layer name.
func Build(layer string, reports []models.Report, siteLimit int) (*geojson.FeatureCollection, error) {
	switch layer {
	case LayerPoints:
		return Points(reports), nil
	case LayerHeat:
		return HeatCollection(reports), nil
	case LayerSites:
		return Sites(sites.Rank(sites.Aggregate(reports), siteLimit)), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownLayer, layer)
	}
}
