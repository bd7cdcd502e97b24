package service

import (
	"context"
	"fmt"
	"strings"

	"ecowing/dashboard"
	"ecowing/imaging"
	"ecowing/layers"
	"ecowing/mapaggr"
	"ecowing/models"
	"ecowing/sites"
	"ecowing/taxonomy"

	geojson "github.com/paulmach/go.geojson"
)

func (s *Service) reports(ctx context.Context) ([]models.Report, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// History returns the filtered reports in the order they were stored.
func (s *Service) History(ctx context.Context, f models.Filter) ([]models.Report, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(reports, s.now()), nil
}

// Sites ranks the filtered reports into at most limit sites. A non-positive
// limit uses the configured top sites limit.
func (s *Service) Sites(ctx context.Context, f models.Filter, limit int) ([]sites.SiteView, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.TopSitesLimit
	}
	return sites.Views(sites.TopSites(reports, f, limit, s.now())), nil
}

// Site returns the details of every report filed under location.
func (s *Service) Site(ctx context.Context, location string) (dashboard.SiteDetails, bool, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return dashboard.SiteDetails{}, false, err
	}
	d, ok := dashboard.Details(reports, location)
	return d, ok, nil
}

// SiteResolver adapts Site to the websocket hub callback.
func (s *Service) SiteResolver(ctx context.Context, location string) (interface{}, bool, error) {
	return s.Site(ctx, location)
}

func (s *Service) Dashboard(ctx context.Context, f models.Filter) (dashboard.Summary, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return dashboard.Summary{}, err
	}
	return dashboard.Summarize(reports, f, s.opts.TopSitesLimit, s.now()), nil
}

// DrillDown counts sub types of category among the filtered reports. Reports
// without a sub type are counted under unspecified.
func (s *Service) DrillDown(ctx context.Context, f models.Filter, category, unspecified string) ([]dashboard.ChartDatum, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return nil, err
	}
	return dashboard.DrillDown(f.Apply(reports, s.now()), taxonomy.NormalizeCategory(category), unspecified), nil
}

// Verify flips the verified flag and returns the updated report.
func (s *Service) Verify(ctx context.Context, id string, verified bool) (models.Report, error) {
	if err := s.store.SetVerified(ctx, id, verified); err != nil {
		return models.Report{}, err
	}
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return models.Report{}, err
	}
	s.refreshSites(ctx)
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return err
	}
	s.refreshSites(ctx)
	return nil
}

func (s *Service) refreshSites(ctx context.Context) {
	if s.broadcaster == nil {
		return
	}
	if top, err := s.Sites(ctx, models.Filter{}, s.opts.TopSitesLimit); err == nil {
		s.broadcaster.BroadcastSites(top)
	}
}

// MapLayer renders one map layer (points, heat or sites) as GeoJSON.
func (s *Service) MapLayer(ctx context.Context, layer string, f models.Filter) (*geojson.FeatureCollection, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return nil, err
	}
	return layers.Build(layer, f.Apply(reports, s.now()), s.opts.TopSitesLimit)
}

// Clusters groups the filtered reports visible in vp.
func (s *Service) Clusters(ctx context.Context, vp mapaggr.ViewPort, f models.Filter) ([]mapaggr.Cluster, error) {
	reports, err := s.reports(ctx)
	if err != nil {
		return nil, err
	}
	return mapaggr.Aggregate(f.Apply(reports, s.now()), vp), nil
}

// Annotated draws the report's detection boxes over its stored photo.
func (s *Service) Annotated(ctx context.Context, id string) ([]byte, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	data, mime, err := s.store.GetReportMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(mime, "video/") {
		return nil, ErrNotAnnotatable
	}
	out, err := imaging.Annotate(data, r.BoundingBoxes, taxonomy.Color(r.Severity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnnotatable, err)
	}
	return out, nil
}

func (s *Service) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if s.geocoder == nil {
		return unknownLocation, nil
	}
	return s.geocoder.Reverse(ctx, lat, lng)
}

func (s *Service) ExpandURL(ctx context.Context, u string) (string, error) {
	return s.resolver.Expand(ctx, u)
}

// ResolveCoordinates reads a position from a map link, expanding it first
// when the link itself carries none.
func (s *Service) ResolveCoordinates(ctx context.Context, u string) (float64, float64, error) {
	return s.resolver.ResolveCoordinates(ctx, u)
}
