package geocode

import (
	"context"
	"math"
	"time"

	"ecowing/metrics"

	"github.com/apex/log"
)

// CacheGridSize is the grid size in meters for coordinate rounding (100m)
const CacheGridSize = 100.0

// CacheStore persists addresses per grid cell.
type CacheStore interface {
	CachedAddress(ctx context.Context, latGrid, lngGrid float64) (string, bool, error)
	CacheAddress(ctx context.Context, latGrid, lngGrid float64, address string, ttl time.Duration) error
}

// CachedGeocoder wraps a Geocoder with a grid-keyed database cache.
type CachedGeocoder struct {
	geocoder Geocoder
	store    CacheStore
	ttl      time.Duration
}

func NewCachedGeocoder(g Geocoder, store CacheStore, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{geocoder: g, store: store, ttl: ttl}
}

// roundToGrid rounds a coordinate to the cache grid size so nearby lookups
// share a row.
func roundToGrid(coord float64) float64 {
	// 1 degree is roughly 111,320 meters at the equator
	metersPerDegree := 111320.0
	gridDegrees := CacheGridSize / metersPerDegree
	return math.Round(coord/gridDegrees) * gridDegrees
}

func (c *CachedGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	latGrid, lngGrid := roundToGrid(lat), roundToGrid(lng)

	addr, ok, err := c.store.CachedAddress(ctx, latGrid, lngGrid)
	if err != nil {
		log.WithError(err).Warn("geocode cache read failed")
	}
	if ok {
		metrics.GeocodeCacheLookups.WithLabelValues("hit").Inc()
		return addr, nil
	}
	metrics.GeocodeCacheLookups.WithLabelValues("miss").Inc()

	addr, err = c.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if addr != UnknownLocation {
		if err := c.store.CacheAddress(ctx, latGrid, lngGrid, addr, c.ttl); err != nil {
			log.WithError(err).Warn("geocode cache write failed")
		}
	}
	return addr, nil
}
