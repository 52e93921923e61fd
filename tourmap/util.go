package tourmap

import (
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
)

// MaxMercatorLat is the latitude at which the Web-Mercator projection, and so the slippy-map tile grid, ends
const MaxMercatorLat = 85.05112878

// MercatorWorldBounds is the area covered by slippy-map tiles
var MercatorWorldBounds = osm.Bounds{
	MinLat: -MaxMercatorLat,
	MaxLat: MaxMercatorLat,
	MinLon: -180,
	MaxLon: 180,
}

// IsTotallyInside checks whether an item is wholly inside a container
func IsTotallyInside(container osm.Bounds, item osm.Bounds) bool {
	return item.MaxLat <= container.MaxLat && item.MaxLon <= container.MaxLon && item.MinLat >= container.MinLat && item.MinLon >= container.MinLon
}

// IsInBounds tests if a point is inside a container
func IsInBounds(bounds osm.Bounds, pointLat, pointLon float64) bool {
	isInLatBounds := pointLat < bounds.MaxLat && pointLat > bounds.MinLat
	if !isInLatBounds {
		return false
	}

	isInLonBounds := pointLon < bounds.MaxLon && pointLon > bounds.MinLon
	if !isInLonBounds {
		return false
	}

	return true
}

// BoundsAroundPoint returns the box reaching delta degrees from the point in each direction
func BoundsAroundPoint(lat, lng, delta float64) osm.Bounds {
	return osm.Bounds{
		MinLat: lat - delta,
		MaxLat: lat + delta,
		MinLon: lng - delta,
		MaxLon: lng + delta,
	}
}

// BoundsForRadius approximates the circle of radiusMetres around a point by its bounding box
func BoundsForRadius(lat, lng, radiusMetres float64) osm.Bounds {
	bound := geo.NewBoundAroundPoint(orb.Point{lng, lat}, radiusMetres)

	return osm.Bounds{
		MinLat: bound.Min.Lat(),
		MaxLat: bound.Max.Lat(),
		MinLon: bound.Min.Lon(),
		MaxLon: bound.Max.Lon(),
	}
}

// ValidateCoords checks both values are in range. NaN is never in range.
func ValidateCoords(lat, lng float64) errorsx.Error {
	if !(lat >= -90 && lat <= 90) {
		return errorsx.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if !(lng >= -180 && lng <= 180) {
		return errorsx.Errorf("invalid longitude: %f (must be between -180 and 180)", lng)
	}
	return nil
}

func ValidateBounds(bounds osm.Bounds) errorsx.Error {
	err := ValidateCoords(bounds.MinLat, bounds.MinLon)
	if err != nil {
		return errorsx.Wrap(err)
	}

	err = ValidateCoords(bounds.MaxLat, bounds.MaxLon)
	if err != nil {
		return errorsx.Wrap(err)
	}

	if bounds.MinLat >= bounds.MaxLat || bounds.MinLon >= bounds.MaxLon {
		return errorsx.Errorf("bounds minimum must be below maximum, got (%f,%f,%f,%f)", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)
	}

	return nil
}
