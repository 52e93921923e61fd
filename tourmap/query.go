package tourmap

import (
	"fmt"
	"math"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/osm"
)

type QueryKind int

const (
	QueryKindUnknown QueryKind = 0
	QueryKindTile    QueryKind = 1
	QueryKindBounds  QueryKind = 2
	QueryKindRadius  QueryKind = 3
	QueryKindRing    QueryKind = 4
)

var queryKindNames = []string{
	"unknown",
	"tile",
	"bbox",
	"radius",
	"ring",
}

func (k QueryKind) String() string {
	if k < 0 || int(k) >= len(queryKindNames) {
		return queryKindNames[QueryKindUnknown]
	}
	return queryKindNames[k]
}

const (
	// DefaultTileZoom is the zoom level the fixed-delta tile queries are keyed on
	DefaultTileZoom = 17
	// TileQueryDelta is how far (in degrees) a tile query reaches from its point
	TileQueryDelta = 0.0025
)

// CacheKey is the deterministic id a query's result is stored under.
// The kind is part of the key, so keys of different query shapes can never be equal.
type CacheKey struct {
	Kind QueryKind
	id   string
}

func (k CacheKey) String() string {
	return k.id
}

func newCacheKey(kind QueryKind, format string, args ...interface{}) CacheKey {
	return CacheKey{
		Kind: kind,
		id:   kind.String() + "_" + fmt.Sprintf(format, args...),
	}
}

// SpatialQuery is one of TileQuery, BoundsQuery, RadiusQuery or RingQuery
type SpatialQuery interface {
	Kind() QueryKind
	CacheKey() CacheKey
	// Area returns the bounding box of the area the query covers
	Area() osm.Bounds
	Validate() errorsx.Error
}

var (
	_ SpatialQuery = TileQuery{}
	_ SpatialQuery = BoundsQuery{}
	_ SpatialQuery = RadiusQuery{}
	_ SpatialQuery = RingQuery{}
)

// TileQuery is a point with a fixed-delta box around it
type TileQuery struct {
	Lat, Lng float64
	Zoom     int
}

func NewTileQuery(lat, lng float64) TileQuery {
	return TileQuery{Lat: lat, Lng: lng, Zoom: DefaultTileZoom}
}

func (q TileQuery) Kind() QueryKind { return QueryKindTile }

func (q TileQuery) CacheKey() CacheKey {
	return newCacheKey(QueryKindTile, "%.5f_%.5f_z%d", roundCoord(q.Lat), roundCoord(q.Lng), q.Zoom)
}

func (q TileQuery) Area() osm.Bounds {
	return BoundsAroundPoint(q.Lat, q.Lng, TileQueryDelta)
}

func (q TileQuery) Validate() errorsx.Error {
	err := ValidateCoords(q.Lat, q.Lng)
	if err != nil {
		return errorsx.Wrap(err)
	}

	if !IsTotallyInside(MercatorWorldBounds, q.Area()) {
		return errorsx.Errorf("point (%f,%f) is too close to a pole or the antimeridian for a tile query", q.Lat, q.Lng)
	}

	return nil
}

// BoundsQuery is an explicit bounding box
type BoundsQuery struct {
	Bounds osm.Bounds
}

func (q BoundsQuery) Kind() QueryKind { return QueryKindBounds }

func (q BoundsQuery) CacheKey() CacheKey {
	return newCacheKey(
		QueryKindBounds,
		"%.5f_%.5f_%.5f_%.5f",
		roundCoord(q.Bounds.MinLat),
		roundCoord(q.Bounds.MinLon),
		roundCoord(q.Bounds.MaxLat),
		roundCoord(q.Bounds.MaxLon),
	)
}

func (q BoundsQuery) Area() osm.Bounds {
	return q.Bounds
}

func (q BoundsQuery) Validate() errorsx.Error {
	return ValidateBounds(q.Bounds)
}

// RadiusQuery is the disc of RadiusMetres around a point
type RadiusQuery struct {
	Lat, Lng     float64
	RadiusMetres float64
}

func (q RadiusQuery) Kind() QueryKind { return QueryKindRadius }

func (q RadiusQuery) CacheKey() CacheKey {
	return newCacheKey(QueryKindRadius, "%.5f_%.5f_r%d", roundCoord(q.Lat), roundCoord(q.Lng), RoundMetres(q.RadiusMetres))
}

func (q RadiusQuery) Area() osm.Bounds {
	return BoundsForRadius(q.Lat, q.Lng, q.RadiusMetres)
}

func (q RadiusQuery) Validate() errorsx.Error {
	err := ValidateCoords(q.Lat, q.Lng)
	if err != nil {
		return errorsx.Wrap(err)
	}

	if RoundMetres(q.RadiusMetres) <= 0 {
		return errorsx.Errorf("radius must be at least 1 metre, got %f", q.RadiusMetres)
	}

	return nil
}

// RingQuery is the annulus between InnerRadiusMetres and OuterRadiusMetres around a point
type RingQuery struct {
	Lat, Lng          float64
	InnerRadiusMetres float64
	OuterRadiusMetres float64
}

func (q RingQuery) Kind() QueryKind { return QueryKindRing }

func (q RingQuery) CacheKey() CacheKey {
	return newCacheKey(
		QueryKindRing,
		"%.5f_%.5f_r%d-%d",
		roundCoord(q.Lat),
		roundCoord(q.Lng),
		RoundMetres(q.InnerRadiusMetres),
		RoundMetres(q.OuterRadiusMetres),
	)
}

func (q RingQuery) Area() osm.Bounds {
	return BoundsForRadius(q.Lat, q.Lng, q.OuterRadiusMetres)
}

func (q RingQuery) Validate() errorsx.Error {
	err := ValidateCoords(q.Lat, q.Lng)
	if err != nil {
		return errorsx.Wrap(err)
	}

	inner, outer := RoundMetres(q.InnerRadiusMetres), RoundMetres(q.OuterRadiusMetres)
	if inner <= 0 {
		return errorsx.Errorf("inner radius must be at least 1 metre, got %f", q.InnerRadiusMetres)
	}

	if outer <= inner {
		return errorsx.Errorf("outer radius (%d) must be larger than inner radius (%d)", outer, inner)
	}

	return nil
}

// NewAroundQuery returns a RadiusQuery, or a RingQuery if an inner radius is given
func NewAroundQuery(lat, lng, radiusMetres, innerRadiusMetres float64) SpatialQuery {
	if innerRadiusMetres <= 0 {
		return RadiusQuery{Lat: lat, Lng: lng, RadiusMetres: radiusMetres}
	}

	return RingQuery{
		Lat:               lat,
		Lng:               lng,
		InnerRadiusMetres: innerRadiusMetres,
		OuterRadiusMetres: radiusMetres,
	}
}

// roundCoord rounds to 5 decimal places (about 1.1m), and folds -0 into 0 so it prints the same
func roundCoord(v float64) float64 {
	rounded := math.Round(v*1e5) / 1e5
	if rounded == 0 {
		return 0
	}
	return rounded
}

func RoundMetres(v float64) int {
	return int(math.Round(v))
}
