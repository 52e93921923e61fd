package webservices

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/paulmach/osm"
)

const cacheHeader = "X-Cache"

// QueryResolver is implemented by *tilecache.Resolver
type QueryResolver interface {
	Resolve(ctx context.Context, query tourmap.SpatialQuery) (*tilecache.Result, errorsx.Error)
}

var _ QueryResolver = &tilecache.Resolver{}

type TileService struct {
	logger   *logpkg.Logger
	resolver QueryResolver
	chi.Router
}

func NewTileService(logger *logpkg.Logger, resolver QueryResolver) *TileService {
	ts := &TileService{logger, resolver, chi.NewRouter()}

	ts.Get("/", ts.handleGet)

	return ts
}

func (ts *TileService) handleGet(w http.ResponseWriter, r *http.Request) {
	query, err := parseSpatialQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, r, ts.logger, err, http.StatusBadRequest)
		return
	}

	result, err := ts.resolver.Resolve(r.Context(), query)
	if err != nil {
		writeStatusError(w, r, ts.logger, err)
		return
	}

	cacheStatus := "miss"
	if result.Hit {
		cacheStatus = "hit"
	}
	ts.logger.Debug("resolved %q (%s)", result.Key.String(), cacheStatus)

	w.Header().Set(cacheHeader, cacheStatus)
	w.Header().Set("Content-Type", "application/json")
	_, writeErr := w.Write(result.Payload)
	if writeErr != nil {
		// client went away
		ts.logger.Debug("failed to write response. Error: %s", writeErr)
	}
}

// parseSpatialQuery reads either minLat, minLng, maxLat and maxLng, or lat and lng with an optional radius and inner radius.
// Without a radius, the query is the fixed box around the point.
func parseSpatialQuery(values url.Values) (tourmap.SpatialQuery, errorsx.Error) {
	if values.Get("minLat") != "" || values.Get("minLng") != "" || values.Get("maxLat") != "" || values.Get("maxLng") != "" {
		floats, err := parseFloatParams(values, "minLat", "minLng", "maxLat", "maxLng")
		if err != nil {
			return nil, err
		}

		query := tourmap.BoundsQuery{Bounds: osm.Bounds{
			MinLat: floats[0],
			MinLon: floats[1],
			MaxLat: floats[2],
			MaxLon: floats[3],
		}}
		return query, query.Validate()
	}

	floats, err := parseFloatParams(values, "lat", "lng")
	if err != nil {
		return nil, err
	}
	lat, lng := floats[0], floats[1]

	if values.Get("radius") == "" {
		if values.Get("innerRadius") != "" {
			return nil, errorsx.Errorf("innerRadius given without radius")
		}
		query := tourmap.NewTileQuery(lat, lng)
		return query, query.Validate()
	}

	floats, err = parseFloatParams(values, "radius")
	if err != nil {
		return nil, err
	}
	radius := floats[0]

	var innerRadius float64
	if values.Get("innerRadius") != "" {
		floats, err = parseFloatParams(values, "innerRadius")
		if err != nil {
			return nil, err
		}
		innerRadius = floats[0]
		if innerRadius <= 0 {
			return nil, errorsx.Errorf("innerRadius must be positive, got %q", values.Get("innerRadius"))
		}
	}

	query := tourmap.NewAroundQuery(lat, lng, radius, innerRadius)
	return query, query.Validate()
}

func parseFloatParams(values url.Values, names ...string) ([]float64, errorsx.Error) {
	var floats []float64
	for _, name := range names {
		value := strings.TrimSpace(values.Get(name))
		if value == "" {
			return nil, errorsx.Errorf("missing query parameter %q", name)
		}

		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errorsx.Errorf("invalid query parameter %q: %q is not a number", name, value)
		}
		floats = append(floats, f)
	}

	return floats, nil
}
