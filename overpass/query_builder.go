package overpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/paulmach/osm"
)

// Per-shape timeouts. The same value is sent to Overpass as the [timeout:N] hint and used for the HTTP request.
const (
	BoundsTimeout          = 25 * time.Second
	BoundsRelationsTimeout = 35 * time.Second
	RadiusTimeout          = 15 * time.Second
	RingTimeout            = 20 * time.Second
)

// Query is a built Overpass QL query
type Query struct {
	Text    string
	Timeout time.Duration
	// CenterMode is set when the query asks for "out center", so the upstream already supplies a position for ways and relations
	CenterMode bool
}

type QueryOptions struct {
	// IncludeRelations adds relations (with full member geometry) to bounding-box queries
	IncludeRelations bool
}

// BuildQuery translates a spatial query into Overpass QL
func BuildQuery(q tourmap.SpatialQuery, options QueryOptions) (*Query, errorsx.Error) {
	err := q.Validate()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	switch query := q.(type) {
	case tourmap.TileQuery:
		return buildBoundsQuery(query.Area(), options.IncludeRelations), nil
	case tourmap.BoundsQuery:
		return buildBoundsQuery(query.Bounds, options.IncludeRelations), nil
	case tourmap.RadiusQuery:
		return buildRadiusQuery(query), nil
	case tourmap.RingQuery:
		return buildRingQuery(query), nil
	default:
		return nil, errorsx.Errorf("unsupported query type: %T", q)
	}
}

func header(timeout time.Duration) string {
	return fmt.Sprintf("[out:json][timeout:%d];\n", int(timeout.Seconds()))
}

func bboxFilter(bounds osm.Bounds) string {
	return fmt.Sprintf("(%.6f,%.6f,%.6f,%.6f)", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)
}

func buildBoundsQuery(bounds osm.Bounds, includeRelations bool) *Query {
	timeout := BoundsTimeout
	if includeRelations {
		timeout = BoundsRelationsTimeout
	}

	filter := bboxFilter(bounds)

	sb := new(strings.Builder)
	sb.WriteString(header(timeout))
	sb.WriteString("(\n")
	sb.WriteString("  node" + filter + ";\n")
	sb.WriteString("  way" + filter + ";\n")
	sb.WriteString(");\n")
	sb.WriteString("out body;\n")
	sb.WriteString(">;\n")
	sb.WriteString("out skel qt;")

	if includeRelations {
		sb.WriteString("\nrelation" + filter + ";\n")
		sb.WriteString("out geom;")
	}

	return &Query{
		Text:    sb.String(),
		Timeout: timeout,
	}
}

// aroundSet selects the tagged nodes, and all ways and relations, within radiusMetres of a point
func aroundSet(lat, lng float64, radiusMetres int) string {
	filter := fmt.Sprintf("(around:%d,%.6f,%.6f)", radiusMetres, lat, lng)

	return "(\n" +
		"  node" + filter + "(if:count_tags() > 0);\n" +
		"  way" + filter + ";\n" +
		"  relation" + filter + ";\n" +
		")"
}

func buildRadiusQuery(q tourmap.RadiusQuery) *Query {
	text := header(RadiusTimeout) +
		aroundSet(q.Lat, q.Lng, tourmap.RoundMetres(q.RadiusMetres)) + ";\n" +
		"out center;"

	return &Query{
		Text:       text,
		Timeout:    RadiusTimeout,
		CenterMode: true,
	}
}

// buildRingQuery fetches only the annulus between the two radii, as the difference of the outer and inner sets
func buildRingQuery(q tourmap.RingQuery) *Query {
	text := header(RingTimeout) +
		aroundSet(q.Lat, q.Lng, tourmap.RoundMetres(q.OuterRadiusMetres)) + "->.outer;\n" +
		aroundSet(q.Lat, q.Lng, tourmap.RoundMetres(q.InnerRadiusMetres)) + "->.inner;\n" +
		"(.outer; - .inner;);\n" +
		"out center;"

	return &Query{
		Text:       text,
		Timeout:    RingTimeout,
		CenterMode: true,
	}
}
