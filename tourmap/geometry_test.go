package tourmap

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 {
	return &f
}

func TestLatLngToTile_roundTrip(t *testing.T) {
	type args struct {
		lat, lng float64
		zoom     int
	}
	tests := []struct {
		name string
		args args
	}{
		{"zurich at zoom 17", args{47.3769, 8.5417, 17}},
		{"london at zoom 12", args{51.5007, -0.1246, 12}},
		{"sydney at zoom 15", args{-33.8568, 151.2153, 15}},
		{"rio at zoom 3", args{-22.9519, -43.2105, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := LatLngToTile(tt.args.lat, tt.args.lng, tt.args.zoom)
			bounds := TileBounds(x, y, tt.args.zoom)

			assert.True(t, IsInBounds(bounds, tt.args.lat, tt.args.lng), "bounds %#v should contain the point", bounds)
		})
	}
}

func TestLatLngToTile(t *testing.T) {
	x, y := LatLngToTile(10, 10, 0)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)

	x, y = LatLngToTile(0.0001, 0.0001, 1)
	assert.Equal(t, 1, x)
	assert.Equal(t, 0, y)
}

func TestLatLngToTile_outsideTileGrid(t *testing.T) {
	zoom := 17
	last := 1<<uint(zoom) - 1

	tests := []struct {
		name     string
		lat, lng float64
		wantX    int
		wantY    int
	}{
		{"north pole", 90, 0, 1 << uint(zoom-1), 0},
		{"south pole", -90, 0, 1 << uint(zoom-1), last},
		{"antimeridian east", 0, 180, last, 1 << uint(zoom-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := LatLngToTile(tt.lat, tt.lng, zoom)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestGridBounds_nearPoles(t *testing.T) {
	for _, lat := range []float64{90, 89.9, -90, -85.06} {
		grid := GridBounds(lat, 0, DefaultTileZoom, 21)

		require.NoError(t, ValidateBounds(grid))
		assert.True(t, IsTotallyInside(MercatorWorldBounds, grid), "grid %#v should stay on the tile grid", grid)
	}
}

func TestTileCorners(t *testing.T) {
	corners := TileCorners(0, 0, 0)

	assert.InDelta(t, 85.0511, corners[0][0], 0.0001)
	assert.InDelta(t, -180, corners[0][1], 0.0001)
	assert.InDelta(t, -85.0511, corners[1][0], 0.0001)
	assert.InDelta(t, 180, corners[1][1], 0.0001)
}

func TestGridBounds(t *testing.T) {
	lat, lng, zoom := 47.3769, 8.5417, 17
	x, y := LatLngToTile(lat, lng, zoom)

	single := GridBounds(lat, lng, zoom, 1)
	assert.Equal(t, TileBounds(x, y, zoom), single)

	grid := GridBounds(lat, lng, zoom, 3)
	assert.True(t, IsTotallyInside(grid, single))
	assert.Equal(t, TileBounds(x-1, y-1, zoom).MaxLat, grid.MaxLat)
	assert.Equal(t, TileBounds(x+1, y+1, zoom).MaxLon, grid.MaxLon)
}

func TestWayCenter(t *testing.T) {
	tests := []struct {
		name   string
		coords []Coord
		want   *Coord
	}{
		{
			"empty",
			nil,
			nil,
		}, {
			"single point",
			[]Coord{{Lat: 1, Lon: 2}},
			&Coord{Lat: 1, Lon: 2},
		}, {
			"three points use the mean",
			[]Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 3}, {Lat: 3, Lon: 0}},
			&Coord{Lat: 1, Lon: 1},
		}, {
			"unit square uses the polygon centroid",
			[]Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}, {Lat: 0, Lon: 0}},
			&Coord{Lat: 0.5, Lon: 0.5},
		}, {
			"open line uses the mean",
			[]Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}, {Lat: 0, Lon: 5}},
			&Coord{Lat: 0, Lon: 2},
		}, {
			"closed but flat polygon falls back to the mean",
			[]Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}, {Lat: 0, Lon: 0}},
			&Coord{Lat: 0, Lon: 0.75},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WayCenter(tt.coords)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lon, got.Lon, 1e-9)
		})
	}
}

func TestWayCenter_asymmetricPolygonDiffersFromMean(t *testing.T) {
	// an L-shaped polygon, where the vertex mean and area centroid are not the same point
	coords := []Coord{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 4},
		{Lat: 1, Lon: 4},
		{Lat: 1, Lon: 1},
		{Lat: 4, Lon: 1},
		{Lat: 4, Lon: 0},
		{Lat: 0, Lon: 0},
	}

	var ring orb.Ring
	for _, c := range coords {
		ring = append(ring, orb.Point{c.Lon, c.Lat})
	}
	expected, _ := planar.CentroidArea(orb.Polygon{ring})

	got := WayCenter(coords)
	require.NotNil(t, got)
	assert.InDelta(t, expected.Lat(), got.Lat, 1e-9)
	assert.InDelta(t, expected.Lon(), got.Lon, 1e-9)

	mean := meanOf(coords)
	assert.NotEqual(t, mean.Lat, got.Lat)
}

func TestRelationCentroid(t *testing.T) {
	t.Run("no coordinates", func(t *testing.T) {
		relation := &Element{
			ID:   1,
			Type: osm.TypeRelation,
			Members: []*Member{
				{Type: osm.TypeWay, Ref: 2, Role: "outer"},
			},
		}
		assert.Nil(t, RelationCentroid(relation))
	})

	t.Run("members with geometry and points", func(t *testing.T) {
		relation := &Element{
			ID:   1,
			Type: osm.TypeRelation,
			Members: []*Member{
				{Type: osm.TypeWay, Ref: 2, Role: "outer", Geometry: []*Coord{{Lat: 0, Lon: 0}, nil, {Lat: 2, Lon: 2}}},
				{Type: osm.TypeNode, Ref: 3, Role: "label", Lat: floatPtr(4), Lon: floatPtr(1)},
			},
		}

		got := RelationCentroid(relation)
		require.NotNil(t, got)
		assert.InDelta(t, 2, got.Lat, 1e-9)
		assert.InDelta(t, 1, got.Lon, 1e-9)
	})

	t.Run("own geometry", func(t *testing.T) {
		relation := &Element{
			ID:       1,
			Type:     osm.TypeRelation,
			Geometry: []*Coord{{Lat: 10, Lon: 20}, {Lat: 12, Lon: 22}},
		}

		got := RelationCentroid(relation)
		require.NotNil(t, got)
		assert.Equal(t, Coord{Lat: 11, Lon: 21}, *got)
	})
}

func TestMetresPerDegree(t *testing.T) {
	latMetres, lonMetres := MetresPerDegree(0)
	assert.InDelta(t, 110574, latMetres, 1)
	assert.InDelta(t, 111320, lonMetres, 1)

	latMetres, lonMetres = MetresPerDegree(60)
	assert.InDelta(t, 111412, latMetres, 1)
	assert.InDelta(t, 55800, lonMetres, 10)
}

func TestEstimateAreaM2(t *testing.T) {
	one := EstimateAreaM2(17, 47.3769, 1)
	nine := EstimateAreaM2(17, 47.3769, 9)

	// a zoom 17 tile is roughly 200m x 200m at this latitude
	assert.InDelta(t, 40000, one, 10000)
	assert.InDelta(t, one*9, nine, 1e-6)

	assert.Greater(t, EstimateAreaM2(17, 0, 1), one)
}
