package tourmap

import (
	"math"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitBounds = osm.Bounds{
	MaxLat: 1,
	MinLat: -1,
	MaxLon: 1,
	MinLon: -1,
}

func TestIsInBounds(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"inside", 0.5, -0.5, true},
		{"north", 1.5, -0.5, false},
		{"south", -1.5, -0.5, false},
		{"west", 0.5, -1.5, false},
		{"east", 0.5, 1.5, false},
		{"on the edge", 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInBounds(unitBounds, tt.lat, tt.lon))
		})
	}
}

func TestIsTotallyInside(t *testing.T) {
	tests := []struct {
		name string
		item osm.Bounds
		want bool
	}{
		{"inside", osm.Bounds{MaxLat: 0.5, MinLat: -0.5, MaxLon: 0.5, MinLon: -0.5}, true},
		{"same as container", unitBounds, true},
		{"out to the west", osm.Bounds{MaxLat: 1, MinLat: -1, MaxLon: 1, MinLon: -1.1}, false},
		{"out to the north", osm.Bounds{MaxLat: 1.1, MinLat: -1, MaxLon: 1, MinLon: -1}, false},
		{"totally outside", osm.Bounds{MaxLat: 3, MinLat: 2, MaxLon: 3, MinLon: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTotallyInside(unitBounds, tt.item))
		})
	}
}

func TestBoundsForRadius(t *testing.T) {
	lat, lng := 47.3769, 8.5417
	bounds := BoundsForRadius(lat, lng, 1000)

	require.True(t, IsInBounds(bounds, lat, lng))

	latMetres, lonMetres := MetresPerDegree(lat)
	assert.InDelta(t, 2000, (bounds.MaxLat-bounds.MinLat)*latMetres, 50)
	assert.InDelta(t, 2000, (bounds.MaxLon-bounds.MinLon)*lonMetres, 50)

	assert.True(t, IsTotallyInside(BoundsForRadius(lat, lng, 2000), bounds))
}

func TestValidateCoords(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		wantErr  bool
	}{
		{"valid", 47.3769, 8.5417, false},
		{"poles and antimeridian", 90, -180, false},
		{"latitude too high", 90.1, 0, true},
		{"latitude too low", -91, 0, true},
		{"longitude too high", 0, 181, true},
		{"not a number", math.NaN(), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoords(tt.lat, tt.lng)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBounds(t *testing.T) {
	assert.NoError(t, ValidateBounds(unitBounds))
	assert.Error(t, ValidateBounds(osm.Bounds{MinLat: 1, MaxLat: -1, MinLon: -1, MaxLon: 1}))
	assert.Error(t, ValidateBounds(osm.Bounds{MinLat: 0, MaxLat: 0, MinLon: -1, MaxLon: 1}))
	assert.Error(t, ValidateBounds(osm.Bounds{MinLat: -1, MaxLat: 100, MinLon: -1, MaxLon: 1}))
}
