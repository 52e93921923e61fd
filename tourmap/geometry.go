package tourmap

import (
	"math"

	"github.com/paulmach/osm"
)

const (
	// closedPolygonTolerance is how far apart (in degrees) the first and last point of a way may be for it to count as closed
	closedPolygonTolerance = 1e-4
	// minPolygonArea guards against degenerate or self-intersecting polygons
	minPolygonArea = 1e-6
)

// LatLngToTile returns the slippy-map tile containing the point.
// Latitudes beyond MaxMercatorLat map to the first or last row of tiles.
func LatLngToTile(lat, lng float64, zoomLevel int) (x, y int) {
	n := math.Exp2(float64(zoomLevel))
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	latRad := lat * math.Pi / 180.0

	x = clampTileIndex(int(math.Floor((lng+180.0)/360.0*n)), n)
	y = clampTileIndex(int(math.Floor((1.0-math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi)/2.0*n)), n)
	return x, y
}

func clampTileIndex(i int, n float64) int {
	if i < 0 {
		return 0
	}
	if last := int(n) - 1; i > last {
		return last
	}
	return i
}

// TileBounds returns the area covered by a slippy-map tile
func TileBounds(x, y, zoomLevel int) osm.Bounds {
	n := math.Exp2(float64(zoomLevel))

	return osm.Bounds{
		MinLat: tileYToLat(y+1, n),
		MaxLat: tileYToLat(y, n),
		MinLon: float64(x)/n*360 - 180,
		MaxLon: float64(x+1)/n*360 - 180,
	}
}

// TileCorners returns the north-west and south-east corners of a tile, as [lat, lng] pairs
func TileCorners(x, y, zoomLevel int) [2][2]float64 {
	bounds := TileBounds(x, y, zoomLevel)
	return [2][2]float64{
		{bounds.MaxLat, bounds.MinLon},
		{bounds.MinLat, bounds.MaxLon},
	}
}

func tileYToLat(y int, n float64) float64 {
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return latRad * 180 / math.Pi
}

// GridBounds returns the area covered by a gridSize x gridSize block of tiles centered on the tile containing the point.
// gridSize should be odd. The block is cut off at the edges of the tile grid.
func GridBounds(lat, lng float64, zoomLevel, gridSize int) osm.Bounds {
	x, y := LatLngToTile(lat, lng, zoomLevel)
	half := gridSize / 2
	n := math.Exp2(float64(zoomLevel))

	northWest := TileBounds(clampTileIndex(x-half, n), clampTileIndex(y-half, n), zoomLevel)
	southEast := TileBounds(clampTileIndex(x+half, n), clampTileIndex(y+half, n), zoomLevel)

	return osm.Bounds{
		MinLat: southEast.MinLat,
		MaxLat: northWest.MaxLat,
		MinLon: northWest.MinLon,
		MaxLon: southEast.MaxLon,
	}
}

// WayCenter computes a representative point for a way.
// Closed polygons with at least 4 points use the area-weighted centroid, everything else the mean of the points.
func WayCenter(coords []Coord) *Coord {
	if len(coords) == 0 {
		return nil
	}

	if len(coords) <= 3 || !isClosed(coords) {
		return meanOf(coords)
	}

	var area, momentLat, momentLon float64
	for i := 0; i < len(coords)-1; i++ {
		x0, y0 := coords[i].Lon, coords[i].Lat
		x1, y1 := coords[i+1].Lon, coords[i+1].Lat

		cross := x0*y1 - x1*y0
		area += cross
		momentLon += (x0 + x1) * cross
		momentLat += (y0 + y1) * cross
	}
	area /= 2

	if math.Abs(area) < minPolygonArea {
		return meanOf(coords)
	}

	return &Coord{
		Lat: momentLat / (6 * area),
		Lon: momentLon / (6 * area),
	}
}

func isClosed(coords []Coord) bool {
	first, last := coords[0], coords[len(coords)-1]
	return math.Abs(first.Lat-last.Lat) < closedPolygonTolerance &&
		math.Abs(first.Lon-last.Lon) < closedPolygonTolerance
}

func meanOf(coords []Coord) *Coord {
	if len(coords) == 0 {
		return nil
	}

	var sumLat, sumLon float64
	for _, c := range coords {
		sumLat += c.Lat
		sumLon += c.Lon
	}

	return &Coord{
		Lat: sumLat / float64(len(coords)),
		Lon: sumLon / float64(len(coords)),
	}
}

// RelationCentroid averages every coordinate known for a relation: its own geometry and its members' geometry or points.
// It returns nil when the relation carries no coordinates at all.
func RelationCentroid(relation *Element) *Coord {
	var coords []Coord

	for _, c := range relation.Geometry {
		if c == nil {
			continue
		}
		coords = append(coords, *c)
	}

	for _, member := range relation.Members {
		for _, c := range member.Geometry {
			if c == nil {
				continue
			}
			coords = append(coords, *c)
		}

		if member.Lat != nil && member.Lon != nil {
			coords = append(coords, Coord{Lat: *member.Lat, Lon: *member.Lon})
		}
	}

	return meanOf(coords)
}

// MetresPerDegree returns the length of one degree of latitude and one degree of longitude at a given latitude, on the WGS84 ellipsoid.
func MetresPerDegree(lat float64) (latMetres, lonMetres float64) {
	phi := lat * math.Pi / 180

	latMetres = 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi)
	lonMetres = 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi)
	return latMetres, lonMetres
}

// EstimateAreaM2 estimates the ground area in square metres covered by tileCount tiles at a zoom level, around a reference latitude.
func EstimateAreaM2(zoomLevel int, refLat float64, tileCount int) float64 {
	x, y := LatLngToTile(refLat, 0, zoomLevel)
	tile := TileBounds(x, y, zoomLevel)

	latMetres, lonMetres := MetresPerDegree(refLat)

	tileHeight := (tile.MaxLat - tile.MinLat) * latMetres
	tileWidth := (tile.MaxLon - tile.MinLon) * lonMetres

	return tileHeight * tileWidth * float64(tileCount)
}
