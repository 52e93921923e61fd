package overpass

import (
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/paulmach/osm"
)

// PostProcess enriches raw elements so every kept element can be placed on a map.
//
// Outside of center mode, way node ids are resolved against the node elements of the same response
// and ways get their center as lat/lon. Relations get the centroid of whatever coordinates they carry.
// In center mode, the upstream center is used instead.
// Finally, elements left with only one populated key are dropped, as are repeated (type, id) pairs.
func PostProcess(elements []*tourmap.Element, centerMode bool) []*tourmap.Element {
	if !centerMode {
		resolveWayCoords(elements)
		assignWayCenters(elements)
	}

	assignRelationCentroids(elements)

	if centerMode {
		adoptUpstreamCenters(elements)
	}

	return filterDegenerate(elements)
}

func resolveWayCoords(elements []*tourmap.Element) {
	nodeCoords := make(map[int64]tourmap.Coord)
	for _, el := range elements {
		if el.Type != osm.TypeNode || el.Lat == nil || el.Lon == nil {
			continue
		}
		nodeCoords[el.ID] = tourmap.Coord{Lat: *el.Lat, Lon: *el.Lon}
	}

	for _, el := range elements {
		if el.Type != osm.TypeWay || len(el.Nodes) == 0 {
			continue
		}

		var coords []tourmap.Coord
		for _, nodeID := range el.Nodes {
			coord, ok := nodeCoords[nodeID]
			if !ok {
				continue
			}
			coords = append(coords, coord)
		}
		el.NodeCoords = coords
	}
}

func assignWayCenters(elements []*tourmap.Element) {
	for _, el := range elements {
		if el.Type != osm.TypeWay {
			continue
		}

		coords := el.NodeCoords
		if len(coords) == 0 {
			coords = derefCoords(el.Geometry)
		}

		center := tourmap.WayCenter(coords)
		if center == nil {
			continue
		}
		el.SetPosition(*center)
	}
}

func assignRelationCentroids(elements []*tourmap.Element) {
	for _, el := range elements {
		if el.Type != osm.TypeRelation || el.Lat != nil {
			continue
		}

		centroid := tourmap.RelationCentroid(el)
		if centroid == nil {
			continue
		}
		el.SetPosition(*centroid)
	}
}

func adoptUpstreamCenters(elements []*tourmap.Element) {
	for _, el := range elements {
		if el.Lat != nil || el.Lon != nil || el.Center == nil {
			continue
		}
		el.SetPosition(*el.Center)
	}
}

func filterDegenerate(elements []*tourmap.Element) []*tourmap.Element {
	seen := make(map[tourmap.ElementKey]struct{}, len(elements))
	kept := make([]*tourmap.Element, 0, len(elements))

	for _, el := range elements {
		if el.KeyCount() <= 1 {
			continue
		}

		key := el.Key()
		if _, ok := seen[key]; ok {
			// "out skel" repeats nodes already returned with their tags by "out body"
			continue
		}
		seen[key] = struct{}{}

		kept = append(kept, el)
	}

	return kept
}

func derefCoords(coords []*tourmap.Coord) []tourmap.Coord {
	var result []tourmap.Coord
	for _, c := range coords {
		if c == nil {
			continue
		}
		result = append(result, *c)
	}
	return result
}
