package tourmap

import (
	"fmt"

	"github.com/paulmach/osm"
)

// Coord is a single WGS84 position, serialised the way Overpass does it.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member. Lat/Lon are set for node members and
// Geometry for way members when the upstream was asked for full geometry.
type Member struct {
	Type     osm.Type `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Geometry []*Coord `json:"geometry,omitempty"`
}

// Element is an OSM node, way or relation as returned by Overpass and
// enriched by the post-processing pipeline. Which of the optional fields
// are meaningful depends on Type.
type Element struct {
	ID         int64             `json:"id,omitempty"`
	Type       osm.Type          `json:"type,omitempty"`
	Lat        *float64          `json:"lat,omitempty"`
	Lon        *float64          `json:"lon,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Nodes      []int64           `json:"nodes,omitempty"`
	Members    []*Member         `json:"members,omitempty"`
	NodeCoords []Coord           `json:"nodeCoords,omitempty"`
	Geometry   []*Coord          `json:"geometry,omitempty"`
	Center     *Coord            `json:"center,omitempty"`
}

// ElementKey identifies an element. OSM ids are only unique per type.
type ElementKey struct {
	Type osm.Type
	ID   int64
}

func (k ElementKey) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.ID)
}

func (el *Element) Key() ElementKey {
	return ElementKey{Type: el.Type, ID: el.ID}
}

// SetPosition sets the lat/lon pair of the element
func (el *Element) SetPosition(c Coord) {
	lat, lon := c.Lat, c.Lon
	el.Lat = &lat
	el.Lon = &lon
}

// Position returns the point to draw the element at: its own lat/lon if it has one, otherwise the upstream-supplied center.
func (el *Element) Position() (Coord, bool) {
	if el.Lat != nil && el.Lon != nil {
		return Coord{Lat: *el.Lat, Lon: *el.Lon}, true
	}

	if el.Center != nil {
		return *el.Center, true
	}

	return Coord{}, false
}

// KeyCount returns how many keys the element has when serialised.
func (el *Element) KeyCount() int {
	count := 0
	if el.ID != 0 {
		count++
	}
	if el.Type != "" {
		count++
	}
	if el.Lat != nil {
		count++
	}
	if el.Lon != nil {
		count++
	}
	if len(el.Tags) != 0 {
		count++
	}
	if len(el.Nodes) != 0 {
		count++
	}
	if len(el.Members) != 0 {
		count++
	}
	if len(el.NodeCoords) != 0 {
		count++
	}
	if len(el.Geometry) != 0 {
		count++
	}
	if el.Center != nil {
		count++
	}
	return count
}

// Name returns the element's display name, or an empty string
func (el *Element) Name() string {
	if el.Tags == nil {
		return ""
	}
	if name := el.Tags["name:en"]; name != "" {
		return name
	}
	return el.Tags["name"]
}

// DedupeElements appends the elements of additions that are not already in existing, keyed on (type, id).
func DedupeElements(existing []*Element, additions []*Element) []*Element {
	seen := make(map[ElementKey]struct{}, len(existing))
	for _, el := range existing {
		seen[el.Key()] = struct{}{}
	}

	for _, el := range additions {
		key := el.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, el)
	}

	return existing
}
