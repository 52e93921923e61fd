package tagfilter

// Category is a named group of tags, in the "key" or "key:value" form
type Category struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

const (
	CategoryEntertainment = "Entertainment"
	CategoryTransport     = "Transport"
	CategorySport         = "Sport"
	CategoryCulture       = "Culture"
	CategoryNature        = "Nature"
	CategoryFood          = "Food"
	CategoryHistory       = "History"
	CategoryTourism       = "Tourism"
	CategoryHealth        = "Health"
	CategoryOther         = "Other"
)

// DefaultAllowedCategories are the categories an element must match (at least one tag of) to be shown when no interest is selected
var DefaultAllowedCategories = []string{
	CategoryEntertainment,
	CategoryCulture,
	CategoryNature,
	CategoryHistory,
	CategoryTourism,
}

// DefaultCategories is the compiled-in taxonomy. Order matters: group lookup takes the first match.
var DefaultCategories = []Category{
	{
		Name: CategoryEntertainment,
		Tags: []string{
			"amenity:cinema",
			"amenity:theatre",
			"amenity:nightclub",
			"amenity:casino",
			"amenity:arts_centre",
			"amenity:events_venue",
			"amenity:music_venue",
			"tourism:theme_park",
			"tourism:zoo",
			"tourism:aquarium",
			"leisure:water_park",
			"leisure:amusement_arcade",
			"leisure:escape_game",
			"leisure:miniature_golf",
			"leisure:bowling_alley",
		},
	},
	{
		Name: CategoryTransport,
		Tags: []string{
			"public_transport",
			"railway:station",
			"railway:tram_stop",
			"railway:subway_entrance",
			"highway:bus_stop",
			"amenity:bus_station",
			"amenity:ferry_terminal",
			"amenity:taxi",
			"amenity:bicycle_rental",
			"amenity:car_rental",
			"aerialway:station",
			"aeroway:aerodrome",
		},
	},
	{
		Name: CategorySport,
		Tags: []string{
			"sport",
			"leisure:stadium",
			"leisure:sports_centre",
			"leisure:pitch",
			"leisure:swimming_pool",
			"leisure:golf_course",
			"leisure:ice_rink",
			"leisure:fitness_centre",
			"leisure:track",
		},
	},
	{
		Name: CategoryCulture,
		Tags: []string{
			"tourism:museum",
			"tourism:gallery",
			"tourism:artwork",
			"amenity:library",
			"amenity:place_of_worship",
			"amenity:community_centre",
			"amenity:planetarium",
			"building:cathedral",
			"building:church",
			"building:mosque",
			"building:synagogue",
			"building:temple",
		},
	},
	{
		Name: CategoryNature,
		Tags: []string{
			"natural",
			"leisure:park",
			"leisure:garden",
			"leisure:nature_reserve",
			"boundary:national_park",
			"boundary:protected_area",
			"waterway:waterfall",
			"landuse:forest",
			"landuse:meadow",
			"mountain_pass",
		},
	},
	{
		Name: CategoryFood,
		Tags: []string{
			"cuisine",
			"amenity:restaurant",
			"amenity:cafe",
			"amenity:bar",
			"amenity:pub",
			"amenity:fast_food",
			"amenity:ice_cream",
			"amenity:biergarten",
			"amenity:food_court",
			"shop:bakery",
			"shop:confectionery",
		},
	},
	{
		Name: CategoryHistory,
		Tags: []string{
			"historic",
			"heritage",
			"memorial",
			"building:castle",
			"ruins",
		},
	},
	{
		Name: CategoryTourism,
		Tags: []string{
			"tourism:attraction",
			"tourism:viewpoint",
			"tourism:information",
			"tourism:picnic_site",
			"man_made:lighthouse",
			"man_made:tower",
			"tower:type:observation",
			"attraction",
		},
	},
	{
		Name: CategoryHealth,
		Tags: []string{
			"healthcare",
			"amenity:hospital",
			"amenity:pharmacy",
			"amenity:clinic",
			"amenity:doctors",
			"amenity:dentist",
			"emergency:defibrillator",
		},
	},
	{
		Name: CategoryOther,
		Tags: []string{
			"shop",
			"amenity:toilets",
			"amenity:drinking_water",
			"amenity:bench",
			"amenity:atm",
			"amenity:post_office",
			"tourism:hotel",
			"tourism:hostel",
			"tourism:guest_house",
			"tourism:camp_site",
		},
	},
}
