package classify

import (
	"strings"

	"github.com/skiwithcare/datagen/internal/model"
)

var stateRegions = map[string]model.Region{
	"ME": model.RegionNortheast, "NH": model.RegionNortheast, "VT": model.RegionNortheast,
	"MA": model.RegionNortheast, "RI": model.RegionNortheast, "CT": model.RegionNortheast,
	"NY": model.RegionNortheast, "NJ": model.RegionNortheast, "PA": model.RegionNortheast,

	"WV": model.RegionSoutheast, "VA": model.RegionSoutheast, "NC": model.RegionSoutheast,
	"TN": model.RegionSoutheast, "GA": model.RegionSoutheast,

	"OH": model.RegionMidwest, "MI": model.RegionMidwest, "IN": model.RegionMidwest,
	"IL": model.RegionMidwest, "WI": model.RegionMidwest, "MN": model.RegionMidwest,
	"IA": model.RegionMidwest, "MO": model.RegionMidwest,

	"CO": model.RegionRockies, "UT": model.RegionRockies, "WY": model.RegionRockies,
	"MT": model.RegionRockies, "ID": model.RegionRockies, "NM": model.RegionRockies,

	"CA": model.RegionWest, "NV": model.RegionWest, "AZ": model.RegionWest, "CA/NV": model.RegionWest,

	"WA": model.RegionPacificNW, "OR": model.RegionPacificNW,
}

// Region returns the region for a state abbreviation, or RegionOther.
func Region(state string) model.Region {
	if r, ok := stateRegions[strings.ToUpper(strings.TrimSpace(state))]; ok {
		return r
	}
	return model.RegionOther
}

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true,
	"IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true, "MA": true,
	"MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true,
	"NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true,
	"WY": true, "DC": true, "CA/NV": true,
}

// IsUSState reports whether state is a US state abbreviation (DC and the
// shared CA/NV code included).
func IsUSState(state string) bool {
	return usStates[strings.ToUpper(strings.TrimSpace(state))]
}

var stateNames = map[string]string{
	"Alabama": "AL", "Alaska": "AK", "Arizona": "AZ", "Arkansas": "AR",
	"California": "CA", "Colorado": "CO", "Connecticut": "CT", "Delaware": "DE",
	"Florida": "FL", "Georgia": "GA", "Hawaii": "HI", "Idaho": "ID",
	"Illinois": "IL", "Indiana": "IN", "Iowa": "IA", "Kansas": "KS",
	"Kentucky": "KY", "Louisiana": "LA", "Maine": "ME", "Maryland": "MD",
	"Massachusetts": "MA", "Michigan": "MI", "Minnesota": "MN", "Mississippi": "MS",
	"Missouri": "MO", "Montana": "MT", "Nebraska": "NE", "Nevada": "NV",
	"New Hampshire": "NH", "New Jersey": "NJ", "New Mexico": "NM", "New York": "NY",
	"North Carolina": "NC", "North Dakota": "ND", "Ohio": "OH", "Oklahoma": "OK",
	"Oregon": "OR", "Pennsylvania": "PA", "Rhode Island": "RI", "South Carolina": "SC",
	"South Dakota": "SD", "Tennessee": "TN", "Texas": "TX", "Utah": "UT",
	"Vermont": "VT", "Virginia": "VA", "Washington": "WA", "West Virginia": "WV",
	"Wisconsin": "WI", "Wyoming": "WY",
}

// StateName returns the full name for a state abbreviation, as used by
// OpenStreetMap admin_level=4 areas.
func StateName(abbrev string) (string, bool) {
	abbrev = strings.ToUpper(strings.TrimSpace(abbrev))
	for name, a := range stateNames {
		if a == abbrev {
			return name, true
		}
	}
	return "", false
}
