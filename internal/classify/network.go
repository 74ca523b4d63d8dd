package classify

import (
	"strings"

	"github.com/skiwithcare/datagen/internal/model"
)

// epicMarkers are lower-case substrings identifying Epic Pass resorts.
var epicMarkers = []string{
	"vail", "beaver creek", "breckenridge", "keystone", "crested butte",
	"park city", "heavenly", "northstar", "kirkwood", "stevens pass",
	"stowe", "okemo", "mount snow", "hunter mountain", "attitash",
	"wildcat", "mount sunapee", "crotched",
	"liberty mountain", "roundtop", "whitetail", "jack frost", "big boulder",
	"seven springs", "hidden valley", "laurel mountain",
	"wilmot", "afton alps", "mt brighton", "alpine valley", "boston mills",
	"brandywine", "mad river mountain", "snow creek", "paoli peaks",
	"telluride",
}

// ikonMarkers are lower-case substrings identifying Ikon Pass resorts.
var ikonMarkers = []string{
	"aspen", "snowmass", "steamboat", "winter park", "copper mountain",
	"eldora", "jackson hole", "big sky", "alta", "snowbird",
	"deer valley", "brighton", "solitude", "taos",
	"palisades tahoe", "squaw valley", "alpine meadows", "mammoth",
	"june mountain", "big bear", "snow valley",
	"crystal mountain", "snoqualmie", "schweitzer",
	"stratton", "sugarbush", "killington", "pico", "sunday river",
	"sugarloaf", "loon mountain", "windham",
	"boyne highlands", "boyne mountain",
	"snowshoe",
}

// PassNetwork tags a free-text resort name by substring membership in the
// Epic and Ikon marker sets. A name matching both sets is PassBoth.
func PassNetwork(name string) model.PassNetwork {
	lower := strings.ToLower(name)
	epic := containsAny(lower, epicMarkers)
	ikon := containsAny(lower, ikonMarkers)

	switch {
	case epic && ikon:
		return model.PassBoth
	case epic:
		return model.PassEpic
	case ikon:
		return model.PassIkon
	default:
		return model.PassIndependent
	}
}

// Merge combines two independent memberships of the same resort.
func Merge(a, b model.PassNetwork) model.PassNetwork {
	switch {
	case a == b:
		return a
	case a == model.PassIndependent || a == "":
		return b
	case b == model.PassIndependent || b == "":
		return a
	default:
		return model.PassBoth
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
