package cloud

import (
	"strings"

	"github.com/amarcher/about-those-clouds/internal/models"
)

// Type is one of the 11 cloud categories the classifier can produce.
type Type string

const (
	Clear         Type = "clear"
	Cumulus       Type = "cumulus"
	Cumulonimbus  Type = "cumulonimbus"
	Stratus       Type = "stratus"
	Nimbostratus  Type = "nimbostratus"
	Stratocumulus Type = "stratocumulus"
	Cirrus        Type = "cirrus"
	Cirrostratus  Type = "cirrostratus"
	Cirrocumulus  Type = "cirrocumulus"
	Altocumulus   Type = "altocumulus"
	Altostratus   Type = "altostratus"
)

// Info is the fixed descriptive metadata for a cloud type. Narration quotes
// these fields directly, so the text must not drift.
type Info struct {
	Type            Type   `json:"type"`
	ScientificName  string `json:"scientificName"`
	KidFriendlyName string `json:"kidFriendlyName"`
	Altitude        string `json:"altitude"`
	Description     string `json:"description"`
	FunFact         string `json:"funFact"`
}

// Thresholds holds the temperature cut points used by the coverage-band rules.
// NOTE: observations arrive in Fahrenheit (the provider is queried with
// units=imperial) while these values read as Celsius. The mismatch is inherited
// behavior; callers wanting different cut points can pass their own.
type Thresholds struct {
	WarmCumulus   float64 // above this, scattered cover reads as cumulus
	WarmStratocum float64 // above this, broken cover reads as stratocumulus
	MidAltocum    float64 // above this, broken cover reads as altocumulus
	WarmStratus   float64 // above this, overcast reads as stratus
	MidAltostrat  float64 // above this, overcast reads as altostratus
}

// DefaultThresholds are the production cut points.
var DefaultThresholds = Thresholds{
	WarmCumulus:   15,
	WarmStratocum: 15,
	MidAltocum:    0,
	WarmStratus:   10,
	MidAltostrat:  -5,
}

// miloTypes are the fluffy cumulus-family clouds Milo can appear as.
var miloTypes = map[Type]bool{
	Cumulus:       true,
	Stratocumulus: true,
	Altocumulus:   true,
	Cirrocumulus:  true,
}

// IsMiloPresent reports whether the classified cloud belongs to the
// cumulus family, which selects the "Milo is here" narrative branch.
func IsMiloPresent(info Info) bool {
	return miloTypes[info.Type]
}

// Identify maps a weather observation to a cloud classification. Pure and
// total: every input yields exactly one of the 11 types. Rule order encodes
// priority, not just conditions; a thunderstorm under full overcast is still
// cumulonimbus.
func Identify(data models.WeatherData) Info {
	return IdentifyWith(data, DefaultThresholds)
}

// IdentifyWith is Identify with explicit temperature thresholds.
func IdentifyWith(data models.WeatherData, th Thresholds) Info {
	coverage := data.Clouds.All
	cond := data.Condition()
	temp := data.Main.Temp

	if coverage < 10 {
		return Lookup(Clear)
	}
	if cond.Main == "Thunderstorm" {
		return Lookup(Cumulonimbus)
	}

	if cond.Main == "Rain" || cond.Main == "Drizzle" {
		switch {
		case cond.ID >= 502 || strings.Contains(cond.Description, "heavy"):
			return Lookup(Nimbostratus)
		case coverage > 75:
			return Lookup(Stratus)
		default:
			return Lookup(Stratocumulus)
		}
	}

	if cond.Main == "Snow" {
		return Lookup(Nimbostratus)
	}
	// 7xx family: mist, fog, haze, smoke and friends.
	if cond.ID >= 701 && cond.ID < 800 {
		return Lookup(Stratus)
	}

	if coverage >= 10 && coverage < 50 {
		if temp > th.WarmCumulus {
			return Lookup(Cumulus)
		}
		return Lookup(Cirrus)
	}

	if coverage >= 50 && coverage < 85 {
		switch {
		case temp > th.WarmStratocum:
			return Lookup(Stratocumulus)
		case temp > th.MidAltocum:
			return Lookup(Altocumulus)
		default:
			return Lookup(Cirrocumulus)
		}
	}

	if coverage >= 85 {
		switch {
		case temp > th.WarmStratus:
			return Lookup(Stratus)
		case temp > th.MidAltostrat:
			return Lookup(Altostratus)
		default:
			return Lookup(Cirrostratus)
		}
	}

	return Lookup(Cumulus)
}

// Lookup returns the fixed metadata for a cloud type. Unknown types return the
// cumulus entry so the result is always narratable.
func Lookup(t Type) Info {
	if info, ok := database[t]; ok {
		return info
	}
	return database[Cumulus]
}

var database = map[Type]Info{
	Clear: {
		Type:            Clear,
		ScientificName:  "Clear Sky",
		KidFriendlyName: "Blue Sky",
		Altitude:        "N/A",
		Description:     "No clouds in sight!",
		FunFact:         "Even on a clear day, there are millions of tiny water droplets floating in the air!",
	},
	Cumulus: {
		Type:            Cumulus,
		ScientificName:  "Cumulus",
		KidFriendlyName: "Cotton Ball Clouds",
		Altitude:        "Low (2,000-6,000 feet)",
		Description:     "Puffy white clouds that look like cotton balls.",
		FunFact:         "These clouds form when warm air rises on a sunny day!",
	},
	Cumulonimbus: {
		Type:            Cumulonimbus,
		ScientificName:  "Cumulonimbus",
		KidFriendlyName: "Thunder Giants",
		Altitude:        "All levels (up to 60,000 feet!)",
		Description:     "Massive towering clouds that create thunderstorms.",
		FunFact:         "Some are taller than Mount Everest!",
	},
	Stratus: {
		Type:            Stratus,
		ScientificName:  "Stratus",
		KidFriendlyName: "Gray Blanket",
		Altitude:        "Low (surface-6,500 feet)",
		Description:     "A flat, gray blanket covering the sky.",
		FunFact:         "When these touch the ground, we call it fog!",
	},
	Stratocumulus: {
		Type:            Stratocumulus,
		ScientificName:  "Stratocumulus",
		KidFriendlyName: "Lumpy Blanket",
		Altitude:        "Low (2,000-6,500 feet)",
		Description:     "Patches of gray or white bumpy clouds.",
		FunFact:         "These are the most common clouds on Earth!",
	},
	Nimbostratus: {
		Type:            Nimbostratus,
		ScientificName:  "Nimbostratus",
		KidFriendlyName: "Rain Blanket",
		Altitude:        "Low to Mid (surface-10,000 feet)",
		Description:     "Thick, dark clouds that bring steady rain.",
		FunFact:         "These clouds are like giant sponges squeezing out rain!",
	},
	Cirrus: {
		Type:            Cirrus,
		ScientificName:  "Cirrus",
		KidFriendlyName: "Wispy Feathers",
		Altitude:        "High (20,000-40,000 feet)",
		Description:     "Thin, wispy clouds like feathers in the sky.",
		FunFact:         "These clouds are made of ice crystals, not water drops!",
	},
	Cirrostratus: {
		Type:            Cirrostratus,
		ScientificName:  "Cirrostratus",
		KidFriendlyName: "Halo Clouds",
		Altitude:        "High (20,000-40,000 feet)",
		Description:     "A thin veil that creates halos around the sun.",
		FunFact:         "These clouds act like a giant ice crystal prism!",
	},
	Cirrocumulus: {
		Type:            Cirrocumulus,
		ScientificName:  "Cirrocumulus",
		KidFriendlyName: "Fish Scale Sky",
		Altitude:        "High (20,000-40,000 feet)",
		Description:     "Small white patches like fish scales.",
		FunFact:         "Sailors call this a \"mackerel sky\"!",
	},
	Altocumulus: {
		Type:            Altocumulus,
		ScientificName:  "Altocumulus",
		KidFriendlyName: "Puffy Sheep",
		Altitude:        "Mid (6,500-20,000 feet)",
		Description:     "Gray or white puffs like sheep in the sky.",
		FunFact:         "Morning sheep clouds might mean afternoon thunderstorms!",
	},
	Altostratus: {
		Type:            Altostratus,
		ScientificName:  "Altostratus",
		KidFriendlyName: "Gray Veil",
		Altitude:        "Mid (6,500-20,000 feet)",
		Description:     "A gray sheet that makes the sun look frosted.",
		FunFact:         "These clouds are preparing to bring rain!",
	},
}
