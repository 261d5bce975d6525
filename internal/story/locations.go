package story

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// CityEvent is one curated stop on Milo's world tour: a city with a happy,
// kid-friendly scene Milo watched there.
type CityEvent struct {
	City    string
	Country string
	Lat     float64
	Lon     float64
	Event   string
	Season  string // spring, summer, fall, winter, or year-round
}

var happyCities = []CityEvent{
	{"Paris", "France", 48.8566, 2.3522, "watching artists paint beautiful pictures by the Eiffel Tower", "year-round"},
	{"Tokyo", "Japan", 35.6762, 139.6503, "watching children feed friendly deer in the peaceful parks", "year-round"},
	{"Sydney", "Australia", -33.8688, 151.2093, "watching surfers ride big waves at Bondi Beach", "year-round"},
	{"London", "England", 51.5074, -0.1278, "watching the Changing of the Guard at Buckingham Palace", "year-round"},
	{"New York City", "USA", 40.7128, -74.006, "watching street performers juggle in Central Park", "year-round"},
	{"Rio de Janeiro", "Brazil", -22.9068, -43.1729, "watching people play beach volleyball on Copacabana Beach", "year-round"},
	{"Copenhagen", "Denmark", 55.6761, 12.5683, "watching kids ride bikes through colorful neighborhoods", "year-round"},
	{"Singapore", "Singapore", 1.3521, 103.8198, "watching the amazing light show at Gardens by the Bay", "year-round"},
	{"Barcelona", "Spain", 41.3851, 2.1734, "watching people build amazing sandcastles on the beach", "year-round"},
	{"Vancouver", "Canada", 49.2827, -123.1207, "watching orcas swim in the beautiful ocean", "year-round"},
	{"Amsterdam", "Netherlands", 52.3676, 4.9041, "watching millions of colorful tulips bloom in the flower fields", "spring"},
	{"Washington DC", "USA", 38.9072, -77.0369, "watching the beautiful cherry blossoms bloom around the monuments", "spring"},
	{"Kyoto", "Japan", 35.0116, 135.7681, "watching families have picnics under pink cherry blossom trees", "spring"},
	{"Stockholm", "Sweden", 59.3293, 18.0686, "watching people celebrate the bright midnight sun", "summer"},
	{"San Francisco", "USA", 37.7749, -122.4194, "watching sea lions play on the docks at Fisherman's Wharf", "summer"},
	{"Munich", "Germany", 48.1351, 11.582, "watching the autumn festival with colorful decorations", "fall"},
	{"Vermont", "USA", 44.2601, -72.5754, "watching the leaves turn brilliant red, orange, and yellow", "fall"},
	{"Reykjavik", "Iceland", 64.1466, -21.9426, "watching the magical Northern Lights dance in the sky", "winter"},
	{"Quebec City", "Canada", 46.8139, -71.208, "watching families build amazing ice sculptures at the Winter Carnival", "winter"},
}

func currentSeason(now time.Time) string {
	switch now.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "fall"
	default:
		return "winter"
	}
}

// PickAdventureCity selects where Milo traveled from: a city whose season
// matches now (or is year-round). A non-empty seed makes the pick
// deterministic so stories that share a content key tell the same adventure.
func PickAdventureCity(seed string, now time.Time) CityEvent {
	season := currentSeason(now)
	var relevant []CityEvent
	for _, c := range happyCities {
		if c.Season == season || c.Season == "year-round" {
			relevant = append(relevant, c)
		}
	}

	if seed == "" {
		return relevant[rand.Intn(len(relevant))]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return relevant[int(h.Sum32())%len(relevant)]
}
