package story

import "github.com/amarcher/about-those-clouds/internal/models"

// Activity is a weather-appropriate thing kids might be doing below Milo.
// Chosen from fixed rules, no external lookups.
type Activity struct {
	Activity string
}

// SuggestActivity picks something for Milo to watch based on the observation.
// Temperatures are in °F, matching the provider's imperial units.
func SuggestActivity(data models.WeatherData) Activity {
	cond := data.Condition()
	temp := data.Main.Temp

	switch cond.Main {
	case "Snow":
		return Activity{"build snowmen and make snow angels"}
	case "Rain", "Drizzle":
		return Activity{"splash in puddles wearing their rain boots"}
	case "Thunderstorm":
		return Activity{"watch the dramatic sky from a cozy window"}
	}

	switch {
	case temp >= 80:
		return Activity{"run through sprinklers and eat ice cream"}
	case temp >= 65:
		return Activity{"fly kites and play at the playground"}
	case temp >= 45:
		return Activity{"ride bikes and collect interesting leaves"}
	case temp >= 32:
		return Activity{"play tag to stay warm in the crisp air"}
	default:
		return Activity{"drink hot cocoa and watch the sky"}
	}
}
