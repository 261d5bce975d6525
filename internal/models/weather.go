package models

// WeatherData mirrors the OpenWeatherMap current-weather payload. The full
// shape is preserved (not flattened) because cached rows store it as JSON and
// must deserialize losslessly.
type WeatherData struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []WeatherCondition `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Timezone int    `json:"timezone"` // UTC offset in seconds
	Name     string `json:"name"`
}

// WeatherCondition is one entry of the payload's weather array. ID is the
// OpenWeatherMap condition code (e.g. 501 = moderate rain).
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

// Condition returns the primary (first) weather condition, or a zero value
// when the upstream payload carried none.
func (w WeatherData) Condition() WeatherCondition {
	if len(w.Weather) == 0 {
		return WeatherCondition{}
	}
	return w.Weather[0]
}
