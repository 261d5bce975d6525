package models

// Location is a resolved caller position.
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	City   string  `json:"city"`
	Region string  `json:"region"`
}

// Child carries the optional per-listener personalization payload. Requests
// that include children bypass the audio cache entirely.
type Child struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Pronouns string `json:"pronouns"`
}
