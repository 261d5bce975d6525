package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

// LocationKey buckets coordinates onto a ~1.1 km grid by rounding each to two
// decimal places. strconv formatting keeps the key stable across processes
// (no %v float variance).
func LocationKey(lat, lon float64) string {
	return formatCoord(lat) + "," + formatCoord(lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// contentFingerprint is the canonical record hashed into a content key. Struct
// marshaling fixes the field order, so identical inputs always serialize
// identically.
type contentFingerprint struct {
	CloudType cloud.Type `json:"cloudType"`
	Temp      int        `json:"temp"`
	Coverage  int        `json:"coverage"`
}

// ContentKey derives the audio cache key from a classification result. Two
// observations that agree on cloud type, rounded temperature, and coverage
// decile share a key, so narration generated for one serves the other.
func ContentKey(info cloud.Info, data models.WeatherData) string {
	fp := contentFingerprint{
		CloudType: info.Type,
		Temp:      int(math.Round(data.Main.Temp)),
		Coverage:  int(math.Round(float64(data.Clouds.All)/10)) * 10,
	}
	raw, _ := json.Marshal(fp) // cannot fail for a flat struct
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
