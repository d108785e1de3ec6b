// Package location models sign-in coordinates and the preset ranges the
// server attaches to location and QR activities.
package location

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

const (
	// mean earth radius used by the upstream client, metres
	earthRadius = 6371393.0

	defaultAltitude = "1108"
)

// Location is kept as strings end to end: values round-trip into sign
// URLs verbatim and must not pick up formatting artifacts.
type Location struct {
	Address   string
	Longitude string
	Latitude  string
	Altitude  string
}

// Parse decodes the "addr,lon,lat,alt" form used by presets and the CLI.
func Parse(s string) (Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Location{}, fmt.Errorf("location: expected addr,lon,lat,alt, got %q", s)
	}

	return Location{
		Address:   parts[0],
		Longitude: parts[1],
		Latitude:  parts[2],
		Altitude:  parts[3],
	}, nil
}

func (l Location) String() string {
	return l.Address + "," + l.Longitude + "," + l.Latitude + "," + l.Altitude
}

// LocationWithRange is a preset centre plus an allowed radius in metres.
type LocationWithRange struct {
	Address   string
	Longitude string
	Latitude  string
	Range     int
}

func (lr LocationWithRange) Location() Location {
	return Location{
		Address:   lr.Address,
		Longitude: lr.Longitude,
		Latitude:  lr.Latitude,
		Altitude:  defaultAltitude,
	}
}

// Shift samples a point uniformly within the preset range to simulate a
// device that is near, not on, the configured centre.
func (lr LocationWithRange) Shift(rng *rand.Rand) Location {
	lon, lonErr := strconv.ParseFloat(lr.Longitude, 64)
	lat, latErr := strconv.ParseFloat(lr.Latitude, 64)
	if lonErr != nil || latErr != nil {
		return lr.Location()
	}

	theta := rng.Float64() * 2 * math.Pi
	r := rng.Float64() * float64(lr.Range)

	latRad := lat * math.Pi / 180

	dLat := r * math.Sin(theta) / earthRadius
	denom := earthRadius * math.Sqrt(1-math.Pow(math.Cos(theta), 2)*math.Pow(math.Sin(latRad), 2))
	dLon := r * math.Cos(theta) / denom

	lat += dLat * 180 / math.Pi
	lon += dLon * 180 / math.Pi

	return Location{
		Address:   lr.Address,
		Longitude: strconv.FormatFloat(lon, 'f', 6, 64),
		Latitude:  strconv.FormatFloat(lat, 'f', 6, 64),
		Altitude:  defaultAltitude,
	}
}
