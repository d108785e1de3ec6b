package location

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"testing"
)

func TestParseStringRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []string{
		"门口,116.30,40.00,1108",
		"main gate,-0.1278,51.5074,20",
		",0,0,0",
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("roundtrip_%v", i), func(t *testing.T) {
			l, err := Parse(tc)
			if err != nil {
				t.Fatal(err)
			}
			if got := l.String(); got != tc {
				t.Errorf("Actual string (%v) is different from expected (%v)", got, tc)
			}
		})
	}
}

func TestParseRejectsWrongArity(t *testing.T) {
	t.Parallel()

	for i, tc := range []string{"", "a,b,c", "a,b,c,d,e"} {
		t.Run(fmt.Sprintf("arity_%v", i), func(t *testing.T) {
			if _, err := Parse(tc); err == nil {
				t.Errorf("Expected parse error for %q", tc)
			}
		})
	}
}

// great-circle distance in metres
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

func TestShiftStaysWithinRange(t *testing.T) {
	t.Parallel()

	preset := LocationWithRange{
		Address:   "门口",
		Longitude: "116.30",
		Latitude:  "40.00",
		Range:     500,
	}

	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		shifted := preset.Shift(rng)

		lon, err := strconv.ParseFloat(shifted.Longitude, 64)
		if err != nil {
			t.Fatal(err)
		}
		lat, err := strconv.ParseFloat(shifted.Latitude, 64)
		if err != nil {
			t.Fatal(err)
		}

		d := haversine(40.00, 116.30, lat, lon)
		// small slack for the rounding of the printed coordinates
		if d > float64(preset.Range)+1.0 {
			t.Fatalf("shifted point %v is %.1fm away, beyond range %dm", shifted, d, preset.Range)
		}

		if shifted.Altitude != defaultAltitude {
			t.Fatalf("Actual altitude (%v) is different from expected (%v)", shifted.Altitude, defaultAltitude)
		}
	}
}

func TestShiftKeepsAddress(t *testing.T) {
	t.Parallel()

	preset := LocationWithRange{Address: "图书馆", Longitude: "116.30", Latitude: "40.00", Range: 100}
	shifted := preset.Shift(rand.New(rand.NewSource(7)))

	if shifted.Address != preset.Address {
		t.Errorf("Actual address (%v) is different from expected (%v)", shifted.Address, preset.Address)
	}
}
