// Package geo holds the pure measurement math used by the station report
// pipeline: great-circle distance, HH:MM:SS time deltas and the ordinal
// communication-quality score.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance in meters between two
// lat/lon points. Symmetric in its arguments; zero for identical points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// TimeDifference returns the absolute difference in seconds between two
// HH:MM:SS clock strings. A fractional-seconds suffix ("10:00:00.123") is
// stripped before parsing. There is no day-wrap correction: 23:59:59 vs
// 00:00:01 yields 86398.
//
// ok is false when either string does not parse; callers must treat that as
// "no match possible" (it can never satisfy a tolerance), not as zero.
func TimeDifference(t1, t2 string) (seconds int, ok bool) {
	s1, ok := secondsOfDay(t1)
	if !ok {
		return 0, false
	}
	s2, ok := secondsOfDay(t2)
	if !ok {
		return 0, false
	}
	d := s1 - s2
	if d < 0 {
		d = -d
	}
	return d, true
}

func secondsOfDay(t string) (int, bool) {
	// Drop milliseconds if present
	if i := strings.IndexByte(t, '.'); i >= 0 {
		t = t[:i]
	}
	parts := strings.Split(t, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	s, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return h*3600 + m*60 + s, true
}

// CommStateScore classifies a free-text comm state into an ordinal quality
// score 0..3. "readable noisy" must be checked before "noisy": the more
// specific phrase contains the less specific one as a substring.
func CommStateScore(commState string) int {
	s := strings.ToLower(strings.TrimSpace(commState))
	switch {
	case strings.Contains(s, "loud and clear"):
		return 3
	case strings.Contains(s, "readable noisy"):
		return 2
	case strings.Contains(s, "noisy"):
		return 1
	default:
		return 0
	}
}
