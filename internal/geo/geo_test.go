package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine_Symmetric(t *testing.T) {
	d1 := Haversine(-33.8688, 151.2093, -37.8136, 144.9631)
	d2 := Haversine(-37.8136, 144.9631, -33.8688, 151.2093)
	assert.Equal(t, d1, d2)
}

func TestHaversine_SamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(-33.8688, 151.2093, -33.8688, 151.2093))
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Sydney to Melbourne, roughly 713 km
	d := Haversine(-33.8688, 151.2093, -37.8136, 144.9631)
	assert.InDelta(t, 713000, d, 3000)
}

func TestTimeDifference_Basic(t *testing.T) {
	d, ok := TimeDifference("10:00:00", "10:01:30")
	require.True(t, ok)
	assert.Equal(t, 90, d)
}

func TestTimeDifference_AbsoluteValue(t *testing.T) {
	d1, ok1 := TimeDifference("10:01:30", "10:00:00")
	d2, ok2 := TimeDifference("10:00:00", "10:01:30")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, d1, d2)
}

func TestTimeDifference_NoDayWrap(t *testing.T) {
	// Spans midnight but there is deliberately no wrap correction.
	d, ok := TimeDifference("23:59:59", "00:00:01")
	require.True(t, ok)
	assert.Equal(t, 86398, d)
}

func TestTimeDifference_StripsMilliseconds(t *testing.T) {
	d, ok := TimeDifference("10:00:00.123", "10:00:05.987")
	require.True(t, ok)
	assert.Equal(t, 5, d)
}

func TestTimeDifference_MalformedNeverMatches(t *testing.T) {
	_, ok := TimeDifference("bad", "00:00:00")
	assert.False(t, ok)

	_, ok = TimeDifference("10:00:00", "10:00")
	assert.False(t, ok)

	_, ok = TimeDifference("aa:bb:cc", "00:00:00")
	assert.False(t, ok)
}

func TestCommStateScore(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Loud and Clear", 3},
		{"signal was loud and clear today", 3},
		{"Readable Noisy", 2},
		{"readable noisy signal", 2}, // must not fall through to "noisy"
		{"Noisy", 1},
		{"very noisy channel", 1},
		{"no contact", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommStateScore(tt.in), "comm state %q", tt.in)
	}
}
