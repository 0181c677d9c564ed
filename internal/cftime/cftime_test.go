package cftime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	t.Parallel()

	u, err := ParseUnits("hours since 1990-09-01 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, u.Step)
	assert.Equal(t, time.Date(1990, 9, 1, 0, 0, 0, 0, time.UTC), u.Epoch)

	got := u.Decode([]float64{0, 3, 49.5})
	assert.Equal(t, time.Date(1990, 9, 1, 3, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(1990, 9, 3, 1, 30, 0, 0, time.UTC), got[2])
	assert.Equal(t, []float64{0, 3, 49.5}, u.Encode(got))

	_, err = ParseUnits("m/s")
	require.Error(t, err)
	_, err = ParseUnits("fortnights since 2000-01-01")
	require.Error(t, err)
	assert.False(t, IsTimeUnits("K"))
}

func TestUnits_StringRoundTrips(t *testing.T) {
	t.Parallel()

	u, err := ParseUnits(Epoch.String())

	require.NoError(t, err)
	assert.Equal(t, Epoch, u)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"PT3H":    3 * time.Hour,
		"PT1H30M": 90 * time.Minute,
		"P1DT12H": 36 * time.Hour,
		"P1W":     7 * 24 * time.Hour,
		"PT0.5S":  500 * time.Millisecond,
		"pt15m":   15 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "P", "PT", "3H", "P1Y", "P1DT"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}
