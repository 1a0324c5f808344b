package location

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCircleTable_Lookup covers known, unknown and empty circles.
func TestCircleTable_Lookup(t *testing.T) {
	t.Parallel()

	table := NewCircleTable("mumbai")

	name, p, ok := table.Lookup(" Kolkata ")
	require.True(t, ok)
	require.Equal(t, "kolkata", name)
	require.InDelta(t, 22.5726, p.Latitude, 1e-6)

	name, p, ok = table.Lookup("atlantis")
	require.True(t, ok)
	require.Equal(t, "mumbai", name)
	require.InDelta(t, 72.8777, p.Longitude, 1e-6)

	name, _, ok = table.Lookup("")
	require.True(t, ok)
	require.Equal(t, "mumbai", name)
}

// TestNewCircleTableFrom_Defaults checks default selection for custom tables.
func TestNewCircleTableFrom_Defaults(t *testing.T) {
	t.Parallel()

	table := NewCircleTableFrom(map[string]Point{
		"goa":    {15.2993, 74.1240},
		"sikkim": {27.5330, 88.5122},
	}, "missing")

	name, _, ok := table.Lookup("")
	require.True(t, ok)
	require.Equal(t, "goa", name)
	require.Equal(t, 2, table.Len())

	empty := NewCircleTableFrom(nil, "delhi")
	_, _, ok = empty.Lookup("delhi")
	require.False(t, ok)
}

// TestCircleTable_Nearest names the circle closest to a point.
func TestCircleTable_Nearest(t *testing.T) {
	t.Parallel()

	table := NewCircleTable("")

	name, ok := table.Nearest(19.07, 72.88)
	require.True(t, ok)
	require.Equal(t, "mumbai", name)

	_, ok = NewCircleTableFrom(nil, "").Nearest(0, 0)
	require.False(t, ok)
}
