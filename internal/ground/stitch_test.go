package ground

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/spatial"
	"github.com/banshee-data/groundseg/internal/testutil"
)

var defaultConfig = Config{SlopeIntraMax: 0.1, SlopeInterMax: 0.2, PercentileClosest: 0.1}

// square appends a 10×10 square at 0.1 spacing starting at x0, with z given
// by height, labelled label.
func square(coords []r3.Vector, labels []int, x0 float64, label int, height func(x float64) float64) ([]r3.Vector, []int) {
	for iy := 0; iy < 10; iy++ {
		for ix := 0; ix < 10; ix++ {
			x := x0 + float64(ix)/10
			coords = append(coords, r3.Vector{X: x, Y: float64(iy) / 10, Z: height(x)})
			labels = append(labels, label)
		}
	}
	return coords, labels
}

func flat(z float64) func(float64) float64 {
	return func(float64) float64 { return z }
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, defaultConfig.Validate())
	bad := []Config{
		{SlopeIntraMax: -1, SlopeInterMax: 0.2, PercentileClosest: 0.1},
		{SlopeIntraMax: 0.1, SlopeInterMax: math.NaN(), PercentileClosest: 0.1},
		{SlopeIntraMax: 0.1, SlopeInterMax: 0.2, PercentileClosest: 0},
		{SlopeIntraMax: 0.1, SlopeInterMax: 0.2, PercentileClosest: 1.5},
	}
	for _, c := range bad {
		assert.True(t, errors.Is(c.Validate(), pointcloud.ErrInvalidConfiguration), "%+v", c)
	}
}

func TestIntraSlope(t *testing.T) {
	coords := []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 3, Y: 4, Z: 1}, {X: 1, Y: 1, Z: 0.5}}
	assert.InDelta(t, 0.2, IntraSlope(coords, []int{0, 1, 2}), 1e-12)
	assert.InDelta(t, 5.0, PlanarSpan(coords, []int{0, 1}), 1e-12)

	stacked := []r3.Vector{{Z: 0}, {Z: 1}}
	assert.True(t, math.IsInf(IntraSlope(stacked, []int{0, 1}), 1))
	assert.Zero(t, IntraSlope(stacked, []int{0}))
	assert.Zero(t, IntraSlope(stacked, nil))
}

func TestInterSlope(t *testing.T) {
	coords := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0.1},
		{X: 2, Y: 0, Z: 2},
		{X: 3, Y: 0, Z: 3},
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 1},
	}
	gi := spatial.NewPlanarIndex(coords, []int{0})
	members := []int{3, 2, 1}

	assert.InDelta(t, 0.1, InterSlope(coords, gi, members, 0.1), 1e-12)
	assert.InDelta(t, 0.55, InterSlope(coords, gi, members, 0.34), 1e-12)
	assert.InDelta(t, 0.7, InterSlope(coords, gi, members, 1), 1e-12)

	assert.Zero(t, InterSlope(coords, gi, []int{4}, 1))
	assert.True(t, math.IsInf(InterSlope(coords, gi, []int{5}, 1), 1))
	assert.True(t, math.IsInf(InterSlope(coords, gi, nil, 1), 1))
	assert.True(t, math.IsInf(InterSlope(coords, spatial.NewPlanarIndex(coords, []int{}), members, 1), 1))
}

func TestStitch_MergesGentleNeighbours(t *testing.T) {
	testutil.MuteLogs(t)
	var coords []r3.Vector
	var labels []int
	coords, labels = square(coords, labels, 0, 0, flat(0))
	coords, labels = square(coords, labels, 1, 1, flat(0.01))
	coords, labels = square(coords, labels, 2, 2, flat(1))
	coords, labels = square(coords, labels, 3, 3, func(x float64) float64 { return x })
	coords = append(coords, r3.Vector{X: -5})
	labels = append(labels, -1)

	res, err := Stitch(coords, labels, defaultConfig)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Seed)
	assert.Equal(t, []int{0, 1}, res.Merged)
	assert.Equal(t, 200, res.GroundCount())

	for i, l := range labels {
		assert.Equal(t, l == 0 || l == 1, res.Mask[i], "point %d label %d", i, l)
	}

	require.Len(t, res.Regions, 4)
	assert.True(t, res.Regions[2].Eligible)
	assert.False(t, res.Regions[3].Eligible)
	assert.Greater(t, res.Regions[3].IntraSlope, defaultConfig.SlopeIntraMax)
	assert.InDelta(t, 0.01, res.Regions[1].MeanZ, 1e-12)
}

func TestStitch_SeedTieGoesToLowerLabel(t *testing.T) {
	testutil.MuteLogs(t)
	var coords []r3.Vector
	var labels []int
	coords, labels = square(coords, labels, 5, 3, flat(0))
	coords, labels = square(coords, labels, 0, 1, flat(0))

	res, err := Stitch(coords, labels, defaultConfig)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Seed)
	assert.Equal(t, []int{1, 3}, res.Merged)
	assert.Equal(t, 200, res.GroundCount())
}

func TestStitch_SeedIsLowestEligible(t *testing.T) {
	testutil.MuteLogs(t)
	var coords []r3.Vector
	var labels []int
	coords, labels = square(coords, labels, 0, 0, flat(2))
	coords, labels = square(coords, labels, 1, 1, flat(-3))
	coords, labels = square(coords, labels, 2, 2, func(x float64) float64 { return -10 * x })

	res, err := Stitch(coords, labels, defaultConfig)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Seed)
	assert.Equal(t, []int{1}, res.Merged)
}

func TestStitch_NoEligibleRegion(t *testing.T) {
	testutil.MuteLogs(t)
	var coords []r3.Vector
	var labels []int
	coords, labels = square(coords, labels, 0, 0, func(x float64) float64 { return x })

	res, err := Stitch(coords, labels, defaultConfig)
	require.NoError(t, err)
	assert.Equal(t, NoSeed, res.Seed)
	assert.Empty(t, res.Merged)
	assert.Zero(t, res.GroundCount())
	assert.Len(t, res.Mask, len(coords))
}

func TestStitch_Errors(t *testing.T) {
	_, err := Stitch([]r3.Vector{{}}, []int{0, 0}, defaultConfig)
	assert.Error(t, err)

	_, err = Stitch(nil, nil, Config{PercentileClosest: 2})
	assert.ErrorIs(t, err, pointcloud.ErrInvalidConfiguration)
}
