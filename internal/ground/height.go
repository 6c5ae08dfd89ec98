package ground

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/spatial"
)

// DefaultHeightNeighbors is the number of nearest ground points averaged
// for each height reference.
const DefaultHeightNeighbors = 3

// HeightAboveGround returns z minus the mean z of the k nearest ground
// points (by XY distance) for every point. Ground points get exactly 0.
// With no ground points every height is 0. k <= 0 selects
// DefaultHeightNeighbors; k is clamped to the number of ground points.
func HeightAboveGround(coords []r3.Vector, mask []bool, k int) ([]float64, error) {
	if len(mask) != len(coords) {
		return nil, fmt.Errorf("ground mask has %d values, cloud has %d points", len(mask), len(coords))
	}
	heights := make([]float64, len(coords))

	var ground []int
	for i, g := range mask {
		if g {
			ground = append(ground, i)
		}
	}
	if len(ground) == 0 {
		monitoring.Logf("height: no ground points; all heights set to 0")
		return heights, nil
	}

	if k <= 0 {
		k = DefaultHeightNeighbors
	}
	k = min(k, len(ground))

	gi := spatial.NewPlanarIndex(coords, ground)
	for i, c := range coords {
		if mask[i] {
			continue
		}
		nbs := gi.NearestK(c.X, c.Y, k)
		var sum float64
		for _, nb := range nbs {
			sum += coords[nb.Index].Z
		}
		heights[i] = c.Z - sum/float64(len(nbs))
	}
	return heights, nil
}
