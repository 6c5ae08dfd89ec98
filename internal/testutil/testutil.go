// Package testutil provides shared test utilities and fixtures.
//
// The synthetic scene is a flat 100×100 patch on z=0 at 0.1 spacing with a
// thin vertical column of points standing on its edge, rising to z=5.
package testutil

import (
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/groundseg/internal/monitoring"
)

const (
	// PatchSide is the number of points along each side of the flat patch.
	PatchSide = 100
	// PatchSpacing is the distance between neighbouring patch points.
	PatchSpacing = 0.1
	// WallLevels is the number of z levels in the wall column.
	WallLevels = 50
)

// WallX and WallY are the lattice columns (in patch units) the wall stands on.
var (
	WallX = []int{98, 99}
	WallY = []int{50, 51}
)

// MuteLogs silences the package logger for the duration of the test.
func MuteLogs(t testing.TB) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func lattice(k int) float64 {
	return float64(k) / 10
}

// PatchIndex returns the index of patch point (ix, iy) in FlatPatch.
func PatchIndex(ix, iy int) int {
	return iy*PatchSide + ix
}

// FlatPatch returns PatchSide² points on z=0, row-major in y.
func FlatPatch() []r3.Vector {
	pts := make([]r3.Vector, 0, PatchSide*PatchSide)
	for iy := 0; iy < PatchSide; iy++ {
		for ix := 0; ix < PatchSide; ix++ {
			pts = append(pts, r3.Vector{X: lattice(ix), Y: lattice(iy)})
		}
	}
	return pts
}

// WallColumn returns a 2×2 column of points above the patch lattice at
// z = 0.1 … 5.0. The last point returned sits at z = 5.
func WallColumn() []r3.Vector {
	pts := make([]r3.Vector, 0, WallLevels*len(WallX)*len(WallY))
	for k := 1; k <= WallLevels; k++ {
		for _, ix := range WallX {
			for _, iy := range WallY {
				pts = append(pts, r3.Vector{X: lattice(ix), Y: lattice(iy), Z: lattice(k)})
			}
		}
	}
	return pts
}

// Scene is the flat patch followed by the wall column.
type Scene struct {
	Points []r3.Vector
	// PatchCount is the number of leading patch points.
	PatchCount int
	// WallTop is the index of a wall point at z = 5.
	WallTop int
}

// PatchAndWall builds the combined scene.
func PatchAndWall() Scene {
	patch := FlatPatch()
	wall := WallColumn()
	pts := append(patch, wall...)
	return Scene{
		Points:     pts,
		PatchCount: len(patch),
		WallTop:    len(pts) - 1,
	}
}

// IsWall reports whether point i of the scene belongs to the wall.
func (s Scene) IsWall(i int) bool {
	return i >= s.PatchCount
}

// Interior reports whether patch point i is at least margin lattice steps
// away from every patch edge.
func Interior(i, margin int) bool {
	ix, iy := i%PatchSide, i/PatchSide
	return ix >= margin && iy >= margin && ix < PatchSide-margin && iy < PatchSide-margin
}

// NearWall reports whether patch point i lies within dist (planar) of the
// wall column footprint.
func NearWall(p r3.Vector, dist float64) bool {
	for _, ix := range WallX {
		for _, iy := range WallY {
			dx, dy := p.X-lattice(ix), p.Y-lattice(iy)
			if dx*dx+dy*dy <= dist*dist {
				return true
			}
		}
	}
	return false
}
