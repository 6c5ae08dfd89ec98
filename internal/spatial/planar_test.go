package spatial

import (
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanarIndex_Empty(t *testing.T) {
	pi := NewPlanarIndex(nil, nil)
	assert.Equal(t, 0, pi.Len())

	nb, ok := pi.Nearest(0, 0)
	assert.False(t, ok)
	assert.Equal(t, -1, nb.Index)
	assert.True(t, math.IsInf(nb.Dist, 1))
	assert.Nil(t, pi.NearestK(0, 0, 3))
}

func TestPlanarIndex_IgnoresZ(t *testing.T) {
	pts := []r3.Vector{{X: 0, Y: 0, Z: 100}, {X: 3, Y: 0, Z: 0}}
	pi := NewPlanarIndex(pts, nil)

	nb, ok := pi.Nearest(1, 0)
	require.True(t, ok)
	assert.Equal(t, 0, nb.Index)
	assert.InDelta(t, 1.0, nb.Dist, 1e-12)
}

func TestPlanarIndex_Members(t *testing.T) {
	pts := []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}}
	pi := NewPlanarIndex(pts, []int{2, 3})
	assert.Equal(t, 2, pi.Len())

	nb, ok := pi.Nearest(0, 0)
	require.True(t, ok)
	assert.Equal(t, 2, nb.Index)
	assert.InDelta(t, 2.0, nb.Dist, 1e-12)
}

func TestPlanarIndex_MatchesBruteForce(t *testing.T) {
	pts := randomCloud(500, 7)
	pi := NewPlanarIndex(pts, nil)
	queries := randomCloud(50, 8)

	for _, q := range queries {
		type cand struct {
			i int
			d float64
		}
		all := make([]cand, len(pts))
		for i, p := range pts {
			all[i] = cand{i, math.Hypot(p.X-q.X, p.Y-q.Y)}
		}
		sort.Slice(all, func(a, b int) bool { return all[a].d < all[b].d })

		nb, ok := pi.Nearest(q.X, q.Y)
		require.True(t, ok)
		assert.Equal(t, all[0].i, nb.Index)
		assert.InDelta(t, all[0].d, nb.Dist, 1e-9)

		got := pi.NearestK(q.X, q.Y, 5)
		require.Len(t, got, 5)
		for k := range got {
			assert.Equal(t, all[k].i, got[k].Index)
			assert.InDelta(t, all[k].d, got[k].Dist, 1e-9)
		}
	}
}

func TestPlanarIndex_NearestKMoreThanAvailable(t *testing.T) {
	pts := []r3.Vector{{X: 2}, {X: 1}, {X: 1, Y: 0, Z: 5}}
	pi := NewPlanarIndex(pts, nil)

	got := pi.NearestK(0, 0, 10)
	require.Len(t, got, 3)
	// Equal distances are ordered by index.
	assert.Equal(t, []int{1, 2, 0}, []int{got[0].Index, got[1].Index, got[2].Index})
	assert.Nil(t, pi.NearestK(0, 0, 0))
}

func TestPlanarIndex_NearestKTiesAtCutoff(t *testing.T) {
	// Eight points at distance 1 from the origin (each axis point twice,
	// the second at a different z) and one closer point.
	axes := []r3.Vector{{X: 1}, {Y: 1}, {X: -1}, {Y: -1}}
	var pts []r3.Vector
	pts = append(pts, axes...)
	for _, p := range axes {
		pts = append(pts, r3.Vector{X: p.X, Y: p.Y, Z: 3})
	}
	pts = append(pts, r3.Vector{X: 0.5})
	pi := NewPlanarIndex(pts, nil)

	got := pi.NearestK(0, 0, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 8, got[0].Index)
	assert.Equal(t, []int{0, 1}, []int{got[1].Index, got[2].Index})
	assert.Equal(t, 1.0, got[2].Dist)
}
