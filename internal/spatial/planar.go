package spatial

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a planar query result. Dist is the XY distance.
type Neighbor struct {
	Index int
	Dist  float64
}

// PlanarIndex finds nearest points by XY distance. Indices returned refer
// to the point slice it was built from.
type PlanarIndex struct {
	tree *kdtree.Tree
	n    int
}

// NewPlanarIndex builds a k-d tree over the XY projection of the selected
// members of points. A nil members slice selects every point.
func NewPlanarIndex(points []r3.Vector, members []int) *PlanarIndex {
	var pts planarPoints
	if members == nil {
		pts = make(planarPoints, len(points))
		for i, p := range points {
			pts[i] = planarPoint{x: p.X, y: p.Y, idx: i}
		}
	} else {
		pts = make(planarPoints, len(members))
		for k, i := range members {
			pts[k] = planarPoint{x: points[i].X, y: points[i].Y, idx: i}
		}
	}
	pi := &PlanarIndex{n: len(pts)}
	if len(pts) > 0 {
		pi.tree = kdtree.New(pts, false)
	}
	return pi
}

// Len returns the number of indexed points.
func (pi *PlanarIndex) Len() int { return pi.n }

// Nearest returns the closest indexed point to (x, y). ok is false when the
// index is empty.
func (pi *PlanarIndex) Nearest(x, y float64) (nb Neighbor, ok bool) {
	if pi.tree == nil {
		return Neighbor{Index: -1, Dist: math.Inf(1)}, false
	}
	c, d2 := pi.tree.Nearest(planarPoint{x: x, y: y})
	if c == nil {
		return Neighbor{Index: -1, Dist: math.Inf(1)}, false
	}
	return Neighbor{Index: c.(planarPoint).idx, Dist: math.Sqrt(d2)}, true
}

// NearestK returns up to k indexed points closest to (x, y), nearest first.
// Equal distances are ordered by index.
func (pi *PlanarIndex) NearestK(x, y float64, k int) []Neighbor {
	if pi.tree == nil || k <= 0 {
		return nil
	}
	q := planarPoint{x: x, y: y}
	nk := kdtree.NewNKeeper(k)
	pi.tree.NearestSet(nk, q)
	heap := nk.Heap
	if k < pi.n {
		// The k-th distance may be shared by points the keeper dropped.
		// Collect every point within it and trim after sorting.
		kth := 0.0
		for _, cd := range nk.Heap {
			if cd.Comparable != nil && cd.Dist > kth {
				kth = cd.Dist
			}
		}
		dk := kdtree.NewDistKeeper(kth)
		pi.tree.NearestSet(dk, q)
		heap = dk.Heap
	}

	out := make([]Neighbor, 0, len(heap))
	for _, cd := range heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Index: cd.Comparable.(planarPoint).idx, Dist: math.Sqrt(cd.Dist)})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Dist != out[b].Dist {
			return out[a].Dist < out[b].Dist
		}
		return out[a].Index < out[b].Index
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// planarPoint satisfies kdtree.Comparable over the XY plane.
type planarPoint struct {
	x, y float64
	idx  int
}

func (p planarPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(planarPoint)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p planarPoint) Dims() int { return 2 }

// Distance returns the squared planar distance.
func (p planarPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(planarPoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

func (p planarPoint) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return p.x
	}
	return p.y
}

type planarPoints []planarPoint

func (p planarPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p planarPoints) Len() int                      { return len(p) }
func (p planarPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p planarPoints) Pivot(d kdtree.Dim) int {
	return planarPlane{Dim: d, points: p}.pivot()
}

// planarPlane sorts points along one dimension for median partitioning.
type planarPlane struct {
	kdtree.Dim
	points planarPoints
}

func (p planarPlane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p planarPlane) Len() int { return len(p.points) }

func (p planarPlane) Less(i, j int) bool {
	return p.points[i].coord(p.Dim) < p.points[j].coord(p.Dim)
}

func (p planarPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func (p planarPlane) Slice(start, end int) kdtree.SortSlicer {
	return planarPlane{Dim: p.Dim, points: p.points[start:end]}
}
