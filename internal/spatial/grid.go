package spatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// EstimatedPointsPerCell is used for the initial grid capacity estimate.
const EstimatedPointsPerCell = 8

// boundaryTolerance widens the squared radius slightly so that points lying
// on the sphere are found from both sides despite rounding.
const boundaryTolerance = 1e-9

// Searcher answers radius queries around indexed points. Implementations
// must be safe for concurrent readers.
type Searcher interface {
	// Len returns the number of indexed points.
	Len() int

	// QueryRadius appends to buf the indices of all points within r of
	// point i, including i itself, in ascending order.
	QueryRadius(i int, r float64, buf []int) []int
}

type cellKey struct {
	x, y, z int64
}

// Index is a uniform 3D hash grid over a fixed point set. Queries with a
// radius close to CellSize inspect the 27 surrounding cells.
type Index struct {
	CellSize float64

	points []r3.Vector
	cells  map[cellKey][]int
}

// NewIndex builds a grid over points. cellSize should approximately match
// the query radius.
func NewIndex(points []r3.Vector, cellSize float64) (*Index, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("spatial index cell size must be positive and finite, got %v", cellSize)
	}
	ix := &Index{
		CellSize: cellSize,
		points:   points,
		cells:    make(map[cellKey][]int, len(points)/EstimatedPointsPerCell+1),
	}
	for i, p := range points {
		k := ix.cellOf(p)
		ix.cells[k] = append(ix.cells[k], i)
	}
	return ix, nil
}

func (ix *Index) cellOf(p r3.Vector) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X / ix.CellSize)),
		y: int64(math.Floor(p.Y / ix.CellSize)),
		z: int64(math.Floor(p.Z / ix.CellSize)),
	}
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// Point returns the coordinates of point i.
func (ix *Index) Point(i int) r3.Vector { return ix.points[i] }

// QueryRadius returns the neighbours of indexed point i.
func (ix *Index) QueryRadius(i int, r float64, buf []int) []int {
	return ix.QueryPoint(ix.points[i], r, buf)
}

// QueryPoint appends to buf the indices of all points within r of p, in
// ascending order.
func (ix *Index) QueryPoint(p r3.Vector, r float64, buf []int) []int {
	buf = buf[:0]
	if r < 0 {
		return buf
	}
	r2 := r * r * (1 + boundaryTolerance)
	reach := int64(math.Ceil(r / ix.CellSize))
	if reach < 1 {
		reach = 1
	}

	base := ix.cellOf(p)
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				cell := ix.cells[cellKey{base.x + dx, base.y + dy, base.z + dz}]
				for _, j := range cell {
					if ix.points[j].Sub(p).Norm2() <= r2 {
						buf = append(buf, j)
					}
				}
			}
		}
	}
	sort.Ints(buf)
	return buf
}
