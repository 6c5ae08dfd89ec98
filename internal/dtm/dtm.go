// Package dtm rasterizes ground points into a sparse digital terrain model.
package dtm

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pointcloud"
)

const chunkSize = 8192

// Cell is one occupied raster cell. X and Y are the cell centre; Z is the
// mean z of the contributing ground points.
type Cell struct {
	IX, IY int
	X, Y   float64
	Z      float64
	Count  int
}

// Raster is a sparse grid anchored at the minimum XY corner of the ground
// points. Cells holds only occupied cells, ordered by (IY, IX).
type Raster struct {
	OriginX, OriginY float64
	Step             float64
	NX, NY           int
	Cells            []Cell
}

type accum struct {
	sum   float64
	count int
}

// Rasterize grids the points selected by mask with square cells of side
// step. Points on the far edge of the bounding box fall into the last cell.
// workers <= 0 means runtime.NumCPU().
func Rasterize(ctx context.Context, coords []r3.Vector, mask []bool, step float64, workers int) (*Raster, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, pointcloud.InvalidConfigf("rasterize step must be positive, got %v", step)
	}
	if len(mask) != len(coords) {
		return nil, fmt.Errorf("ground mask has %d values, cloud has %d points", len(mask), len(coords))
	}

	var ground []int
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, g := range mask {
		if !g {
			continue
		}
		ground = append(ground, i)
		p := coords[i]
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	r := &Raster{Step: step}
	if len(ground) == 0 {
		monitoring.Logf("dtm: no ground points to rasterize")
		return r, nil
	}

	r.OriginX, r.OriginY = minX, minY
	r.NX = cellsAlong(maxX-minX, step)
	r.NY = cellsAlong(maxY-minY, step)

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	nChunks := (len(ground) + chunkSize - 1) / chunkSize
	partial := make([]map[int]*accum, nChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < nChunks; c++ {
		c := c
		start := c * chunkSize
		end := min(start+chunkSize, len(ground))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cells := make(map[int]*accum)
			for _, i := range ground[start:end] {
				p := coords[i]
				ix := clampIndex((p.X-minX)/step, r.NX)
				iy := clampIndex((p.Y-minY)/step, r.NY)
				key := iy*r.NX + ix
				a := cells[key]
				if a == nil {
					a = &accum{}
					cells[key] = a
				}
				a.sum += p.Z
				a.count++
			}
			partial[c] = cells
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := partial[0]
	for _, cells := range partial[1:] {
		for key, a := range cells {
			if m := merged[key]; m != nil {
				m.sum += a.sum
				m.count += a.count
			} else {
				merged[key] = a
			}
		}
	}

	keys := make([]int, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	r.Cells = make([]Cell, 0, len(keys))
	for _, key := range keys {
		a := merged[key]
		ix, iy := key%r.NX, key/r.NX
		r.Cells = append(r.Cells, Cell{
			IX:    ix,
			IY:    iy,
			X:     minX + (float64(ix)+0.5)*step,
			Y:     minY + (float64(iy)+0.5)*step,
			Z:     a.sum / float64(a.count),
			Count: a.count,
		})
	}
	monitoring.Logf("dtm: %d ground points in %d cells (%dx%d grid, step %g)", len(ground), len(r.Cells), r.NX, r.NY, step)
	return r, nil
}

func cellsAlong(extent, step float64) int {
	return max(1, int(math.Ceil(extent/step)))
}

func clampIndex(v float64, n int) int {
	i := int(math.Floor(v))
	return max(0, min(i, n-1))
}

// Table returns the raster as a point table with columns x, y, z, count.
func (r *Raster) Table() *pointcloud.Table {
	x := make([]float64, len(r.Cells))
	y := make([]float64, len(r.Cells))
	z := make([]float64, len(r.Cells))
	count := make([]float64, len(r.Cells))
	for i, c := range r.Cells {
		x[i], y[i], z[i] = c.X, c.Y, c.Z
		count[i] = float64(c.Count)
	}
	t, _ := pointcloud.NewTable(x, y, z)
	_ = t.Set(pointcloud.FieldCount, count)
	return t
}

// Bounds returns the z range over occupied cells. ok is false for an empty
// raster.
func (r *Raster) Bounds() (minZ, maxZ float64, ok bool) {
	if len(r.Cells) == 0 {
		return 0, 0, false
	}
	minZ, maxZ = r.Cells[0].Z, r.Cells[0].Z
	for _, c := range r.Cells[1:] {
		minZ = math.Min(minZ, c.Z)
		maxZ = math.Max(maxZ, c.Z)
	}
	return minZ, maxZ, true
}
