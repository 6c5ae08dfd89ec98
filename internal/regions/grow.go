package regions

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/spatial"
)

// Unassigned labels a point that no region reached.
const Unassigned = -1

// Thresholds bound how far a candidate may deviate from its region.
type Thresholds struct {
	// Height is the maximum |z - seed z|.
	Height float64
	// Angle is the maximum angle in radians between the candidate normal
	// and the seed normal.
	Angle float64
	// Descriptor is the maximum distance from the running mean descriptor.
	Descriptor float64
}

// Config controls Grow.
type Config struct {
	Radius     float64
	NRegions   int
	Minimize   bool
	Thresholds Thresholds
}

// Validate checks the configuration before growing.
func (c Config) Validate() error {
	if !(c.Radius > 0) {
		return pointcloud.InvalidConfigf("region radius must be positive, got %v", c.Radius)
	}
	if c.NRegions <= 0 {
		return pointcloud.InvalidConfigf("n_regions must be positive, got %d", c.NRegions)
	}
	for name, v := range map[string]float64{
		"height":     c.Thresholds.Height,
		"angle":      c.Thresholds.Angle,
		"descriptor": c.Thresholds.Descriptor,
	} {
		if !(v >= 0) {
			return pointcloud.InvalidConfigf("%s threshold must not be negative, got %v", name, v)
		}
	}
	return nil
}

// Region describes one grown region.
type Region struct {
	Label      int
	Seed       int
	SeedHeight float64
	SeedNormal r3.Vector
	// MeanDescriptor is the running mean over Members.
	MeanDescriptor float64
	// Members are in acceptance order, starting with Seed.
	Members []int
}

// Result holds the per-point labels and the regions grown.
type Result struct {
	Labels  []int
	Regions []Region
}

// Unassigned returns the number of points left with label Unassigned.
func (r *Result) Unassigned() int {
	n := 0
	for _, l := range r.Labels {
		if l == Unassigned {
			n++
		}
	}
	return n
}

// Grow labels points by growing up to cfg.NRegions regions. idx may be nil,
// in which case a grid with cell size cfg.Radius is built.
func Grow(coords, normals []r3.Vector, values []float64, idx spatial.Searcher, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(coords)
	if len(normals) != n || len(values) != n {
		return nil, fmt.Errorf("region growing inputs differ in length: coords=%d normals=%d values=%d", n, len(normals), len(values))
	}
	if idx == nil {
		grid, err := spatial.NewIndex(coords, cfg.Radius)
		if err != nil {
			return nil, err
		}
		idx = grid
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Unassigned
	}
	order := rank(values, cfg.Minimize)

	res := &Result{Labels: labels}
	th := cfg.Thresholds
	cursor := 0
	var buf []int
	for r := 0; r < cfg.NRegions; r++ {
		for cursor < n && labels[order[cursor]] != Unassigned {
			cursor++
		}
		if cursor == n {
			break
		}

		seed := order[cursor]
		reg := Region{
			Label:          r,
			Seed:           seed,
			SeedHeight:     coords[seed].Z,
			SeedNormal:     normals[seed],
			MeanDescriptor: values[seed],
		}
		labels[seed] = r
		queue := []int{seed}
		for head := 0; head < len(queue); head++ {
			buf = idx.QueryRadius(queue[head], cfg.Radius, buf)
			for _, q := range buf {
				if labels[q] != Unassigned {
					continue
				}
				if math.Abs(coords[q].Z-reg.SeedHeight) > th.Height {
					continue
				}
				if angleBetween(normals[q], reg.SeedNormal) > th.Angle {
					continue
				}
				if math.Abs(values[q]-reg.MeanDescriptor) > th.Descriptor {
					continue
				}
				labels[q] = r
				queue = append(queue, q)
				reg.MeanDescriptor += (values[q] - reg.MeanDescriptor) / float64(len(queue))
			}
		}
		reg.Members = queue
		res.Regions = append(res.Regions, reg)
	}

	monitoring.Logf("regions: grew %d regions, %d of %d points unassigned", len(res.Regions), res.Unassigned(), n)
	return res, nil
}

// rank orders point indices by value, ascending when minimize is set and
// descending otherwise, breaking ties by index. NaN values rank last.
func rank(values []float64, minimize bool) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := values[order[a]], values[order[b]]
		if math.IsNaN(va) || math.IsNaN(vb) {
			return !math.IsNaN(va) && math.IsNaN(vb)
		}
		if minimize {
			return va < vb
		}
		return va > vb
	})
	return order
}

// angleBetween returns the angle between two normals in radians.
func angleBetween(a, b r3.Vector) float64 {
	d := a.Dot(b)
	return math.Acos(math.Max(-1, math.Min(1, d)))
}
