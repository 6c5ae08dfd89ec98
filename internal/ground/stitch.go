package ground

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/spatial"
)

// NoSeed is Result.Seed when no region is eligible.
const NoSeed = -1

// Config controls Stitch.
type Config struct {
	// SlopeIntraMax is the largest z range / XY span a region may have to
	// be considered ground at all.
	SlopeIntraMax float64
	// SlopeInterMax is the largest boundary slope accepted when merging a
	// region into the ground.
	SlopeInterMax float64
	// PercentileClosest is the fraction of a candidate's points, closest to
	// the ground, that the boundary slope is averaged over.
	PercentileClosest float64
}

// Validate checks the configuration before stitching.
func (c Config) Validate() error {
	if !(c.SlopeIntraMax >= 0) {
		return pointcloud.InvalidConfigf("slope_intra must not be negative, got %v", c.SlopeIntraMax)
	}
	if !(c.SlopeInterMax >= 0) {
		return pointcloud.InvalidConfigf("slope_inter must not be negative, got %v", c.SlopeInterMax)
	}
	if !(c.PercentileClosest > 0 && c.PercentileClosest <= 1) {
		return pointcloud.InvalidConfigf("percentile_closest must be in (0, 1], got %v", c.PercentileClosest)
	}
	return nil
}

// RegionStats summarises one labelled region.
type RegionStats struct {
	Label      int
	Members    []int
	MeanZ      float64
	MinZ       float64
	MaxZ       float64
	Span       float64
	IntraSlope float64
	Eligible   bool
}

// Result is the outcome of Stitch.
type Result struct {
	Mask []bool
	// Seed is the label the ground grew from, or NoSeed.
	Seed int
	// Merged lists the ground labels in merge order, starting with Seed.
	Merged []int
	// Regions holds the statistics of every label, ascending.
	Regions []RegionStats
}

// GroundCount returns the number of ground points.
func (r *Result) GroundCount() int {
	n := 0
	for _, g := range r.Mask {
		if g {
			n++
		}
	}
	return n
}

// Stitch merges eligible regions into a single ground set.
func Stitch(coords []r3.Vector, labels []int, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(labels) != len(coords) {
		return nil, fmt.Errorf("region labels have %d values, cloud has %d points", len(labels), len(coords))
	}

	res := &Result{
		Mask:    make([]bool, len(coords)),
		Seed:    NoSeed,
		Regions: describeRegions(coords, labels, cfg.SlopeIntraMax),
	}

	var seed *RegionStats
	var candidates []*RegionStats
	for i := range res.Regions {
		rs := &res.Regions[i]
		if !rs.Eligible {
			continue
		}
		if seed == nil || rs.MeanZ < seed.MeanZ {
			seed = rs
		}
		candidates = append(candidates, rs)
	}
	if seed == nil {
		monitoring.Logf("ground: no region has intra slope <= %g; ground set is empty", cfg.SlopeIntraMax)
		return res, nil
	}

	res.Seed = seed.Label
	res.Merged = []int{seed.Label}
	ground := append([]int(nil), seed.Members...)

	remaining := make([]*RegionStats, 0, len(candidates)-1)
	for _, c := range candidates {
		if c != seed {
			remaining = append(remaining, c)
		}
	}

	for len(remaining) > 0 {
		gi := spatial.NewPlanarIndex(coords, ground)
		best, bestSlope := -1, math.Inf(1)
		for k, c := range remaining {
			s := InterSlope(coords, gi, c.Members, cfg.PercentileClosest)
			if s < bestSlope {
				best, bestSlope = k, s
			}
		}
		if best < 0 || bestSlope > cfg.SlopeInterMax {
			break
		}
		merged := remaining[best]
		res.Merged = append(res.Merged, merged.Label)
		ground = append(ground, merged.Members...)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	for _, i := range ground {
		res.Mask[i] = true
	}
	monitoring.Logf("ground: merged %d of %d eligible regions (%d points) from seed region %d",
		len(res.Merged), len(candidates), len(ground), res.Seed)
	return res, nil
}

// describeRegions groups points by label and computes each region's
// statistics. Negative labels are ignored.
func describeRegions(coords []r3.Vector, labels []int, slopeIntraMax float64) []RegionStats {
	members := make(map[int][]int)
	for i, l := range labels {
		if l >= 0 {
			members[l] = append(members[l], i)
		}
	}
	keys := make([]int, 0, len(members))
	for l := range members {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	out := make([]RegionStats, 0, len(keys))
	zs := make([]float64, 0, len(coords))
	for _, l := range keys {
		m := members[l]
		zs = zs[:0]
		for _, i := range m {
			zs = append(zs, coords[i].Z)
		}
		rs := RegionStats{
			Label:   l,
			Members: m,
			MeanZ:   stat.Mean(zs, nil),
			MinZ:    floats.Min(zs),
			MaxZ:    floats.Max(zs),
			Span:    PlanarSpan(coords, m),
		}
		rs.IntraSlope = slope(rs.MaxZ-rs.MinZ, rs.Span)
		rs.Eligible = rs.IntraSlope <= slopeIntraMax
		out = append(out, rs)
	}
	return out
}

// PlanarSpan returns the diagonal of the XY bounding box of members.
func PlanarSpan(coords []r3.Vector, members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	minX, maxX := coords[members[0]].X, coords[members[0]].X
	minY, maxY := coords[members[0]].Y, coords[members[0]].Y
	for _, i := range members[1:] {
		p := coords[i]
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return math.Hypot(maxX-minX, maxY-minY)
}

// IntraSlope returns the z range of members divided by their planar span.
func IntraSlope(coords []r3.Vector, members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	minZ, maxZ := coords[members[0]].Z, coords[members[0]].Z
	for _, i := range members[1:] {
		minZ = math.Min(minZ, coords[i].Z)
		maxZ = math.Max(maxZ, coords[i].Z)
	}
	return slope(maxZ-minZ, PlanarSpan(coords, members))
}

// slope divides rise by run. A zero run gives 0 for a zero rise and +Inf
// otherwise.
func slope(rise, run float64) float64 {
	if run == 0 {
		if rise == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return rise / run
}

// InterSlope estimates the slope between the ground and a candidate region.
// Each candidate point is paired with its nearest ground point in XY; the
// fraction p of pairs with the smallest planar distance is kept (at least
// one, ties by point index) and their |dz| / distance values are averaged.
func InterSlope(coords []r3.Vector, ground *spatial.PlanarIndex, members []int, p float64) float64 {
	if len(members) == 0 || ground.Len() == 0 {
		return math.Inf(1)
	}
	type pair struct {
		idx   int
		dist  float64
		slope float64
	}
	pairs := make([]pair, 0, len(members))
	for _, i := range members {
		c := coords[i]
		nb, ok := ground.Nearest(c.X, c.Y)
		if !ok {
			continue
		}
		dz := math.Abs(c.Z - coords[nb.Index].Z)
		pairs = append(pairs, pair{idx: i, dist: nb.Dist, slope: slope(dz, nb.Dist)})
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].dist != pairs[b].dist {
			return pairs[a].dist < pairs[b].dist
		}
		return pairs[a].idx < pairs[b].idx
	})

	k := int(math.Ceil(p * float64(len(pairs))))
	k = max(1, min(k, len(pairs)))
	slopes := make([]float64, k)
	for j := range slopes {
		slopes[j] = pairs[j].slope
	}
	return stat.Mean(slopes, nil)
}
