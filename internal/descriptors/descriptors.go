package descriptors

import (
	"context"
	"math"
	"runtime"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/spatial"
)

// MinNeighbors is the smallest neighbourhood with a usable covariance.
const MinNeighbors = 3

// chunkSize is the number of points handed to one worker task.
const chunkSize = 2048

// Config selects the descriptors and neighbourhood used by Compute.
type Config struct {
	Radius               float64
	Descriptors          []string
	PreferredOrientation string
	Epsilon              float64
	// Workers bounds the goroutines used; 0 means runtime.NumCPU().
	Workers int
}

// Validate checks the configuration before any point is processed.
func (c Config) Validate() error {
	if !(c.Radius > 0) {
		return pointcloud.InvalidConfigf("descriptor radius must be positive, got %v", c.Radius)
	}
	if !(c.Epsilon > 0) {
		return pointcloud.InvalidConfigf("descriptor epsilon must be positive, got %v", c.Epsilon)
	}
	if c.Workers < 0 {
		return pointcloud.InvalidConfigf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := ParseOrientation(c.PreferredOrientation); err != nil {
		return err
	}
	_, err := ExpandDescriptors(c.Descriptors)
	return err
}

// Result holds the requested descriptor columns keyed by field name.
type Result struct {
	Fields map[string][]float64
	// Degenerate counts points whose neighbourhood was too small.
	Degenerate int
}

// Shape is the descriptor set of one point.
type Shape struct {
	Normal      r3.Vector
	Verticality float64
	Linearity   float64
	Planarity   float64
	Sphericity  float64
	Curvature   float64
}

type columns struct {
	nx, ny, nz, vert, lin, plan, sph, curv []float64
}

func newColumns(n int) *columns {
	return &columns{
		nx:   make([]float64, n),
		ny:   make([]float64, n),
		nz:   make([]float64, n),
		vert: make([]float64, n),
		lin:  make([]float64, n),
		plan: make([]float64, n),
		sph:  make([]float64, n),
		curv: make([]float64, n),
	}
}

func (c *columns) set(i int, s Shape) {
	c.nx[i], c.ny[i], c.nz[i] = s.Normal.X, s.Normal.Y, s.Normal.Z
	c.vert[i] = s.Verticality
	c.lin[i] = s.Linearity
	c.plan[i] = s.Planarity
	c.sph[i] = s.Sphericity
	c.curv[i] = s.Curvature
}

// Compute returns the descriptors selected by cfg for every point. idx may
// be nil, in which case a grid with cell size cfg.Radius is built.
func Compute(ctx context.Context, coords []r3.Vector, idx spatial.Searcher, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	selected, _ := ExpandDescriptors(cfg.Descriptors)
	preferred, _ := ParseOrientation(cfg.PreferredOrientation)

	if idx == nil {
		grid, err := spatial.NewIndex(coords, cfg.Radius)
		if err != nil {
			return nil, err
		}
		idx = grid
	}

	n := len(coords)
	cols := newColumns(n)
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	nChunks := (n + chunkSize - 1) / chunkSize
	degenerate := make([]int, nChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < nChunks; c++ {
		c := c
		start := c * chunkSize
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e := newEstimator(cfg.Epsilon, preferred)
			var buf []int
			for i := start; i < end; i++ {
				buf = idx.QueryRadius(i, cfg.Radius, buf)
				s, ok := e.shape(coords, buf)
				if !ok {
					degenerate[c]++
				}
				cols.set(i, s)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Fields: make(map[string][]float64, 8)}
	for _, d := range degenerate {
		res.Degenerate += d
	}
	if res.Degenerate > 0 {
		monitoring.Logf("descriptors: %d of %d points have fewer than %d neighbours within %g; zero descriptors assigned",
			res.Degenerate, n, MinNeighbors, cfg.Radius)
	}

	for _, name := range selected {
		switch name {
		case pointcloud.DescriptorNormals:
			res.Fields[pointcloud.FieldNX] = cols.nx
			res.Fields[pointcloud.FieldNY] = cols.ny
			res.Fields[pointcloud.FieldNZ] = cols.nz
		case pointcloud.DescriptorVerticality:
			res.Fields[name] = cols.vert
		case pointcloud.DescriptorLinearity:
			res.Fields[name] = cols.lin
		case pointcloud.DescriptorPlanarity:
			res.Fields[name] = cols.plan
		case pointcloud.DescriptorSphericity:
			res.Fields[name] = cols.sph
		case pointcloud.DescriptorCurvature:
			res.Fields[name] = cols.curv
		}
	}
	return res, nil
}

// estimator holds the per-worker scratch space for eigen-decomposition.
type estimator struct {
	eps       float64
	preferred r3.Vector
	cov       *mat.SymDense
	eig       mat.EigenSym
	vecs      mat.Dense
	vals      []float64
}

func newEstimator(eps float64, preferred r3.Vector) *estimator {
	return &estimator{
		eps:       eps,
		preferred: preferred,
		cov:       mat.NewSymDense(3, nil),
		vals:      make([]float64, 3),
	}
}

// shape computes the descriptors of one neighbourhood. ok is false for a
// degenerate neighbourhood, which yields the zero Shape.
func (e *estimator) shape(coords []r3.Vector, neighbors []int) (Shape, bool) {
	if len(neighbors) < MinNeighbors {
		return Shape{}, false
	}

	var centroid r3.Vector
	for _, j := range neighbors {
		centroid = centroid.Add(coords[j])
	}
	centroid = centroid.Mul(1 / float64(len(neighbors)))

	var sxx, sxy, sxz, syy, syz, szz float64
	for _, j := range neighbors {
		d := coords[j].Sub(centroid)
		sxx += d.X * d.X
		sxy += d.X * d.Y
		sxz += d.X * d.Z
		syy += d.Y * d.Y
		syz += d.Y * d.Z
		szz += d.Z * d.Z
	}
	inv := 1 / float64(len(neighbors))
	e.cov.SetSym(0, 0, sxx*inv)
	e.cov.SetSym(0, 1, sxy*inv)
	e.cov.SetSym(0, 2, sxz*inv)
	e.cov.SetSym(1, 1, syy*inv)
	e.cov.SetSym(1, 2, syz*inv)
	e.cov.SetSym(2, 2, szz*inv)

	if ok := e.eig.Factorize(e.cov, true); !ok {
		return Shape{}, false
	}
	// Values are ascending: vals[0] is the smallest.
	e.vals = e.eig.Values(e.vals)
	e.eig.VectorsTo(&e.vecs)

	l1 := math.Max(e.vals[2], 0)
	l2 := math.Max(e.vals[1], 0)
	l3 := math.Max(e.vals[0], 0)

	normal := r3.Vector{X: e.vecs.At(0, 0), Y: e.vecs.At(1, 0), Z: e.vecs.At(2, 0)}
	if norm := normal.Norm(); norm > 0 {
		normal = normal.Mul(1 / norm)
	}
	if normal.Dot(e.preferred) < 0 {
		normal = normal.Mul(-1)
	}

	return Shape{
		Normal:      normal,
		Verticality: 1 - math.Abs(normal.Dot(VerticalAxis)),
		Linearity:   (l1 - l2) / (l1 + e.eps),
		Planarity:   (l2 - l3) / (l1 + e.eps),
		Sphericity:  l3 / (l1 + e.eps),
		Curvature:   l3 / (l1 + l2 + l3 + e.eps),
	}, true
}
