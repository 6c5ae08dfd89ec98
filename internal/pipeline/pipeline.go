package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/banshee-data/groundseg/internal/config"
	"github.com/banshee-data/groundseg/internal/dtm"
	"github.com/banshee-data/groundseg/internal/ground"
	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/regions"
	"github.com/banshee-data/groundseg/internal/spatial"
	"github.com/banshee-data/groundseg/internal/timeutil"
)

// ErrNoSteps is returned when a pipeline is built without any stage.
var ErrNoSteps = errors.New("no steps to compute")

// Steps lists the step names in the order they run.
var Steps = []string{
	pointcloud.StageDescriptors,
	pointcloud.StageRegions,
	pointcloud.StageGroundExtraction,
	pointcloud.StageHeightAboveGround,
	pointcloud.StageRasterizeGround,
}

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Stats summarises one processed table.
type Stats struct {
	Points        int
	Degenerate    int
	Regions       int
	Unassigned    int
	GroundRegions int
	GroundPoints  int
	Cells         int
	Timings       []StageTiming
}

// Total returns the sum of the stage timings.
func (s Stats) Total() time.Duration {
	var d time.Duration
	for _, t := range s.Timings {
		d += t.Duration
	}
	return d
}

// Run is the mutable state shared by the stages while one table is
// processed.
type Run struct {
	Table  *pointcloud.Table
	Coords []r3.Vector
	Stats  Stats

	Regions *regions.Result
	Ground  *ground.Result
	Raster  *dtm.Raster

	indexes map[float64]*spatial.Index
}

// Index returns a neighbour index over the run's points with cell size
// radius, building it on first use. Stages with equal radii share it.
func (r *Run) Index(radius float64) (*spatial.Index, error) {
	if ix, ok := r.indexes[radius]; ok {
		return ix, nil
	}
	ix, err := spatial.NewIndex(r.Coords, radius)
	if err != nil {
		return nil, pointcloud.InvalidConfigf("%v", err)
	}
	if r.indexes == nil {
		r.indexes = make(map[float64]*spatial.Index)
	}
	r.indexes[radius] = ix
	return ix, nil
}

// Output is everything produced for one input table.
type Output struct {
	// Features is the input table with every produced column added.
	Features *pointcloud.Table
	// GroundOnly holds the ground points; nil unless ground was extracted.
	GroundOnly *pointcloud.Table
	// Raster is nil unless the rasterize step ran.
	Raster *dtm.Raster
	Stats  Stats
}

// Pipeline runs an ordered list of stages.
type Pipeline struct {
	stages []Stage
	clock  timeutil.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for stage timings.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New builds a pipeline from stages in the order given.
func New(stages []Stage, opts ...Option) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoSteps
	}
	p := &Pipeline{stages: stages, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stages returns the stage names in run order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Validate walks the stages in order against the starting fields and
// reports the first prerequisite that would be missing.
func (p *Pipeline) Validate(fields []string) error {
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f] = true
	}
	for _, s := range p.stages {
		for _, f := range s.Requires() {
			if !have[f] {
				return &pointcloud.MissingFieldError{Field: f, Stage: s.Name(), Producer: pointcloud.ProducerOf(f)}
			}
		}
		for _, f := range s.Produces() {
			have[f] = true
		}
	}
	return nil
}

// Process runs every stage over t. Columns are added to t in place.
func (p *Pipeline) Process(ctx context.Context, t *pointcloud.Table) (*Output, error) {
	if err := p.Validate(t.Names()); err != nil {
		return nil, err
	}

	run := &Run{Table: t, Coords: t.Coords()}
	run.Stats.Points = t.Len()
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := p.clock.Now()
		if err := s.Run(ctx, run); err != nil {
			opsf("stage %s failed: %v", s.Name(), err)
			return nil, stageError(s.Name(), err)
		}
		d := p.clock.Since(start)
		run.Stats.Timings = append(run.Stats.Timings, StageTiming{Stage: s.Name(), Duration: d})
		diagf("stage %s done in %v", s.Name(), d)
		tracef("fields after %s: %s", s.Name(), strings.Join(t.Names(), " "))
	}

	out := &Output{Features: t, Raster: run.Raster, Stats: run.Stats}
	if run.Ground != nil {
		g, err := t.Filter(run.Ground.Mask)
		if err != nil {
			return nil, err
		}
		out.GroundOnly = g
	}
	monitoring.Stagef("pipeline", "%d points: %d regions, %d ground points, %d cells in %v",
		run.Stats.Points, run.Stats.Regions, run.Stats.GroundPoints, run.Stats.Cells, run.Stats.Total())
	return out, nil
}

// Input is one named table for ProcessBatch.
type Input struct {
	Name  string
	Table *pointcloud.Table
}

// BatchResult pairs an input name with its output or failure.
type BatchResult struct {
	Name   string
	Output *Output
	Err    error
}

// ProcessBatch processes inputs in order. A failing input is recorded and
// the batch moves on; the returned error combines every failure. Context
// cancellation stops the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []Input) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(inputs))
	var errs error
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}
		out, err := p.Process(ctx, in.Table)
		if err != nil {
			opsf("input %s failed: %v", in.Name, err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", in.Name, err))
		}
		results = append(results, BatchResult{Name: in.Name, Output: out, Err: err})
	}
	return results, errs
}

// FromConfig builds the stages named in steps from a tuning configuration.
// Stages always run in the order of Steps whatever order steps lists them.
func FromConfig(cfg *config.TuningConfig, steps []string, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(steps))
	for _, s := range steps {
		known := false
		for _, k := range Steps {
			if s == k {
				known = true
				break
			}
		}
		if !known {
			return nil, pointcloud.InvalidConfigf("unknown step %q", s)
		}
		want[s] = true
	}

	var stages []Stage
	if want[pointcloud.StageDescriptors] {
		stages = append(stages, &DescriptorStage{Config: cfg.DescriptorConfig()})
	}
	if want[pointcloud.StageRegions] {
		rc, crit, err := cfg.RegionConfig()
		if err != nil {
			return nil, err
		}
		stages = append(stages, &RegionStage{Config: rc, Criterion: crit})
	}
	if want[pointcloud.StageGroundExtraction] {
		stages = append(stages, &GroundStage{Config: cfg.StitchConfig()})
	}
	if want[pointcloud.StageHeightAboveGround] {
		stages = append(stages, &HeightStage{Neighbors: cfg.GetHeightNeighbors()})
	}
	if want[pointcloud.StageRasterizeGround] {
		stages = append(stages, &RasterStage{Step: cfg.GetRasterizeStep(), Workers: cfg.GetWorkers()})
	}
	return New(stages, opts...)
}
