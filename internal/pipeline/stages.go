package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/groundseg/internal/descriptors"
	"github.com/banshee-data/groundseg/internal/dtm"
	"github.com/banshee-data/groundseg/internal/ground"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/regions"
)

// Stage is one step of the pipeline. Requires and Produces must not depend
// on the table contents so that ordering can be checked statically.
type Stage interface {
	Name() string
	Requires() []string
	Produces() []string
	Run(ctx context.Context, run *Run) error
}

// DescriptorStage computes local shape descriptors.
type DescriptorStage struct {
	Config descriptors.Config
}

func (s *DescriptorStage) Name() string { return pointcloud.StageDescriptors }

func (s *DescriptorStage) Requires() []string { return pointcloud.CoordinateFields }

func (s *DescriptorStage) Produces() []string {
	selected, err := descriptors.ExpandDescriptors(s.Config.Descriptors)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range selected {
		out = append(out, pointcloud.DescriptorFields(d)...)
	}
	return out
}

func (s *DescriptorStage) Run(ctx context.Context, run *Run) error {
	idx, err := run.Index(s.Config.Radius)
	if err != nil {
		return err
	}
	res, err := descriptors.Compute(ctx, run.Coords, idx, s.Config)
	if err != nil {
		return err
	}
	for _, f := range s.Produces() {
		if err := run.Table.Set(f, res.Fields[f]); err != nil {
			return err
		}
	}
	run.Stats.Degenerate = res.Degenerate
	return nil
}

// RegionStage grows regions driven by one descriptor.
type RegionStage struct {
	Config    regions.Config
	Criterion regions.Criterion
}

func (s *RegionStage) Name() string { return pointcloud.StageRegions }

func (s *RegionStage) Requires() []string {
	req := append([]string{}, pointcloud.CoordinateFields...)
	req = append(req, pointcloud.NormalFields...)
	return append(req, s.Criterion.Descriptor)
}

func (s *RegionStage) Produces() []string { return []string{pointcloud.FieldRegion} }

func (s *RegionStage) Run(_ context.Context, run *Run) error {
	if err := run.Table.Require(s.Name(), s.Requires()...); err != nil {
		return err
	}
	values, _ := run.Table.Field(s.Criterion.Descriptor)
	normals := run.Table.Vectors(pointcloud.FieldNX, pointcloud.FieldNY, pointcloud.FieldNZ)

	idx, err := run.Index(s.Config.Radius)
	if err != nil {
		return err
	}
	cfg := s.Config
	cfg.Minimize = s.Criterion.Minimize
	res, err := regions.Grow(run.Coords, normals, values, idx, cfg)
	if err != nil {
		return err
	}
	run.Regions = res
	run.Stats.Regions = len(res.Regions)
	run.Stats.Unassigned = res.Unassigned()
	return run.Table.Set(pointcloud.FieldRegion, pointcloud.IntsToFloats(res.Labels))
}

// GroundStage stitches regions into the ground set.
type GroundStage struct {
	Config ground.Config
}

func (s *GroundStage) Name() string { return pointcloud.StageGroundExtraction }

func (s *GroundStage) Requires() []string {
	return append(append([]string{}, pointcloud.CoordinateFields...), pointcloud.FieldRegion)
}

func (s *GroundStage) Produces() []string { return []string{pointcloud.FieldGround} }

func (s *GroundStage) Run(_ context.Context, run *Run) error {
	if err := run.Table.Require(s.Name(), s.Requires()...); err != nil {
		return err
	}
	labels, _ := run.Table.Ints(pointcloud.FieldRegion)
	res, err := ground.Stitch(run.Coords, labels, s.Config)
	if err != nil {
		return err
	}
	run.Ground = res
	run.Stats.GroundPoints = res.GroundCount()
	run.Stats.GroundRegions = len(res.Merged)
	return run.Table.Set(pointcloud.FieldGround, pointcloud.BoolsToFloats(res.Mask))
}

// HeightStage measures height above the ground set.
type HeightStage struct {
	Neighbors int
}

func (s *HeightStage) Name() string { return pointcloud.StageHeightAboveGround }

func (s *HeightStage) Requires() []string {
	return append(append([]string{}, pointcloud.CoordinateFields...), pointcloud.FieldGround)
}

func (s *HeightStage) Produces() []string { return []string{pointcloud.FieldHeightAboveGround} }

func (s *HeightStage) Run(_ context.Context, run *Run) error {
	if err := run.Table.Require(s.Name(), s.Requires()...); err != nil {
		return err
	}
	mask, _ := run.Table.Mask(pointcloud.FieldGround)
	heights, err := ground.HeightAboveGround(run.Coords, mask, s.Neighbors)
	if err != nil {
		return err
	}
	return run.Table.Set(pointcloud.FieldHeightAboveGround, heights)
}

// RasterStage grids the ground points. Its output is the separate raster,
// not a table column.
type RasterStage struct {
	Step    float64
	Workers int
}

func (s *RasterStage) Name() string { return pointcloud.StageRasterizeGround }

func (s *RasterStage) Requires() []string {
	return append(append([]string{}, pointcloud.CoordinateFields...), pointcloud.FieldGround)
}

func (s *RasterStage) Produces() []string { return nil }

func (s *RasterStage) Run(ctx context.Context, run *Run) error {
	if err := run.Table.Require(s.Name(), s.Requires()...); err != nil {
		return err
	}
	mask, _ := run.Table.Mask(pointcloud.FieldGround)
	r, err := dtm.Rasterize(ctx, run.Coords, mask, s.Step, s.Workers)
	if err != nil {
		return err
	}
	run.Raster = r
	run.Stats.Cells = len(r.Cells)
	return nil
}

// stageError attaches the stage name to a failure.
func stageError(name string, err error) error {
	return fmt.Errorf("stage %s: %w", name, err)
}
