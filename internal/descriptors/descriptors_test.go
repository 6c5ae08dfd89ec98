package descriptors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/spatial"
	"github.com/banshee-data/groundseg/internal/testutil"
)

func allConfig(radius float64) Config {
	return Config{
		Radius:               radius,
		Descriptors:          []string{pointcloud.DescriptorAll},
		PreferredOrientation: "+z",
		Epsilon:              1e-6,
		Workers:              4,
	}
}

func TestConfig_Validate(t *testing.T) {
	base := allConfig(0.3)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero radius", func(c *Config) { c.Radius = 0 }},
		{"nan radius", func(c *Config) { c.Radius = math.NaN() }},
		{"zero epsilon", func(c *Config) { c.Epsilon = 0 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"bad orientation", func(c *Config) { c.PreferredOrientation = "up" }},
		{"unknown descriptor", func(c *Config) { c.Descriptors = []string{"roughness"} }},
		{"no descriptors", func(c *Config) { c.Descriptors = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, pointcloud.ErrInvalidConfiguration))
		})
	}
}

func TestExpandDescriptors(t *testing.T) {
	got, err := ExpandDescriptors([]string{"curvature", "normals", "curvature"})
	require.NoError(t, err)
	assert.Equal(t, []string{"normals", "curvature"}, got)

	got, err = ExpandDescriptors([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, pointcloud.Descriptors, got)
}

func TestParseOrientation(t *testing.T) {
	v, err := ParseOrientation("-y")
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{Y: -1}, v)
}

func TestCompute_FlatPatchAndWall(t *testing.T) {
	testutil.MuteLogs(t)
	scene := testutil.PatchAndWall()

	res, err := Compute(context.Background(), scene.Points, nil, allConfig(0.3))
	require.NoError(t, err)
	assert.Zero(t, res.Degenerate)

	planarity := res.Fields[pointcloud.FieldPlanarity]
	curvature := res.Fields[pointcloud.FieldCurvature]
	verticality := res.Fields[pointcloud.FieldVerticality]
	nz := res.Fields[pointcloud.FieldNZ]

	for i := 0; i < scene.PatchCount; i++ {
		if !testutil.Interior(i, 3) || testutil.NearWall(scene.Points[i], 0.5) {
			continue
		}
		assert.InDelta(t, 1.0, planarity[i], 1e-3, "planarity of patch point %d", i)
		assert.InDelta(t, 0.0, curvature[i], 1e-9, "curvature of patch point %d", i)
		assert.InDelta(t, 1.0, nz[i], 1e-9, "normal of patch point %d", i)
		assert.InDelta(t, 0.0, verticality[i], 1e-9)
	}

	for i := scene.PatchCount; i < len(scene.Points); i++ {
		z := scene.Points[i].Z
		if z < 1 || z > 4.6 {
			continue
		}
		assert.Less(t, planarity[i], 0.3, "planarity of wall point %d", i)
		assert.Greater(t, verticality[i], 0.9, "verticality of wall point %d", i)
	}
}

func TestCompute_PropertiesOnRandomCloud(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := make([]r3.Vector, 3000)
	for i := range pts {
		pts[i] = r3.Vector{X: rng.Float64() * 5, Y: rng.Float64() * 5, Z: rng.NormFloat64() * 0.3}
	}

	for _, orientation := range []string{"+z", "-x"} {
		cfg := allConfig(0.4)
		cfg.PreferredOrientation = orientation
		cfg.Epsilon = 1e-2
		axis, _ := ParseOrientation(orientation)

		res, err := Compute(context.Background(), pts, nil, cfg)
		require.NoError(t, err)

		for i := range pts {
			for _, f := range []string{pointcloud.FieldPlanarity, pointcloud.FieldLinearity, pointcloud.FieldSphericity} {
				v := res.Fields[f][i]
				assert.GreaterOrEqual(t, v, 0.0, f)
				assert.LessOrEqual(t, v, 1.0, f)
			}
			n := r3.Vector{X: res.Fields[pointcloud.FieldNX][i], Y: res.Fields[pointcloud.FieldNY][i], Z: res.Fields[pointcloud.FieldNZ][i]}
			if n == (r3.Vector{}) {
				continue
			}
			assert.InDelta(t, 1.0, n.Norm(), 1e-9)
			assert.GreaterOrEqual(t, n.Dot(axis), 0.0)
		}
	}
}

func TestCompute_DegenerateNeighbourhood(t *testing.T) {
	testutil.MuteLogs(t)
	pts := []r3.Vector{{X: 0}, {X: 0.1}, {X: 10}, {X: 10.1}, {X: 10.2, Y: 0.05}}

	res, err := Compute(context.Background(), pts, nil, allConfig(0.3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Degenerate)

	for _, f := range append(pointcloud.NormalFields, pointcloud.FieldVerticality, pointcloud.FieldPlanarity,
		pointcloud.FieldLinearity, pointcloud.FieldSphericity, pointcloud.FieldCurvature) {
		assert.Zero(t, res.Fields[f][0], f)
		assert.Zero(t, res.Fields[f][1], f)
	}
	// Three non-collinear points form a valid plane.
	assert.InDelta(t, 1.0, res.Fields[pointcloud.FieldNZ][3], 1e-9)
}

func TestCompute_OnlyRequestedFields(t *testing.T) {
	pts := testutil.FlatPatch()[:400]
	cfg := allConfig(0.3)
	cfg.Descriptors = []string{pointcloud.DescriptorVerticality}

	res, err := Compute(context.Background(), pts, nil, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Fields, 1)
	assert.Contains(t, res.Fields, pointcloud.FieldVerticality)

	cfg.Descriptors = []string{pointcloud.DescriptorNormals}
	res, err = Compute(context.Background(), pts, nil, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Fields, 3)
	assert.Contains(t, res.Fields, pointcloud.FieldNX)
}

func TestCompute_DeterministicAcrossWorkers(t *testing.T) {
	scene := testutil.PatchAndWall()
	idx, err := spatial.NewIndex(scene.Points, 0.3)
	require.NoError(t, err)

	cfg := allConfig(0.3)
	cfg.Workers = 1
	serial, err := Compute(context.Background(), scene.Points, idx, cfg)
	require.NoError(t, err)

	cfg.Workers = 8
	parallel, err := Compute(context.Background(), scene.Points, idx, cfg)
	require.NoError(t, err)

	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("results differ between worker counts (-serial +parallel):\n%s", diff)
	}
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, testutil.FlatPatch(), nil, allConfig(0.3))
	assert.ErrorIs(t, err, context.Canceled)
}
