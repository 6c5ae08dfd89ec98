package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundseg/internal/config"
	"github.com/banshee-data/groundseg/internal/fsutil"
	"github.com/banshee-data/groundseg/internal/pipeline"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/storage/sqlite"
	"github.com/banshee-data/groundseg/internal/testutil"
)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags([]string{"a.las", "b.asc"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.las", "b.asc"}, opts.files)
	assert.Empty(t, opts.steps)
	assert.Equal(t, "data", opts.outDir)
	if diff := cmp.Diff(config.DefaultTuningConfig(), opts.tuning); diff != "" {
		t.Errorf("tuning mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlags_StepsAndOverrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"-cd", "-region_growing", "-hag",
		"-d", "normals, planarity",
		"-rd", "0.75",
		"-criterion_region", "min curvature",
		"-sir", "0.3",
		"-workers", "2",
		"-f", "x.asc,y.asc", "z.asc",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{
		pointcloud.StageDescriptors,
		pointcloud.StageRegions,
		pointcloud.StageHeightAboveGround,
	}, opts.steps)
	assert.Equal(t, []string{"x.asc", "y.asc", "z.asc"}, opts.files)

	tc := opts.tuning
	assert.Equal(t, []string{"normals", "planarity"}, tc.GetDescriptors())
	assert.Equal(t, 0.75, tc.GetRadiusDescriptors())
	assert.Equal(t, "min curvature", tc.GetCriterionRegion())
	assert.Equal(t, 0.3, tc.GetSlopeInter())
	assert.Equal(t, 2, tc.GetWorkers())
	assert.Equal(t, config.DefaultSlopeIntra, tc.GetSlopeIntra())
}

func TestParseFlags_FullPipeline(t *testing.T) {
	opts, err := parseFlags([]string{"-full_pipeline", "a.asc"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Steps, opts.steps)
}

func TestParseFlags_ConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rasterize_step": 2, "n_regions": 7}`), 0o644))

	opts, err := parseFlags([]string{"-config", path, "-nr", "9", "a.asc"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2.0, opts.tuning.GetRasterizeStep())
	assert.Equal(t, 9, opts.tuning.GetNRegions(), "flags override the file")

	_, err = parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.json")}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-no_such_flag"}, io.Discard)
	assert.Error(t, err)
}

func sceneFile(t *testing.T, mfs *fsutil.MemoryFileSystem, path string) {
	t.Helper()
	require.NoError(t, mfs.MkdirAll(filepath.Dir(path), 0o755))
	w, err := mfs.Create(path)
	require.NoError(t, err)
	require.NoError(t, pointcloud.WriteASC(w, pointcloud.NewTableFromPoints(testutil.PatchAndWall().Points)))
	require.NoError(t, w.Close())
}

func sceneArgs(extra ...string) []string {
	args := []string{
		"-full_pipeline",
		"-rd", "0.3", "-rr", "0.3",
		"-epsilon_descriptors", "1e-6",
		"-n_regions", "300",
		"-thresh_height", "0.05", "-thresh_angle", "0.2", "-thresh_descriptor", "1",
		"-rasterize_step", "1",
		"-out", "/out",
	}
	return append(args, extra...)
}

func TestRun_WritesProducts(t *testing.T) {
	testutil.MuteLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	sceneFile(t, mfs, "/in/scene.asc")

	opts, err := parseFlags(sceneArgs("-plots", "/in/scene.asc"), io.Discard)
	require.NoError(t, err)

	var stdout bytes.Buffer
	a := &app{fs: mfs, stdout: &stdout}
	require.NoError(t, a.run(context.Background(), opts))

	for _, p := range []string{
		"/out/features/scene.asc",
		"/out/ground_only/scene.asc",
		"/out/ground_rasterized/scene.asc",
		"/out/plots/scene_report.html",
		"/out/plots/scene_dtm.png",
		"/out/plots/scene_heights.png",
	} {
		assert.True(t, mfs.Exists(p), "missing %s", p)
	}
	assert.Contains(t, stdout.String(), "Computing features of file /in/scene.asc")

	data, err := mfs.ReadFile("/out/features/scene.asc")
	require.NoError(t, err)
	features, err := pointcloud.ReadASC(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, len(testutil.PatchAndWall().Points), features.Len())
	assert.True(t, features.Has(pointcloud.FieldHeightAboveGround))

	data, err = mfs.ReadFile("/out/ground_rasterized/scene.asc")
	require.NoError(t, err)
	raster, err := pointcloud.ReadASC(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, raster.Has(pointcloud.FieldCount))
}

func TestRun_NoSteps(t *testing.T) {
	opts, err := parseFlags([]string{"a.asc"}, io.Discard)
	require.NoError(t, err)

	a := &app{fs: fsutil.NewMemoryFileSystem(), stdout: io.Discard}
	err = a.run(context.Background(), opts)
	assert.ErrorIs(t, err, pipeline.ErrNoSteps)
}

func TestRun_ContinuesPastBadFile(t *testing.T) {
	testutil.MuteLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	sceneFile(t, mfs, "/in/good.asc")

	opts, err := parseFlags([]string{"-cd", "-rd", "0.3", "-out", "/out", "/in/missing.asc", "/in/cloud.ply", "/in/good.asc"}, io.Discard)
	require.NoError(t, err)

	a := &app{fs: mfs, stdout: io.Discard}
	err = a.run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.asc")
	assert.Contains(t, err.Error(), "cloud.ply")
	assert.True(t, mfs.Exists("/out/features/good.asc"))
	assert.False(t, mfs.Exists("/out/ground_only/good.asc"))
}

func TestRun_RecordsRuns(t *testing.T) {
	testutil.MuteLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	sceneFile(t, mfs, "/in/scene.asc")

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	store := sqlite.NewRunStore(db.DB, nil)

	opts, err := parseFlags(sceneArgs("/in/scene.asc"), io.Discard)
	require.NoError(t, err)
	a := &app{fs: mfs, stdout: io.Discard, store: store}
	require.NoError(t, a.run(context.Background(), opts))

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "/in/scene.asc", runs[0].Input)
	assert.Greater(t, runs[0].GroundPoints, 0)
	assert.Contains(t, string(runs[0].ParamsJSON), `"rasterize_step":1`)

	cells, err := store.Cells(runs[0].RunID)
	require.NoError(t, err)
	assert.Len(t, cells, runs[0].Cells)

	var buf bytes.Buffer
	require.NoError(t, listRuns(&buf, store, 5))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], runs[0].RunID)
}

func TestRun_WritesLAS(t *testing.T) {
	testutil.MuteLogs(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "patch.asc")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, pointcloud.WriteASC(f, pointcloud.NewTableFromPoints(testutil.FlatPatch())))
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out")
	args := sceneArgs("-las", in)
	args[len(args)-3] = out // replaces the -out value
	opts, err := parseFlags(args, io.Discard)
	require.NoError(t, err)
	require.Equal(t, out, opts.outDir)

	a := &app{fs: fsutil.OSFileSystem{}, stdout: io.Discard}
	require.NoError(t, a.run(context.Background(), opts))

	ground, err := pointcloud.ReadLAS(filepath.Join(out, "ground_only", "patch.las"))
	require.NoError(t, err)
	assert.Equal(t, testutil.PatchSide*testutil.PatchSide, ground.Len())
}

func TestRun_WritesLASThroughFileSystem(t *testing.T) {
	testutil.MuteLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	sceneFile(t, mfs, "/in/scene.asc")

	opts, err := parseFlags(sceneArgs("-las", "/in/scene.asc"), io.Discard)
	require.NoError(t, err)

	var stdout bytes.Buffer
	a := &app{fs: mfs, stdout: &stdout}
	require.NoError(t, a.run(context.Background(), opts))

	data, err := mfs.ReadFile("/out/ground_only/scene.las")
	require.NoError(t, err)
	assert.Equal(t, "LASF", string(data[:4]))
	assert.Contains(t, stdout.String(), "LAS ground file successfully saved to /out/ground_only/scene.las")
	_, err = os.Stat("/out/ground_only/scene.las")
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_ClosesDatabaseOnFailure(t *testing.T) {
	testutil.MuteLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	sceneFile(t, mfs, "/in/scene.asc")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	opts, err := parseFlags(sceneArgs("-db", dbPath, "/in/scene.asc", "/in/missing.asc"), io.Discard)
	require.NoError(t, err)
	err = execute(context.Background(), opts, mfs, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.asc")

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := sqlite.NewRunStore(db.DB, nil).List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "/in/scene.asc", runs[0].Input)

	opts.dbPath = filepath.Join(t.TempDir(), "no", "such", "dir", "runs.db")
	err = execute(context.Background(), opts, mfs, io.Discard)
	assert.ErrorContains(t, err, "open run database")
}
