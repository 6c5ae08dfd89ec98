package pointcloud

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundseg/internal/fsutil"
)

func TestLAS_RoundTrip(t *testing.T) {
	tbl, err := NewTable([]float64{1, 2, 3.5}, []float64{4, 5, 6.25}, []float64{0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, tbl.Set(FieldIntensity, []float64{10, 20, 30}))

	fn := filepath.Join(t.TempDir(), "cloud.las")
	require.NoError(t, WriteLAS(tbl, fn))

	got, err := ReadFile(fsutil.OSFileSystem{}, fn)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	want := tbl.Coords()
	for i, c := range got.Coords() {
		assert.InDelta(t, want[i].X, c.X, 1e-2)
		assert.InDelta(t, want[i].Y, c.Y, 1e-2)
		assert.InDelta(t, want[i].Z, c.Z, 1e-2)
	}
	intensity, ok := got.Field(FieldIntensity)
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30}, intensity)
}

func TestReadFile_MissingLAS(t *testing.T) {
	_, err := ReadFile(fsutil.OSFileSystem{}, filepath.Join(t.TempDir(), "missing.las"))
	assert.Error(t, err)
}

func TestExportLAS_ThroughFileSystem(t *testing.T) {
	tbl, err := NewTable([]float64{1, 2}, []float64{3, 4}, []float64{0, 1})
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	path, err := ExportLAS(mfs, "/out/ground_only", "/in/scene.asc", tbl)
	require.NoError(t, err)
	assert.Equal(t, "/out/ground_only/scene.las", path)

	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 4)
	assert.Equal(t, "LASF", string(data[:4]))
}

func TestExportLAS_Empty(t *testing.T) {
	empty, err := NewTable(nil, nil, nil)
	require.NoError(t, err)
	_, err = ExportLAS(fsutil.NewMemoryFileSystem(), "/out", "scene.asc", empty)
	assert.Error(t, err)
}
