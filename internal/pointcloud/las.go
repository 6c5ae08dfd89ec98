package pointcloud

import (
	"fmt"
	"io"
	"os"

	"github.com/edaniels/lidario"
	"go.uber.org/multierr"

	"github.com/banshee-data/groundseg/internal/fsutil"
	"github.com/banshee-data/groundseg/internal/security"
)

// FieldIntensity is the return intensity column read from LAS files.
const FieldIntensity = "intensity"

// ReadLAS reads the coordinates and intensity of every point in a LAS file.
func ReadLAS(fn string) (*Table, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer lf.Close()

	n := lf.Header.NumberPoints
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	intensity := make([]float64, n)
	for i := 0; i < n; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, fmt.Errorf("las point %d: %w", i, err)
		}
		d := p.PointData()
		x[i], y[i], z[i] = d.X, d.Y, d.Z
		intensity[i] = float64(d.Intensity)
	}

	t, err := NewTable(x, y, z)
	if err != nil {
		return nil, err
	}
	if err := t.Set(FieldIntensity, intensity); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteLAS writes the coordinates of t as point format 0. The intensity
// column is written when present.
func WriteLAS(t *Table, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return err
	}

	intensity, hasIntensity := t.Field(FieldIntensity)
	for i, c := range t.Coords() {
		pr := &lidario.PointRecord0{
			X: c.X,
			Y: c.Y,
			Z: c.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			PointSourceID: 1,
		}
		if hasIntensity {
			pr.Intensity = uint16(intensity[i])
		}
		if err = lf.AddLasPoint(pr); err != nil {
			return err
		}
	}
	return nil
}

// ExportLAS writes t to dir/<input base>.las through fs and returns the
// path. lidario only writes to named files, so the LAS body is staged in
// a temporary file and copied.
func ExportLAS(fs fsutil.FileSystem, dir, input string, t *Table) (path string, err error) {
	if t.Len() == 0 {
		return "", fmt.Errorf("no points to export")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path, err = security.OutputPath(dir, input, ".las")
	if err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp("", "groundseg-las-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)
	staged, err := security.OutputPath(tmp, input, ".las")
	if err != nil {
		return "", err
	}
	if err := WriteLAS(t, staged); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	src, err := os.Open(staged)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := fs.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return path, nil
}
