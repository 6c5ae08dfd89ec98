package report

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/banshee-data/groundseg/internal/fsutil"
	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pipeline"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/security"
)

// Write renders every plot the output supports into dir, named after
// input, and returns the paths written. A failing plot does not stop the
// others; the returned error combines the failures.
func Write(fs fsutil.FileSystem, dir, input string, out *pipeline.Output) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	var written []string
	var errs error
	emit := func(suffix string, render func(io.Writer) error) {
		path, err := security.OutputPath(dir, input, suffix)
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		if err := writeFile(fs, path, render); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			return
		}
		written = append(written, path)
	}

	emit("_report.html", func(w io.Writer) error { return WriteCharts(w, input, out) })
	if out.Raster != nil && len(out.Raster.Cells) > 0 {
		emit("_dtm.png", func(w io.Writer) error {
			return PlotRaster(w, out.Raster, fmt.Sprintf("Ground raster (step %g m)", out.Raster.Step))
		})
	}
	if heights, ok := out.Features.Field(pointcloud.FieldHeightAboveGround); ok && len(heights) > 0 {
		emit("_heights.png", func(w io.Writer) error {
			return PlotHeights(w, heights, DefaultHistogramBins, "Height above ground")
		})
	}

	monitoring.Stagef("report", "wrote %d plots for %s", len(written), input)
	return written, errs
}

func writeFile(fs fsutil.FileSystem, path string, render func(io.Writer) error) (err error) {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return render(f)
}
