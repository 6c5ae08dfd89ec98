package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/groundseg/internal/dtm"
)

// DefaultHistogramBins is the bin count used for height histograms.
const DefaultHistogramBins = 40

// rasterGrid adapts a sparse raster to plotter.GridXYZ. Empty cells read
// as NaN and are drawn transparent.
type rasterGrid struct {
	r        *dtm.Raster
	z        []float64
	min, max float64
}

func newRasterGrid(r *dtm.Raster) *rasterGrid {
	g := &rasterGrid{r: r, z: make([]float64, r.NX*r.NY)}
	for i := range g.z {
		g.z[i] = math.NaN()
	}
	for _, c := range r.Cells {
		g.z[c.IY*r.NX+c.IX] = c.Z
	}
	g.min, g.max, _ = r.Bounds()
	// The heat map divides by the z range; a flat raster needs a nonzero one.
	if g.max-g.min == 0 {
		g.min -= 0.5
		g.max += 0.5
	}
	return g
}

func (g *rasterGrid) Dims() (c, r int)   { return g.r.NX, g.r.NY }
func (g *rasterGrid) Z(c, r int) float64 { return g.z[r*g.r.NX+c] }
func (g *rasterGrid) X(c int) float64    { return g.r.OriginX + (float64(c)+0.5)*g.r.Step }
func (g *rasterGrid) Y(r int) float64    { return g.r.OriginY + (float64(r)+0.5)*g.r.Step }
func (g *rasterGrid) Min() float64       { return g.min }
func (g *rasterGrid) Max() float64       { return g.max }

// PlotRaster writes a PNG heat map of the raster's cell heights.
func PlotRaster(w io.Writer, r *dtm.Raster, title string) error {
	if r == nil || len(r.Cells) == 0 {
		return fmt.Errorf("raster has no cells to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(newRasterGrid(r), palette.Heat(12, 1))
	hm.NaN = color.Transparent
	p.Add(hm)

	return save(w, p, 8*vg.Inch, 8*vg.Inch)
}

// PlotHeights writes a PNG histogram of heights above ground.
func PlotHeights(w io.Writer, heights []float64, bins int, title string) error {
	if len(heights) == 0 {
		return fmt.Errorf("no heights to plot")
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Height above ground (m)"
	p.Y.Label.Text = "Points"

	h, err := plotter.NewHist(plotter.Values(heights), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 31, G: 104, B: 142, A: 255}
	p.Add(h)

	return save(w, p, 10*vg.Inch, 5*vg.Inch)
}

func save(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to create plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
