package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/groundseg/internal/pipeline"
	"github.com/banshee-data/groundseg/internal/pointcloud"
)

// maxRegionBars caps the regions shown in the size chart.
const maxRegionBars = 50

// RegionSize is the point count of one region label.
type RegionSize struct {
	Label  int
	Points int
	Ground bool
}

// RegionSizes counts points per region label, largest first with ties in
// label order. Unassigned points are not counted. ground may be nil.
func RegionSizes(labels []int, ground []bool) []RegionSize {
	byLabel := make(map[int]*RegionSize)
	for i, l := range labels {
		if l < 0 {
			continue
		}
		rs, ok := byLabel[l]
		if !ok {
			rs = &RegionSize{Label: l}
			byLabel[l] = rs
		}
		rs.Points++
		if ground != nil && ground[i] {
			rs.Ground = true
		}
	}
	out := make([]RegionSize, 0, len(byLabel))
	for _, rs := range byLabel {
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Histogram bins values into n equal bins spanning their range. It returns
// the n+1 dividers and the n counts.
func Histogram(values []float64, n int) (dividers, counts []float64) {
	if len(values) == 0 || n <= 0 {
		return nil, nil
	}
	x := append([]float64(nil), values...)
	sort.Float64s(x)

	lo, hi := x[0], x[len(x)-1]
	if hi == lo {
		hi = lo + 1
	}
	// stat.Histogram requires every value strictly below the last divider.
	hi = math.Nextafter(hi, math.Inf(1))

	dividers = floats.Span(make([]float64, n+1), lo, hi)
	counts = stat.Histogram(nil, dividers, x, nil)
	return dividers, counts
}

// WriteCharts renders an HTML page with the region size chart and, when
// heights were computed, the height histogram.
func WriteCharts(w io.Writer, name string, out *pipeline.Output) error {
	page := components.NewPage()

	t := out.Features
	if labels, ok := t.Ints(pointcloud.FieldRegion); ok {
		mask, _ := t.Mask(pointcloud.FieldGround)
		page.AddCharts(regionChart(name, RegionSizes(labels, mask)))
	}
	if heights, ok := t.Field(pointcloud.FieldHeightAboveGround); ok && len(heights) > 0 {
		page.AddCharts(heightChart(name, heights))
	}
	page.AddCharts(timingChart(out.Stats))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func regionChart(name string, sizes []RegionSize) *charts.Bar {
	if len(sizes) > maxRegionBars {
		sizes = sizes[:maxRegionBars]
	}
	x := make([]string, len(sizes))
	groundData := make([]opts.BarData, len(sizes))
	otherData := make([]opts.BarData, len(sizes))
	for i, rs := range sizes {
		x[i] = fmt.Sprintf("%d", rs.Label)
		// Each label fills one of the two stacked series.
		if rs.Ground {
			groundData[i] = opts.BarData{Value: rs.Points}
			otherData[i] = opts.BarData{Value: 0}
		} else {
			groundData[i] = opts.BarData{Value: 0}
			otherData[i] = opts.BarData{Value: rs.Points}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Region sizes", Subtitle: fmt.Sprintf("input=%s regions=%d", name, len(sizes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Region", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Points"}),
	)
	bar.SetXAxis(x).
		AddSeries("ground", groundData, charts.WithBarChartOpts(opts.BarChart{Stack: "regions"})).
		AddSeries("other", otherData, charts.WithBarChartOpts(opts.BarChart{Stack: "regions"}))
	return bar
}

func heightChart(name string, heights []float64) *charts.Bar {
	dividers, counts := Histogram(heights, DefaultHistogramBins)
	x := make([]string, len(counts))
	y := make([]opts.BarData, len(counts))
	for i, c := range counts {
		x[i] = fmt.Sprintf("%.2f", (dividers[i]+dividers[i+1])/2)
		y[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Height above ground", Subtitle: fmt.Sprintf("input=%s points=%d", name, len(heights))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Height (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Points"}),
	)
	bar.SetXAxis(x).AddSeries("height", y)
	return bar
}

func timingChart(stats pipeline.Stats) *charts.Bar {
	x := make([]string, len(stats.Timings))
	y := make([]opts.BarData, len(stats.Timings))
	for i, st := range stats.Timings {
		x[i] = st.Stage
		y[i] = opts.BarData{Value: st.Duration.Seconds()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Stage timings", Subtitle: fmt.Sprintf("total=%v", stats.Total())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Seconds"}),
	)
	bar.SetXAxis(x).
		AddSeries("timings", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
