// Command groundseg computes local descriptors, regions, the ground set,
// heights above ground and a ground raster for point cloud files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/multierr"

	"github.com/banshee-data/groundseg/internal/config"
	"github.com/banshee-data/groundseg/internal/fsutil"
	"github.com/banshee-data/groundseg/internal/monitoring"
	"github.com/banshee-data/groundseg/internal/pipeline"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/report"
	"github.com/banshee-data/groundseg/internal/storage/sqlite"
	"github.com/banshee-data/groundseg/internal/version"
)

// Output subdirectories under -out.
const (
	dirFeatures         = "features"
	dirGroundOnly       = "ground_only"
	dirGroundRasterized = "ground_rasterized"
	dirPlots            = "plots"
)

// options holds the parsed command line.
type options struct {
	files      []string
	configPath string
	outDir     string
	dbPath     string
	plots      bool
	las        bool
	verbose    bool
	showVer    bool

	steps  []string
	tuning *config.TuningConfig
}

// stepFlags maps each step to its long and short flag names.
var stepFlags = []struct {
	step        string
	long, short string
	usage       string
}{
	{pointcloud.StageDescriptors, "compute_descriptors", "cd", "Compute local descriptors"},
	{pointcloud.StageRegions, "region_growing", "rg", "Compute regions"},
	{pointcloud.StageGroundExtraction, "ground_extraction", "ge", "Extract the ground from regions"},
	{pointcloud.StageHeightAboveGround, "height_above_ground", "hag", "Compute height above ground"},
	{pointcloud.StageRasterizeGround, "rasterize_ground", "rag", "Rasterize the ground points"},
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("groundseg", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	var files string
	fs.StringVar(&files, "files", "", "Comma separated point cloud files (positional arguments are also accepted)")
	fs.StringVar(&files, "f", "", "Shorthand for -files")
	fs.StringVar(&opts.configPath, "config", "", "Tuning config JSON file (defaults are compiled in)")
	fs.StringVar(&opts.outDir, "out", "data", "Output directory")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite database recording run summaries (disabled if empty)")
	fs.BoolVar(&opts.plots, "plots", false, "Write PNG and HTML diagnostic plots")
	fs.BoolVar(&opts.las, "las", false, "Also write the ground points as LAS")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log stage timings and field lists")
	fs.BoolVar(&opts.showVer, "version", false, "Print version and exit")
	full := fs.Bool("full_pipeline", false, "Run all steps")

	selected := make(map[string]*bool, len(stepFlags))
	for _, sf := range stepFlags {
		v := new(bool)
		fs.BoolVar(v, sf.long, false, sf.usage)
		fs.BoolVar(v, sf.short, false, "Shorthand for -"+sf.long)
		selected[sf.step] = v
	}

	// Tuning flags. Only the ones given on the command line override the
	// config file.
	def := config.DefaultTuningConfig()
	descriptors := fs.String("descriptors", strings.Join(def.GetDescriptors(), ","), "Comma separated descriptors, or all")
	fs.StringVar(descriptors, "d", *descriptors, "Shorthand for -descriptors")
	radiusDesc := fs.Float64("radius_descriptors", def.GetRadiusDescriptors(), "Neighbourhood radius for descriptors")
	fs.Float64Var(radiusDesc, "rd", *radiusDesc, "Shorthand for -radius_descriptors")
	orientation := fs.String("preferred_orientation", def.GetPreferredOrientation(), "Orientation normals are flipped toward (+x, -x, +y, -y, +z, -z)")
	epsilon := fs.Float64("epsilon_descriptors", def.GetEpsilonDescriptors(), "Small value added to eigenvalues")
	radiusRegion := fs.Float64("radius_region", def.GetRadiusRegion(), "Neighbourhood radius for region growing")
	fs.Float64Var(radiusRegion, "rr", *radiusRegion, "Shorthand for -radius_region")
	nRegions := fs.Int("n_regions", def.GetNRegions(), "Maximum number of regions")
	fs.IntVar(nRegions, "nr", *nRegions, "Shorthand for -n_regions")
	criterion := fs.String("criterion_region", def.GetCriterionRegion(), "Seed criterion: min|max <descriptor>")
	threshHeight := fs.Float64("thresh_height", def.GetThreshHeight(), "Maximum height difference to the seed")
	threshAngle := fs.Float64("thresh_angle", def.GetThreshAngle(), "Maximum normal angle to the seed (radians)")
	threshDesc := fs.Float64("thresh_descriptor", def.GetThreshDescriptor(), "Maximum distance to the region mean descriptor")
	slopeIntra := fs.Float64("slope_intra", def.GetSlopeIntra(), "Maximum slope inside a ground region")
	fs.Float64Var(slopeIntra, "sia", *slopeIntra, "Shorthand for -slope_intra")
	slopeInter := fs.Float64("slope_inter", def.GetSlopeInter(), "Maximum slope between a region and the ground")
	fs.Float64Var(slopeInter, "sir", *slopeInter, "Shorthand for -slope_inter")
	percentile := fs.Float64("percentile_closest", def.GetPercentileClosest(), "Fraction of closest points used for the inter slope")
	fs.Float64Var(percentile, "pc", *percentile, "Shorthand for -percentile_closest")
	heightNeighbors := fs.Int("height_neighbors", def.GetHeightNeighbors(), "Ground neighbours averaged for heights")
	step := fs.Float64("rasterize_step", def.GetRasterizeStep(), "Raster cell size")
	workers := fs.Int("workers", def.GetWorkers(), "Worker goroutines (0 = one per CPU)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVer {
		return opts, nil
	}

	if files != "" {
		opts.files = append(opts.files, strings.Split(files, ",")...)
	}
	opts.files = append(opts.files, fs.Args()...)

	for _, s := range pipeline.Steps {
		if *full || *selected[s] {
			opts.steps = append(opts.steps, s)
		}
	}

	var err error
	if opts.configPath != "" {
		opts.tuning, err = config.LoadTuningConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		opts.tuning = config.DefaultTuningConfig()
	}

	t := opts.tuning
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "descriptors", "d":
			names := splitList(*descriptors)
			t.Descriptors = &names
		case "radius_descriptors", "rd":
			t.RadiusDescriptors = radiusDesc
		case "preferred_orientation":
			t.PreferredOrientation = orientation
		case "epsilon_descriptors":
			t.EpsilonDescriptors = epsilon
		case "radius_region", "rr":
			t.RadiusRegion = radiusRegion
		case "n_regions", "nr":
			t.NRegions = nRegions
		case "criterion_region":
			t.CriterionRegion = criterion
		case "thresh_height":
			t.ThreshHeight = threshHeight
		case "thresh_angle":
			t.ThreshAngle = threshAngle
		case "thresh_descriptor":
			t.ThreshDescriptor = threshDesc
		case "slope_intra", "sia":
			t.SlopeIntra = slopeIntra
		case "slope_inter", "sir":
			t.SlopeInter = slopeInter
		case "percentile_closest", "pc":
			t.PercentileClosest = percentile
		case "height_neighbors":
			t.HeightNeighbors = heightNeighbors
		case "rasterize_step":
			t.RasterizeStep = step
		case "workers":
			t.Workers = workers
		}
	})
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// app carries the dependencies of one invocation.
type app struct {
	fs     fsutil.FileSystem
	stdout io.Writer
	store  *sqlite.RunStore
}

func (a *app) run(ctx context.Context, opts *options) error {
	p, err := pipeline.FromConfig(opts.tuning, opts.steps)
	if err != nil {
		return err
	}
	if len(opts.files) == 0 {
		return errors.New("no input files given")
	}

	params, err := json.Marshal(opts.tuning)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}

	var errs error
	for _, file := range opts.files {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		fmt.Fprintf(a.stdout, "\nComputing features of file %s\n", file)
		if err := a.processFile(ctx, p, opts, file, params); err != nil {
			log.Printf("%s: %v", file, err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, err))
		}
	}
	return errs
}

func (a *app) processFile(ctx context.Context, p *pipeline.Pipeline, opts *options, file string, params []byte) error {
	table, err := pointcloud.ReadFile(a.fs, file)
	if err != nil {
		return err
	}

	out, err := p.Process(ctx, table)
	if err != nil {
		return err
	}

	path, err := pointcloud.ExportASC(a.fs, filepath.Join(opts.outDir, dirFeatures), file, out.Features)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "ASC file successfully saved to %s\n", path)

	if out.GroundOnly != nil && out.GroundOnly.Len() > 0 {
		dir := filepath.Join(opts.outDir, dirGroundOnly)
		path, err := pointcloud.ExportASC(a.fs, dir, file, out.GroundOnly)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "ASC ground file successfully saved to %s\n", path)

		if opts.las {
			lasPath, err := pointcloud.ExportLAS(a.fs, dir, file, out.GroundOnly)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "LAS ground file successfully saved to %s\n", lasPath)
		}
	}

	if out.Raster != nil && len(out.Raster.Cells) > 0 {
		path, err := pointcloud.ExportASC(a.fs, filepath.Join(opts.outDir, dirGroundRasterized), file, out.Raster.Table())
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "ASC ground rasterized file successfully saved to %s\n", path)
	}

	if opts.plots {
		paths, err := report.Write(a.fs, filepath.Join(opts.outDir, dirPlots), file, out)
		for _, plotPath := range paths {
			fmt.Fprintf(a.stdout, "Plot saved to %s\n", plotPath)
		}
		if err != nil {
			return err
		}
	}

	if a.store != nil {
		run := sqlite.NewTerrainRun(file, out.Stats, out.Raster, params)
		if err := a.store.Insert(run); err != nil {
			return err
		}
		if out.Raster != nil && len(out.Raster.Cells) > 0 {
			if err := a.store.InsertCells(run.RunID, out.Raster.Cells); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.stdout, "Run recorded as %s\n", run.RunID)
	}
	return nil
}

// listRuns prints the most recent runs recorded in the database.
func listRuns(w io.Writer, store *sqlite.RunStore, limit int) error {
	runs, err := store.List(limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tINPUT\tCREATED\tPOINTS\tREGIONS\tGROUND\tCELLS\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%v\n",
			r.RunID, r.Input, time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339),
			r.Points, r.Regions, r.GroundPoints, r.Cells, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}

func runsCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("groundseg runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "groundseg.db", "SQLite database to read")
	limit := fs.Int("limit", 20, "Number of runs to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return listRuns(stdout, sqlite.NewRunStore(db.DB, nil), *limit)
}

// execute runs the pipeline over opts.files, recording runs in opts.dbPath
// when set. The database is closed before execute returns.
func execute(ctx context.Context, opts *options, fs fsutil.FileSystem, stdout io.Writer) (err error) {
	a := &app{fs: fs, stdout: stdout}
	if opts.dbPath != "" {
		db, oerr := sqlite.Open(opts.dbPath)
		if oerr != nil {
			return fmt.Errorf("open run database: %w", oerr)
		}
		defer func() {
			err = multierr.Combine(err, db.Close())
		}()
		a.store = sqlite.NewRunStore(db.DB, nil)
	}
	return a.run(ctx, opts)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "runs" {
		if err := runsCommand(os.Args[2:], os.Stdout, os.Stderr); err != nil {
			log.Fatal(err)
		}
		return
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if opts.showVer {
		fmt.Println(version.String())
		return
	}
	if opts.verbose {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	} else {
		pipeline.SetLogWriters(os.Stderr, nil, nil)
	}
	monitoring.SetLogger(log.Printf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = execute(ctx, opts, fsutil.OSFileSystem{}, os.Stdout)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoSteps) {
			log.Printf("ERROR : No steps to compute")
		}
		log.Printf("groundseg: %v", err)
		stop()
		os.Exit(1)
	}
}
