package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/groundseg/internal/descriptors"
	"github.com/banshee-data/groundseg/internal/ground"
	"github.com/banshee-data/groundseg/internal/pointcloud"
	"github.com/banshee-data/groundseg/internal/regions"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// DefaultTuningConfig mirrors it; a test keeps the two in step.
const DefaultConfigPath = "config/terrain.defaults.json"

// Defaults for every tuning parameter.
const (
	DefaultRadiusDescriptors    = 2.0
	DefaultPreferredOrientation = "+z"
	DefaultEpsilonDescriptors   = 1e-2
	DefaultRadiusRegion         = 1.0
	DefaultNRegions             = 50
	DefaultCriterionRegion      = "max planarity"
	DefaultThreshHeight         = 0.1
	DefaultThreshAngle          = 0.1
	DefaultThreshDescriptor     = 0.1
	DefaultSlopeIntra           = 0.1
	DefaultSlopeInter           = 0.2
	DefaultPercentileClosest    = 0.1
	DefaultHeightNeighbors      = ground.DefaultHeightNeighbors
	DefaultRasterizeStep        = 0.5
	DefaultWorkers              = 0
)

// TuningConfig holds every parameter of the terrain pipeline. Fields are
// pointers so that a partial JSON file only overrides what it names; the
// Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Descriptor params
	Descriptors          *[]string `json:"descriptors,omitempty"`
	RadiusDescriptors    *float64  `json:"radius_descriptors,omitempty"`
	PreferredOrientation *string   `json:"preferred_orientation,omitempty"`
	EpsilonDescriptors   *float64  `json:"epsilon_descriptors,omitempty"`

	// Region growing params
	RadiusRegion     *float64 `json:"radius_region,omitempty"`
	NRegions         *int     `json:"n_regions,omitempty"`
	CriterionRegion  *string  `json:"criterion_region,omitempty"` // "max planarity", "min curvature", ...
	ThreshHeight     *float64 `json:"thresh_height,omitempty"`
	ThreshAngle      *float64 `json:"thresh_angle,omitempty"` // radians
	ThreshDescriptor *float64 `json:"thresh_descriptor,omitempty"`

	// Ground extraction params
	SlopeIntra        *float64 `json:"slope_intra,omitempty"`
	SlopeInter        *float64 `json:"slope_inter,omitempty"`
	PercentileClosest *float64 `json:"percentile_closest,omitempty"`
	HeightNeighbors   *int     `json:"height_neighbors,omitempty"`

	// Rasterization params
	RasterizeStep *float64 `json:"rasterize_step,omitempty"`

	// Workers bounds the goroutines of the parallel stages; 0 means one
	// per CPU.
	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default.
func DefaultTuningConfig() *TuningConfig {
	all := []string{pointcloud.DescriptorAll}
	return &TuningConfig{
		Descriptors:          &all,
		RadiusDescriptors:    ptrFloat64(DefaultRadiusDescriptors),
		PreferredOrientation: ptrString(DefaultPreferredOrientation),
		EpsilonDescriptors:   ptrFloat64(DefaultEpsilonDescriptors),
		RadiusRegion:         ptrFloat64(DefaultRadiusRegion),
		NRegions:             ptrInt(DefaultNRegions),
		CriterionRegion:      ptrString(DefaultCriterionRegion),
		ThreshHeight:         ptrFloat64(DefaultThreshHeight),
		ThreshAngle:          ptrFloat64(DefaultThreshAngle),
		ThreshDescriptor:     ptrFloat64(DefaultThreshDescriptor),
		SlopeIntra:           ptrFloat64(DefaultSlopeIntra),
		SlopeInter:           ptrFloat64(DefaultSlopeInter),
		PercentileClosest:    ptrFloat64(DefaultPercentileClosest),
		HeightNeighbors:      ptrInt(DefaultHeightNeighbors),
		RasterizeStep:        ptrFloat64(DefaultRasterizeStep),
		Workers:              ptrInt(DefaultWorkers),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every value by building the stage configurations it
// feeds. Errors wrap pointcloud.ErrInvalidConfiguration.
func (c *TuningConfig) Validate() error {
	if err := c.DescriptorConfig().Validate(); err != nil {
		return err
	}
	rc, _, err := c.RegionConfig()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	if err := c.StitchConfig().Validate(); err != nil {
		return err
	}
	if n := c.GetHeightNeighbors(); n <= 0 {
		return pointcloud.InvalidConfigf("height_neighbors must be positive, got %d", n)
	}
	if s := c.GetRasterizeStep(); !(s > 0) {
		return pointcloud.InvalidConfigf("rasterize_step must be positive, got %v", s)
	}
	if w := c.GetWorkers(); w < 0 {
		return pointcloud.InvalidConfigf("workers must not be negative, got %d", w)
	}
	return nil
}

// DescriptorConfig returns the descriptor stage configuration.
func (c *TuningConfig) DescriptorConfig() descriptors.Config {
	return descriptors.Config{
		Radius:               c.GetRadiusDescriptors(),
		Descriptors:          c.GetDescriptors(),
		PreferredOrientation: c.GetPreferredOrientation(),
		Epsilon:              c.GetEpsilonDescriptors(),
		Workers:              c.GetWorkers(),
	}
}

// RegionConfig returns the region growing configuration and the
// descriptor that drives it.
func (c *TuningConfig) RegionConfig() (regions.Config, regions.Criterion, error) {
	crit, err := regions.ParseCriterion(c.GetCriterionRegion())
	if err != nil {
		return regions.Config{}, regions.Criterion{}, err
	}
	return regions.Config{
		Radius:   c.GetRadiusRegion(),
		NRegions: c.GetNRegions(),
		Minimize: crit.Minimize,
		Thresholds: regions.Thresholds{
			Height:     c.GetThreshHeight(),
			Angle:      c.GetThreshAngle(),
			Descriptor: c.GetThreshDescriptor(),
		},
	}, crit, nil
}

// StitchConfig returns the ground extraction configuration.
func (c *TuningConfig) StitchConfig() ground.Config {
	return ground.Config{
		SlopeIntraMax:     c.GetSlopeIntra(),
		SlopeInterMax:     c.GetSlopeInter(),
		PercentileClosest: c.GetPercentileClosest(),
	}
}

// GetDescriptors returns the descriptors value or the default.
func (c *TuningConfig) GetDescriptors() []string {
	if c.Descriptors == nil {
		return []string{pointcloud.DescriptorAll}
	}
	return *c.Descriptors
}

// GetRadiusDescriptors returns the radius_descriptors value or the default.
func (c *TuningConfig) GetRadiusDescriptors() float64 {
	if c.RadiusDescriptors == nil {
		return DefaultRadiusDescriptors
	}
	return *c.RadiusDescriptors
}

// GetPreferredOrientation returns the preferred_orientation value or the default.
func (c *TuningConfig) GetPreferredOrientation() string {
	if c.PreferredOrientation == nil {
		return DefaultPreferredOrientation
	}
	return *c.PreferredOrientation
}

// GetEpsilonDescriptors returns the epsilon_descriptors value or the default.
func (c *TuningConfig) GetEpsilonDescriptors() float64 {
	if c.EpsilonDescriptors == nil {
		return DefaultEpsilonDescriptors
	}
	return *c.EpsilonDescriptors
}

// GetRadiusRegion returns the radius_region value or the default.
func (c *TuningConfig) GetRadiusRegion() float64 {
	if c.RadiusRegion == nil {
		return DefaultRadiusRegion
	}
	return *c.RadiusRegion
}

// GetNRegions returns the n_regions value or the default.
func (c *TuningConfig) GetNRegions() int {
	if c.NRegions == nil {
		return DefaultNRegions
	}
	return *c.NRegions
}

// GetCriterionRegion returns the criterion_region value or the default.
func (c *TuningConfig) GetCriterionRegion() string {
	if c.CriterionRegion == nil {
		return DefaultCriterionRegion
	}
	return *c.CriterionRegion
}

// GetThreshHeight returns the thresh_height value or the default.
func (c *TuningConfig) GetThreshHeight() float64 {
	if c.ThreshHeight == nil {
		return DefaultThreshHeight
	}
	return *c.ThreshHeight
}

// GetThreshAngle returns the thresh_angle value or the default.
func (c *TuningConfig) GetThreshAngle() float64 {
	if c.ThreshAngle == nil {
		return DefaultThreshAngle
	}
	return *c.ThreshAngle
}

// GetThreshDescriptor returns the thresh_descriptor value or the default.
func (c *TuningConfig) GetThreshDescriptor() float64 {
	if c.ThreshDescriptor == nil {
		return DefaultThreshDescriptor
	}
	return *c.ThreshDescriptor
}

// GetSlopeIntra returns the slope_intra value or the default.
func (c *TuningConfig) GetSlopeIntra() float64 {
	if c.SlopeIntra == nil {
		return DefaultSlopeIntra
	}
	return *c.SlopeIntra
}

// GetSlopeInter returns the slope_inter value or the default.
func (c *TuningConfig) GetSlopeInter() float64 {
	if c.SlopeInter == nil {
		return DefaultSlopeInter
	}
	return *c.SlopeInter
}

// GetPercentileClosest returns the percentile_closest value or the default.
func (c *TuningConfig) GetPercentileClosest() float64 {
	if c.PercentileClosest == nil {
		return DefaultPercentileClosest
	}
	return *c.PercentileClosest
}

// GetHeightNeighbors returns the height_neighbors value or the default.
func (c *TuningConfig) GetHeightNeighbors() int {
	if c.HeightNeighbors == nil {
		return DefaultHeightNeighbors
	}
	return *c.HeightNeighbors
}

// GetRasterizeStep returns the rasterize_step value or the default.
func (c *TuningConfig) GetRasterizeStep() float64 {
	if c.RasterizeStep == nil {
		return DefaultRasterizeStep
	}
	return *c.RasterizeStep
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}
