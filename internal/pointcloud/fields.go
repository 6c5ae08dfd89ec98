package pointcloud

// Field names written into the attribute table.
const (
	FieldX = "x"
	FieldY = "y"
	FieldZ = "z"

	FieldNX          = "nx"
	FieldNY          = "ny"
	FieldNZ          = "nz"
	FieldVerticality = "verticality"
	FieldLinearity   = "linearity"
	FieldPlanarity   = "planarity"
	FieldSphericity  = "sphericity"
	FieldCurvature   = "curvature"

	FieldRegion            = "region"
	FieldGround            = "ground"
	FieldHeightAboveGround = "height_above_ground"

	// Raster output columns.
	FieldCount = "count"
)

// Stage names. They double as the step names accepted on the command line.
const (
	StageInput             = "input"
	StageDescriptors       = "descriptors"
	StageRegions           = "regions"
	StageGroundExtraction  = "ground_extraction"
	StageHeightAboveGround = "height_above_ground"
	StageRasterizeGround   = "rasterize_ground"
)

// Descriptor names accepted by the descriptor engine. DescriptorNormals
// expands to the three normal component fields.
const (
	DescriptorNormals     = "normals"
	DescriptorVerticality = FieldVerticality
	DescriptorLinearity   = FieldLinearity
	DescriptorPlanarity   = FieldPlanarity
	DescriptorSphericity  = FieldSphericity
	DescriptorCurvature   = FieldCurvature

	// DescriptorAll selects every descriptor.
	DescriptorAll = "all"
)

// Descriptors lists every descriptor in canonical order.
var Descriptors = []string{
	DescriptorNormals,
	DescriptorVerticality,
	DescriptorLinearity,
	DescriptorPlanarity,
	DescriptorSphericity,
	DescriptorCurvature,
}

// NormalFields are the three normal component columns.
var NormalFields = []string{FieldNX, FieldNY, FieldNZ}

// CoordinateFields are always present in a valid table.
var CoordinateFields = []string{FieldX, FieldY, FieldZ}

// IsDescriptor reports whether name is a known descriptor.
func IsDescriptor(name string) bool {
	for _, d := range Descriptors {
		if d == name {
			return true
		}
	}
	return false
}

// IsGrowthDescriptor reports whether name can drive region growing. Normals
// are a vector and cannot be ranked.
func IsGrowthDescriptor(name string) bool {
	return name != DescriptorNormals && IsDescriptor(name)
}

// DescriptorFields returns the table columns written for a descriptor.
func DescriptorFields(name string) []string {
	if name == DescriptorNormals {
		return NormalFields
	}
	return []string{name}
}

var fieldProducers = map[string]string{
	FieldX:                 StageInput,
	FieldY:                 StageInput,
	FieldZ:                 StageInput,
	FieldNX:                StageDescriptors,
	FieldNY:                StageDescriptors,
	FieldNZ:                StageDescriptors,
	FieldVerticality:       StageDescriptors,
	FieldLinearity:         StageDescriptors,
	FieldPlanarity:         StageDescriptors,
	FieldSphericity:        StageDescriptors,
	FieldCurvature:         StageDescriptors,
	FieldRegion:            StageRegions,
	FieldGround:            StageGroundExtraction,
	FieldHeightAboveGround: StageHeightAboveGround,
}

// ProducerOf returns the stage that writes field, or "" for fields this
// package does not know about (extra columns read from input files).
func ProducerOf(field string) string {
	return fieldProducers[field]
}
