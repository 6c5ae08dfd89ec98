package regions

import (
	"strings"

	"github.com/banshee-data/groundseg/internal/pointcloud"
)

// Criterion selects the descriptor that ranks seeds and whether the lowest
// or highest value is grown first.
type Criterion struct {
	Minimize   bool
	Descriptor string
}

// DefaultCriterion grows the most planar points first.
var DefaultCriterion = Criterion{Minimize: false, Descriptor: pointcloud.DescriptorPlanarity}

// ParseCriterion parses "min <descriptor>" or "max <descriptor>". A comma
// may separate the two words.
func ParseCriterion(s string) (Criterion, error) {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(parts) != 2 {
		return Criterion{}, pointcloud.InvalidConfigf("criterion %q must be in the format '[min/max] [descriptor]'", s)
	}
	var c Criterion
	switch parts[0] {
	case "min":
		c.Minimize = true
	case "max":
	default:
		return Criterion{}, pointcloud.InvalidConfigf("criterion direction %q must be min or max", parts[0])
	}
	if !pointcloud.IsGrowthDescriptor(parts[1]) {
		return Criterion{}, pointcloud.InvalidConfigf("unsupported growth descriptor %q", parts[1])
	}
	c.Descriptor = parts[1]
	return c, nil
}

func (c Criterion) String() string {
	if c.Minimize {
		return "min " + c.Descriptor
	}
	return "max " + c.Descriptor
}
