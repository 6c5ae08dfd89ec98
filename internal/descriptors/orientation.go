package descriptors

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/groundseg/internal/pointcloud"
)

// Orientations maps the accepted preferred-orientation names to unit axes.
var Orientations = map[string]r3.Vector{
	"+x": {X: 1},
	"-x": {X: -1},
	"+y": {Y: 1},
	"-y": {Y: -1},
	"+z": {Z: 1},
	"-z": {Z: -1},
}

// VerticalAxis is the axis verticality is measured against.
var VerticalAxis = r3.Vector{Z: 1}

// ParseOrientation returns the unit axis for a name such as "+z".
func ParseOrientation(name string) (r3.Vector, error) {
	v, ok := Orientations[name]
	if !ok {
		return r3.Vector{}, pointcloud.InvalidConfigf("unknown preferred orientation %q (want one of +x -x +y -y +z -z)", name)
	}
	return v, nil
}

// ExpandDescriptors resolves "all", rejects unknown names and returns the
// selection in canonical order without duplicates.
func ExpandDescriptors(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, pointcloud.InvalidConfigf("no descriptors selected")
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n == pointcloud.DescriptorAll {
			for _, d := range pointcloud.Descriptors {
				want[d] = true
			}
			continue
		}
		if !pointcloud.IsDescriptor(n) {
			return nil, pointcloud.InvalidConfigf("unknown descriptor %q", n)
		}
		want[n] = true
	}
	out := make([]string, 0, len(want))
	for _, d := range pointcloud.Descriptors {
		if want[d] {
			out = append(out, d)
		}
	}
	return out, nil
}
