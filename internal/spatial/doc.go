// Package spatial provides the neighbour search shared by the terrain
// stages: a uniform 3D hash grid for radius queries and a planar k-d tree
// for nearest-ground lookups.
package spatial
