// Package descriptors computes per-point shape descriptors from the
// eigen-decomposition of each point's radius-neighbourhood covariance.
//
// Degenerate neighbourhoods (fewer than MinNeighbors points) produce a zero
// normal and zero shape descriptors; they are counted, never fatal.
package descriptors
