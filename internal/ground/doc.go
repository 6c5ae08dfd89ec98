// Package ground decides which regions form the ground surface and
// measures every point's height above it.
//
// Stitch starts from the lowest gently sloped region and absorbs
// neighbouring regions while the slope across the boundary stays small.
// HeightAboveGround then references each point to its nearest ground
// points in the XY plane.
package ground
