// Package report renders diagnostic plots for a processed point cloud:
// a PNG heat map of the ground raster, a PNG histogram of heights above
// ground and an HTML page of region and height charts.
package report
