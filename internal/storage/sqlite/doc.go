// Package sqlite persists terrain run summaries and raster cells.
//
// Every processed input can be recorded as a terrain run holding the stage
// counts, timings and tuning used, together with the rasterised ground
// cells, so runs over the same site can be compared later. The schema is
// owned by the embedded migrations.
package sqlite
