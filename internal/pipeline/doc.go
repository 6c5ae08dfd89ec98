// Package pipeline runs the terrain stages over a point table.
//
// A Pipeline is an explicit ordered list of stages. Each stage declares the
// fields it reads and the fields it writes, so missing prerequisites are
// reported by Validate before any work starts rather than part way through.
//
// This package is the composition root: it imports the stage packages
// (descriptors, regions, ground, dtm) and none of them import pipeline/.
package pipeline
