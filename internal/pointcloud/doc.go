// Package pointcloud owns the per-point attribute table shared by every
// terrain stage, the field and descriptor vocabulary, the error taxonomy
// used across the pipeline, and the ASC/LAS codecs used by the CLI.
//
// Responsibilities: column storage with a fixed row count, prerequisite
// checks naming the stage that produces a missing field, row filtering.
// Key types: Table, MissingFieldError.
//
// Dependency rule: pointcloud is a leaf. It may not import any other
// internal package except fsutil and security (codec output only).
package pointcloud
