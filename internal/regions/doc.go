// Package regions segments a cloud by deterministic multi-seed region
// growing. Seeds are taken in descriptor order; each region floods through
// radius neighbours that stay close to the seed height, the seed normal and
// the region's running mean descriptor.
package regions
