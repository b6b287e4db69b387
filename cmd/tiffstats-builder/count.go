// SPDX-License-Identifier: MIT

package main

// Pixel values inside this inclusive range count as valid observations.
const (
	validMin = 1
	validMax = 6
)

// CountPixels applies a country mask to a tile's pixel grid. total is
// the number of masked pixels carrying data; valid is how many of those
// lie in [validMin, validMax]. Pixels equal to the tile's no-data
// sentinel are excluded from both counts, even if the sentinel happens
// to fall inside the valid range, so valid <= total always holds.
func CountPixels(t *Tile, m *Mask) (total, valid uint64) {
	for i, inside := range m.bits {
		if !inside {
			continue
		}
		v := t.Pixels[i]
		if t.NoData != nil && v == *t.NoData {
			continue
		}
		total++
		if v >= validMin && v <= validMax {
			valid++
		}
	}
	return total, valid
}
