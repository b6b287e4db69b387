// SPDX-License-Identifier: MIT

package main

// Affine maps pixel indices to geographic coordinates for a north-up,
// rotation-free raster grid. PixelWidth is always positive; PixelHeight
// is negative for the usual top-to-bottom row order.
type Affine struct {
	OriginX     float64 // geographic X of the outer corner of pixel (0, 0)
	OriginY     float64 // geographic Y of the outer corner of pixel (0, 0)
	PixelWidth  float64
	PixelHeight float64
}

// Apply maps fractional pixel coordinates to geographic coordinates.
// (0, 0) is the outer corner of the top-left pixel.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.OriginX + col*a.PixelWidth, a.OriginY + row*a.PixelHeight
}

// PixelCenter returns the geographic coordinates of the center of a pixel.
func (a Affine) PixelCenter(col, row int) (x, y float64) {
	return a.Apply(float64(col)+0.5, float64(row)+0.5)
}

// Tile is one raster tile: a single-band grid of integer pixel values
// with a geographic transform. Tiles are materialized for the duration
// of one processing step and discarded right after aggregation.
type Tile struct {
	Key       string // storage key, for log messages and error reports
	Group     string // logical bucket, derived from the storage subdirectory
	Width     int
	Height    int
	Pixels    []int32 // row-major, Width*Height samples
	Transform Affine
	EPSG      int    // 0 if the file carried no usable CRS metadata
	NoData    *int32 // nil if no sentinel is declared
}

// Extent returns the tile's axis-aligned bounding box in its own CRS.
func (t *Tile) Extent() (minX, minY, maxX, maxY float64) {
	x0, y0 := t.Transform.Apply(0, 0)
	x1, y1 := t.Transform.Apply(float64(t.Width), float64(t.Height))
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return x0, y0, x1, y1
}
