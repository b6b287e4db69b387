// SPDX-License-Identifier: MIT

package main

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// Mask is an ephemeral boolean grid with the same dimensions as the tile
// it was built for. True marks pixels whose center lies inside a country.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, bits: make([]bool, width*height)}
}

func (m *Mask) At(col, row int) bool { return m.bits[row*m.Width+col] }

// Count returns the number of true cells.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// BuildMask rasterizes a country's boundary onto a pixel grid with the
// given dimensions and transform. A pixel is covered if its center lies
// within the polygon, under an even-odd scanline rule with half-open
// spans: a center exactly on a shared boundary belongs to the country on
// whose left/top side it falls, never to both. The country geometry and
// the transform must be in the same CRS.
//
// An all-false mask is a legitimate outcome: the bounding boxes of tile
// and country may overlap while the exact geometries do not.
func BuildMask(width, height int, tr Affine, c *Country) *Mask {
	m := NewMask(width, height)
	if width == 0 || height == 0 {
		return m
	}

	var xs []float64
	for row := 0; row < height; row++ {
		_, yc := tr.PixelCenter(0, row)
		if yc < c.Bounds.Min.Y || yc > c.Bounds.Max.Y {
			continue
		}

		xs = xs[:0]
		for _, poly := range c.Geom.Polygons() {
			for _, ring := range poly {
				xs = appendCrossings(xs, ring, yc)
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			m.fillSpan(tr, row, xs[i], xs[i+1])
		}
	}
	return m
}

// appendCrossings collects the X coordinates where the ring crosses the
// horizontal line y = yc. An edge counts if yc lies in the half-open
// interval between its endpoint Y values, which makes vertices and
// horizontal edges unambiguous.
func appendCrossings(xs []float64, ring geom.Path, yc float64) []float64 {
	n := len(ring)
	if n < 3 {
		return xs
	}
	for i := 0; i < n; i++ {
		p, q := ring[i], ring[(i+1)%n]
		if (p.Y <= yc && q.Y > yc) || (q.Y <= yc && p.Y > yc) {
			x := p.X + (yc-p.Y)*(q.X-p.X)/(q.Y-p.Y)
			xs = append(xs, x)
		}
	}
	return xs
}

// fillSpan marks the pixels of one row whose centers fall in [x0, x1).
// The half-open interval implements the left-edge-inside tie break.
func (m *Mask) fillSpan(tr Affine, row int, x0, x1 float64) {
	start := int(math.Ceil((x0-tr.OriginX)/tr.PixelWidth - 0.5))
	end := int(math.Ceil((x1-tr.OriginX)/tr.PixelWidth - 0.5))
	if start < 0 {
		start = 0
	}
	if end > m.Width {
		end = m.Width
	}
	for col := start; col < end; col++ {
		m.bits[row*m.Width+col] = true
	}
}
