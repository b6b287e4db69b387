// SPDX-License-Identifier: MIT

package main

import "testing"

func fullMask(width, height int) *Mask {
	m := NewMask(width, height)
	for i := range m.bits {
		m.bits[i] = true
	}
	return m
}

func rowMask(width, height, row int) *Mask {
	m := NewMask(width, height)
	for col := 0; col < width; col++ {
		m.bits[row*width+col] = true
	}
	return m
}

// The 4x4 grid from the reference scenarios: 10 of its 16 values fall
// in the valid range [1, 6].
var gridPixels = []int32{
	0, 0, 7, 7,
	1, 2, 3, 4,
	5, 6, 0, 7,
	1, 1, 1, 1,
}

func TestCountPixelsAllValid(t *testing.T) {
	tile := &Tile{Width: 4, Height: 4, Pixels: make([]int32, 16)}
	for i := range tile.Pixels {
		tile.Pixels[i] = 3
	}
	total, valid := CountPixels(tile, fullMask(4, 4))
	if total != 16 || valid != 16 {
		t.Errorf("got (%d, %d), want (16, 16)", total, valid)
	}
}

func TestCountPixelsBottomRow(t *testing.T) {
	tile := &Tile{Width: 4, Height: 4, Pixels: gridPixels}
	total, valid := CountPixels(tile, rowMask(4, 4, 3))
	if total != 4 || valid != 4 {
		t.Errorf("got (%d, %d), want (4, 4)", total, valid)
	}
}

func TestCountPixelsMixed(t *testing.T) {
	tile := &Tile{Width: 4, Height: 4, Pixels: gridPixels}
	total, valid := CountPixels(tile, fullMask(4, 4))
	if total != 16 || valid != 10 {
		t.Errorf("got (%d, %d), want (16, 10)", total, valid)
	}
}

func TestCountPixelsNoData(t *testing.T) {
	nodata := int32(0)
	tile := &Tile{Width: 4, Height: 4, Pixels: gridPixels, NoData: &nodata}
	total, valid := CountPixels(tile, fullMask(4, 4))
	if total != 13 || valid != 10 {
		t.Errorf("got (%d, %d), want (13, 10)", total, valid)
	}
}

func TestCountPixelsNoDataInsideValidRange(t *testing.T) {
	// A sentinel inside [1, 6] must still be excluded from both counts.
	nodata := int32(1)
	tile := &Tile{Width: 4, Height: 4, Pixels: gridPixels, NoData: &nodata}
	total, valid := CountPixels(tile, fullMask(4, 4))
	if total != 11 || valid != 5 {
		t.Errorf("got (%d, %d), want (11, 5)", total, valid)
	}
	if valid > total {
		t.Error("valid must never exceed total")
	}
}

func TestCountPixelsEmptyMask(t *testing.T) {
	tile := &Tile{Width: 4, Height: 4, Pixels: gridPixels}
	total, valid := CountPixels(tile, NewMask(4, 4))
	if total != 0 || valid != 0 {
		t.Errorf("got (%d, %d), want (0, 0)", total, valid)
	}
}
