// SPDX-License-Identifier: MIT

package main

import (
	"testing"

	"github.com/ctessum/geom"
)

// testTransform is a 1-degree-per-pixel north-up grid whose top-left
// corner sits at (0, 4); a 4x4 tile under it spans x 0..4, y 0..4.
var testTransform = Affine{OriginX: 0, OriginY: 4, PixelWidth: 1, PixelHeight: -1}

func TestBuildMaskFullCover(t *testing.T) {
	c := testCountry("Alpha", square(0, 0, 4, 4))
	m := BuildMask(4, 4, testTransform, c)
	if got := m.Count(); got != 16 {
		t.Errorf("got %d covered pixels, want 16", got)
	}
}

func TestBuildMaskBottomRow(t *testing.T) {
	c := testCountry("Alpha", square(0, 0, 4, 1))
	m := BuildMask(4, 4, testTransform, c)
	if got := m.Count(); got != 4 {
		t.Errorf("got %d covered pixels, want 4", got)
	}
	for col := 0; col < 4; col++ {
		if !m.At(col, 3) {
			t.Errorf("pixel (%d, 3) not covered", col)
		}
		if m.At(col, 0) {
			t.Errorf("pixel (%d, 0) covered, want uncovered", col)
		}
	}
}

func TestBuildMaskDisjoint(t *testing.T) {
	// Bounding boxes may overlap while the exact geometry does not;
	// here not even the boxes do. Either way the mask must be empty.
	c := testCountry("Faraway", square(10, 10, 12, 12))
	m := BuildMask(4, 4, testTransform, c)
	if got := m.Count(); got != 0 {
		t.Errorf("got %d covered pixels, want 0", got)
	}
}

func TestBuildMaskSharedBoundary(t *testing.T) {
	// Two countries sharing the x=2 meridian: every pixel belongs to
	// exactly one of them, so per-tile totals can never exceed the
	// tile's pixel count.
	left := testCountry("Left", square(0, 0, 2, 4))
	right := testCountry("Right", square(2, 0, 4, 4))
	ml := BuildMask(4, 4, testTransform, left)
	mr := BuildMask(4, 4, testTransform, right)
	if got := ml.Count() + mr.Count(); got != 16 {
		t.Errorf("left+right cover %d pixels, want 16", got)
	}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			if ml.At(col, row) && mr.At(col, row) {
				t.Errorf("pixel (%d, %d) claimed by both countries", col, row)
			}
		}
	}
}

func TestBuildMaskHole(t *testing.T) {
	outer := geom.Path{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	hole := geom.Path{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}}
	c := testCountry("Donut", geom.Polygon{outer, hole})
	m := BuildMask(4, 4, testTransform, c)
	if got := m.Count(); got != 12 {
		t.Errorf("got %d covered pixels, want 12", got)
	}
	if m.At(1, 1) || m.At(2, 2) {
		t.Error("pixels inside the hole must not be covered")
	}
}

func TestBuildMaskMultiPolygon(t *testing.T) {
	mp := geom.MultiPolygon{square(0, 0, 1, 1), square(3, 3, 4, 4)}
	c := testCountry("Islands", mp)
	m := BuildMask(4, 4, testTransform, c)
	if got := m.Count(); got != 2 {
		t.Errorf("got %d covered pixels, want 2", got)
	}
	if !m.At(0, 3) || !m.At(3, 0) {
		t.Error("expected the two island pixels to be covered")
	}
}

func TestBuildMaskDimensions(t *testing.T) {
	c := testCountry("Alpha", square(0, 0, 100, 100))
	m := BuildMask(7, 3, testTransform, c)
	if m.Width != 7 || m.Height != 3 {
		t.Errorf("got %dx%d mask, want 7x3", m.Width, m.Height)
	}
	if got := m.Count(); got != 21 {
		t.Errorf("got %d covered pixels, want 21", got)
	}
}
