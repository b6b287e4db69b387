// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"

	"github.com/fogleman/gg"
)

// renderMask writes a PNG visualizing which pixels of a tile fall inside
// a country. Valid pixels are drawn blue, other masked pixels gray.
func renderMask(t *Tile, m *Mask, country, pathPrefix string) error {
	dc := gg.NewContext(m.Width, m.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			if !m.At(col, row) {
				continue
			}
			v := t.Pixels[row*m.Width+col]
			if v >= validMin && v <= validMax {
				dc.SetRGB(0, 0.4, 1)
			} else {
				dc.SetRGB(0.7, 0.7, 0.7)
			}
			dc.SetPixel(col, row)
		}
	}
	name := fmt.Sprintf("%s%s-%s.png", pathPrefix, sanitize(t.Key), sanitize(country))
	return dc.SavePNG(name)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '-'
		}
		return r
	}, s)
}
