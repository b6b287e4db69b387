// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/ctessum/geom"
	"github.com/orcaman/writerseeker"
)

// tiffImage describes a synthetic GeoTIFF for tests: an 8-bit single
// band with an axis-aligned transform, written little-endian.
type tiffImage struct {
	width, height int
	pixels        []byte  // row-major, one byte per pixel
	originX       float64 // geographic position of the top-left corner
	originY       float64
	pixelSize     float64 // square pixels; negative Y scale is implied
	epsg          int     // 0 omits the GeoKey directory
	nodata        string  // e.g. "0.0000"; empty omits the tag
	deflate       bool
	rowsPerStrip  int // 0 means one strip for the whole image
	tileSize      int // >0 switches to tiled layout
}

// makeGeoTIFF assembles the TIFF in memory. Layout: header, pixel
// blocks, out-of-line tag data, IFD last, with the header patched to
// point at it.
func makeGeoTIFF(img tiffImage) []byte {
	f := &writerseeker.WriterSeeker{}
	le := binary.LittleEndian

	f.Write([]byte{'I', 'I', 42, 0})
	binary.Write(f, le, uint32(0xffffffff)) // IFD offset, patched below
	pos := uint32(8)

	var blockOffsets, blockCounts []uint32
	writeBlock := func(raw []byte) {
		if img.deflate {
			var compressed bytes.Buffer
			zw := zlib.NewWriter(&compressed)
			zw.Write(raw)
			zw.Close()
			raw = compressed.Bytes()
		}
		blockOffsets = append(blockOffsets, pos)
		blockCounts = append(blockCounts, uint32(len(raw)))
		f.Write(raw)
		pos += uint32(len(raw))
	}

	rowsPerStrip := img.rowsPerStrip
	if rowsPerStrip == 0 {
		rowsPerStrip = img.height
	}
	if img.tileSize > 0 {
		ts := img.tileSize
		across := (img.width + ts - 1) / ts
		down := (img.height + ts - 1) / ts
		for ty := 0; ty < down; ty++ {
			for tx := 0; tx < across; tx++ {
				block := make([]byte, ts*ts)
				for r := 0; r < ts; r++ {
					for c := 0; c < ts; c++ {
						row, col := ty*ts+r, tx*ts+c
						if row < img.height && col < img.width {
							block[r*ts+c] = img.pixels[row*img.width+col]
						}
					}
				}
				writeBlock(block)
			}
		}
	} else {
		for row := 0; row < img.height; row += rowsPerStrip {
			rows := rowsPerStrip
			if row+rows > img.height {
				rows = img.height - row
			}
			writeBlock(img.pixels[row*img.width : (row+rows)*img.width])
		}
	}

	if pos&1 != 0 {
		f.Write([]byte{0})
		pos++
	}

	// Out-of-line tag data.
	var extra bytes.Buffer
	extraStart := pos
	extraOffset := func() uint32 { return extraStart + uint32(extra.Len()) }

	scaleOffset := extraOffset()
	binary.Write(&extra, le, []float64{img.pixelSize, img.pixelSize, 0})
	tieOffset := extraOffset()
	binary.Write(&extra, le, []float64{0, 0, 0, img.originX, img.originY, 0})

	var geoKeys []uint16
	switch img.epsg {
	case 0:
	case 4326:
		geoKeys = []uint16{1, 1, 0, 3, 1024, 0, 1, 2, 1025, 0, 1, 1, 2048, 0, 1, 4326}
	default:
		geoKeys = []uint16{1, 1, 0, 3, 1024, 0, 1, 1, 1025, 0, 1, 1, 3072, 0, 1, uint16(img.epsg)}
	}
	geoKeysOffset := extraOffset()
	binary.Write(&extra, le, geoKeys)

	nodataOffset := extraOffset()
	nodataBytes := append([]byte(img.nodata), 0)
	extra.Write(nodataBytes)
	if extra.Len()&1 != 0 {
		extra.WriteByte(0)
	}

	blockOffsetsOffset := extraOffset()
	binary.Write(&extra, le, blockOffsets)
	blockCountsOffset := extraOffset()
	binary.Write(&extra, le, blockCounts)

	f.Write(extra.Bytes())
	pos += uint32(extra.Len())

	// IFD, entries in increasing tag order.
	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	compression := uint32(1)
	if img.deflate {
		compression = 8
	}
	blockValue := func(offsets []uint32, arrayOffset uint32) uint32 {
		if len(offsets) == 1 {
			return offsets[0]
		}
		return arrayOffset
	}
	entries := []entry{
		{256, 4, 1, uint32(img.width)},
		{257, 4, 1, uint32(img.height)},
		{258, 3, 1, 8},
		{259, 3, 1, compression},
		{262, 3, 1, 1},
		{277, 3, 1, 1},
		{339, 3, 1, 1},
		{33550, 12, 3, scaleOffset},
		{33922, 12, 6, tieOffset},
	}
	if img.tileSize > 0 {
		entries = append(entries,
			entry{322, 3, 1, uint32(img.tileSize)},
			entry{323, 3, 1, uint32(img.tileSize)},
			entry{324, 4, uint32(len(blockOffsets)), blockValue(blockOffsets, blockOffsetsOffset)},
			entry{325, 4, uint32(len(blockCounts)), blockValue(blockCounts, blockCountsOffset)},
		)
	} else {
		entries = append(entries,
			entry{273, 4, uint32(len(blockOffsets)), blockValue(blockOffsets, blockOffsetsOffset)},
			entry{278, 4, 1, uint32(rowsPerStrip)},
			entry{279, 4, uint32(len(blockCounts)), blockValue(blockCounts, blockCountsOffset)},
		)
	}
	if img.epsg != 0 {
		entries = append(entries, entry{34735, 3, uint32(len(geoKeys)), geoKeysOffset})
	}
	if img.nodata != "" {
		entries = append(entries, entry{42113, 2, uint32(len(nodataBytes)), nodataOffset})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].tag < entries[j-1].tag; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	ifdOffset := pos
	binary.Write(f, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(f, le, e.tag)
		binary.Write(f, le, e.typ)
		binary.Write(f, le, e.count)
		binary.Write(f, le, e.value)
	}
	binary.Write(f, le, uint32(0)) // no next IFD

	f.Seek(4, io.SeekStart)
	binary.Write(f, le, ifdOffset)

	data, _ := io.ReadAll(f.Reader())
	return data
}

// square returns a closed square polygon, counterclockwise.
func square(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}}
}

// testCountry wraps a polygon into a Country with precomputed bounds.
func testCountry(name string, poly geom.Polygonal) *Country {
	return &Country{Name: name, Geom: poly, Bounds: poly.Bounds()}
}
