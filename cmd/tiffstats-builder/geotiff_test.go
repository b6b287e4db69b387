// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"strings"
	"testing"
)

func sequentialPixels(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func asInt32(p []byte) []int32 {
	r := make([]int32, len(p))
	for i, v := range p {
		r[i] = int32(v)
	}
	return r
}

func TestReadGeoTIFF(t *testing.T) {
	pixels := sequentialPixels(16)
	data := makeGeoTIFF(tiffImage{
		width: 4, height: 4, pixels: pixels,
		originX: 10, originY: 20, pixelSize: 0.5,
		epsg: 4326, nodata: "0.0000",
	})

	tile, err := ReadGeoTIFF(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if tile.Width != 4 || tile.Height != 4 {
		t.Errorf("got %dx%d, want 4x4", tile.Width, tile.Height)
	}
	if !reflect.DeepEqual(tile.Pixels, asInt32(pixels)) {
		t.Errorf("got pixels %v, want %v", tile.Pixels, asInt32(pixels))
	}
	tr := tile.Transform
	if tr.OriginX != 10 || tr.OriginY != 20 || tr.PixelWidth != 0.5 || tr.PixelHeight != -0.5 {
		t.Errorf("got transform %+v", tr)
	}
	if tile.EPSG != 4326 {
		t.Errorf("got EPSG %d, want 4326", tile.EPSG)
	}
	if tile.NoData == nil || *tile.NoData != 0 {
		t.Errorf("got nodata %v, want 0", tile.NoData)
	}
}

func TestReadGeoTIFFDeflateStrips(t *testing.T) {
	pixels := sequentialPixels(24)
	data := makeGeoTIFF(tiffImage{
		width: 4, height: 6, pixels: pixels,
		originX: 0, originY: 6, pixelSize: 1,
		epsg: 4326, deflate: true, rowsPerStrip: 2,
	})

	tile, err := ReadGeoTIFF(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tile.Pixels, asInt32(pixels)) {
		t.Errorf("got pixels %v, want %v", tile.Pixels, asInt32(pixels))
	}
	if tile.NoData != nil {
		t.Errorf("got nodata %v, want nil", *tile.NoData)
	}
}

func TestReadGeoTIFFTiled(t *testing.T) {
	// 5x3 raster with 4x4 tiles: edge tiles are padded and must be
	// clipped on read.
	pixels := sequentialPixels(15)
	data := makeGeoTIFF(tiffImage{
		width: 5, height: 3, pixels: pixels,
		originX: 0, originY: 3, pixelSize: 1,
		epsg: 4326, tileSize: 4, deflate: true,
	})

	tile, err := ReadGeoTIFF(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tile.Pixels, asInt32(pixels)) {
		t.Errorf("got pixels %v, want %v", tile.Pixels, asInt32(pixels))
	}
}

func TestReadGeoTIFFWebMercator(t *testing.T) {
	data := makeGeoTIFF(tiffImage{
		width: 2, height: 2, pixels: []byte{1, 2, 3, 4},
		originX: -20037508.34, originY: 20037508.34, pixelSize: 1000,
		epsg: 3857,
	})
	tile, err := ReadGeoTIFF(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if tile.EPSG != 3857 {
		t.Errorf("got EPSG %d, want 3857", tile.EPSG)
	}
	if math.Abs(tile.Transform.OriginX+20037508.34) > 1e-6 {
		t.Errorf("got origin X %f", tile.Transform.OriginX)
	}
}

func TestReadGeoTIFFNoCRS(t *testing.T) {
	data := makeGeoTIFF(tiffImage{
		width: 2, height: 2, pixels: []byte{1, 2, 3, 4},
		originX: 0, originY: 2, pixelSize: 1,
	})
	tile, err := ReadGeoTIFF(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if tile.EPSG != 0 {
		t.Errorf("got EPSG %d, want 0", tile.EPSG)
	}
}

func TestReadGeoTIFFNotATiff(t *testing.T) {
	if _, err := ReadGeoTIFF(bytes.NewReader([]byte("PNG is not TIFF, sorry"))); err == nil {
		t.Error("want error for non-TIFF input")
	}
}

func TestReadGeoTIFFHugeDimensions(t *testing.T) {
	// 65536x65536 would overflow a 32-bit pixel-count product to zero;
	// the size guard must still reject it before allocating anything.
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.Write([]byte{'I', 'I', 42, 0})
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(2))
	for _, tag := range []uint16{256, 257} {
		binary.Write(&buf, le, tag)
		binary.Write(&buf, le, uint16(4))
		binary.Write(&buf, le, uint32(1))
		binary.Write(&buf, le, uint32(65536))
	}
	binary.Write(&buf, le, uint32(0))

	_, err := ReadGeoTIFF(bytes.NewReader(buf.Bytes()))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("got %v, want raster-too-large error", err)
	}
}

func TestReadGeoTIFFTruncated(t *testing.T) {
	data := makeGeoTIFF(tiffImage{
		width: 4, height: 4, pixels: sequentialPixels(16),
		originX: 0, originY: 4, pixelSize: 1, epsg: 4326,
	})
	if _, err := ReadGeoTIFF(bytes.NewReader(data[:10])); err == nil {
		t.Error("want error for truncated input")
	}
}
