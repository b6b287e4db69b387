// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// TIFF tags we care about. Single band, integer samples, strip or tile
// layout, optionally deflate-compressed; everything else is rejected.
const (
	tagImageWidth      = 256
	tagImageHeight     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagTileWidth       = 322
	tagTileHeight      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	geoKeyGeographicType = 2048
	geoKeyProjectedCSType = 3072

	compressionNone       = 1
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   [4]byte
}

var fieldTypeSize = map[uint16]uint32{
	1:  1, // BYTE
	2:  1, // ASCII
	3:  2, // SHORT
	4:  4, // LONG
	11: 4, // FLOAT
	12: 8, // DOUBLE
}

type geoTiffReader struct {
	r       io.ReadSeeker
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

// ReadGeoTIFF decodes a single-band integer GeoTIFF into a Tile. The
// caller fills in Key and Group. Structural problems (bad magic, grid
// and strip layout disagreeing, unsupported sample types) are errors;
// absent CRS metadata is not, it just leaves EPSG at 0 for the resolver
// to report.
func ReadGeoTIFF(r io.ReadSeeker) (*Tile, error) {
	d := &geoTiffReader{r: r, entries: make(map[uint16]ifdEntry)}
	if err := d.readFirstIFD(); err != nil {
		return nil, err
	}

	width, ok := d.scalar(tagImageWidth)
	if !ok || width == 0 {
		return nil, fmt.Errorf("missing or zero ImageWidth")
	}
	height, ok := d.scalar(tagImageHeight)
	if !ok || height == 0 {
		return nil, fmt.Errorf("missing or zero ImageLength")
	}
	if uint64(width)*uint64(height) > 1<<30 {
		return nil, fmt.Errorf("raster too large: %dx%d", width, height)
	}
	if spp := d.scalarOr(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("got %d samples per pixel, want 1", spp)
	}
	bits := d.scalarOr(tagBitsPerSample, 1)
	if bits != 8 && bits != 16 && bits != 32 {
		return nil, fmt.Errorf("unsupported BitsPerSample %d", bits)
	}
	if sf := d.scalarOr(tagSampleFormat, 1); sf != 1 {
		return nil, fmt.Errorf("unsupported SampleFormat %d, want unsigned integer", sf)
	}
	compression := d.scalarOr(tagCompression, compressionNone)
	switch compression {
	case compressionNone, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("unsupported Compression %d", compression)
	}

	transform, err := d.readTransform()
	if err != nil {
		return nil, err
	}

	tile := &Tile{
		Width:     int(width),
		Height:    int(height),
		Transform: transform,
		EPSG:      d.readEPSG(),
		NoData:    d.readNoData(),
	}

	if _, tiled := d.entries[tagTileOffsets]; tiled {
		tile.Pixels, err = d.readTiled(int(width), int(height), int(bits), compression)
	} else {
		tile.Pixels, err = d.readStrips(int(width), int(height), int(bits), compression)
	}
	if err != nil {
		return nil, err
	}
	return tile, nil
}

func (d *geoTiffReader) readFirstIFD() error {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return err
	}
	if bytes.Equal(header[:], []byte{'I', 'I', 42, 0}) {
		d.order = binary.LittleEndian
	} else if bytes.Equal(header[:], []byte{'M', 'M', 0, 42}) {
		d.order = binary.BigEndian
	} else {
		return fmt.Errorf("not a TIFF file")
	}

	var ifdOffset uint32
	if err := binary.Read(d.r, d.order, &ifdOffset); err != nil {
		return err
	}
	if _, err := d.r.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return err
	}

	var numEntries uint16
	if err := binary.Read(d.r, d.order, &numEntries); err != nil {
		return err
	}

	var ifd bytes.Buffer
	if _, err := io.CopyN(&ifd, d.r, int64(numEntries)*12); err != nil {
		return err
	}
	for i := uint16(0); i < numEntries; i++ {
		var tag uint16
		var e ifdEntry
		if err := binary.Read(&ifd, d.order, &tag); err != nil {
			return err
		}
		if err := binary.Read(&ifd, d.order, &e.typ); err != nil {
			return err
		}
		if err := binary.Read(&ifd, d.order, &e.count); err != nil {
			return err
		}
		if _, err := io.ReadFull(&ifd, e.raw[:]); err != nil {
			return err
		}
		d.entries[tag] = e
	}
	return nil
}

// scalar returns a SHORT or LONG tag holding a single inline value.
func (d *geoTiffReader) scalar(tag uint16) (uint32, bool) {
	e, ok := d.entries[tag]
	if !ok || e.count != 1 {
		return 0, false
	}
	switch e.typ {
	case 3:
		return uint32(d.order.Uint16(e.raw[:2])), true
	case 4:
		return d.order.Uint32(e.raw[:]), true
	}
	return 0, false
}

func (d *geoTiffReader) scalarOr(tag uint16, fallback uint32) uint32 {
	if v, ok := d.scalar(tag); ok {
		return v
	}
	return fallback
}

// valueBytes returns a tag's full payload, following the offset
// indirection when the value does not fit in the 4 inline bytes.
func (d *geoTiffReader) valueBytes(tag uint16) ([]byte, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, fmt.Errorf("missing tag %d", tag)
	}
	elem, ok := fieldTypeSize[e.typ]
	if !ok {
		return nil, fmt.Errorf("tag %d: unsupported field type %d", tag, e.typ)
	}
	size := elem * e.count
	if size <= 4 {
		return e.raw[:size], nil
	}
	offset := d.order.Uint32(e.raw[:])
	if _, err := d.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, fmt.Errorf("tag %d: %w", tag, err)
	}
	return data, nil
}

func (d *geoTiffReader) longArray(tag uint16) ([]uint32, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, fmt.Errorf("missing tag %d", tag)
	}
	data, err := d.valueBytes(tag)
	if err != nil {
		return nil, err
	}
	result := make([]uint32, e.count)
	switch e.typ {
	case 3:
		for i := range result {
			result[i] = uint32(d.order.Uint16(data[i*2:]))
		}
	case 4:
		for i := range result {
			result[i] = d.order.Uint32(data[i*4:])
		}
	default:
		return nil, fmt.Errorf("tag %d: got type %d, want SHORT or LONG", tag, e.typ)
	}
	return result, nil
}

func (d *geoTiffReader) shortArray(tag uint16) ([]uint16, error) {
	e, ok := d.entries[tag]
	if !ok || e.typ != 3 {
		return nil, fmt.Errorf("tag %d: missing or not SHORT", tag)
	}
	data, err := d.valueBytes(tag)
	if err != nil {
		return nil, err
	}
	result := make([]uint16, e.count)
	for i := range result {
		result[i] = d.order.Uint16(data[i*2:])
	}
	return result, nil
}

func (d *geoTiffReader) doubleArray(tag uint16) ([]float64, error) {
	e, ok := d.entries[tag]
	if !ok || e.typ != 12 {
		return nil, fmt.Errorf("tag %d: missing or not DOUBLE", tag)
	}
	data, err := d.valueBytes(tag)
	if err != nil {
		return nil, err
	}
	result := make([]float64, e.count)
	for i := range result {
		result[i] = math.Float64frombits(d.order.Uint64(data[i*8:]))
	}
	return result, nil
}

func (d *geoTiffReader) asciiString(tag uint16) (string, bool) {
	e, ok := d.entries[tag]
	if !ok || e.typ != 2 {
		return "", false
	}
	data, err := d.valueBytes(tag)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(data), "\x00"), true
}

// readTransform derives the affine grid from ModelPixelScale and
// ModelTiepoint, the combination GDAL writes for north-up rasters.
func (d *geoTiffReader) readTransform() (Affine, error) {
	scale, err := d.doubleArray(tagModelPixelScale)
	if err != nil || len(scale) < 2 {
		return Affine{}, fmt.Errorf("missing or short ModelPixelScale")
	}
	tie, err := d.doubleArray(tagModelTiepoint)
	if err != nil || len(tie) < 6 {
		return Affine{}, fmt.Errorf("missing or short ModelTiepoint")
	}
	if scale[0] <= 0 || scale[1] <= 0 {
		return Affine{}, fmt.Errorf("non-positive pixel scale %v", scale[:2])
	}
	return Affine{
		OriginX:     tie[3] - tie[0]*scale[0],
		OriginY:     tie[4] + tie[1]*scale[1],
		PixelWidth:  scale[0],
		PixelHeight: -scale[1],
	}, nil
}

// readEPSG walks the GeoKey directory. A projected CRS key wins over a
// geographic one; 0 means no usable CRS metadata.
func (d *geoTiffReader) readEPSG() int {
	keys, err := d.shortArray(tagGeoKeyDirectory)
	if err != nil || len(keys) < 4 {
		return 0
	}
	epsg := 0
	numKeys := int(keys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		keyID, location, value := keys[base], keys[base+1], keys[base+3]
		if location != 0 {
			continue // value stored in another tag; not an EPSG code
		}
		switch keyID {
		case geoKeyProjectedCSType:
			epsg = int(value)
		case geoKeyGeographicType:
			if epsg == 0 {
				epsg = int(value)
			}
		}
	}
	if epsg >= 32767 { // user-defined or undefined per GeoTIFF spec
		return 0
	}
	return epsg
}

// readNoData parses GDAL's ASCII nodata tag. Non-numeric sentinels
// (e.g. "nan") are ignored, since integer bands cannot contain them.
func (d *geoTiffReader) readNoData() *int32 {
	s, ok := d.asciiString(tagGDALNoData)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	v := int32(f)
	return &v
}

func (d *geoTiffReader) readStrips(width, height, bits int, compression uint32) ([]int32, error) {
	offsets, err := d.longArray(tagStripOffsets)
	if err != nil {
		return nil, fmt.Errorf("missing StripOffsets")
	}
	counts, err := d.longArray(tagStripByteCounts)
	if err != nil {
		return nil, fmt.Errorf("missing StripByteCounts")
	}
	rowsPerStrip := int(d.scalarOr(tagRowsPerStrip, uint32(height)))
	if rowsPerStrip <= 0 {
		return nil, fmt.Errorf("bad RowsPerStrip %d", rowsPerStrip)
	}
	numStrips := (height + rowsPerStrip - 1) / rowsPerStrip
	if len(offsets) != numStrips || len(counts) != numStrips {
		return nil, fmt.Errorf("got %d strips, want %d", len(offsets), numStrips)
	}

	bytesPerSample := bits / 8
	pixels := make([]int32, width*height)
	row := 0
	for i := range offsets {
		rows := rowsPerStrip
		if row+rows > height {
			rows = height - row
		}
		data, err := d.readBlock(offsets[i], counts[i], compression)
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		need := rows * width * bytesPerSample
		if len(data) < need {
			return nil, fmt.Errorf("strip %d: got %d bytes, want %d", i, len(data), need)
		}
		d.decodeSamples(data[:need], pixels[row*width:(row+rows)*width], bits)
		row += rows
	}
	return pixels, nil
}

func (d *geoTiffReader) readTiled(width, height, bits int, compression uint32) ([]int32, error) {
	tileWidth := int(d.scalarOr(tagTileWidth, 0))
	tileHeight := int(d.scalarOr(tagTileHeight, 0))
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("bad tile dimensions %dx%d", tileWidth, tileHeight)
	}
	offsets, err := d.longArray(tagTileOffsets)
	if err != nil {
		return nil, err
	}
	counts, err := d.longArray(tagTileByteCounts)
	if err != nil {
		return nil, err
	}
	across := (width + tileWidth - 1) / tileWidth
	down := (height + tileHeight - 1) / tileHeight
	if len(offsets) != across*down || len(counts) != across*down {
		return nil, fmt.Errorf("got %d tiles, want %d", len(offsets), across*down)
	}

	bytesPerSample := bits / 8
	pixels := make([]int32, width*height)
	block := make([]int32, tileWidth*tileHeight)
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			i := ty*across + tx
			data, err := d.readBlock(offsets[i], counts[i], compression)
			if err != nil {
				return nil, fmt.Errorf("tile %d: %w", i, err)
			}
			need := tileWidth * tileHeight * bytesPerSample
			if len(data) < need {
				return nil, fmt.Errorf("tile %d: got %d bytes, want %d", i, len(data), need)
			}
			d.decodeSamples(data[:need], block, bits)

			rows := tileHeight
			if (ty+1)*tileHeight > height {
				rows = height - ty*tileHeight
			}
			cols := tileWidth
			if (tx+1)*tileWidth > width {
				cols = width - tx*tileWidth
			}
			for r := 0; r < rows; r++ {
				src := block[r*tileWidth : r*tileWidth+cols]
				dstStart := (ty*tileHeight+r)*width + tx*tileWidth
				copy(pixels[dstStart:dstStart+cols], src)
			}
		}
	}
	return pixels, nil
}

func (d *geoTiffReader) readBlock(offset, size uint32, compression uint32) ([]byte, error) {
	if _, err := d.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return nil, err
	}
	if compression == compressionNone {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (d *geoTiffReader) decodeSamples(data []byte, dst []int32, bits int) {
	switch bits {
	case 8:
		for i := range dst {
			dst[i] = int32(data[i])
		}
	case 16:
		for i := range dst {
			dst[i] = int32(d.order.Uint16(data[i*2:]))
		}
	case 32:
		for i := range dst {
			dst[i] = int32(d.order.Uint32(data[i*4:]))
		}
	}
}
