// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// The country dataset's reference CRS. Reports are always expressed in
// this frame; tiles in other frames have their bounding box reprojected
// before the candidate lookup.
const registryEPSG = 4326

// Proj4 definitions for the coordinate reference systems that tiles may
// arrive in. The web mercator string matches what GDAL emits for
// EPSG:3857.
var projDefs = map[int]string{
	4326: "+proj=longlat +datum=WGS84 +no_defs",
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
}

// IntersectionResolver finds the countries whose bounding box overlaps a
// tile. Each worker owns one resolver; the transform caches are not
// synchronized.
type IntersectionResolver struct {
	registry *CountryRegistry
	forward  map[int]proj.Transformer // tile CRS to the registry CRS
	inverse  map[int]proj.Transformer // registry CRS to the tile CRS
}

func NewIntersectionResolver(registry *CountryRegistry) *IntersectionResolver {
	return &IntersectionResolver{
		registry: registry,
		forward:  make(map[int]proj.Transformer),
		inverse:  make(map[int]proj.Transformer),
	}
}

// Resolve computes the tile's bounding box in the registry CRS and
// returns the candidate countries. Candidates come back with their
// geometry and bounds expressed in the tile's CRS, so masks can be
// rasterized directly on the tile grid. A degenerate (zero-area) tile
// yields an empty slice and no error.
func (r *IntersectionResolver) Resolve(t *Tile) ([]*Country, error) {
	minX, minY, maxX, maxY := t.Extent()
	if minX >= maxX || minY >= maxY {
		return nil, nil
	}

	if t.EPSG == registryEPSG {
		b := &geom.Bounds{
			Min: geom.Point{X: minX, Y: minY},
			Max: geom.Point{X: maxX, Y: maxY},
		}
		return r.registry.Candidates(b), nil
	}

	forward, inverse, err := r.transforms(t.EPSG)
	if err != nil {
		return nil, &ProjectionError{Key: t.Key, Err: err}
	}

	// Reproject the tile outline as a polygon rather than just the two
	// corners, so the curved edges of the projected rectangle still fall
	// inside the transformed bounding box.
	outline := tileOutline(minX, minY, maxX, maxY)
	g, err := outline.Transform(forward)
	if err != nil {
		return nil, &ProjectionError{Key: t.Key, Err: err}
	}
	candidates := r.registry.Candidates(g.Bounds())

	result := make([]*Country, 0, len(candidates))
	for _, c := range candidates {
		pg, err := c.Geom.Transform(inverse)
		if err != nil {
			return nil, &ProjectionError{Key: t.Key, Err: fmt.Errorf("reprojecting %s: %w", c.Name, err)}
		}
		poly, ok := pg.(geom.Polygonal)
		if !ok {
			return nil, &ProjectionError{Key: t.Key, Err: fmt.Errorf("reprojecting %s: got %T, want polygon", c.Name, pg)}
		}
		result = append(result, &Country{
			Name:   c.Name,
			Geom:   poly,
			Bounds: poly.Bounds(),
			order:  c.order,
		})
	}
	return result, nil
}

// transforms returns the transformer pair between a tile CRS and the
// registry CRS, building and caching it on first use.
func (r *IntersectionResolver) transforms(epsg int) (forward, inverse proj.Transformer, err error) {
	if f, ok := r.forward[epsg]; ok {
		return f, r.inverse[epsg], nil
	}
	def, ok := projDefs[epsg]
	if !ok {
		if epsg == 0 {
			return nil, nil, fmt.Errorf("missing CRS metadata")
		}
		return nil, nil, fmt.Errorf("unsupported CRS EPSG:%d", epsg)
	}
	tileSR, err := proj.Parse(def)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing EPSG:%d: %w", epsg, err)
	}
	regSR, err := proj.Parse(projDefs[registryEPSG])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing EPSG:%d: %w", registryEPSG, err)
	}
	forward, err = tileSR.NewTransform(regSR)
	if err != nil {
		return nil, nil, fmt.Errorf("EPSG:%d to EPSG:%d: %w", epsg, registryEPSG, err)
	}
	inverse, err = regSR.NewTransform(tileSR)
	if err != nil {
		return nil, nil, fmt.Errorf("EPSG:%d to EPSG:%d: %w", registryEPSG, epsg, err)
	}
	r.forward[epsg] = forward
	r.inverse[epsg] = inverse
	return forward, inverse, nil
}

// tileOutline builds a closed rectangle with intermediate vertices along
// each edge, 8 segments per side.
func tileOutline(minX, minY, maxX, maxY float64) geom.Polygon {
	const steps = 8
	ring := make(geom.Path, 0, 4*steps)
	dx, dy := (maxX-minX)/steps, (maxY-minY)/steps
	for i := 0; i < steps; i++ {
		ring = append(ring, geom.Point{X: minX + float64(i)*dx, Y: minY})
	}
	for i := 0; i < steps; i++ {
		ring = append(ring, geom.Point{X: maxX, Y: minY + float64(i)*dy})
	}
	for i := 0; i < steps; i++ {
		ring = append(ring, geom.Point{X: maxX - float64(i)*dx, Y: maxY})
	}
	for i := 0; i < steps; i++ {
		ring = append(ring, geom.Point{X: minX, Y: maxY - float64(i)*dy})
	}
	return geom.Polygon{ring}
}
