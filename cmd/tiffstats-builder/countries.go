// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
)

// Country is one immutable country record: a name, a polygonal boundary,
// and its precomputed bounding box. The registry holds countries in the
// reference CRS; the resolver hands out copies reprojected into a tile's
// CRS when they differ.
type Country struct {
	Name   string
	Geom   geom.Polygonal
	Bounds *geom.Bounds

	order int // position in the input file, for reproducible output
}

// countryNode adapts a Country for the spatial index. The embedded
// Polygonal satisfies geom.Geom; Bounds is overridden to reuse the
// precomputed box.
type countryNode struct {
	geom.Polygonal
	country *Country
}

func (n *countryNode) Bounds() *geom.Bounds { return n.country.Bounds }

// CountryRegistry holds all country geometries, read-only after
// construction and safe to share across workers.
type CountryRegistry struct {
	countries []*Country
	index     *rtree.Rtree
}

// LoadCountries reads country boundaries from a shapefile. The geometries
// are expected to be in the reference CRS (EPSG:4326). nameField is the
// attribute carrying the country name; features with an empty name get a
// synthetic Country_<n> name.
func LoadCountries(path, nameField string) (*CountryRegistry, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &GeometrySourceError{Path: path, Err: err}
	}
	defer d.Close()

	var countries []*Country
	for {
		g, fields, more := d.DecodeRowFields(nameField)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		name := strings.TrimSpace(strings.ReplaceAll(fields[nameField], "\x00", ""))
		if name == "" {
			name = fmt.Sprintf("Country_%d", len(countries))
		}
		countries = append(countries, &Country{
			Name:   name,
			Geom:   poly,
			Bounds: poly.Bounds(),
		})
	}
	if err := d.Error(); err != nil {
		return nil, &GeometrySourceError{Path: path, Err: err}
	}
	if len(countries) == 0 {
		return nil, &GeometrySourceError{Path: path, Err: fmt.Errorf("no polygonal features")}
	}
	return newCountryRegistry(countries), nil
}

func newCountryRegistry(countries []*Country) *CountryRegistry {
	index := rtree.NewTree(25, 50)
	for i, c := range countries {
		c.order = i
		index.Insert(&countryNode{Polygonal: c.Geom, country: c})
	}
	return &CountryRegistry{countries: countries, index: index}
}

// Candidates returns every country whose bounding box overlaps b, in
// input-file order. This is only the cheap rectangle filter; exact
// geometry overlap is decided later by mask rasterization, which yields
// an all-false mask for false positives.
func (r *CountryRegistry) Candidates(b *geom.Bounds) []*Country {
	hits := r.index.SearchIntersect(b)
	result := make([]*Country, 0, len(hits))
	for _, hit := range hits {
		result = append(result, hit.(*countryNode).country)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].order < result[j].order
	})
	return result
}

// Len reports the number of loaded countries.
func (r *CountryRegistry) Len() int { return len(r.countries) }
