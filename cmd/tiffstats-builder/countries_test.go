// SPDX-License-Identifier: MIT

package main

import (
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

func writeTestShapefile(t *testing.T, path string, names []string, polys []geom.Polygon) {
	t.Helper()
	type feature struct {
		geom.Polygon
		Name string
	}
	e, err := shp.NewEncoder(path, feature{})
	if err != nil {
		t.Fatal(err)
	}
	for i := range names {
		if err := e.Encode(feature{Polygon: polys[i], Name: names[i]}); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
}

func TestLoadCountries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.shp")
	writeTestShapefile(t, path,
		[]string{"Alpha", "Beta", "Gamma"},
		[]geom.Polygon{square(0, 0, 4, 4), square(4, 0, 8, 4), square(100, 100, 110, 110)})

	reg, err := LoadCountries(path, "Name")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 3 {
		t.Errorf("got %d countries, want 3", reg.Len())
	}
}

func TestLoadCountriesMissingFile(t *testing.T) {
	_, err := LoadCountries(filepath.Join(t.TempDir(), "nope.shp"), "Name")
	if err == nil {
		t.Fatal("want error for missing shapefile")
	}
	if _, ok := err.(*GeometrySourceError); !ok {
		t.Errorf("got %T, want *GeometrySourceError", err)
	}
}

func TestCandidatesBoundingBoxFilter(t *testing.T) {
	reg := newCountryRegistry([]*Country{
		testCountry("Alpha", square(0, 0, 4, 4)),
		testCountry("Beta", square(4, 0, 8, 4)),
		testCountry("Gamma", square(100, 100, 110, 110)),
	})

	b := &geom.Bounds{Min: geom.Point{X: 1, Y: 1}, Max: geom.Point{X: 3, Y: 3}}
	got := candidateNames(reg.Candidates(b))
	if len(got) != 1 || got[0] != "Alpha" {
		t.Errorf("got %v, want [Alpha]", got)
	}

	// Boxes touching at x=4: both sides are candidates; the exact
	// split is decided later by rasterization.
	b = &geom.Bounds{Min: geom.Point{X: 3, Y: 1}, Max: geom.Point{X: 5, Y: 3}}
	got = candidateNames(reg.Candidates(b))
	if len(got) != 2 || got[0] != "Alpha" || got[1] != "Beta" {
		t.Errorf("got %v, want [Alpha Beta]", got)
	}

	b = &geom.Bounds{Min: geom.Point{X: 200, Y: 200}, Max: geom.Point{X: 210, Y: 210}}
	if got := reg.Candidates(b); len(got) != 0 {
		t.Errorf("got %v, want no candidates", candidateNames(got))
	}
}

func TestCandidatesStableOrder(t *testing.T) {
	countries := make([]*Country, 0, 8)
	names := []string{"H", "C", "A", "F", "B", "G", "E", "D"}
	for _, name := range names {
		countries = append(countries, testCountry(name, square(0, 0, 10, 10)))
	}
	reg := newCountryRegistry(countries)

	b := &geom.Bounds{Min: geom.Point{X: 2, Y: 2}, Max: geom.Point{X: 3, Y: 3}}
	for run := 0; run < 3; run++ {
		got := candidateNames(reg.Candidates(b))
		for i, name := range names {
			if got[i] != name {
				t.Fatalf("run %d: got %v, want input order %v", run, got, names)
			}
		}
	}
}

func candidateNames(countries []*Country) []string {
	names := make([]string, 0, len(countries))
	for _, c := range countries {
		names = append(names, c.Name)
	}
	return names
}
