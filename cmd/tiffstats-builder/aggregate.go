// SPDX-License-Identifier: MIT

package main

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type aggKey struct {
	group   string
	country string
}

// AggregateRecord accumulates pixel counts for one (group, country) key.
// The valid fraction is derived at emission time, never stored, to avoid
// precision drift from averaging ratios.
type AggregateRecord struct {
	TotalPixels uint64
	ValidPixels uint64
	TiffCount   int
}

// Aggregator folds per-tile contributions into running per-key records.
// It is not synchronized: with multiple workers, each worker owns its
// own Aggregator and the partials are merged at the end.
type Aggregator struct {
	records map[aggKey]*AggregateRecord
}

func NewAggregator() *Aggregator {
	return &Aggregator{records: make(map[aggKey]*AggregateRecord)}
}

// Contribute adds one tile-country result. A zero total is a no-op, so
// bounding-box false positives neither create records nor inflate the
// tile count.
func (a *Aggregator) Contribute(group, country string, total, valid uint64) {
	if total == 0 {
		return
	}
	key := aggKey{group: group, country: country}
	rec := a.records[key]
	if rec == nil {
		rec = &AggregateRecord{}
		a.records[key] = rec
	}
	rec.TotalPixels += total
	rec.ValidPixels += valid
	rec.TiffCount++
}

// Merge folds another aggregator's records into this one. Contributions
// are additive and commutative per key, so merge order does not matter.
func (a *Aggregator) Merge(other *Aggregator) {
	for key, rec := range other.records {
		mine := a.records[key]
		if mine == nil {
			mine = &AggregateRecord{}
			a.records[key] = mine
		}
		mine.TotalPixels += rec.TotalPixels
		mine.ValidPixels += rec.ValidPixels
		mine.TiffCount += rec.TiffCount
	}
}

// Row is one line of the final report.
type Row struct {
	Group         string
	Country       string
	TotalPixels   uint64
	ValidPixels   uint64
	FractionValid float64
	TiffCount     int
}

// Finalize emits one row per key, sorted by group then country. It only
// reads the accumulator, so repeated calls return identical results.
func (a *Aggregator) Finalize() []Row {
	rows := make([]Row, 0, len(a.records))
	for key, rec := range a.records {
		row := Row{
			Group:       key.group,
			Country:     key.country,
			TotalPixels: rec.TotalPixels,
			ValidPixels: rec.ValidPixels,
			TiffCount:   rec.TiffCount,
		}
		if rec.TotalPixels > 0 {
			row.FractionValid = float64(rec.ValidPixels) / float64(rec.TotalPixels)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Group != rows[j].Group {
			return rows[i].Group < rows[j].Group
		}
		return rows[i].Country < rows[j].Country
	})
	return rows
}

// reportColumns is the stable column contract; other tools depend on
// these names and their order.
var reportColumns = []string{
	"group", "country", "total_pixels", "valid_pixels", "fraction_valid", "tiff_count",
}

// WriteReport writes the rows as CSV to path, atomically via a temporary
// file. A path ending in .gz gets gzip framing.
func WriteReport(path string, rows []Row) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := writeReportTo(w, rows); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeReportTo(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Group,
			r.Country,
			strconv.FormatUint(r.TotalPixels, 10),
			strconv.FormatUint(r.ValidPixels, 10),
			strconv.FormatFloat(r.FractionValid, 'f', 6, 64),
			strconv.Itoa(r.TiffCount),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
