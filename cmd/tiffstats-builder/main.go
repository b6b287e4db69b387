// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var logger *log.Logger

func main() {
	ctx := context.Background()

	bucket := flag.String("bucket", "tech-jobs-sot", "storage bucket holding the raster tiles")
	prefix := flag.String("prefix", "chunked-rasters/", "object key prefix to scan for TIFF tiles")
	countriesPath := flag.String("countries", "countries.shp", "path to country boundaries shapefile (EPSG:4326)")
	nameField := flag.String("name-field", "NAME", "shapefile attribute holding the country name")
	output := flag.String("output", "tiffstats.csv", "path to output report; use a .gz suffix for gzip")
	storagekey := flag.String("storage-key", "", "path to key with storage access credentials")
	cachedir := flag.String("cache", "cache/tiffstats-builder", "directory for temporary tile downloads")
	limit := flag.Int("limit", 0, "process at most this many tiles, 0 for all")
	workers := flag.Int("workers", 1, "number of tiles processed in parallel")
	metricsPort := flag.Int("metrics-port", 0, "serve Prometheus metrics on this port, 0 to disable")
	dumpMask := flag.String("dump-mask", "", "write a mask PNG per tile-country pair with this path prefix")
	flag.Parse()

	logfile, err := createLogFile()
	if err != nil {
		log.Fatal(err)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	if *storagekey == "" {
		logger.Fatal("missing -storage-key")
	}
	storage, err := NewStorage(*storagekey)
	if err != nil {
		logger.Fatal(err)
	}
	bucketExists, err := storage.BucketExists(ctx, *bucket)
	if err != nil {
		logger.Fatal(err)
	}
	if !bucketExists {
		logger.Fatalf("storage bucket %q does not exist", *bucket)
	}

	registry, err := LoadCountries(*countriesPath, *nameField)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("loaded %d countries from %s", registry.Len(), *countriesPath)

	tiffs, err := ListTiffs(ctx, storage, *bucket, *prefix)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("found %d TIFF files in %s/%s", len(tiffs), *bucket, *prefix)
	if *limit > 0 && len(tiffs) > *limit {
		logger.Printf("limiting run to the first %d tiles", *limit)
		tiffs = tiffs[:*limit]
	}

	if *metricsPort > 0 {
		serveMetrics(*metricsPort)
	}

	p := &processor{
		storage:  storage,
		bucket:   *bucket,
		registry: registry,
		cachedir: *cachedir,
		dumpMask: *dumpMask,
	}
	agg, stats, err := p.run(ctx, tiffs, *workers)
	if err != nil {
		logger.Fatal(err)
	}

	rows := agg.Finalize()
	if err := WriteReport(*output, rows); err != nil {
		logger.Fatal(err)
	}
	logger.Printf("wrote %d aggregate rows to %s", len(rows), *output)

	printSummary(rows, stats, *output)
}

// Create a file for keeping logs. If the file already exists, its
// present content is preserved, and new log entries will get appended
// after the existing ones.
func createLogFile() (*os.File, error) {
	logpath := filepath.Join("logs", "tiffstats-builder.log")
	if err := os.MkdirAll("logs", os.ModePerm); err != nil {
		return nil, err
	}
	return os.OpenFile(logpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// runStats collects per-run skip accounting across workers. Every
// skipped tile is also logged individually with its key and reason.
type runStats struct {
	mu        sync.Mutex
	processed int
	skipped   map[string]int
}

func newRunStats() *runStats {
	return &runStats{skipped: make(map[string]int)}
}

func (s *runStats) tileDone() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *runStats) tileSkipped(reason string) {
	s.mu.Lock()
	s.skipped[reason]++
	s.mu.Unlock()
}

func (s *runStats) totalSkipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.skipped {
		n += c
	}
	return n
}

type processor struct {
	storage  Storage
	bucket   string
	registry *CountryRegistry
	cachedir string
	dumpMask string
}

// run processes the tiles with the requested number of workers. Each
// worker owns a partial Aggregator and its own resolver; the partials
// are merged once all workers are done. Merging is commutative, so the
// result does not depend on how tiles were distributed.
func (p *processor) run(ctx context.Context, tiffs []TiffObject, workers int) (*Aggregator, *runStats, error) {
	if workers < 1 {
		workers = 1
	}
	stats := newRunStats()
	partials := make([]*Aggregator, workers)

	ch := make(chan TiffObject)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		for _, obj := range tiffs {
			select {
			case ch <- obj:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		agg := NewAggregator()
		partials[i] = agg
		resolver := NewIntersectionResolver(p.registry)
		g.Go(func() error {
			for obj := range ch {
				if err := p.processTile(ctx, resolver, agg, obj); err != nil {
					reason := skipReason(err)
					logger.Printf("skipping tile %s (%s): %v", obj.Key, reason, err)
					stats.tileSkipped(reason)
					tilesSkipped.WithLabelValues(reason).Inc()
					continue
				}
				stats.tileDone()
				tilesProcessed.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	agg := NewAggregator()
	for _, partial := range partials {
		agg.Merge(partial)
	}
	return agg, stats, nil
}

// processTile runs the per-tile pipeline: download, decode, resolve
// candidate countries, mask, count, contribute. The tile raster and each
// mask are transient; nothing survives beyond the aggregate records.
func (p *processor) processTile(ctx context.Context, resolver *IntersectionResolver, agg *Aggregator, obj TiffObject) error {
	localpath, err := downloadTiff(ctx, p.storage, p.bucket, obj, p.cachedir)
	if err != nil {
		return err
	}
	defer os.Remove(localpath)

	f, err := os.Open(localpath)
	if err != nil {
		return err
	}
	defer f.Close()

	tile, err := ReadGeoTIFF(f)
	if err != nil {
		return &MalformedTileError{Key: obj.Key, Reason: err.Error()}
	}
	tile.Key, tile.Group = obj.Key, obj.Group

	countries, err := resolver.Resolve(tile)
	if err != nil {
		return err
	}

	for _, c := range countries {
		mask := BuildMask(tile.Width, tile.Height, tile.Transform, c)
		if p.dumpMask != "" {
			if err := renderMask(tile, mask, c.Name, p.dumpMask); err != nil {
				logger.Printf("rendering mask for %s/%s: %v", obj.Key, c.Name, err)
			}
		}
		total, valid := CountPixels(tile, mask)
		if total == 0 {
			continue
		}
		agg.Contribute(tile.Group, c.Name, total, valid)
		pixelsCounted.Add(float64(total))
	}
	return nil
}

func skipReason(err error) string {
	var projErr *ProjectionError
	if errors.As(err, &projErr) {
		return "projection"
	}
	var malformedErr *MalformedTileError
	if errors.As(err, &malformedErr) {
		return "malformed"
	}
	return "storage"
}

func printSummary(rows []Row, stats *runStats, output string) {
	groups := make(map[string]bool)
	countries := make(map[string]bool)
	var totalPixels uint64
	for _, r := range rows {
		groups[r.Group] = true
		countries[r.Country] = true
		totalPixels += r.TotalPixels
	}

	pr := message.NewPrinter(language.English)
	pr.Printf("Processed %d tiles, skipped %d\n", stats.processed, stats.totalSkipped())
	if len(stats.skipped) > 0 {
		reasons := make([]string, 0, len(stats.skipped))
		for reason := range stats.skipped {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			pr.Printf("  skipped (%s): %d\n", reason, stats.skipped[reason])
		}
	}
	pr.Printf("Aggregated %d pixels over %d groups and %d countries\n",
		totalPixels, len(groups), len(countries))
	fmt.Printf("Results written to %s\n", output)
}
