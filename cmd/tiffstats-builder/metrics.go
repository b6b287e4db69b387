// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tilesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiffstats_tiles_processed_total",
		Help: "Number of raster tiles fully processed.",
	})
	tilesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiffstats_tiles_skipped_total",
		Help: "Number of raster tiles skipped, by reason.",
	}, []string{"reason"})
	pixelsCounted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiffstats_pixels_counted_total",
		Help: "Number of masked pixels folded into the aggregate.",
	})
)

func init() {
	prometheus.MustRegister(tilesProcessed, tilesSkipped, pixelsCounted)
}

// serveMetrics exposes /metrics for the duration of the batch.
func serveMetrics(port int) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+strconv.Itoa(port), nil); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()
}
