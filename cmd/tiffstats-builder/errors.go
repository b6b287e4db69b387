// SPDX-License-Identifier: MIT

package main

import "fmt"

// GeometrySourceError is fatal: without country boundaries there is no
// meaningful work to do.
type GeometrySourceError struct {
	Path string
	Err  error
}

func (e *GeometrySourceError) Error() string {
	return fmt.Sprintf("geometry source %s: %v", e.Path, e.Err)
}

func (e *GeometrySourceError) Unwrap() error { return e.Err }

// ProjectionError means a tile's CRS cannot be related to the reference
// CRS of the country dataset. The tile is skipped; the run continues.
type ProjectionError struct {
	Key string
	Err error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("tile %s: %v", e.Key, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// MalformedTileError means a tile's grid or transform is inconsistent.
// The tile is skipped; the run continues.
type MalformedTileError struct {
	Key    string
	Reason string
}

func (e *MalformedTileError) Error() string {
	return fmt.Sprintf("tile %s: %s", e.Key, e.Reason)
}
