//go:build purego || !sqlite_cgo
// +build purego !sqlite_cgo

package storage

// This file is compiled when building without CGO or with the purego tag.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// The pure Go implementation needs no C compiler and cross-compiles, at the
// cost of slower bulk inserts.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
