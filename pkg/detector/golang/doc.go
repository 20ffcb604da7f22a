// Package golang provides the go.mod detector.
//
// Every require directive in go.mod is registered as an explicit root of the
// manifest's graph: go.mod lists the full module build list since Go 1.17
// but carries no edges between modules. Replace directives are honored, and
// requires replaced by a filesystem path are skipped as local modules.
//
// When the manifest is read from disk, hashes are taken from the go.sum file
// next to it, and go.sum is recorded as a related file of the location.
package golang
