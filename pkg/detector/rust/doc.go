// Package rust provides detectors for Rust crates.
//
// # Overview
//
// Three detectors read the artifacts Cargo leaves in a workspace:
//
//   - [CargoLockDetector] ("cargo-lock") parses Cargo.lock
//   - [SBOMDetector] ("cargo-sbom") parses *.cargo-sbom.json build SBOMs
//   - [CLIDetector] ("cargo-cli") runs `cargo metadata` for a Cargo.toml
//
// Only crates with a source (registry or git) are registered. Local path
// crates are walked through: their dependencies become explicit roots of the
// manifest's graph.
//
// # Cargo.lock
//
// Cargo.lock lists every package with its dependency strings:
//
//	[[package]]
//	name = "serde"
//	version = "1.0.200"
//	source = "registry+https://github.com/rust-lang/crates.io-index"
//	dependencies = ["serde_derive"]
//
// A dependency string names a package, optionally qualified by version and
// source ("name version (source)"). Strings are resolved against the
// package table with [traverse.ResolveDependency]; an unresolvable or
// ambiguous string is recorded as a parse failure and the rest of the file
// is still processed.
//
// # cargo metadata
//
// The cli detector shells out through a [CommandRunner] and memoizes the
// output in a [cache.Cache] keyed by the Cargo.toml and Cargo.lock contents.
// Setting DisableRustCliScan=true in the environment turns it off.
//
// [traverse.ResolveDependency]: github.com/matzehuels/depscan/pkg/traverse.ResolveDependency
// [cache.Cache]: github.com/matzehuels/depscan/pkg/cache.Cache
package rust
