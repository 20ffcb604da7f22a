// Package pkg provides the libraries behind depscan.
//
// # Overview
//
// depscan finds package manifests and lockfiles in a source tree and records,
// for every file, the components it references and the dependency edges
// between them. The pkg directory is organized into three areas:
//
//  1. Model: [component] identities, the per-file [depgraph] and the
//     [recorder] that owns one graph per location
//  2. Detection: the [detector] contract, the ecosystem parsers under
//     detector/ and the shared [traverse] helpers they build on
//  3. Orchestration: [config], [scan], [report], [cache] and
//     [observability]
//
// # Architecture
//
//	source tree
//	     ↓
//	[scan] walks files, matches detector patterns
//	     ↓
//	[detector] parses one manifest into a [recorder.SingleFileComponentRecorder]
//	     ↓
//	[recorder.ComponentRecorder] aggregates locations
//	     ↓
//	[report] JSON, DOT or SVG
//
// # Quick Start
//
//	s := &scan.Scanner{
//	    Registry: detectors.Default(detectors.Options{}),
//	    Config:   config.Default(),
//	}
//	res, err := s.Scan(ctx, "./repo")
//	if err != nil {
//	    return err
//	}
//	return report.WriteJSON(report.Build(res), os.Stdout)
package pkg
