// Package recorder collects detector output into per-location dependency
// graphs and projects them into a de-duplicated component list.
//
// # Recorders
//
// A scan owns one [ComponentRecorder]. For every manifest it processes, a
// detector obtains a [SingleFileComponentRecorder] keyed by the manifest's
// location and calls [SingleFileComponentRecorder.RegisterUsage] once per
// package occurrence:
//
//	rec := recorder.New()
//	single, err := rec.CreateSingleFileComponentRecorder("app/Cargo.lock")
//	if err != nil {
//	    return err
//	}
//	single.RegisterUsage(serde, recorder.Explicit(true))
//	single.RegisterUsage(derive, recorder.Parent(serde.ID()))
//
// Registration never fails. Entries a detector cannot interpret are reported
// through [SingleFileComponentRecorder.RegisterPackageParseFailure] and the
// detector moves on.
//
// # Aggregation
//
// [ComponentRecorder.GetDetectedComponents] merges every location's graph into
// one entry per component id: file paths are unioned, the dev flag is AND'ed
// across the locations that stated one, and the explicit roots reaching the
// component are collected from each graph.
//
// # Concurrency
//
// Both recorder types are safe for concurrent use. Creating a recorder for a
// location that already has one returns the existing recorder.
package recorder
