// Package detector defines the capability interface implemented by every
// ecosystem detector and the registry that routes files to them.
//
// # Detectors
//
// A [Detector] names the files it understands ([Detector.SearchPatterns]),
// the component types it produces, and an Execute entry point that receives
// one file as a [Stream] plus the [recorder.SingleFileComponentRecorder] for
// that file's location:
//
//	err := d.Execute(ctx, detector.Request{
//	    Stream:   detector.Stream{Location: path, Pattern: "Cargo.lock", Reader: f},
//	    Recorder: single,
//	})
//
// Execute returns an error only when the whole file is unusable (it is not
// valid TOML, JSON, ...). Individual entries that cannot be interpreted are
// reported through the recorder and do not fail the file.
//
// # Registry
//
// A [Registry] is a lookup table keyed by detector id. [Registry.Match]
// returns the detectors whose search patterns match a path. Patterns use
// doublestar syntax and are matched against the base name unless they
// contain a slash.
//
// The default registry with every built-in detector lives in the detectors
// subpackage, which keeps this package free of ecosystem imports.
package detector
