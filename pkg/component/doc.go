// Package component defines the identity model for detected packages.
//
// A [Component] is an immutable value describing one package from one
// ecosystem: its [Type] tag plus the identifying fields for that ecosystem
// (name, version, and where relevant group, source, hash or commit). The
// [Component.ID] method maps those fields to a canonical string. That string is
// the only identity used anywhere else in depscan: graph adjacency,
// de-duplication across manifests and report output are all keyed by it.
//
// # Identity Rules
//
// IDs are pure functions of the identifying fields. Two components with the
// same meaningful fields always produce the same ID, and irrelevant formatting
// differences are normalized away:
//
//   - Pip IDs are lowercased because PyPI names are case-insensitive
//   - Git repository URLs are lowercased and stripped of a trailing ".git"
//
// Cargo, Go, npm, NuGet and CocoaPods IDs deliberately do not include the
// source registry, content hash or spec repository. A crate published to two
// registries under the same name and version collapses into one component.
//
// # Aggregation
//
// [DetectedComponent] is the cross-location view of a component: the
// component itself plus every manifest location it was observed in. It is a
// projection computed by the recorder package and has no independent state.
package component
