// Package traverse holds the registration building blocks shared by the
// ecosystem detectors.
//
// Lockfiles come in two broad shapes and every detector composes the pieces
// here to walk one of them:
//
//   - Flat package lists whose entries reference each other through
//     free-text dependency strings (Cargo.lock). [ResolveDependency] matches a
//     parsed [DependencySpec] against the packages sharing its name.
//   - Pre-resolved graphs addressed by index or id (cargo metadata, SBOMs,
//     npm lockfiles). Recursive walks over these are guarded by a [Visited]
//     set keyed by the component id plus its traversal context, so revisiting
//     a component through a different path is allowed but cycles terminate.
//
// # Ownership
//
// In a workspace one resolved package may belong to several member
// manifests. [BuildOwnership] propagates ownership from local packages along
// resolved edges, and an [Attributor] fans each registration out to the
// recorder of every owner.
package traverse
