// Package depgraph provides the per-location dependency graph.
//
// # Overview
//
// A [Graph] records the components found in one manifest location and the
// parent → child edges between them. Nodes are keyed by component id
// ([component.Component.ID]) and stored in a flat map with outgoing and
// incoming adjacency sets, so cycles in the input never create pointer
// cycles and never make traversal recurse without bound.
//
// # Node Attributes
//
// Each node carries three attributes that merge across repeated
// registrations of the same id:
//
//   - explicit: OR'd. Once a node is a root (declared directly by the
//     manifest's owner) it stays a root.
//   - dev: tri-state. A nil incoming value leaves the stored value alone;
//     otherwise the stored value becomes (stored, defaulting to true) AND
//     incoming. A node is dev only if every registration that stated a value
//     said dev.
//   - scope: merged to the broadest value ([component.MergeScope]).
//
// # Edges
//
// [Graph.AddEdge] is a silent no-op when either endpoint is untracked. Parsers
// register children before adding edges, so an edge to an untracked parent
// means the parent was deliberately skipped (a local workspace member, for
// example) and the child should stand alone.
//
// # Concurrency
//
// Graph methods are safe for concurrent use. The recorder package adds its
// own lock so that a node and its parent edge are applied atomically.
package depgraph
