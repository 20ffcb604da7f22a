package rust

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// cargoMetadata is the subset of `cargo metadata --format-version=1` output
// the detector reads.
type cargoMetadata struct {
	Packages         []metadataPackage `json:"packages"`
	WorkspaceMembers []string          `json:"workspace_members"`
	Resolve          *metadataResolve  `json:"resolve"`
}

type metadataPackage struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	ID           string   `json:"id"`
	Source       *string  `json:"source"`
	License      string   `json:"license"`
	Authors      []string `json:"authors"`
	ManifestPath string   `json:"manifest_path"`
}

func (p metadataPackage) local() bool { return p.Source == nil }

func (p metadataPackage) component() (component.Component, error) {
	source := ""
	if p.Source != nil {
		source = *p.Source
	}
	c, err := component.NewCargo(p.Name, p.Version, source)
	if err != nil {
		return c, err
	}
	c.Author = joinAuthors(p.Authors)
	c.License = strings.TrimSpace(p.License)
	return c, nil
}

// joinAuthors returns the authors joined with ", ", or "" when the list is
// empty or has a blank entry.
func joinAuthors(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	for _, a := range authors {
		if strings.TrimSpace(a) == "" {
			return ""
		}
	}
	return strings.Join(authors, ", ")
}

type metadataResolve struct {
	Nodes []metadataNode `json:"nodes"`
	Root  *string        `json:"root"`
}

type metadataNode struct {
	ID   string        `json:"id"`
	Deps []metadataDep `json:"deps"`
}

type metadataDep struct {
	Name     string    `json:"name"`
	Pkg      string    `json:"pkg"`
	DepKinds []depKind `json:"dep_kinds"`
}

type depKind struct {
	Kind   *string `json:"kind"`
	Target *string `json:"target"`
}

func (d metadataDep) isDev() bool {
	for _, k := range d.DepKinds {
		if k.Kind != nil && *k.Kind == "dev" {
			return true
		}
	}
	return false
}

// localDirectories returns the slash-separated directories of every local
// package manifest, sorted.
func (m cargoMetadata) localDirectories() []string {
	set := make(map[string]struct{})
	for _, p := range m.Packages {
		if !p.local() || p.ManifestPath == "" {
			continue
		}
		if dir := filepath.Dir(p.ManifestPath); dir != "." {
			set[filepath.ToSlash(dir)] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// traversalRoots returns the package ids the walk starts from. A manifest
// with a root package starts there. A virtual manifest starts from every
// node no other node depends on, or from every node when the graph has no
// such node; nodes reachable from those roots are walked through their
// edges, so they keep their parents.
func (m cargoMetadata) traversalRoots() (roots []string, virtual bool) {
	if m.Resolve.Root != nil {
		return []string{*m.Resolve.Root}, false
	}

	incoming := make(map[string]bool)
	for _, n := range m.Resolve.Nodes {
		for _, d := range n.Deps {
			if d.Pkg != n.ID {
				incoming[d.Pkg] = true
			}
		}
	}
	for _, n := range m.Resolve.Nodes {
		if !incoming[n.ID] {
			roots = append(roots, n.ID)
		}
	}
	if len(roots) == 0 {
		for _, n := range m.Resolve.Nodes {
			roots = append(roots, n.ID)
		}
	}
	return roots, true
}

// metadataWalker registers the resolve graph of one cargo metadata run.
type metadataWalker struct {
	packages map[string]metadataPackage
	nodes    map[string]metadataNode
	visited  traverse.Visited
	attr     *traverse.Attributor
	rec      *recorder.SingleFileComponentRecorder
	logger   *log.Logger
}

// walkMetadata registers every sourced package reachable from the traversal
// roots.
func walkMetadata(ctx context.Context, md cargoMetadata, attr *traverse.Attributor, rec *recorder.SingleFileComponentRecorder, logger *log.Logger) error {
	if md.Resolve == nil {
		return errors.New(errors.ErrCodeInvalidManifest, "cargo metadata for %s has no resolve graph", rec.Location())
	}

	w := &metadataWalker{
		packages: make(map[string]metadataPackage, len(md.Packages)),
		nodes:    make(map[string]metadataNode, len(md.Resolve.Nodes)),
		visited:  traverse.NewVisited(),
		attr:     attr,
		rec:      rec,
		logger:   logger,
	}
	for _, p := range md.Packages {
		w.packages[p.ID] = p
	}
	for _, n := range md.Resolve.Nodes {
		w.nodes[n.ID] = n
	}

	roots, virtual := md.traversalRoots()
	if virtual {
		logger.Info("virtual manifest detected", "location", rec.Location(), "roots", len(roots))
	}
	for _, id := range roots {
		if !w.visited.Add("root", id) {
			continue
		}
		if err := w.walk(ctx, id, "", false, !virtual); err != nil {
			return err
		}
	}
	return nil
}

// walk registers package id and descends into its dependencies. parent is
// the component id of the nearest registered ancestor; a package without one
// is an explicit root. dev is the kind of the edge that reached id, so a
// normal dependency of a dev dependency is not itself dev. The manifest's own
// package is never registered, nor are local packages.
func (w *metadataWalker) walk(ctx context.Context, id, parent string, dev, isRoot bool) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCanceled, err, "walk %s", w.rec.Location())
	}

	pkg, ok := w.packages[id]
	if !ok {
		w.logger.Warn("dependency not found in packages, skipping", "id", id)
		return nil
	}
	node, ok := w.nodes[id]
	if !ok {
		w.logger.Warn("dependency not found in resolve graph, skipping", "id", id, "location", w.rec.Location())
		return nil
	}

	next := ""
	if !isRoot && !pkg.local() {
		c, err := pkg.component()
		if err != nil {
			w.logger.Warn("invalid package", "id", id, "err", err)
			w.rec.RegisterPackageParseFailure(id)
			return nil
		}
		w.attr.Register(id, c, parent, recorder.Explicit(parent == ""), recorder.Dev(dev))
		next = c.ID()
	}

	for _, dep := range node.Deps {
		if !w.visited.Add(id, dep.Pkg, strconv.FormatBool(isRoot)) {
			continue
		}
		if err := w.walk(ctx, dep.Pkg, next, dep.isDev(), false); err != nil {
			return err
		}
	}
	return nil
}

// ownership builds the package ownership map of a workspace: every local
// package owns itself and everything it transitively depends on. owner maps
// a local manifest path to the recorder location it is attributed to.
func (m cargoMetadata) ownership(owner func(manifestPath string) string) traverse.OwnershipMap {
	locals := make(map[string]string)
	for _, p := range m.Packages {
		if p.local() && p.ManifestPath != "" {
			locals[p.ID] = owner(p.ManifestPath)
		}
	}
	if len(locals) < 2 || m.Resolve == nil {
		return nil
	}

	edges := make(map[string][]string, len(m.Resolve.Nodes))
	for _, n := range m.Resolve.Nodes {
		for _, d := range n.Deps {
			edges[n.ID] = append(edges[n.ID], d.Pkg)
		}
	}
	return traverse.BuildOwnership(locals, edges)
}
