// Package report turns a scan result into output documents.
//
// [Build] flattens the aggregate recorder into a [Report]: one entry per
// component with every location that references it, plus the dependency
// graph of each location. A report can be written as JSON ([WriteJSON]) or
// drawn with Graphviz ([ToDOT], [RenderSVG]).
package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/scan"
)

// Report is the serializable outcome of a scan.
type Report struct {
	ScanID            string         `json:"scanId"`
	Root              string         `json:"root"`
	DurationMillis    int64          `json:"durationMs"`
	Detectors         []string       `json:"detectors"`
	Components        []Component    `json:"components"`
	Locations         []Location     `json:"locations"`
	SkippedComponents []string       `json:"skippedComponents,omitempty"`
	Failures          []scan.Failure `json:"failures,omitempty"`
	Skipped           []scan.Failure `json:"skipped,omitempty"`

	graphs map[string]*depgraph.Graph
}

// Component is one detected component across all locations.
type Component struct {
	ID               string          `json:"id"`
	Type             component.Type  `json:"type"`
	Group            string          `json:"group,omitempty"`
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	PackageURL       string          `json:"purl,omitempty"`
	Source           string          `json:"source,omitempty"`
	Hash             string          `json:"hash,omitempty"`
	License          string          `json:"license,omitempty"`
	Author           string          `json:"author,omitempty"`
	Locations        []string        `json:"locations"`
	IsDev            *bool           `json:"isDev,omitempty"`
	Scope            component.Scope `json:"scope,omitempty"`
	TargetFrameworks []string        `json:"targetFrameworks,omitempty"`
	Roots            []string        `json:"roots,omitempty"`
}

// Location is the dependency graph of one manifest.
type Location struct {
	Path       string   `json:"path"`
	Components int      `json:"components"`
	Roots      []string `json:"roots"`
	Edges      []Edge   `json:"edges,omitempty"`
	Related    []string `json:"relatedFiles,omitempty"`
}

// Edge is a dependency from one component to another.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Build creates a report from a scan result. Components are ordered by type
// and name, then by version with semantic versions compared numerically.
func Build(res *scan.Result) *Report {
	r := &Report{
		ScanID:            res.ScanID,
		Root:              res.Root,
		DurationMillis:    res.Duration.Milliseconds(),
		Detectors:         res.Detectors,
		SkippedComponents: res.Recorder.GetSkippedComponents(),
		Failures:          res.Failures,
		Skipped:           res.Skipped,
		graphs:            res.Recorder.GetDependencyGraphsByLocation(),
	}

	for _, d := range res.Recorder.GetDetectedComponents() {
		c := d.Component
		r.Components = append(r.Components, Component{
			ID:               d.ID(),
			Type:             c.Type,
			Group:            c.Group,
			Name:             c.Name,
			Version:          c.Version,
			PackageURL:       c.PackageURL(),
			Source:           c.Source,
			Hash:             c.Hash,
			License:          c.License,
			Author:           c.Author,
			Locations:        d.FilePaths,
			IsDev:            d.DevelopmentDependency,
			Scope:            d.DependencyScope,
			TargetFrameworks: d.TargetFrameworks,
			Roots:            d.DependencyRoots,
		})
	}
	slices.SortStableFunc(r.Components, compareComponents)

	for _, loc := range slices.Sorted(maps.Keys(r.graphs)) {
		g := r.graphs[loc]
		l := Location{
			Path:       loc,
			Components: g.Len(),
			Roots:      g.GetAllExplicitlyReferencedComponents(),
			Related:    g.AdditionalRelatedFiles(),
		}
		for _, from := range g.GetComponents() {
			for _, to := range g.GetDependenciesForComponent(from) {
				l.Edges = append(l.Edges, Edge{From: from, To: to})
			}
		}
		r.Locations = append(r.Locations, l)
	}
	return r
}

// Graph returns the dependency graph recorded for location.
func (r *Report) Graph(location string) (*depgraph.Graph, bool) {
	g, ok := r.graphs[location]
	return g, ok
}

// CountByType returns the number of components of each type.
func (r *Report) CountByType() map[component.Type]int {
	out := make(map[component.Type]int)
	for _, c := range r.Components {
		out[c.Type]++
	}
	return out
}

func compareComponents(a, b Component) int {
	return cmp.Or(
		strings.Compare(string(a.Type), string(b.Type)),
		strings.Compare(a.Group, b.Group),
		strings.Compare(a.Name, b.Name),
		compareVersions(a.Version, b.Version),
		strings.Compare(a.ID, b.ID),
	)
}

// compareVersions orders semantic versions numerically. Versions that do not
// parse sort after those that do, in string order.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// WriteJSON encodes the report as indented JSON and writes it to w.
func WriteJSON(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes the report to a JSON file at path.
func ExportJSON(r *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteJSON(r, f)
}
