package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/depscan/pkg/depgraph"
)

// ToDOT converts the graph of one location to Graphviz DOT. Explicit roots
// are filled, and development-only components have dashed outlines.
func ToDOT(g *depgraph.Graph, location string) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	writeHeader(&buf, "  ")
	fmt.Fprintf(&buf, "  label=%q;\n", location)
	buf.WriteString("  labelloc=t;\n\n")
	writeGraph(&buf, g, "", "  ")
	buf.WriteString("}\n")
	return buf.String()
}

// ToDOTAll draws every location of the report as a cluster of one DOT graph.
func ToDOTAll(r *Report) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	writeHeader(&buf, "  ")
	for i, loc := range r.Locations {
		g := r.graphs[loc.Path]
		if g == nil {
			continue
		}
		fmt.Fprintf(&buf, "\n  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&buf, "    label=%q;\n", loc.Path)
		buf.WriteString("    style=\"rounded,dashed\";\n")
		writeGraph(&buf, g, fmt.Sprintf("%d:", i), "    ")
		buf.WriteString("  }\n")
	}
	buf.WriteString("}\n")
	return buf.String()
}

func writeHeader(buf *bytes.Buffer, indent string) {
	buf.WriteString(indent + "rankdir=LR;\n")
	buf.WriteString(indent + "bgcolor=\"transparent\";\n")
	buf.WriteString(indent + "node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString(indent + "ranksep=0.5;\n")
	buf.WriteString(indent + "nodesep=0.3;\n")
}

// writeGraph writes the nodes and edges of g. Node names are prefixed so
// the same component can appear in several clusters.
func writeGraph(buf *bytes.Buffer, g *depgraph.Graph, prefix, indent string) {
	ids := g.GetComponents()
	for _, id := range ids {
		fmt.Fprintf(buf, "%s%q [%s];\n", indent, prefix+id, strings.Join(nodeAttrs(g, id), ", "))
	}
	for _, from := range ids {
		for _, to := range g.GetDependenciesForComponent(from) {
			fmt.Fprintf(buf, "%s%q -> %q;\n", indent, prefix+from, prefix+to)
		}
	}
}

func nodeAttrs(g *depgraph.Graph, id string) []string {
	attrs := []string{fmt.Sprintf("label=%q", id)}
	style := "rounded,filled"
	if dev := g.IsDevelopmentDependency(id); dev != nil && *dev {
		style += ",dashed"
	}
	if g.IsComponentExplicitlyReferenced(id) {
		attrs = append(attrs, "fillcolor=lightblue", "penwidth=2")
	}
	return append(attrs, fmt.Sprintf("style=%q", style))
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
