package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/report"
)

func testReport() *report.Report {
	return &report.Report{Locations: []report.Location{
		{Path: "Cargo.lock", Components: 3, Roots: []string{"app 0.1.0 - Cargo"}},
		{Path: "web/package-lock.json", Components: 5},
		{Path: "go.mod", Components: 2},
	}}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLocationListNavigation(t *testing.T) {
	var m tea.Model = NewLocationListModel(testReport())

	for _, k := range []string{"down", "j", "j", "up"} {
		m, _ = m.Update(key(k))
	}
	if got := m.(LocationListModel).Cursor; got != 1 {
		t.Fatalf("Cursor = %d, want 1", got)
	}

	m, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("enter should quit")
	}
	sel := m.(LocationListModel).Selected
	if sel == nil || sel.Path != "web/package-lock.json" {
		t.Errorf("Selected = %+v", sel)
	}
}

func TestLocationListQuit(t *testing.T) {
	m, cmd := NewLocationListModel(testReport()).Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if m.(LocationListModel).Selected != nil {
		t.Error("quit should not select")
	}
}

func TestLocationListScrolls(t *testing.T) {
	var m tea.Model = NewLocationListModel(testReport())
	m, _ = m.Update(tea.WindowSizeMsg{Height: 3})
	if got := m.(LocationListModel).Height; got != 5 {
		t.Errorf("Height = %d, want minimum 5", got)
	}

	lm := m.(LocationListModel)
	lm.Height = 1
	m = lm
	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("down"))
	if got := m.(LocationListModel); got.Offset != 2 || got.Cursor != 2 {
		t.Errorf("Offset, Cursor = %d, %d, want 2, 2", got.Offset, got.Cursor)
	}
	view := m.View()
	if !strings.Contains(view, "go.mod") || strings.Contains(view, "Cargo.lock") {
		t.Errorf("view should show only the scrolled row:\n%s", view)
	}
}

func TestLocationListView(t *testing.T) {
	view := NewLocationListModel(testReport()).View()
	for _, want := range []string{"Select Location", "Cargo.lock", "web/package-lock.json", "Components", "[1/3]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRenderTree(t *testing.T) {
	dev := true
	g := depgraph.New()
	g.AddNode("app", true, nil, "")
	g.AddNode("a", false, nil, "")
	g.AddNode("b", false, nil, "")
	g.AddNode("shared", false, &dev, component.ScopeTest)
	g.AddEdge("app", "a")
	g.AddEdge("app", "b")
	g.AddEdge("a", "shared")
	g.AddEdge("b", "shared")
	g.AddEdge("shared", "a")

	out := renderTree(g, "Cargo.lock")
	for _, want := range []string{"Cargo.lock", "app", "shared dev [test]", "a (cycle)", "shared dev [test] (*)"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "(cycle)"); n != 1 {
		t.Errorf("cycle marked %d times:\n%s", n, out)
	}
}
