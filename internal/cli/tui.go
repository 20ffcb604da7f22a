package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/report"
)

var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
	headerStyle  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rootStyle    = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	devStyle     = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
)

// =============================================================================
// LocationListModel - Interactive location selection
// =============================================================================

// LocationListModel is the bubbletea model for picking one scanned location.
type LocationListModel struct {
	Locations []report.Location
	Cursor    int
	Offset    int
	Height    int
	Selected  *report.Location
}

// NewLocationListModel lists the locations of r.
func NewLocationListModel(r *report.Report) LocationListModel {
	return LocationListModel{Locations: r.Locations, Height: 15}
}

func (m LocationListModel) Init() tea.Cmd {
	return nil
}

func (m LocationListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Locations)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Locations) == 0 {
				return m, tea.Quit
			}
			loc := m.Locations[m.Cursor]
			m.Selected = &loc
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m LocationListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Location"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ show tree  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Locations))
	var rows [][]string
	for i := m.Offset; i < end; i++ {
		l := m.Locations[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{
			cursor,
			l.Path,
			strconv.Itoa(l.Components),
			strconv.Itoa(len(l.Roots)),
			strconv.Itoa(len(l.Edges)),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Location", "Components", "Roots", "Edges").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle()
			if col >= 2 {
				base = base.Foreground(colorGray)
			}
			if m.Offset+row == m.Cursor {
				return base.Foreground(colorGreen).Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", min(m.Cursor+1, len(m.Locations)), len(m.Locations))))
	return b.String()
}

// =============================================================================
// Dependency Tree
// =============================================================================

// renderTree draws the graph of one location as a tree hanging off its
// explicit roots. A component already drawn on the current branch is marked
// "(cycle)"; one drawn elsewhere is marked "(*)" and not expanded again.
func renderTree(g *depgraph.Graph, location string) string {
	t := tree.Root(StyleTitle.Render(location)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(listDimStyle)

	expanded := make(map[string]bool)
	onPath := make(map[string]bool)

	var build func(id string) any
	build = func(id string) any {
		label := componentLabel(g, id)
		switch {
		case onPath[id]:
			return label + listDimStyle.Render(" (cycle)")
		case expanded[id]:
			return label + listDimStyle.Render(" (*)")
		}
		deps := g.GetDependenciesForComponent(id)
		expanded[id] = true
		if len(deps) == 0 {
			return label
		}
		onPath[id] = true
		node := tree.Root(label)
		for _, dep := range deps {
			node.Child(build(dep))
		}
		onPath[id] = false
		return node
	}

	for _, root := range g.GetAllExplicitlyReferencedComponents() {
		t.Child(build(root))
	}
	return t.String()
}

func componentLabel(g *depgraph.Graph, id string) string {
	label := id
	if g.IsComponentExplicitlyReferenced(id) {
		label = rootStyle.Render(id)
	}
	if dev := g.IsDevelopmentDependency(id); dev != nil && *dev {
		label += devStyle.Render(" dev")
	}
	if scope := g.GetDependencyScope(id); scope != "" {
		label += listDimStyle.Render(" [" + string(scope) + "]")
	}
	return label
}

// browse lets the user pick a location of r and returns its rendered tree.
// It returns "" when the user quits without choosing.
func browse(r *report.Report, opts ...tea.ProgramOption) (string, error) {
	if len(r.Locations) == 0 {
		return "", nil
	}
	final, err := tea.NewProgram(NewLocationListModel(r), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("run location picker: %w", err)
	}
	m, ok := final.(LocationListModel)
	if !ok || m.Selected == nil {
		return "", nil
	}
	g, ok := r.Graph(m.Selected.Path)
	if !ok {
		return "", nil
	}
	return renderTree(g, m.Selected.Path), nil
}
