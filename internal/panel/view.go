package panel

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/xonecas/refscope/internal/highlight"
	"github.com/xonecas/refscope/internal/refs"
)

type styles struct {
	theme    string
	bg       string
	Title    lipgloss.Style
	Bucket   lipgloss.Style
	Group    lipgloss.Style
	Scope    lipgloss.Style
	Dim      lipgloss.Style
	Selected lipgloss.Style
	Error    lipgloss.Style
}

func newStyles(theme string) styles {
	if theme == "" {
		theme = "vulcan"
	}
	p := highlight.ThemePalette(theme)
	return styles{
		theme:    theme,
		bg:       p.Bg,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		Bucket:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		Group:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		Scope:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Fg)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Dim)),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Fg)).Background(lipgloss.Color(p.Selection)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
	}
}

// View renders the panel on the alternate screen.
func (m Model) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

// renderContent produces the string content for the view.
func (m Model) renderContent() string {
	if m.width == 0 {
		return ""
	}

	lines := make([]string, 0, m.height)
	lines = append(lines, m.fit(m.styles.Title.Render(m.title())))

	visible := m.visibleRows()
	for i, r := range visible {
		lines = append(lines, m.fit(m.renderRow(r, m.offset+i == m.cursor)))
	}
	for i := len(visible); i < m.listHeight(); i++ {
		lines = append(lines, "")
	}

	lines = append(lines, m.fit(m.statusLine()))
	return strings.Join(lines, "\n")
}

func (m Model) title() string {
	if m.opts.Title == "" {
		return "References"
	}
	return "References to " + m.opts.Title
}

func (m Model) statusLine() string {
	if m.status != "" {
		return m.styles.Error.Render(m.status)
	}
	noun := "results"
	if m.total == 1 {
		noun = "result"
	}
	return m.styles.Dim.Render(fmt.Sprintf("%d %s  %s", m.total, noun, m.keys.helpLine()))
}

func (m Model) renderRow(r row, selected bool) string {
	indent := strings.Repeat("  ", r.depth)
	n := r.node

	if n.Kind == refs.NodeLeaf {
		label, ok := m.labels[n]
		if !ok {
			label = n.Location.String()
		}
		pos := fmt.Sprintf("%d:%d", n.Location.StartLine+1, n.Location.StartColumn+1)
		if selected {
			return m.styles.Selected.Render(indent + "  " + label + "  " + pos)
		}
		if ok {
			label = highlight.Line(label, n.Location.Path, m.styles.theme, "")
		} else {
			label = m.styles.Dim.Render(label)
		}
		return indent + "  " + label + "  " + m.styles.Dim.Render(pos)
	}

	item := n.Resolve(m.ctx, m.opts.Lines)
	marker := m.marker(m.expanded[n])
	if selected {
		return m.styles.Selected.Render(indent + marker + item.Label + "  " + item.Description)
	}
	label := m.containerStyle(n.Role).Render(item.Label)
	return indent + marker + label + "  " + m.styles.Dim.Render(item.Description)
}

func (m Model) marker(open bool) string {
	switch {
	case m.opts.Icons && open:
		return "▾ "
	case m.opts.Icons:
		return "▸ "
	case open:
		return "- "
	default:
		return "+ "
	}
}

func (m Model) containerStyle(role refs.Role) lipgloss.Style {
	switch role {
	case refs.RoleBucket:
		return m.styles.Bucket
	case refs.RoleScope:
		return m.styles.Scope
	default:
		return m.styles.Group
	}
}

// fit truncates a styled line to the panel width.
func (m Model) fit(s string) string {
	if ansi.StringWidth(s) <= m.width {
		return s
	}
	return ansi.Truncate(s, m.width, "…")
}
