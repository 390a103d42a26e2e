// Package panel is the terminal side panel listing a reference forest.
package panel

import (
	"context"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/refscope/internal/refs"
)

// chromeRows is the title line plus the status line.
const chromeRows = 2

// Options configures a panel.
type Options struct {
	// Title names the queried symbol in the header.
	Title string
	// Theme is the Chroma theme for leaf lines and the palette.
	Theme string
	// Icons draws ▾/▸ markers instead of -/+.
	Icons bool
	// Lines supplies leaf text. Defaults to reading files from disk.
	Lines refs.LineSource
	// Navigator opens selected leaves. Nil leaves NavigateMsg unhandled.
	Navigator Navigator
}

// row is one visible line of the forest.
type row struct {
	node   *refs.Node
	depth  int
	parent int // index of the parent row, -1 for buckets
}

// resolvedMsg carries a leaf label resolved off the update loop.
type resolvedMsg struct {
	node  *refs.Node
	label string
}

// Model is the panel's bubbletea model.
type Model struct {
	ctx    context.Context
	forest []*refs.Node
	total  int
	opts   Options
	keys   keyMap
	styles styles

	width  int
	height int

	rows     []row
	cursor   int
	offset   int
	expanded map[*refs.Node]bool
	labels   map[*refs.Node]string
	pending  map[*refs.Node]bool

	status string
}

// New returns a panel over forest. Bucket nodes start expanded, everything
// below them collapsed.
func New(ctx context.Context, forest []*refs.Node, opts Options) Model {
	if opts.Lines == nil {
		opts.Lines = refs.NewFileLines()
	}
	m := Model{
		ctx:      ctx,
		forest:   forest,
		total:    refs.CountLeaves(forest),
		opts:     opts,
		keys:     defaultKeyMap(),
		styles:   newStyles(opts.Theme),
		expanded: make(map[*refs.Node]bool),
		labels:   make(map[*refs.Node]string),
		pending:  make(map[*refs.Node]bool),
	}
	for _, root := range forest {
		m.expanded[root] = true
	}
	m.rows = m.flatten()
	return m
}

// Init resolves the leaves visible at startup.
func (m Model) Init() tea.Cmd {
	return m.resolveVisible()
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.scrollToCursor()
		return m, m.resolveVisible()
	case tea.KeyPressMsg:
		return m.handleKey(msg)
	case resolvedMsg:
		m.labels[msg.node] = msg.label
		delete(m.pending, msg.node)
		return m, nil
	case NavigateMsg:
		if m.opts.Navigator == nil {
			return m, nil
		}
		return m, m.opts.Navigator.Navigate(msg.Location)
	case navigatedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Str("location", msg.loc.String()).Msg("panel: navigation failed")
			m.status = "open " + msg.loc.String() + ": " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveTo(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.moveTo(m.cursor + 1)
	case key.Matches(msg, m.keys.Top):
		m.moveTo(0)
	case key.Matches(msg, m.keys.Bottom):
		m.moveTo(len(m.rows) - 1)
	case key.Matches(msg, m.keys.Expand):
		m.expand()
	case key.Matches(msg, m.keys.Collapse):
		m.collapse()
	case key.Matches(msg, m.keys.Select):
		if cmd := m.selectRow(); cmd != nil {
			return m, cmd
		}
	default:
		return m, nil
	}
	return m, m.resolveVisible()
}

// Cursor returns the node under the cursor, or nil for an empty forest.
func (m Model) Cursor() *refs.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

func (m *Model) moveTo(i int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = max(0, min(i, len(m.rows)-1))
	m.scrollToCursor()
}

// expand opens a collapsed container, or steps into an open one.
func (m *Model) expand() {
	n := m.Cursor()
	if n == nil || n.Kind != refs.NodeContainer {
		return
	}
	if !m.expanded[n] {
		m.setExpanded(n, true)
		return
	}
	m.moveTo(m.cursor + 1)
}

// collapse closes an open container, or moves to the parent row.
func (m *Model) collapse() {
	n := m.Cursor()
	if n == nil {
		return
	}
	if n.Kind == refs.NodeContainer && m.expanded[n] {
		m.setExpanded(n, false)
		return
	}
	if p := m.rows[m.cursor].parent; p >= 0 {
		m.moveTo(p)
	}
}

// selectRow toggles a container or emits NavigateMsg for a leaf.
func (m *Model) selectRow() tea.Cmd {
	n := m.Cursor()
	if n == nil {
		return nil
	}
	if n.Kind == refs.NodeContainer {
		m.setExpanded(n, !m.expanded[n])
		return nil
	}
	loc := n.Location
	return func() tea.Msg { return NavigateMsg{Location: loc} }
}

func (m *Model) setExpanded(n *refs.Node, open bool) {
	m.expanded[n] = open
	m.rows = m.flatten()
	m.moveTo(m.cursor)
}

// flatten lists the rows reachable through expanded containers.
func (m *Model) flatten() []row {
	var rows []row
	var visit func(n *refs.Node, depth, parent int)
	visit = func(n *refs.Node, depth, parent int) {
		idx := len(rows)
		rows = append(rows, row{node: n, depth: depth, parent: parent})
		if n.Kind != refs.NodeContainer || !m.expanded[n] {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1, idx)
		}
	}
	for _, root := range m.forest {
		visit(root, 0, -1)
	}
	return rows
}

func (m *Model) listHeight() int {
	return max(1, m.height-chromeRows)
}

func (m *Model) scrollToCursor() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	m.offset = max(0, min(m.offset, max(0, len(m.rows)-h)))
}

// visibleRows returns the window of rows currently on screen.
func (m *Model) visibleRows() []row {
	end := min(len(m.rows), m.offset+m.listHeight())
	if m.offset >= end {
		return nil
	}
	return m.rows[m.offset:end]
}

// resolveVisible starts one independent command per visible leaf whose
// label is neither known nor in flight.
func (m *Model) resolveVisible() tea.Cmd {
	var cmds []tea.Cmd
	for _, r := range m.visibleRows() {
		n := r.node
		if n.Kind != refs.NodeLeaf || m.pending[n] {
			continue
		}
		if _, ok := m.labels[n]; ok {
			continue
		}
		m.pending[n] = true
		cmds = append(cmds, resolveCmd(m.ctx, n, m.opts.Lines))
	}
	return tea.Batch(cmds...)
}

func resolveCmd(ctx context.Context, n *refs.Node, lines refs.LineSource) tea.Cmd {
	return func() tea.Msg {
		return resolvedMsg{node: n, label: n.Resolve(ctx, lines).Label}
	}
}
