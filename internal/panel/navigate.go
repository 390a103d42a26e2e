package panel

import (
	"fmt"
	"os"
	"os/exec"

	tea "charm.land/bubbletea/v2"
	"mvdan.cc/sh/v3/shell"

	"github.com/xonecas/refscope/internal/refs"
)

// NavigateMsg is emitted when a leaf is selected. A parent model may handle
// it itself; otherwise the panel hands it to its Navigator.
type NavigateMsg struct {
	Location refs.Location
}

// Navigator opens a location. The returned command runs inside the program.
type Navigator interface {
	Navigate(loc refs.Location) tea.Cmd
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(loc refs.Location) tea.Cmd

// Navigate calls f.
func (f NavigatorFunc) Navigate(loc refs.Location) tea.Cmd { return f(loc) }

// navigatedMsg reports the end of a navigation.
type navigatedMsg struct {
	loc refs.Location
	err error
}

// EditorNavigator opens locations with a terminal editor, suspending the
// panel while it runs.
type EditorNavigator struct {
	// Editor is a shell-quoted command line. Empty means $EDITOR, then vi.
	Editor string
}

// Navigate runs "<editor> +line path".
func (e EditorNavigator) Navigate(loc refs.Location) tea.Cmd {
	cmd, err := e.command(loc)
	if err != nil {
		return func() tea.Msg { return navigatedMsg{loc: loc, err: err} }
	}
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return navigatedMsg{loc: loc, err: err}
	})
}

func (e EditorNavigator) command(loc refs.Location) (*exec.Cmd, error) {
	editor := e.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	args, err := shell.Fields(editor, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("panel: editor %q: %w", editor, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("panel: editor %q is empty", editor)
	}
	args = append(args, fmt.Sprintf("+%d", loc.StartLine+1), loc.Path)
	return exec.Command(args[0], args[1:]...), nil //nolint:gosec // user-configured editor
}
