package panel

import "charm.land/bubbles/v2/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Select   key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "down")),
		Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Expand:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l", "expand")),
		Collapse: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h", "collapse")),
		Select:   key.NewBinding(key.WithKeys("enter", "space"), key.WithHelp("enter", "open")),
		Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// helpLine lists the bindings shown in the status bar.
func (k keyMap) helpLine() string {
	var s string
	for i, b := range []key.Binding{k.Down, k.Up, k.Select, k.Quit} {
		if i > 0 {
			s += "  "
		}
		s += b.Help().Key + " " + b.Help().Desc
	}
	return s
}
