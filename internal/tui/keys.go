package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the chart key bindings. It implements help.KeyMap.
type keyMap struct {
	next   key.Binding
	prev   key.Binding
	reload key.Binding
	up     key.Binding
	down   key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		next: key.NewBinding(
			key.WithKeys("right", "tab", "l"),
			key.WithHelp("→/tab", "Next tab"),
		),
		prev: key.NewBinding(
			key.WithKeys("left", "shift+tab", "h"),
			key.WithHelp("←", "Previous tab"),
		),
		reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Reload"),
		),
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "Up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "Down"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("ctrl+c/q", "Quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.prev, k.next, k.reload, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.prev, k.next},
		{k.up, k.down},
		{k.reload, k.quit},
	}
}
