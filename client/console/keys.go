package console

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Inc     key.Binding
	Dec     key.Binding
	None    key.Binding
	Clear   key.Binding
	Save    key.Binding
	Pane    key.Binding
	Refresh key.Binding
	Retry   key.Binding
	Discard key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev entry")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next entry")),
		Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev category")),
		Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next category")),
		Inc:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "raise")),
		Dec:     key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "lower")),
		None:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "none")),
		Clear:   key.NewBinding(key.WithKeys("backspace", "x"), key.WithHelp("x", "clear")),
		Save:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Pane:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "queue")),
		Refresh: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Discard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Save, k.Pane, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Inc, k.Dec, k.None, k.Clear, k.Save},
		{k.Pane, k.Retry, k.Discard, k.Refresh},
		{k.Help, k.Quit},
	}
}
