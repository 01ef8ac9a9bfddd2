package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap is the operator key layout.
type KeyMap struct {
	Advance key.Binding
	Reset   key.Binding
	Status  key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Advance: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "start / finish early"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Status: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "status"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc/q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Advance, k.Reset, k.Status, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
